package modules

import (
	"encoding/json"
	"strconv"

	"vaultchain/core"
	"vaultchain/crypto"
	"vaultchain/native/risk"
)

// RiskModule exposes liquidatability queries and the governed parameter
// updates.
type RiskModule struct {
	node *core.Node
}

// NewRiskModule constructs the risk RPC gateway.
func NewRiskModule(node *core.Node) *RiskModule {
	return &RiskModule{node: node}
}

type userParams struct {
	User string `json:"user"`
}

type batchUserParams struct {
	Users []string `json:"users"`
}

type updateParameterParams struct {
	Caller string `json:"caller"`
	NewBps uint64 `json:"newBps"`
}

type refreshCacheParams struct {
	Caller string   `json:"caller"`
	Keys   []string `json:"keys"`
}

// LiquidatableResult answers one liquidatability query.
type LiquidatableResult struct {
	User         string `json:"user"`
	Liquidatable bool   `json:"liquidatable"`
}

// RiskScoreResult carries one banded risk score.
type RiskScoreResult struct {
	User      string `json:"user"`
	RiskScore uint64 `json:"riskScore"`
	RiskLevel string `json:"riskLevel"`
}

// RiskAssessmentResult is the full risk picture for one user. The health
// factor travels as a decimal string because the no-debt sentinel exceeds
// the safe JSON integer range.
type RiskAssessmentResult struct {
	User            string `json:"user"`
	Liquidatable    bool   `json:"liquidatable"`
	RiskScore       uint64 `json:"riskScore"`
	RiskLevel       string `json:"riskLevel"`
	HealthFactorBps string `json:"healthFactorBps"`
	SafetyMarginBps int64  `json:"safetyMarginBps"`
}

// BatchLiquidatableResult pairs each queried user with its flag, in call
// order.
type BatchLiquidatableResult struct {
	Users        []string `json:"users"`
	Liquidatable []bool   `json:"liquidatable"`
}

// BatchRiskScoreResult pairs each queried user with its score, in call
// order.
type BatchRiskScoreResult struct {
	Users  []string `json:"users"`
	Scores []uint64 `json:"scores"`
}

// ParameterUpdateResult echoes a governed parameter write.
type ParameterUpdateResult struct {
	Name   string `json:"name"`
	NewBps uint64 `json:"newBps"`
}

func (m *RiskModule) parseUser(raw json.RawMessage) (crypto.Address, string, *ModuleError) {
	var params userParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return crypto.Address{}, "", invalidParams("invalid parameter object", err.Error())
	}
	addr, modErr := parseAddress("user", params.User)
	if modErr != nil {
		return crypto.Address{}, "", modErr
	}
	return addr, addr.String(), nil
}

// IsLiquidatable reads the cached liquidatability flag for one user.
func (m *RiskModule) IsLiquidatable(raw json.RawMessage) (*LiquidatableResult, *ModuleError) {
	user, display, modErr := m.parseUser(raw)
	if modErr != nil {
		return nil, modErr
	}
	var liquidatable bool
	err := m.node.Query(func() error {
		var queryErr error
		liquidatable, queryErr = m.node.Risk().IsLiquidatable(user)
		return queryErr
	})
	if err != nil {
		return nil, classify(err)
	}
	return &LiquidatableResult{User: display, Liquidatable: liquidatable}, nil
}

// RiskScore computes the live banded score for one user.
func (m *RiskModule) RiskScore(raw json.RawMessage) (*RiskScoreResult, *ModuleError) {
	user, display, modErr := m.parseUser(raw)
	if modErr != nil {
		return nil, modErr
	}
	var score uint64
	err := m.node.Query(func() error {
		var queryErr error
		score, queryErr = m.node.Risk().RiskScore(user)
		return queryErr
	})
	if err != nil {
		return nil, classify(err)
	}
	return &RiskScoreResult{User: display, RiskScore: score, RiskLevel: risk.RiskLevel(score)}, nil
}

// Assessment evaluates the full risk picture for one user.
func (m *RiskModule) Assessment(raw json.RawMessage) (*RiskAssessmentResult, *ModuleError) {
	user, display, modErr := m.parseUser(raw)
	if modErr != nil {
		return nil, modErr
	}
	result := &RiskAssessmentResult{User: display}
	err := m.node.Query(func() error {
		assessment, queryErr := m.node.Risk().Assessment(user)
		if queryErr != nil {
			return queryErr
		}
		result.Liquidatable = assessment.Liquidatable
		result.RiskScore = assessment.RiskScore
		result.RiskLevel = assessment.RiskLevel
		result.HealthFactorBps = strconv.FormatUint(assessment.HealthFactorBps, 10)
		result.SafetyMarginBps = assessment.SafetyMarginBps
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (m *RiskModule) parseBatch(raw json.RawMessage) ([]crypto.Address, []string, *ModuleError) {
	var params batchUserParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, nil, invalidParams("invalid parameter object", err.Error())
	}
	users := make([]crypto.Address, len(params.Users))
	display := make([]string, len(params.Users))
	for i, rawUser := range params.Users {
		addr, modErr := parseAddress("user", rawUser)
		if modErr != nil {
			return nil, nil, modErr
		}
		users[i] = addr
		display[i] = addr.String()
	}
	return users, display, nil
}

// BatchIsLiquidatable answers the cached flag for up to the batch limit of
// users in one call.
func (m *RiskModule) BatchIsLiquidatable(raw json.RawMessage) (*BatchLiquidatableResult, *ModuleError) {
	users, display, modErr := m.parseBatch(raw)
	if modErr != nil {
		return nil, modErr
	}
	var flags []bool
	err := m.node.Query(func() error {
		var queryErr error
		flags, queryErr = m.node.Risk().BatchIsLiquidatable(users)
		return queryErr
	})
	if err != nil {
		return nil, classify(err)
	}
	return &BatchLiquidatableResult{Users: display, Liquidatable: flags}, nil
}

// BatchRiskScores computes live scores for up to the batch limit of users.
func (m *RiskModule) BatchRiskScores(raw json.RawMessage) (*BatchRiskScoreResult, *ModuleError) {
	users, display, modErr := m.parseBatch(raw)
	if modErr != nil {
		return nil, modErr
	}
	var scores []uint64
	err := m.node.Query(func() error {
		var queryErr error
		scores, queryErr = m.node.Risk().BatchRiskScores(users)
		return queryErr
	})
	if err != nil {
		return nil, classify(err)
	}
	return &BatchRiskScoreResult{Users: display, Scores: scores}, nil
}

func (m *RiskModule) updateParameter(raw json.RawMessage, name string, apply func(caller crypto.Address, newBps uint64) error) (*ParameterUpdateResult, *ModuleError) {
	var params updateParameterParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return apply(caller, params.NewBps)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &ParameterUpdateResult{Name: name, NewBps: params.NewBps}, nil
}

// UpdateLiquidationThreshold moves the governed liquidation threshold.
func (m *RiskModule) UpdateLiquidationThreshold(raw json.RawMessage) (*ParameterUpdateResult, *ModuleError) {
	return m.updateParameter(raw, risk.ParamLiquidationThreshold, m.node.Risk().UpdateLiquidationThreshold)
}

// UpdateMinHealthFactor moves the governed minimum health factor.
func (m *RiskModule) UpdateMinHealthFactor(raw json.RawMessage) (*ParameterUpdateResult, *ModuleError) {
	return m.updateParameter(raw, risk.ParamMinHealthFactor, m.node.Risk().UpdateMinHealthFactor)
}

// RefreshModuleCache eagerly re-fetches registry bindings through the
// resolver. Maintenance-role gated within the engine.
func (m *RiskModule) RefreshModuleCache(raw json.RawMessage) (map[string]interface{}, *ModuleError) {
	var params refreshCacheParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	if len(params.Keys) == 0 {
		return nil, invalidParams("keys is required", nil)
	}
	err := m.node.Query(func() error {
		return m.node.Risk().RefreshModuleCache(caller, params.Keys...)
	})
	if err != nil {
		return nil, classify(err)
	}
	return map[string]interface{}{"refreshed": params.Keys}, nil
}

// RiskParametersResult carries the governed risk parameters.
type RiskParametersResult struct {
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	MinHealthFactorBps      uint64 `json:"minHealthFactorBps"`
}

// Parameters reads the governed risk parameters.
func (m *RiskModule) Parameters() (*RiskParametersResult, *ModuleError) {
	result := &RiskParametersResult{}
	err := m.node.Query(func() error {
		riskParams, queryErr := m.node.Risk().Parameters()
		if queryErr != nil {
			return queryErr
		}
		result.LiquidationThresholdBps = riskParams.LiquidationThresholdBps
		result.MinHealthFactorBps = riskParams.MinHealthFactorBps
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}
