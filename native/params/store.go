package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StoreState captures the subset of state manager capabilities required by
// the parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for governance-controlled parameters.
// Setters validate before persisting so an invalid record can never land in
// state; readers fall back to defaults where a default exists.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetRisk persists the risk parameter record after validation.
func (s *Store) SetRisk(p RiskParameters) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("params: encode risk parameters: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyRisk, encoded)
}

// Risk loads the risk parameter record, falling back to genesis defaults
// when unset.
func (s *Store) Risk() (RiskParameters, error) {
	state, err := s.withState()
	if err != nil {
		return RiskParameters{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyRisk)
	if err != nil {
		return RiskParameters{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return DefaultRiskParameters(), nil
	}
	var p RiskParameters
	if err := json.Unmarshal(raw, &p); err != nil {
		return RiskParameters{}, fmt.Errorf("params: decode risk parameters: %w", err)
	}
	return p, nil
}

// SetPayoutPolicy persists the payout policy after validation.
func (s *Store) SetPayoutPolicy(p PayoutPolicy) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("params: encode payout policy: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyPayoutPolicy, encoded)
}

// PayoutPolicy loads the persisted payout policy. There is no default; the
// second return value reports whether a policy has been configured.
func (s *Store) PayoutPolicy() (PayoutPolicy, bool, error) {
	state, err := s.withState()
	if err != nil {
		return PayoutPolicy{}, false, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyPayoutPolicy)
	if err != nil {
		return PayoutPolicy{}, false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return PayoutPolicy{}, false, nil
	}
	var p PayoutPolicy
	if err := json.Unmarshal(raw, &p); err != nil {
		return PayoutPolicy{}, false, fmt.Errorf("params: decode payout policy: %w", err)
	}
	return p, true, nil
}

// SetOracle persists the oracle configuration after validation.
func (s *Store) SetOracle(c OracleConfig) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("params: encode oracle config: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyOracle, encoded)
}

// Oracle loads the oracle configuration, falling back to the default when
// unset.
func (s *Store) Oracle() (OracleConfig, error) {
	state, err := s.withState()
	if err != nil {
		return OracleConfig{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyOracle)
	if err != nil {
		return OracleConfig{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return DefaultOracleConfig(), nil
	}
	var c OracleConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return OracleConfig{}, fmt.Errorf("params: decode oracle config: %w", err)
	}
	return c, nil
}

// SetSettlement persists the liquidation sizing knobs after validation.
func (s *Store) SetSettlement(p SettlementParameters) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("params: encode settlement parameters: %w", err)
	}
	return state.ParamStoreSet(ParamsKeySettlement, encoded)
}

// Settlement loads the liquidation sizing knobs, falling back to defaults
// when unset.
func (s *Store) Settlement() (SettlementParameters, error) {
	state, err := s.withState()
	if err != nil {
		return SettlementParameters{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeySettlement)
	if err != nil {
		return SettlementParameters{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return DefaultSettlementParameters(), nil
	}
	var p SettlementParameters
	if err := json.Unmarshal(raw, &p); err != nil {
		return SettlementParameters{}, fmt.Errorf("params: decode settlement parameters: %w", err)
	}
	if p.PartialLiquidationFloor == nil {
		p.PartialLiquidationFloor = DefaultPartialLiquidationFloor()
	}
	return p, nil
}
