package modules

import (
	"encoding/json"

	"vaultchain/core"
	"vaultchain/native/payout"
)

// PayoutModule reads and governs the seizure distribution policy.
type PayoutModule struct {
	node *core.Node
}

// NewPayoutModule constructs the payout RPC gateway.
func NewPayoutModule(node *core.Node) *PayoutModule {
	return &PayoutModule{node: node}
}

type payoutRecipientsParams struct {
	Platform   string `json:"platform"`
	Reserve    string `json:"reserve"`
	LenderComp string `json:"lenderComp"`
}

type payoutRatesParams struct {
	PlatformBps   uint64 `json:"platformBps"`
	ReserveBps    uint64 `json:"reserveBps"`
	LenderBps     uint64 `json:"lenderBps"`
	LiquidatorBps uint64 `json:"liquidatorBps"`
}

type updatePayoutConfigParams struct {
	Caller     string                 `json:"caller"`
	Recipients payoutRecipientsParams `json:"recipients"`
	Rates      payoutRatesParams      `json:"rates"`
}

type updatePayoutRecipientsParams struct {
	Caller     string                 `json:"caller"`
	Recipients payoutRecipientsParams `json:"recipients"`
}

type updatePayoutRatesParams struct {
	Caller string            `json:"caller"`
	Rates  payoutRatesParams `json:"rates"`
}

// PayoutPolicyResult is the stored policy in transport form.
type PayoutPolicyResult struct {
	Platform      string `json:"platform"`
	Reserve       string `json:"reserve"`
	LenderComp    string `json:"lenderComp"`
	PlatformBps   uint64 `json:"platformBps"`
	ReserveBps    uint64 `json:"reserveBps"`
	LenderBps     uint64 `json:"lenderBps"`
	LiquidatorBps uint64 `json:"liquidatorBps"`
}

func (p payoutRecipientsParams) parse() (payout.Recipients, *ModuleError) {
	platform, modErr := parseAddress("recipients.platform", p.Platform)
	if modErr != nil {
		return payout.Recipients{}, modErr
	}
	reserve, modErr := parseAddress("recipients.reserve", p.Reserve)
	if modErr != nil {
		return payout.Recipients{}, modErr
	}
	lenderComp, modErr := parseAddress("recipients.lenderComp", p.LenderComp)
	if modErr != nil {
		return payout.Recipients{}, modErr
	}
	return payout.Recipients{Platform: platform, Reserve: reserve, LenderComp: lenderComp}, nil
}

func (p payoutRatesParams) toRates() payout.Rates {
	return payout.Rates{
		PlatformBps:   p.PlatformBps,
		ReserveBps:    p.ReserveBps,
		LenderBps:     p.LenderBps,
		LiquidatorBps: p.LiquidatorBps,
	}
}

// GetPolicy returns the stored distribution policy.
func (m *PayoutModule) GetPolicy() (*PayoutPolicyResult, *ModuleError) {
	result := &PayoutPolicyResult{}
	err := m.node.Query(func() error {
		policy, queryErr := m.node.Payout().Policy()
		if queryErr != nil {
			return queryErr
		}
		result.Platform = policy.Platform.String()
		result.Reserve = policy.Reserve.String()
		result.LenderComp = policy.LenderComp.String()
		result.PlatformBps = policy.PlatformBps
		result.ReserveBps = policy.ReserveBps
		result.LenderBps = policy.LenderBps
		result.LiquidatorBps = policy.LiquidatorBps
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// UpdateConfig atomically replaces recipients and rates.
func (m *PayoutModule) UpdateConfig(raw json.RawMessage) (*PayoutPolicyResult, *ModuleError) {
	var params updatePayoutConfigParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	recipients, modErr := params.Recipients.parse()
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Payout().UpdateConfig(caller, recipients, params.Rates.toRates())
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return m.GetPolicy()
}

// UpdateRecipients replaces only recipient addresses.
func (m *PayoutModule) UpdateRecipients(raw json.RawMessage) (*PayoutPolicyResult, *ModuleError) {
	var params updatePayoutRecipientsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	recipients, modErr := params.Recipients.parse()
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Payout().UpdateRecipients(caller, recipients)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return m.GetPolicy()
}

// UpdateRates replaces only the basis-point split.
func (m *PayoutModule) UpdateRates(raw json.RawMessage) (*PayoutPolicyResult, *ModuleError) {
	var params updatePayoutRatesParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Payout().UpdateRates(caller, params.Rates.toRates())
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return m.GetPolicy()
}
