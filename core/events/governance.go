package events

import (
	"vaultchain/core/types"
	"vaultchain/crypto"
)

const (
	// TypeRiskParameterChanged is emitted when a governance setter updates
	// the liquidation threshold or the minimum health factor.
	TypeRiskParameterChanged = "risk.parameter.changed"
	// TypePayoutPolicyUpdated is emitted with the full policy after any
	// accepted recipients/rates update.
	TypePayoutPolicyUpdated = "payout.policy.updated"
	// TypeRegistryModuleRegistered is emitted when a module key is bound to
	// an address.
	TypeRegistryModuleRegistered = "registry.module.registered"
	// TypeAccessRoleGranted is emitted when an address gains a role.
	TypeAccessRoleGranted = "access.role.granted"
	// TypeAccessRoleRevoked is emitted when an address loses a role.
	TypeAccessRoleRevoked = "access.role.revoked"
	// TypeModulePauseChanged is emitted when a module pause flag flips.
	TypeModulePauseChanged = "module.pause.changed"
)

// RiskParameterChanged carries old and new values of a risk parameter.
type RiskParameterChanged struct {
	Name      string         `json:"name"`
	OldValue  uint64         `json:"oldValue"`
	NewValue  uint64         `json:"newValue"`
	Caller    crypto.Address `json:"caller"`
	Timestamp uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (RiskParameterChanged) EventType() string { return TypeRiskParameterChanged }

// Event converts the parameter change to the generic event payload.
func (e RiskParameterChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeRiskParameterChanged,
		Attributes: map[string]string{
			"name":      e.Name,
			"old_value": uintString(e.OldValue),
			"new_value": uintString(e.NewValue),
			"caller":    e.Caller.String(),
			"timestamp": uintString(e.Timestamp),
		},
	}
}

// PayoutPolicyUpdated carries the complete policy accepted by an update.
type PayoutPolicyUpdated struct {
	Platform      crypto.Address `json:"platform"`
	Reserve       crypto.Address `json:"reserve"`
	LenderComp    crypto.Address `json:"lenderComp"`
	PlatformBps   uint64         `json:"platformBps"`
	ReserveBps    uint64         `json:"reserveBps"`
	LenderBps     uint64         `json:"lenderBps"`
	LiquidatorBps uint64         `json:"liquidatorBps"`
	Caller        crypto.Address `json:"caller"`
	Timestamp     uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (PayoutPolicyUpdated) EventType() string { return TypePayoutPolicyUpdated }

// Event converts the policy update to the generic event payload.
func (e PayoutPolicyUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePayoutPolicyUpdated,
		Attributes: map[string]string{
			"platform":       e.Platform.String(),
			"reserve":        e.Reserve.String(),
			"lender_comp":    e.LenderComp.String(),
			"platform_bps":   uintString(e.PlatformBps),
			"reserve_bps":    uintString(e.ReserveBps),
			"lender_bps":     uintString(e.LenderBps),
			"liquidator_bps": uintString(e.LiquidatorBps),
			"caller":         e.Caller.String(),
			"timestamp":      uintString(e.Timestamp),
		},
	}
}

// RegistryModuleRegistered records a module key binding.
type RegistryModuleRegistered struct {
	Key       string         `json:"key"`
	Address   crypto.Address `json:"address"`
	Caller    crypto.Address `json:"caller"`
	Timestamp uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (RegistryModuleRegistered) EventType() string { return TypeRegistryModuleRegistered }

// Event converts the registration to the generic event payload.
func (e RegistryModuleRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeRegistryModuleRegistered,
		Attributes: map[string]string{
			"key":       e.Key,
			"address":   e.Address.String(),
			"caller":    e.Caller.String(),
			"timestamp": uintString(e.Timestamp),
		},
	}
}

// AccessRoleGranted records a role grant.
type AccessRoleGranted struct {
	Role    string         `json:"role"`
	Grantee crypto.Address `json:"grantee"`
	Caller  crypto.Address `json:"caller"`
}

// EventType implements the Event interface.
func (AccessRoleGranted) EventType() string { return TypeAccessRoleGranted }

// Event converts the grant to the generic event payload.
func (e AccessRoleGranted) Event() *types.Event {
	return &types.Event{
		Type: TypeAccessRoleGranted,
		Attributes: map[string]string{
			"role":    e.Role,
			"grantee": e.Grantee.String(),
			"caller":  e.Caller.String(),
		},
	}
}

// AccessRoleRevoked records a role revocation.
type AccessRoleRevoked struct {
	Role    string         `json:"role"`
	Grantee crypto.Address `json:"grantee"`
	Caller  crypto.Address `json:"caller"`
}

// EventType implements the Event interface.
func (AccessRoleRevoked) EventType() string { return TypeAccessRoleRevoked }

// Event converts the revocation to the generic event payload.
func (e AccessRoleRevoked) Event() *types.Event {
	return &types.Event{
		Type: TypeAccessRoleRevoked,
		Attributes: map[string]string{
			"role":    e.Role,
			"grantee": e.Grantee.String(),
			"caller":  e.Caller.String(),
		},
	}
}

// ModulePauseChanged records a pause flag transition.
type ModulePauseChanged struct {
	Module    string         `json:"module"`
	Paused    bool           `json:"paused"`
	Caller    crypto.Address `json:"caller"`
	Timestamp uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (ModulePauseChanged) EventType() string { return TypeModulePauseChanged }

// Event converts the pause transition to the generic event payload.
func (e ModulePauseChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeModulePauseChanged,
		Attributes: map[string]string{
			"module":    e.Module,
			"paused":    boolString(e.Paused),
			"caller":    e.Caller.String(),
			"timestamp": uintString(e.Timestamp),
		},
	}
}
