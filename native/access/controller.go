package access

import (
	"errors"
	"fmt"

	"vaultchain/core/events"
	"vaultchain/crypto"
)

// Role names understood by the access controller. Role membership lives in
// state as sorted address lists; the constants here are the only keys the
// node's modules consult.
const (
	// RoleAdmin may grant and revoke every other role.
	RoleAdmin = "ROLE_ADMIN"
	// RoleSetParameter may update risk parameters and the payout policy.
	RoleSetParameter = "ROLE_SET_PARAMETER"
	// RoleLiquidator may call the liquidation executor directly.
	RoleLiquidator = "ROLE_LIQUIDATOR"
	// RoleUpgradeModule may authorize module implementation upgrades.
	RoleUpgradeModule = "ROLE_UPGRADE_MODULE"
	// RoleCacheMaintainer may invalidate and refresh view cache snapshots.
	RoleCacheMaintainer = "ROLE_CACHE_MAINTAINER"
	// RolePauser may flip module pause flags.
	RolePauser = "ROLE_PAUSER"
)

var (
	ErrUnauthorized = errors.New("access: caller not authorized")
	ErrUnknownRole  = errors.New("access: unknown role")
	ErrZeroAddress  = errors.New("access: address must not be zero")
)

var knownRoles = map[string]struct{}{
	RoleAdmin:           {},
	RoleSetParameter:    {},
	RoleLiquidator:      {},
	RoleUpgradeModule:   {},
	RoleCacheMaintainer: {},
	RolePauser:          {},
}

// KnownRole reports whether the role name is one the controller manages.
func KnownRole(role string) bool {
	_, ok := knownRoles[role]
	return ok
}

type controllerState interface {
	HasRole(role string, addr []byte) bool
	SetRole(role string, addr []byte) error
	UnsetRole(role string, addr []byte) error
	RoleMembers(role string) ([][]byte, error)
}

// Controller manages role membership. Grants and revocations require the
// caller to hold RoleAdmin; genesis seeds the first admin directly in state.
type Controller struct {
	st      controllerState
	emitter events.Emitter
}

// NewController creates a controller backed by the provided state manager.
func NewController(st controllerState) *Controller {
	return &Controller{st: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Controller) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// RequireRole fails with ErrUnauthorized when the caller does not hold the
// role.
func (c *Controller) RequireRole(caller crypto.Address, role string) error {
	if !KnownRole(role) {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if caller.IsZero() || !c.st.HasRole(role, caller.Bytes()) {
		return fmt.Errorf("%w: %s requires %s", ErrUnauthorized, caller, role)
	}
	return nil
}

// HasRole reports whether the address currently holds the role.
func (c *Controller) HasRole(role string, addr crypto.Address) (bool, error) {
	if !KnownRole(role) {
		return false, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if addr.IsZero() {
		return false, ErrZeroAddress
	}
	return c.st.HasRole(role, addr.Bytes()), nil
}

// Grant adds the grantee to the role. Only admins may grant.
func (c *Controller) Grant(caller crypto.Address, role string, grantee crypto.Address) error {
	if !KnownRole(role) {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if grantee.IsZero() {
		return ErrZeroAddress
	}
	if err := c.RequireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if err := c.st.SetRole(role, grantee.Bytes()); err != nil {
		return err
	}
	c.emitter.Emit(events.AccessRoleGranted{Role: role, Grantee: grantee, Caller: caller})
	return nil
}

// Revoke removes the grantee from the role. Only admins may revoke.
func (c *Controller) Revoke(caller crypto.Address, role string, grantee crypto.Address) error {
	if !KnownRole(role) {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if grantee.IsZero() {
		return ErrZeroAddress
	}
	if err := c.RequireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if err := c.st.UnsetRole(role, grantee.Bytes()); err != nil {
		return err
	}
	c.emitter.Emit(events.AccessRoleRevoked{Role: role, Grantee: grantee, Caller: caller})
	return nil
}

// Members lists the addresses holding the role.
func (c *Controller) Members(role string) ([]crypto.Address, error) {
	if !KnownRole(role) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	raw, err := c.st.RoleMembers(role)
	if err != nil {
		return nil, err
	}
	members := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		addr, err := crypto.AddressFromBytes(entry)
		if err != nil {
			return nil, err
		}
		members = append(members, addr)
	}
	return members, nil
}
