package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"vaultchain/core/events"
	"vaultchain/crypto"
)

// Well-known module keys. Keys are stable lowercase strings; Register and
// Resolve NFKC-normalize their input so visually identical keys collapse to
// one entry.
const (
	KeyAccessControl         = "access-control"
	KeyCollateralLedger      = "collateral-ledger"
	KeyDebtLedger            = "debt-ledger"
	KeyLoanLedger            = "loan-ledger"
	KeyPriceAdapter          = "price-adapter"
	KeyLoanReceipt           = "loan-receipt"
	KeyPayoutConfig          = "payout-config"
	KeyViewCache             = "view-cache"
	KeyVaultCore             = "vault-core"
	KeyRiskConfig            = "risk-config"
	KeyCacheMaintenance      = "cache-maintenance-manager"
	KeySettlementCoordinator = "settlement-coordinator"
)

const (
	roleAdmin           = "ROLE_ADMIN"
	roleCacheMaintainer = "ROLE_CACHE_MAINTAINER"
)

// DefaultMaxEntryAge bounds how long a resolver cache entry is served before
// it is re-fetched from state.
const DefaultMaxEntryAge = 24 * time.Hour

var (
	ErrUnregisteredModule = errors.New("registry: module not registered")
	ErrInvalidKey         = errors.New("registry: invalid key")
	ErrUnauthorized       = errors.New("registry: caller not authorized")
)

// NormalizeKey canonicalizes a module key: NFKC, lowercase, trimmed, and
// restricted to [a-z0-9-].
func NormalizeKey(key string) (string, error) {
	normalized := norm.NFKC.String(strings.ToLower(strings.TrimSpace(key)))
	if normalized == "" {
		return "", ErrInvalidKey
	}
	for _, r := range normalized {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return normalized, nil
}

type registryState interface {
	RegistrySet(key string, addr crypto.Address) error
	RegistryGet(key string) (crypto.Address, bool, error)
	HasRole(role string, addr []byte) bool
}

// Registry binds stable module keys to addresses in state.
type Registry struct {
	st      registryState
	emitter events.Emitter
	nowFn   func() int64
}

// NewRegistry creates a registry backed by the provided state manager.
func NewRegistry(st registryState) *Registry {
	return &Registry{
		st:      st,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source used by the registry. Primarily
// intended for tests to provide deterministic timestamps.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// Register binds a key to an address. Only admins may register, the key must
// normalize cleanly, and the address must be non-zero. Re-registering a key
// replaces the binding.
func (r *Registry) Register(caller crypto.Address, key string, addr crypto.Address) error {
	normalized, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	if addr.IsZero() {
		return fmt.Errorf("registry: address for %s must not be zero", normalized)
	}
	if caller.IsZero() || !r.st.HasRole(roleAdmin, caller.Bytes()) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if err := r.st.RegistrySet(normalized, addr); err != nil {
		return err
	}
	r.emitter.Emit(events.RegistryModuleRegistered{
		Key:       normalized,
		Address:   addr,
		Caller:    caller,
		Timestamp: uint64(r.nowFn()),
	})
	return nil
}

// Resolve looks up a key, reporting whether a binding exists.
func (r *Registry) Resolve(key string) (crypto.Address, bool, error) {
	normalized, err := NormalizeKey(key)
	if err != nil {
		return crypto.Address{}, false, err
	}
	return r.st.RegistryGet(normalized)
}

// ResolveOrFail looks up a key and fails with ErrUnregisteredModule naming
// the key when no binding exists.
func (r *Registry) ResolveOrFail(key string) (crypto.Address, error) {
	addr, ok, err := r.Resolve(key)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok {
		return crypto.Address{}, fmt.Errorf("%w: %s", ErrUnregisteredModule, key)
	}
	return addr, nil
}

func (r *Registry) hasRole(role string, caller crypto.Address) bool {
	if caller.IsZero() {
		return false
	}
	return r.st.HasRole(role, caller.Bytes())
}
