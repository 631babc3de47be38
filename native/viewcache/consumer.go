// Package viewcache holds the health-factor cache the risk assessor reads
// and implements the best-effort push consumer the settlement engines
// notify after ledger writes. The cache is never the source of truth: a
// failed valuation marks the subject's snapshot invalid instead of guessing,
// and the safe-fallback policy downstream treats invalid as not
// liquidatable.
package viewcache

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/params"
)

var (
	ErrZeroAddress  = errors.New("viewcache: address must not be zero")
	ErrUnauthorized = errors.New("viewcache: caller not authorized")
)

const roleCacheMaintainer = "ROLE_CACHE_MAINTAINER"

type consumerState interface {
	SetHealthSnapshot(user crypto.Address, snapshot types.HealthSnapshot) error
	HealthSnapshot(user crypto.Address) (types.HealthSnapshot, bool, error)
	HasRole(role string, addr []byte) bool
}

type collateralView interface {
	TotalValue(user crypto.Address) (*big.Int, error)
}

type debtView interface {
	TotalDebtValue(user crypto.Address) (*big.Int, error)
}

// Consumer recomputes and stores health snapshots from live ledger totals.
type Consumer struct {
	st         consumerState
	collateral collateralView
	debt       debtView
	emitter    events.Emitter
	nowFn      func() int64
}

// NewConsumer creates a push consumer over the provided state and ledger
// views.
func NewConsumer(st consumerState, collateral collateralView, debt debtView) *Consumer {
	return &Consumer{
		st:         st,
		collateral: collateral,
		debt:       debt,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Consumer) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetNowFunc overrides the time source. Passing nil restores the wall clock.
func (c *Consumer) SetNowFunc(now func() int64) {
	if c == nil {
		return
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	c.nowFn = now
}

// Snapshot returns the user's cached health factor. The second return
// reports whether any snapshot has ever been stored.
func (c *Consumer) Snapshot(user crypto.Address) (types.HealthSnapshot, bool, error) {
	if user.IsZero() {
		return types.HealthSnapshot{}, false, ErrZeroAddress
	}
	return c.st.HealthSnapshot(user)
}

// healthFactorBps computes collateral/debt in basis points, rounding down.
// Debt-free users get the sentinel; ratios beyond uint64 saturate to it,
// which downstream reads as maximally healthy.
func healthFactorBps(collateralValue, debtValue *big.Int) uint64 {
	if debtValue == nil || debtValue.Sign() == 0 {
		return types.NoDebtHealthFactor
	}
	if collateralValue == nil || collateralValue.Sign() <= 0 {
		return 0
	}
	ratio := new(big.Int).Mul(collateralValue, big.NewInt(params.BpsDenominator))
	ratio.Quo(ratio, debtValue)
	if !ratio.IsUint64() {
		return types.NoDebtHealthFactor
	}
	return ratio.Uint64()
}

// PushLiquidationUpdate recomputes the subject's health snapshot from live
// ledger totals. Valuation failures store an invalid snapshot and succeed;
// only state write failures propagate to the caller.
func (c *Consumer) PushLiquidationUpdate(user crypto.Address) error {
	if user.IsZero() {
		return ErrZeroAddress
	}
	snapshot := types.HealthSnapshot{UpdatedAt: uint64(c.nowFn())}
	collateralValue, collErr := c.collateral.TotalValue(user)
	debtValue, debtErr := c.debt.TotalDebtValue(user)
	if collErr == nil && debtErr == nil {
		snapshot.HealthFactorBps = healthFactorBps(collateralValue, debtValue)
		snapshot.Valid = true
	}
	if err := c.st.SetHealthSnapshot(user, snapshot); err != nil {
		return err
	}
	c.emitter.Emit(events.ViewCacheSnapshotUpdated{
		Subject:         user,
		HealthFactorBps: snapshot.HealthFactorBps,
		Valid:           snapshot.Valid,
		Timestamp:       snapshot.UpdatedAt,
	})
	return nil
}

// PushBatchLiquidationUpdate refreshes each user's snapshot in order and
// stops on the first failure so the caller can report it.
func (c *Consumer) PushBatchLiquidationUpdate(users []crypto.Address) error {
	for i, user := range users {
		if err := c.PushLiquidationUpdate(user); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	return nil
}

// PushLiquidationPayout refreshes the liquidation target and every payout
// recipient whose collateral balance the distribution touched. Zero
// addresses in the recipient list are skipped.
func (c *Consumer) PushLiquidationPayout(target crypto.Address, recipients ...crypto.Address) error {
	if err := c.PushLiquidationUpdate(target); err != nil {
		return err
	}
	seen := map[[20]byte]struct{}{target.Array(): {}}
	for _, recipient := range recipients {
		if recipient.IsZero() {
			continue
		}
		if _, dup := seen[recipient.Array()]; dup {
			continue
		}
		seen[recipient.Array()] = struct{}{}
		if err := c.PushLiquidationUpdate(recipient); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate flips the subject's snapshot to invalid. Requires the
// cache-maintenance role; the next push recomputes from live totals.
func (c *Consumer) Invalidate(caller, user crypto.Address) error {
	if user.IsZero() {
		return ErrZeroAddress
	}
	if caller.IsZero() || !c.st.HasRole(roleCacheMaintainer, caller.Bytes()) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	snapshot, _, err := c.st.HealthSnapshot(user)
	if err != nil {
		return err
	}
	snapshot.Valid = false
	snapshot.UpdatedAt = uint64(c.nowFn())
	if err := c.st.SetHealthSnapshot(user, snapshot); err != nil {
		return err
	}
	c.emitter.Emit(events.ViewCacheSnapshotInvalidated{
		Subject:   user,
		Caller:    caller,
		Timestamp: snapshot.UpdatedAt,
	})
	return nil
}
