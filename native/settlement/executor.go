// Package settlement implements the liquidation executor and the settlement
// coordinator: the only two components that mutate the debt and collateral
// ledgers as a consequence of repayment or liquidation. Ledger writes are
// strictly ordered before the best-effort view cache push, and a failed
// push never rolls them back; the engines emit a cache-update-failure event
// instead so off-chain tooling can replay it.
package settlement

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"vaultchain/core/events"
	"vaultchain/crypto"
	"vaultchain/native/common"
	"vaultchain/native/params"
	"vaultchain/native/payout"
	"vaultchain/native/registry"
)

// ModuleName keys the pause flag and approved-implementation record.
const ModuleName = "settlement"

// receiptScanLimit bounds the best-effort loan-receipt cross-check.
const receiptScanLimit = 32

const (
	roleLiquidator    = "ROLE_LIQUIDATOR"
	roleUpgradeModule = "ROLE_UPGRADE_MODULE"
	rolePauser        = "ROLE_PAUSER"
)

var (
	ErrZeroAddress        = errors.New("settlement: address must not be zero")
	ErrInvalidAmount      = errors.New("settlement: amount must be positive")
	ErrBonusOutOfRange    = errors.New("settlement: bonus exceeds 10000 bps")
	ErrLengthMismatch     = errors.New("settlement: batch arrays must have equal length")
	ErrEmptyBatch         = errors.New("settlement: batch must not be empty")
	ErrBatchTooLarge      = errors.New("settlement: batch exceeds max size")
	ErrUnauthorized       = errors.New("settlement: caller not authorized")
	ErrPolicyUnresolved   = errors.New("settlement: distribution policy module unresolved")
	ErrUntrustedCaller    = errors.New("settlement: caller is not the vault core")
	ErrOrderMismatch      = errors.New("settlement: order does not match user and asset")
	ErrNotLiquidatable    = errors.New("settlement: position not liquidatable")
	ErrAlreadySettled     = errors.New("settlement: receipt marks the order repaid")
	ErrNothingToLiquidate = errors.New("settlement: no reducible debt")
	ErrNoCollateral       = errors.New("settlement: no collateral to seize")
)

var errCacheNotConfigured = errors.New("settlement: view cache not configured")

type executorState interface {
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int)
	SetPaused(module string, paused bool) error
	SetApprovedImplementation(module string, impl crypto.Address) error
}

type distributionPolicy interface {
	CalculateShares(amount *big.Int) (payout.Shares, error)
	Recipients() (payout.Recipients, error)
}

type collateralMover interface {
	WithdrawTo(user, asset crypto.Address, amount *big.Int, receiver crypto.Address) error
}

type debtForcer interface {
	ForceReduceDebt(user, asset crypto.Address, amount *big.Int) error
}

type cachePusher interface {
	PushLiquidationUpdate(user crypto.Address) error
	PushBatchLiquidationUpdate(users []crypto.Address) error
	PushLiquidationPayout(target crypto.Address, recipients ...crypto.Address) error
}

type moduleResolver interface {
	Resolve(key string) (crypto.Address, error)
}

type roleChecker interface {
	RequireRole(caller crypto.Address, role string) error
}

// Executor seizes collateral, distributes it by the payout policy, and
// force-reduces debt. It keeps no state across calls; within a call the
// write sequence runs against a state snapshot, so any ledger failure
// reverts every write of the call.
type Executor struct {
	st         executorState
	policy     distributionPolicy
	collateral collateralMover
	debts      debtForcer
	access     roleChecker
	resolver   moduleResolver
	cache      cachePusher
	pauses     common.PauseView
	latch      common.Latch
	emitter    events.Emitter
	nowFn      func() int64
}

// NewExecutor creates the liquidation executor over the provided state,
// distribution policy, ledgers, role oracle, and module resolver.
func NewExecutor(st executorState, policy distributionPolicy, collateral collateralMover, debts debtForcer, access roleChecker, resolver moduleResolver) *Executor {
	return &Executor{
		st:         st,
		policy:     policy,
		collateral: collateral,
		debts:      debts,
		access:     access,
		resolver:   resolver,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (x *Executor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		x.emitter = events.NoopEmitter{}
		return
	}
	x.emitter = emitter
}

// SetNowFunc overrides the time source. Passing nil restores the wall clock.
func (x *Executor) SetNowFunc(now func() int64) {
	if x == nil {
		return
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	x.nowFn = now
}

// SetPauses wires the module pause flags.
func (x *Executor) SetPauses(pauses common.PauseView) {
	if x == nil {
		return
	}
	x.pauses = pauses
}

// SetCachePusher wires the best-effort view cache consumer. Leaving it
// unset turns every push into a reported failure rather than a panic.
func (x *Executor) SetCachePusher(cache cachePusher) {
	if x == nil {
		return
	}
	x.cache = cache
}

func validateLiquidation(liquidator, target, collateralAsset, debtAsset crypto.Address, collateralAmount, debtAmount *big.Int, bonusBps uint64) error {
	if liquidator.IsZero() || target.IsZero() || collateralAsset.IsZero() || debtAsset.IsZero() {
		return ErrZeroAddress
	}
	if collateralAmount == nil || collateralAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if debtAmount == nil || debtAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if bonusBps > params.BpsDenominator {
		return fmt.Errorf("%w: %d", ErrBonusOutOfRange, bonusBps)
	}
	return nil
}

// authorize accepts the registered settlement coordinator or any holder of
// the liquidate role, so the orchestrated flow and ad-hoc keeper calls both
// reach the executor without opening it to arbitrary callers.
func (x *Executor) authorize(caller crypto.Address) error {
	if caller.IsZero() {
		return fmt.Errorf("%w: zero caller", ErrUnauthorized)
	}
	if coordinator, err := x.resolver.Resolve(registry.KeySettlementCoordinator); err == nil && coordinator.Equal(caller) {
		return nil
	}
	if err := x.access.RequireRole(caller, roleLiquidator); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

func (x *Executor) revert(snapshot int, cause error) error {
	if err := x.st.RevertToSnapshot(snapshot); err != nil {
		return fmt.Errorf("%v: revert failed: %w", cause, err)
	}
	return cause
}

// Liquidate seizes collateralAmount of the target's collateral, splits it
// across the policy recipients and the liquidator, and force-reduces
// debtAmount of the target's debt. bonusBps is validated and recorded on
// the payout event for audit; the split itself always follows the stored
// policy rates.
func (x *Executor) Liquidate(caller, liquidator, target, collateralAsset, debtAsset crypto.Address, collateralAmount, debtAmount *big.Int, bonusBps uint64) error {
	release, err := x.latch.Acquire("liquidate")
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(x.pauses, ModuleName); err != nil {
		return err
	}
	if err := validateLiquidation(liquidator, target, collateralAsset, debtAsset, collateralAmount, debtAmount, bonusBps); err != nil {
		return err
	}
	if err := x.authorize(caller); err != nil {
		return err
	}
	if _, err := x.resolver.Resolve(registry.KeyPayoutConfig); err != nil {
		return fmt.Errorf("%w: %v", ErrPolicyUnresolved, err)
	}
	snapshot, err := x.st.Snapshot()
	if err != nil {
		return err
	}
	executed, touched, err := x.apply(liquidator, target, collateralAsset, debtAsset, collateralAmount, debtAmount, bonusBps)
	if err != nil {
		return x.revert(snapshot, err)
	}
	x.st.DiscardSnapshot(snapshot)
	x.emitter.Emit(executed)
	x.pushPayout(target, touched)
	return nil
}

// BatchLiquidate applies Liquidate semantics per index across six
// equal-length slices. The whole batch runs against one snapshot: any
// element's failure reverts every element. Payout events are emitted only
// once the batch has landed.
func (x *Executor) BatchLiquidate(caller, liquidator crypto.Address, targets, collateralAssets, debtAssets []crypto.Address, collateralAmounts, debtAmounts []*big.Int, bonuses []uint64) error {
	release, err := x.latch.Acquire("batchLiquidate")
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(x.pauses, ModuleName); err != nil {
		return err
	}
	n := len(targets)
	if n == 0 {
		return ErrEmptyBatch
	}
	if len(collateralAssets) != n || len(debtAssets) != n || len(collateralAmounts) != n || len(debtAmounts) != n || len(bonuses) != n {
		return ErrLengthMismatch
	}
	if n > params.MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, params.MaxBatchSize)
	}
	for i := 0; i < n; i++ {
		if err := validateLiquidation(liquidator, targets[i], collateralAssets[i], debtAssets[i], collateralAmounts[i], debtAmounts[i], bonuses[i]); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	if err := x.authorize(caller); err != nil {
		return err
	}
	if _, err := x.resolver.Resolve(registry.KeyPayoutConfig); err != nil {
		return fmt.Errorf("%w: %v", ErrPolicyUnresolved, err)
	}
	snapshot, err := x.st.Snapshot()
	if err != nil {
		return err
	}
	executed := make([]events.SettlementPayoutExecuted, 0, n)
	for i := 0; i < n; i++ {
		item, _, err := x.apply(liquidator, targets[i], collateralAssets[i], debtAssets[i], collateralAmounts[i], debtAmounts[i], bonuses[i])
		if err != nil {
			return x.revert(snapshot, fmt.Errorf("batch item %d: %w", i, err))
		}
		executed = append(executed, item)
	}
	x.st.DiscardSnapshot(snapshot)
	for _, item := range executed {
		x.emitter.Emit(item)
	}
	x.pushBatch(targets)
	return nil
}

// apply runs the seize, distribute, and reduce-debt sequence. The caller
// owns snapshot handling: any error from here must revert the call.
// Withdrawals run in the fixed platform, reserve, lender-compensation,
// liquidator order; zero shares are skipped.
func (x *Executor) apply(liquidator, target, collateralAsset, debtAsset crypto.Address, collateralAmount, debtAmount *big.Int, bonusBps uint64) (events.SettlementPayoutExecuted, []crypto.Address, error) {
	shares, err := x.policy.CalculateShares(collateralAmount)
	if err != nil {
		return events.SettlementPayoutExecuted{}, nil, err
	}
	recipients, err := x.policy.Recipients()
	if err != nil {
		return events.SettlementPayoutExecuted{}, nil, err
	}
	withdrawals := []struct {
		to     crypto.Address
		amount *big.Int
	}{
		{recipients.Platform, shares.Platform},
		{recipients.Reserve, shares.Reserve},
		{recipients.LenderComp, shares.Lender},
		{liquidator, shares.Liquidator},
	}
	touched := make([]crypto.Address, 0, len(withdrawals))
	for _, w := range withdrawals {
		if w.amount == nil || w.amount.Sign() == 0 {
			continue
		}
		if err := x.collateral.WithdrawTo(target, collateralAsset, w.amount, w.to); err != nil {
			return events.SettlementPayoutExecuted{}, nil, err
		}
		touched = append(touched, w.to)
	}
	if err := x.debts.ForceReduceDebt(target, debtAsset, debtAmount); err != nil {
		return events.SettlementPayoutExecuted{}, nil, err
	}
	executed := events.SettlementPayoutExecuted{
		Target:           target,
		Liquidator:       liquidator,
		CollateralAsset:  collateralAsset,
		DebtAsset:        debtAsset,
		CollateralAmount: collateralAmount,
		DebtAmount:       debtAmount,
		Platform:         recipients.Platform,
		Reserve:          recipients.Reserve,
		LenderComp:       recipients.LenderComp,
		PlatformShare:    shares.Platform,
		ReserveShare:     shares.Reserve,
		LenderShare:      shares.Lender,
		LiquidatorShare:  shares.Liquidator,
		BonusBps:         bonusBps,
		Timestamp:        uint64(x.nowFn()),
	}
	return executed, touched, nil
}

// pushPayout is the best-effort notification step. A failure emits the
// cache-update-failure event and never unwinds the ledger writes that
// precede it.
func (x *Executor) pushPayout(target crypto.Address, recipients []crypto.Address) {
	err := errCacheNotConfigured
	if x.cache != nil {
		err = x.cache.PushLiquidationPayout(target, recipients...)
	}
	if err != nil {
		x.emitCacheFailure(target, err)
	}
}

// pushBatch refreshes every batch target. A failing batch push emits one
// failure event keyed on the first target.
func (x *Executor) pushBatch(targets []crypto.Address) {
	err := errCacheNotConfigured
	if x.cache != nil {
		err = x.cache.PushBatchLiquidationUpdate(targets)
	}
	if err != nil {
		x.emitCacheFailure(targets[0], err)
	}
}

func (x *Executor) emitCacheFailure(subject crypto.Address, cause error) {
	x.emitter.Emit(events.SettlementCacheUpdateFailed{
		Subject:   subject,
		Reason:    cause.Error(),
		Timestamp: uint64(x.nowFn()),
	})
}

// Pause blocks both liquidation entry points until Resume.
func (x *Executor) Pause(caller crypto.Address) error {
	return x.setPaused(caller, true)
}

// Resume lifts a pause.
func (x *Executor) Resume(caller crypto.Address) error {
	return x.setPaused(caller, false)
}

func (x *Executor) setPaused(caller crypto.Address, paused bool) error {
	release, err := x.latch.Acquire("setPaused")
	if err != nil {
		return err
	}
	defer release()
	if err := x.access.RequireRole(caller, rolePauser); err != nil {
		return err
	}
	if err := x.st.SetPaused(ModuleName, paused); err != nil {
		return err
	}
	x.emitter.Emit(events.ModulePauseChanged{
		Module:    ModuleName,
		Paused:    paused,
		Caller:    caller,
		Timestamp: uint64(x.nowFn()),
	})
	return nil
}

// AuthorizeUpgrade records an approved implementation address for the
// settlement module. It stays callable while paused: pausing first is the
// expected upgrade sequence.
func (x *Executor) AuthorizeUpgrade(caller, implementation crypto.Address) error {
	release, err := x.latch.Acquire("authorizeUpgrade")
	if err != nil {
		return err
	}
	defer release()
	if err := x.access.RequireRole(caller, roleUpgradeModule); err != nil {
		return err
	}
	if implementation.IsZero() {
		return ErrZeroAddress
	}
	if err := x.st.SetApprovedImplementation(ModuleName, implementation); err != nil {
		return err
	}
	x.emitter.Emit(events.SettlementUpgradeAuthorized{
		Caller:         caller,
		Implementation: implementation,
		Timestamp:      uint64(x.nowFn()),
	})
	return nil
}
