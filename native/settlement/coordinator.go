package settlement

import (
	"fmt"
	"math/big"
	"time"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/common"
	"vaultchain/native/registry"
)

type coordinatorState interface {
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int)
}

type loanLedger interface {
	Order(id types.OrderID) (*types.LoanOrder, error)
	Repay(id types.OrderID, amount *big.Int) error
}

type debtLedger interface {
	ReducibleDebt(user, asset crypto.Address) (*big.Int, error)
	TotalDebtValue(user crypto.Address) (*big.Int, error)
}

type collateralLedger interface {
	UserCollateralAssets(user crypto.Address) ([]crypto.Address, error)
	Collateral(user, asset crypto.Address) (*big.Int, error)
	AssetValue(asset crypto.Address, amount *big.Int) (*big.Int, error)
	WithdrawTo(user, asset crypto.Address, amount *big.Int, receiver crypto.Address) error
}

type receiptLedger interface {
	UserTokens(holder crypto.Address) ([]uint64, error)
	Metadata(tokenID uint64) (types.LoanReceipt, error)
}

type riskView interface {
	IsLiquidatable(user crypto.Address) (bool, error)
}

type liquidationExecutor interface {
	Liquidate(caller, liquidator, target, collateralAsset, debtAsset crypto.Address, collateralAmount, debtAmount *big.Int, bonusBps uint64) error
}

// Coordinator is the externally reachable decision point of the settlement
// flow. Repayments arrive from the vault core and may implicitly release
// collateral; liquidation triggers arrive from keepers and delegate the
// seize-and-distribute sequence to the executor.
type Coordinator struct {
	st         coordinatorState
	loans      loanLedger
	debts      debtLedger
	collateral collateralLedger
	risk       riskView
	executor   liquidationExecutor
	access     roleChecker
	resolver   moduleResolver
	receipts   receiptLedger
	cache      cachePusher
	pauses     common.PauseView
	latch      common.Latch
	emitter    events.Emitter
	nowFn      func() int64
}

// NewCoordinator creates the settlement coordinator over the state, ledgers,
// risk view, executor, role oracle, and module resolver.
func NewCoordinator(st coordinatorState, loans loanLedger, debts debtLedger, collateral collateralLedger, risk riskView, executor liquidationExecutor, access roleChecker, resolver moduleResolver) *Coordinator {
	return &Coordinator{
		st:         st,
		loans:      loans,
		debts:      debts,
		collateral: collateral,
		risk:       risk,
		executor:   executor,
		access:     access,
		resolver:   resolver,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetReceipts wires the loan-receipt collaborator for the best-effort
// repaid cross-check. Leaving it unset skips the check.
func (c *Coordinator) SetReceipts(receipts receiptLedger) {
	if c == nil {
		return
	}
	c.receipts = receipts
}

// SetCachePusher wires the best-effort view cache consumer.
func (c *Coordinator) SetCachePusher(cache cachePusher) {
	if c == nil {
		return
	}
	c.cache = cache
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Coordinator) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetPauses wires the module pause flags.
func (c *Coordinator) SetPauses(pauses common.PauseView) {
	if c == nil {
		return
	}
	c.pauses = pauses
}

// SetNowFunc overrides the time source. Passing nil restores the wall clock.
func (c *Coordinator) SetNowFunc(now func() int64) {
	if c == nil {
		return
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	c.nowFn = now
}

// RepayAndSettle applies a repayment to the order and, when the borrower's
// total debt value reaches zero, returns every collateral balance to the
// borrower. Only the registered vault core may call it; borrower and asset
// must match the stored order so a forged routing cannot repay one order
// with another's parameters.
func (c *Coordinator) RepayAndSettle(caller, borrower crypto.Address, orderID types.OrderID, asset crypto.Address, amount *big.Int) error {
	release, err := c.latch.Acquire("repayAndSettle")
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(c.pauses, ModuleName); err != nil {
		return err
	}
	if borrower.IsZero() || asset.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	core, err := c.resolver.Resolve(registry.KeyVaultCore)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedCaller, err)
	}
	if !core.Equal(caller) {
		return ErrUntrustedCaller
	}
	order, err := c.loans.Order(orderID)
	if err != nil {
		return err
	}
	if !order.Borrower.Equal(borrower) || !order.Asset.Equal(asset) {
		return ErrOrderMismatch
	}
	snapshot, err := c.st.Snapshot()
	if err != nil {
		return err
	}
	collected, err := c.applyRepayment(borrower, orderID, asset, amount, order.Outstanding)
	if err != nil {
		return c.revert(snapshot, err)
	}
	c.st.DiscardSnapshot(snapshot)
	for _, event := range collected {
		c.emitter.Emit(event)
	}
	c.pushUpdate(borrower)
	return nil
}

// applyRepayment runs the repay and conditional full-release writes,
// returning the events to emit once the snapshot is discarded.
func (c *Coordinator) applyRepayment(borrower crypto.Address, orderID types.OrderID, asset crypto.Address, amount, outstandingBefore *big.Int) ([]events.Event, error) {
	if err := c.loans.Repay(orderID, amount); err != nil {
		return nil, err
	}
	now := uint64(c.nowFn())
	collected := []events.Event{events.SettlementLoanRepaid{
		OrderID:     orderID,
		Borrower:    borrower,
		Asset:       asset,
		Amount:      amount,
		Outstanding: new(big.Int).Sub(outstandingBefore, amount),
		Timestamp:   now,
	}}
	total, err := c.debts.TotalDebtValue(borrower)
	if err != nil {
		return nil, err
	}
	if total.Sign() != 0 {
		return collected, nil
	}
	assets, err := c.collateral.UserCollateralAssets(borrower)
	if err != nil {
		return nil, err
	}
	for _, collateralAsset := range assets {
		balance, err := c.collateral.Collateral(borrower, collateralAsset)
		if err != nil {
			return nil, err
		}
		if balance.Sign() == 0 {
			continue
		}
		if err := c.collateral.WithdrawTo(borrower, collateralAsset, balance, borrower); err != nil {
			return nil, err
		}
		collected = append(collected, events.SettlementCollateralReleased{
			Borrower:  borrower,
			Asset:     collateralAsset,
			Amount:    balance,
			Timestamp: now,
		})
	}
	return collected, nil
}

// SettleOrLiquidate checks the order's liquidation triggers and, when one
// fires, sizes and executes a partial liquidation. The caller must hold the
// liquidate role and is credited as the liquidator on the resulting payout,
// so keeper incentives attribute to whoever pulled the trigger rather than
// to this coordinator.
func (c *Coordinator) SettleOrLiquidate(caller crypto.Address, orderID types.OrderID) error {
	release, err := c.latch.Acquire("settleOrLiquidate")
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(c.pauses, ModuleName); err != nil {
		return err
	}
	if err := c.access.RequireRole(caller, roleLiquidator); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	order, err := c.loans.Order(orderID)
	if err != nil {
		return err
	}
	if order.Borrower.IsZero() || order.Asset.IsZero() {
		return fmt.Errorf("%w: order %s", ErrZeroAddress, orderID)
	}
	if order.Closed() {
		return fmt.Errorf("%w: order %s", ErrAlreadySettled, orderID)
	}
	if err := c.checkReceipts(order.Borrower, orderID); err != nil {
		return err
	}
	overdue := order.Overdue(uint64(c.nowFn()))
	riskTriggered, err := c.risk.IsLiquidatable(order.Borrower)
	if err != nil {
		return err
	}
	if !overdue && !riskTriggered {
		return fmt.Errorf("%w: order %s", ErrNotLiquidatable, orderID)
	}
	reducible, err := c.debts.ReducibleDebt(order.Borrower, order.Asset)
	if err != nil {
		return err
	}
	if reducible.Sign() == 0 {
		return ErrNothingToLiquidate
	}
	if reducible.Cmp(order.Outstanding) > 0 {
		reducible = new(big.Int).Set(order.Outstanding)
	}
	targetValue, err := c.collateral.AssetValue(order.Asset, reducible)
	if err != nil {
		return err
	}
	if targetValue.Sign() == 0 {
		return ErrNothingToLiquidate
	}
	seizeAsset, seizeAmount, err := c.sizeSeizure(order.Borrower, targetValue)
	if err != nil {
		return err
	}
	self, err := c.resolver.Resolve(registry.KeySettlementCoordinator)
	if err != nil {
		return fmt.Errorf("settlement: resolve coordinator identity: %w", err)
	}
	if err := c.executor.Liquidate(self, caller, order.Borrower, seizeAsset, order.Asset, seizeAmount, reducible, 0); err != nil {
		return err
	}
	c.emitter.Emit(events.SettlementPositionLiquidated{
		OrderID:          orderID,
		Borrower:         order.Borrower,
		Keeper:           caller,
		CollateralAsset:  seizeAsset,
		DebtAsset:        order.Asset,
		CollateralAmount: seizeAmount,
		DebtAmount:       reducible,
		Overdue:          overdue,
		RiskTriggered:    riskTriggered,
		Timestamp:        uint64(c.nowFn()),
	})
	return nil
}

// checkReceipts scans the borrower's loan receipts for one that marks the
// order repaid. The scan is bounded and best-effort: an unreachable receipt
// collaborator skips the check, but a repaid receipt blocks liquidation
// even when the ledger looks stale.
func (c *Coordinator) checkReceipts(borrower crypto.Address, orderID types.OrderID) error {
	if c.receipts == nil {
		return nil
	}
	if _, err := c.resolver.Resolve(registry.KeyLoanReceipt); err != nil {
		return nil
	}
	tokens, err := c.receipts.UserTokens(borrower)
	if err != nil {
		return nil
	}
	if len(tokens) > receiptScanLimit {
		tokens = tokens[:receiptScanLimit]
	}
	for _, tokenID := range tokens {
		meta, err := c.receipts.Metadata(tokenID)
		if err != nil {
			continue
		}
		if meta.LoanID == orderID && meta.Status == types.ReceiptStatusRepaid {
			return fmt.Errorf("%w: receipt %d", ErrAlreadySettled, tokenID)
		}
	}
	return nil
}

// sizeSeizure picks the borrower's single most valuable collateral asset
// (first asset reaching the maximum wins, in ledger order) and computes the
// amount covering targetValue by ceiling division, clamped to the balance.
func (c *Coordinator) sizeSeizure(borrower crypto.Address, targetValue *big.Int) (crypto.Address, *big.Int, error) {
	assets, err := c.collateral.UserCollateralAssets(borrower)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	var (
		bestAsset   crypto.Address
		bestBalance *big.Int
		bestValue   = big.NewInt(0)
	)
	for _, asset := range assets {
		balance, err := c.collateral.Collateral(borrower, asset)
		if err != nil {
			return crypto.Address{}, nil, err
		}
		if balance.Sign() == 0 {
			continue
		}
		value, err := c.collateral.AssetValue(asset, balance)
		if err != nil {
			return crypto.Address{}, nil, err
		}
		if value.Cmp(bestValue) > 0 {
			bestAsset = asset
			bestBalance = balance
			bestValue = value
		}
	}
	if bestAsset.IsZero() || bestValue.Sign() == 0 {
		return crypto.Address{}, nil, ErrNoCollateral
	}
	// seize = ceil(targetValue * balance / balanceValue), never exceeding
	// the balance. Cross-multiplying against the full balance's value keeps
	// the division overflow-safe and avoids a lossy unit price.
	seize := new(big.Int).Mul(targetValue, bestBalance)
	seize.Add(seize, new(big.Int).Sub(bestValue, big.NewInt(1)))
	seize.Quo(seize, bestValue)
	if seize.Cmp(bestBalance) > 0 {
		seize = new(big.Int).Set(bestBalance)
	}
	return bestAsset, seize, nil
}

// pushUpdate refreshes the borrower's cached health after a repayment. Push
// failures are reported through the cache-failure event, never returned.
func (c *Coordinator) pushUpdate(user crypto.Address) {
	err := errCacheNotConfigured
	if c.cache != nil {
		err = c.cache.PushLiquidationUpdate(user)
	}
	if err != nil {
		c.emitter.Emit(events.SettlementCacheUpdateFailed{
			Subject:   user,
			Reason:    err.Error(),
			Timestamp: uint64(c.nowFn()),
		})
	}
}

// revert restores the pre-call snapshot, preserving the original cause when
// the revert itself fails.
func (c *Coordinator) revert(snapshot int, cause error) error {
	if err := c.st.RevertToSnapshot(snapshot); err != nil {
		return fmt.Errorf("%v: revert failed: %w", cause, err)
	}
	return cause
}
