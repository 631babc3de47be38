package events

import (
	"math/big"

	"vaultchain/core/types"
	"vaultchain/crypto"
)

const (
	// TypeSettlementPayoutExecuted is emitted after a liquidation's seize,
	// distribute, and debt-reduction writes have all landed.
	TypeSettlementPayoutExecuted = "settlement.payout.executed"
	// TypeSettlementCacheUpdateFailed is emitted when the best-effort view
	// cache push after a liquidation fails. The ledger writes stand; the
	// event carries the raw reason so off-chain tooling can replay.
	TypeSettlementCacheUpdateFailed = "settlement.cache.update_failed"
	// TypeSettlementLoanRepaid is emitted when a repayment settles against
	// a loan order.
	TypeSettlementLoanRepaid = "settlement.loan.repaid"
	// TypeSettlementCollateralReleased is emitted per collateral asset
	// returned to a borrower whose total debt reached zero.
	TypeSettlementCollateralReleased = "settlement.collateral.released"
	// TypeSettlementPositionLiquidated is emitted by the coordinator when a
	// liquidation trigger fires and executes.
	TypeSettlementPositionLiquidated = "settlement.position.liquidated"
	// TypeSettlementUpgradeAuthorized is emitted when a new settlement
	// module implementation is approved.
	TypeSettlementUpgradeAuthorized = "settlement.upgrade.authorized"
)

// SettlementPayoutExecuted records the full share split of a liquidation.
type SettlementPayoutExecuted struct {
	Target           crypto.Address `json:"target"`
	Liquidator       crypto.Address `json:"liquidator"`
	CollateralAsset  crypto.Address `json:"collateralAsset"`
	DebtAsset        crypto.Address `json:"debtAsset"`
	CollateralAmount *big.Int       `json:"collateralAmount"`
	DebtAmount       *big.Int       `json:"debtAmount"`
	Platform         crypto.Address `json:"platform"`
	Reserve          crypto.Address `json:"reserve"`
	LenderComp       crypto.Address `json:"lenderComp"`
	PlatformShare    *big.Int       `json:"platformShare"`
	ReserveShare     *big.Int       `json:"reserveShare"`
	LenderShare      *big.Int       `json:"lenderShare"`
	LiquidatorShare  *big.Int       `json:"liquidatorShare"`
	BonusBps         uint64         `json:"bonusBps"`
	Timestamp        uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (SettlementPayoutExecuted) EventType() string { return TypeSettlementPayoutExecuted }

// Event converts the payout record to the generic event payload.
func (e SettlementPayoutExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementPayoutExecuted,
		Attributes: map[string]string{
			"target":            e.Target.String(),
			"liquidator":        e.Liquidator.String(),
			"collateral_asset":  e.CollateralAsset.String(),
			"debt_asset":        e.DebtAsset.String(),
			"collateral_amount": amountString(e.CollateralAmount),
			"debt_amount":       amountString(e.DebtAmount),
			"platform":          e.Platform.String(),
			"reserve":           e.Reserve.String(),
			"lender_comp":       e.LenderComp.String(),
			"platform_share":    amountString(e.PlatformShare),
			"reserve_share":     amountString(e.ReserveShare),
			"lender_share":      amountString(e.LenderShare),
			"liquidator_share":  amountString(e.LiquidatorShare),
			"bonus_bps":         uintString(e.BonusBps),
			"timestamp":         uintString(e.Timestamp),
		},
	}
}

// SettlementCacheUpdateFailed carries the raw failure reason of a swallowed
// view cache push.
type SettlementCacheUpdateFailed struct {
	Subject   crypto.Address `json:"subject"`
	Reason    string         `json:"reason"`
	Timestamp uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (SettlementCacheUpdateFailed) EventType() string { return TypeSettlementCacheUpdateFailed }

// Event converts the cache failure to the generic event payload.
func (e SettlementCacheUpdateFailed) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementCacheUpdateFailed,
		Attributes: map[string]string{
			"subject":   e.Subject.String(),
			"reason":    e.Reason,
			"timestamp": uintString(e.Timestamp),
		},
	}
}

// SettlementLoanRepaid captures a repayment applied to a loan order.
type SettlementLoanRepaid struct {
	OrderID     types.OrderID  `json:"orderId"`
	Borrower    crypto.Address `json:"borrower"`
	Asset       crypto.Address `json:"asset"`
	Amount      *big.Int       `json:"amount"`
	Outstanding *big.Int       `json:"outstanding"`
	Timestamp   uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (SettlementLoanRepaid) EventType() string { return TypeSettlementLoanRepaid }

// Event converts the repayment to the generic event payload.
func (e SettlementLoanRepaid) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementLoanRepaid,
		Attributes: map[string]string{
			"order_id":    e.OrderID.String(),
			"borrower":    e.Borrower.String(),
			"asset":       e.Asset.String(),
			"amount":      amountString(e.Amount),
			"outstanding": amountString(e.Outstanding),
			"timestamp":   uintString(e.Timestamp),
		},
	}
}

// SettlementCollateralReleased captures one collateral balance returned to a
// borrower after full repayment.
type SettlementCollateralReleased struct {
	Borrower  crypto.Address `json:"borrower"`
	Asset     crypto.Address `json:"asset"`
	Amount    *big.Int       `json:"amount"`
	Timestamp uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (SettlementCollateralReleased) EventType() string { return TypeSettlementCollateralReleased }

// Event converts the release to the generic event payload.
func (e SettlementCollateralReleased) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementCollateralReleased,
		Attributes: map[string]string{
			"borrower":  e.Borrower.String(),
			"asset":     e.Asset.String(),
			"amount":    amountString(e.Amount),
			"timestamp": uintString(e.Timestamp),
		},
	}
}

// SettlementPositionLiquidated records the coordinator's sizing decision for
// a triggered liquidation.
type SettlementPositionLiquidated struct {
	OrderID          types.OrderID  `json:"orderId"`
	Borrower         crypto.Address `json:"borrower"`
	Keeper           crypto.Address `json:"keeper"`
	CollateralAsset  crypto.Address `json:"collateralAsset"`
	DebtAsset        crypto.Address `json:"debtAsset"`
	CollateralAmount *big.Int       `json:"collateralAmount"`
	DebtAmount       *big.Int       `json:"debtAmount"`
	Overdue          bool           `json:"overdue"`
	RiskTriggered    bool           `json:"riskTriggered"`
	Timestamp        uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (SettlementPositionLiquidated) EventType() string { return TypeSettlementPositionLiquidated }

// Event converts the liquidation record to the generic event payload.
func (e SettlementPositionLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementPositionLiquidated,
		Attributes: map[string]string{
			"order_id":          e.OrderID.String(),
			"borrower":          e.Borrower.String(),
			"keeper":            e.Keeper.String(),
			"collateral_asset":  e.CollateralAsset.String(),
			"debt_asset":        e.DebtAsset.String(),
			"collateral_amount": amountString(e.CollateralAmount),
			"debt_amount":       amountString(e.DebtAmount),
			"overdue":           boolString(e.Overdue),
			"risk_triggered":    boolString(e.RiskTriggered),
			"timestamp":         uintString(e.Timestamp),
		},
	}
}

// SettlementUpgradeAuthorized records an approved implementation change.
type SettlementUpgradeAuthorized struct {
	Caller         crypto.Address `json:"caller"`
	Implementation crypto.Address `json:"implementation"`
	Timestamp      uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (SettlementUpgradeAuthorized) EventType() string { return TypeSettlementUpgradeAuthorized }

// Event converts the authorization to the generic event payload.
func (e SettlementUpgradeAuthorized) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementUpgradeAuthorized,
		Attributes: map[string]string{
			"caller":         e.Caller.String(),
			"implementation": e.Implementation.String(),
			"timestamp":      uintString(e.Timestamp),
		},
	}
}
