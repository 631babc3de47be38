package ledger

import (
	"fmt"
	"math/big"

	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/params"
)

type debtState interface {
	Debt(user, asset crypto.Address) (*big.Int, error)
	SetDebt(user, asset crypto.Address, amount *big.Int) error
	DebtAssets(user crypto.Address) ([]crypto.Address, error)
	UserLoanOrders(borrower crypto.Address) ([]types.OrderID, error)
	LoanOrder(id types.OrderID) (*types.LoanOrder, bool, error)
	PutLoanOrder(order *types.LoanOrder) error
}

// sizingPolicy exposes the governance knobs bounding how much debt one
// liquidation pass may clear.
type sizingPolicy interface {
	Settlement() (params.SettlementParameters, error)
}

// Debts is the debt ledger. Balances aggregate the outstanding amounts of a
// user's open orders per asset; ForceReduceDebt is the liquidation-only
// write and keeps the underlying orders in sync, consuming the oldest
// positions first.
type Debts struct {
	st     debtState
	oracle valuer
	policy sizingPolicy
}

// NewDebts creates a debt ledger backed by the provided state, price
// oracle, and sizing policy.
func NewDebts(st debtState, oracle valuer, policy sizingPolicy) *Debts {
	return &Debts{st: st, oracle: oracle, policy: policy}
}

// Debt returns the user's outstanding debt balance for an asset.
func (d *Debts) Debt(user, asset crypto.Address) (*big.Int, error) {
	if user.IsZero() || asset.IsZero() {
		return nil, ErrZeroAddress
	}
	return d.st.Debt(user, asset)
}

// DebtAssets lists the assets the user has ever borrowed, in borrow order.
func (d *Debts) DebtAssets(user crypto.Address) ([]crypto.Address, error) {
	if user.IsZero() {
		return nil, ErrZeroAddress
	}
	return d.st.DebtAssets(user)
}

// ReducibleDebt returns the portion of the user's debt on an asset eligible
// to be forcibly reduced in one liquidation pass: the close factor applied
// to the balance, or the full balance when it sits at or under the
// partial-liquidation floor.
func (d *Debts) ReducibleDebt(user, asset crypto.Address) (*big.Int, error) {
	debt, err := d.Debt(user, asset)
	if err != nil {
		return nil, err
	}
	if debt.Sign() == 0 {
		return big.NewInt(0), nil
	}
	policy, err := d.policy.Settlement()
	if err != nil {
		return nil, err
	}
	if policy.PartialLiquidationFloor != nil && debt.Cmp(policy.PartialLiquidationFloor) <= 0 {
		return new(big.Int).Set(debt), nil
	}
	reducible := new(big.Int).Mul(debt, new(big.Int).SetUint64(policy.CloseFactorBps))
	return reducible.Quo(reducible, big.NewInt(params.BpsDenominator)), nil
}

// DebtValue prices the user's debt balance on an asset in reference units.
func (d *Debts) DebtValue(user, asset crypto.Address) (*big.Int, error) {
	debt, err := d.Debt(user, asset)
	if err != nil {
		return nil, err
	}
	return d.oracle.Value(asset, debt)
}

// TotalDebtValue sums the user's debt value across every borrowed asset.
// A valuation failure on any asset with a live balance fails the total;
// callers needing graceful degradation convert that into an invalid health
// snapshot rather than a guess.
func (d *Debts) TotalDebtValue(user crypto.Address) (*big.Int, error) {
	assets, err := d.DebtAssets(user)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, asset := range assets {
		debt, err := d.st.Debt(user, asset)
		if err != nil {
			return nil, err
		}
		if debt.Sign() == 0 {
			continue
		}
		value, err := d.oracle.Value(asset, debt)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// ForceReduceDebt is the liquidation-only privileged write: it reduces the
// user's debt balance and applies the reduction to the user's open orders
// on the asset, oldest first, so order records never claim debt the balance
// no longer carries.
func (d *Debts) ForceReduceDebt(user, asset crypto.Address, amount *big.Int) error {
	if user.IsZero() || asset.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	debt, err := d.st.Debt(user, asset)
	if err != nil {
		return err
	}
	if debt.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s < reduction %s", ErrInsufficientDebt, debt, amount)
	}
	if err := d.st.SetDebt(user, asset, new(big.Int).Sub(debt, amount)); err != nil {
		return err
	}
	ids, err := d.st.UserLoanOrders(user)
	if err != nil {
		return err
	}
	remaining := new(big.Int).Set(amount)
	for _, id := range ids {
		if remaining.Sign() == 0 {
			break
		}
		order, ok, err := d.st.LoanOrder(id)
		if err != nil {
			return err
		}
		if !ok || order.Closed() || !order.Asset.Equal(asset) {
			continue
		}
		reduce := order.Outstanding
		if reduce.Cmp(remaining) > 0 {
			reduce = remaining
		}
		order.Outstanding = new(big.Int).Sub(order.Outstanding, reduce)
		if err := d.st.PutLoanOrder(order); err != nil {
			return err
		}
		remaining = new(big.Int).Sub(remaining, reduce)
	}
	return nil
}
