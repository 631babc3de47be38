package ledger

import (
	"fmt"
	"math/big"
	"time"

	"vaultchain/core/types"
	"vaultchain/crypto"
)

type loanState interface {
	PutLoanOrder(order *types.LoanOrder) error
	LoanOrder(id types.OrderID) (*types.LoanOrder, bool, error)
	UserLoanOrders(borrower crypto.Address) ([]types.OrderID, error)
	SetDebt(user, asset crypto.Address, amount *big.Int) error
	Debt(user, asset crypto.Address) (*big.Int, error)
}

// Loans is the loan-order ledger. An order's (borrower, asset) pair is
// immutable after creation; repayments are the only mutation path and close
// the order when the outstanding amount reaches zero. Debt balances on the
// debt ledger are maintained in lockstep so total debt reflects open orders.
type Loans struct {
	st    loanState
	nowFn func() int64
}

// NewLoans creates a loan-order ledger backed by the provided state.
func NewLoans(st loanState) *Loans {
	return &Loans{st: st, nowFn: func() int64 { return time.Now().Unix() }}
}

// SetNowFunc overrides the time source used for creation timestamps.
// Passing nil restores the wall clock.
func (l *Loans) SetNowFunc(now func() int64) {
	if l == nil {
		return
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	l.nowFn = now
}

// Order resolves the canonical record for an order id.
func (l *Loans) Order(id types.OrderID) (*types.LoanOrder, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: zero id", ErrUnknownOrder)
	}
	order, ok, err := l.st.LoanOrder(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	return order, nil
}

// UserOrders lists a borrower's order ids in creation order.
func (l *Loans) UserOrders(borrower crypto.Address) ([]types.OrderID, error) {
	if borrower.IsZero() {
		return nil, ErrZeroAddress
	}
	return l.st.UserLoanOrders(borrower)
}

// CreateOrder records a new loan position and adds its principal to the
// borrower's debt balance. It stands in for the loan-origination module in
// genesis seeds and tests.
func (l *Loans) CreateOrder(order *types.LoanOrder) error {
	if order == nil || order.ID.IsZero() {
		return fmt.Errorf("%w: zero id", ErrUnknownOrder)
	}
	if order.Borrower.IsZero() || order.Asset.IsZero() {
		return ErrZeroAddress
	}
	if order.Principal == nil || order.Principal.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, ok, err := l.st.LoanOrder(order.ID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID)
	}
	stored := &types.LoanOrder{
		ID:          order.ID,
		Borrower:    order.Borrower,
		Asset:       order.Asset,
		Principal:   new(big.Int).Set(order.Principal),
		Outstanding: new(big.Int).Set(order.Principal),
		Maturity:    order.Maturity,
		CreatedAt:   order.CreatedAt,
	}
	if order.Outstanding != nil {
		stored.Outstanding = new(big.Int).Set(order.Outstanding)
	}
	if stored.Outstanding.Cmp(stored.Principal) > 0 {
		return fmt.Errorf("%w: outstanding exceeds principal", ErrInvalidAmount)
	}
	if stored.CreatedAt == 0 {
		stored.CreatedAt = uint64(l.nowFn())
	}
	if err := l.st.PutLoanOrder(stored); err != nil {
		return err
	}
	debt, err := l.st.Debt(stored.Borrower, stored.Asset)
	if err != nil {
		return err
	}
	return l.st.SetDebt(stored.Borrower, stored.Asset, new(big.Int).Add(debt, stored.Outstanding))
}

// Repay applies a repayment to an order and reduces the borrower's debt
// balance by the same amount. Repaying more than the outstanding amount
// fails; the order closes when outstanding reaches zero.
func (l *Loans) Repay(id types.OrderID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	order, err := l.Order(id)
	if err != nil {
		return err
	}
	if order.Closed() {
		return fmt.Errorf("%w: %s", ErrOrderClosed, id)
	}
	if amount.Cmp(order.Outstanding) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrRepayExceedsDebt, amount, order.Outstanding)
	}
	debt, err := l.st.Debt(order.Borrower, order.Asset)
	if err != nil {
		return err
	}
	if debt.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s < repayment %s", ErrInsufficientDebt, debt, amount)
	}
	order.Outstanding = new(big.Int).Sub(order.Outstanding, amount)
	if err := l.st.PutLoanOrder(order); err != nil {
		return err
	}
	return l.st.SetDebt(order.Borrower, order.Asset, new(big.Int).Sub(debt, amount))
}
