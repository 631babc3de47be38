// Package ledger implements the loan-order, debt, collateral, and
// loan-receipt ledgers the settlement core acts on. Each engine wraps a
// narrow slice of the state manager; valuation flows through the price
// oracle. The engines enforce the ledger-side invariants (balances never
// negative, immutable order identity, single withdraw-to mutation path) and
// leave trigger decisions and authorization to the settlement layer.
package ledger

import (
	"errors"
	"math/big"

	"vaultchain/crypto"
)

var (
	ErrInvalidAmount          = errors.New("ledger: amount must be positive")
	ErrZeroAddress            = errors.New("ledger: address must not be zero")
	ErrUnknownOrder           = errors.New("ledger: unknown loan order")
	ErrDuplicateOrder         = errors.New("ledger: loan order already exists")
	ErrOrderClosed            = errors.New("ledger: loan order already closed")
	ErrRepayExceedsDebt       = errors.New("ledger: repayment exceeds outstanding debt")
	ErrInsufficientDebt       = errors.New("ledger: insufficient debt balance")
	ErrInsufficientCollateral = errors.New("ledger: insufficient collateral balance")
	ErrUnknownReceipt         = errors.New("ledger: unknown loan receipt")
)

// valuer prices an asset amount in reference units. The price aggregator
// satisfies it in production; tests substitute fixed-rate stubs.
type valuer interface {
	Value(asset crypto.Address, amount *big.Int) (*big.Int, error)
}
