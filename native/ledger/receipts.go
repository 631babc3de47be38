package ledger

import (
	"fmt"

	"vaultchain/core/types"
	"vaultchain/crypto"
)

type receiptState interface {
	PutLoanReceipt(holder crypto.Address, receipt types.LoanReceipt) error
	UserReceiptTokens(holder crypto.Address) ([]uint64, error)
	LoanReceipt(tokenID uint64) (types.LoanReceipt, bool, error)
	SetReceiptStatus(tokenID uint64, status types.ReceiptStatus) error
	NextReceiptToken() (uint64, error)
}

// Receipts mirrors the loan-receipt token collaborator: one token per loan,
// carrying the loan id and a coarse lifecycle status. The settlement
// coordinator consults it best-effort, so every read here is cheap and
// bounded scans are the caller's concern.
type Receipts struct {
	st receiptState
}

// NewReceipts creates a receipt ledger backed by the provided state.
func NewReceipts(st receiptState) *Receipts {
	return &Receipts{st: st}
}

// Mint issues a receipt token for a loan to the holder and returns the new
// token id. It stands in for the origination module in genesis seeds and
// tests.
func (r *Receipts) Mint(holder crypto.Address, loanID types.OrderID) (uint64, error) {
	if holder.IsZero() {
		return 0, ErrZeroAddress
	}
	if loanID.IsZero() {
		return 0, fmt.Errorf("%w: zero id", ErrUnknownOrder)
	}
	tokenID, err := r.st.NextReceiptToken()
	if err != nil {
		return 0, err
	}
	receipt := types.LoanReceipt{TokenID: tokenID, LoanID: loanID, Status: types.ReceiptStatusActive}
	if err := r.st.PutLoanReceipt(holder, receipt); err != nil {
		return 0, err
	}
	return tokenID, nil
}

// UserTokens lists the holder's receipt token ids in mint order.
func (r *Receipts) UserTokens(holder crypto.Address) ([]uint64, error) {
	if holder.IsZero() {
		return nil, ErrZeroAddress
	}
	return r.st.UserReceiptTokens(holder)
}

// Metadata resolves a token's loan id and status.
func (r *Receipts) Metadata(tokenID uint64) (types.LoanReceipt, error) {
	receipt, ok, err := r.st.LoanReceipt(tokenID)
	if err != nil {
		return types.LoanReceipt{}, err
	}
	if !ok {
		return types.LoanReceipt{}, fmt.Errorf("%w: %d", ErrUnknownReceipt, tokenID)
	}
	return receipt, nil
}

// MarkRepaid flips a token's status to repaid. Marking an already repaid
// token is a no-op.
func (r *Receipts) MarkRepaid(tokenID uint64) error {
	receipt, err := r.Metadata(tokenID)
	if err != nil {
		return err
	}
	if receipt.Status == types.ReceiptStatusRepaid {
		return nil
	}
	return r.st.SetReceiptStatus(tokenID, types.ReceiptStatusRepaid)
}
