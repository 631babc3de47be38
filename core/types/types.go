package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"vaultchain/crypto"
)

// OrderID is the opaque, lifetime-stable primary key of a loan position.
type OrderID [32]byte

// ParseOrderID decodes a 0x-prefixed or bare hex string into an OrderID.
func ParseOrderID(raw string) (OrderID, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return OrderID{}, fmt.Errorf("types: invalid order id: %w", err)
	}
	if len(decoded) != len(OrderID{}) {
		return OrderID{}, fmt.Errorf("types: order id must be %d bytes, got %d", len(OrderID{}), len(decoded))
	}
	var id OrderID
	copy(id[:], decoded)
	return id, nil
}

// IsZero reports whether the id is entirely zero.
func (id OrderID) IsZero() bool {
	return id == OrderID{}
}

func (id OrderID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// MarshalText renders the id as 0x-prefixed hex for JSON payloads.
func (id OrderID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the hex rendering produced by MarshalText.
func (id *OrderID) UnmarshalText(text []byte) error {
	parsed, err := ParseOrderID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// LoanOrder is the loan ledger's canonical record for a position. The
// (Borrower, Asset) pair is immutable after creation; Outstanding reaching
// zero terminates the position.
type LoanOrder struct {
	ID          OrderID        `json:"id"`
	Borrower    crypto.Address `json:"borrower"`
	Asset       crypto.Address `json:"asset"`
	Principal   *big.Int       `json:"principal"`
	Outstanding *big.Int       `json:"outstanding"`
	Maturity    uint64         `json:"maturity"`
	CreatedAt   uint64         `json:"createdAt"`
}

// Closed reports whether the position has terminated (no outstanding debt).
func (o *LoanOrder) Closed() bool {
	return o == nil || o.Outstanding == nil || o.Outstanding.Sign() == 0
}

// Overdue reports whether the position is past maturity with debt left.
func (o *LoanOrder) Overdue(now uint64) bool {
	if o == nil || o.Closed() {
		return false
	}
	return now > o.Maturity
}

// ReceiptStatus enumerates the loan-receipt lifecycle states the settlement
// core cares about.
type ReceiptStatus string

const (
	ReceiptStatusActive ReceiptStatus = "active"
	ReceiptStatusRepaid ReceiptStatus = "repaid"
)

// LoanReceipt mirrors the receipt collaborator's token metadata.
type LoanReceipt struct {
	TokenID uint64        `json:"tokenId"`
	LoanID  OrderID       `json:"loanId"`
	Status  ReceiptStatus `json:"status"`
}

// NoDebtHealthFactor is the sentinel health factor recorded for users with
// no outstanding debt.
const NoDebtHealthFactor = ^uint64(0)

// HealthSnapshot is the view cache's record of a user's last computed
// health factor. Invalid snapshots must never be read as liquidatable.
type HealthSnapshot struct {
	HealthFactorBps uint64 `json:"healthFactorBps"`
	Valid           bool   `json:"valid"`
	UpdatedAt       uint64 `json:"updatedAt"`
}
