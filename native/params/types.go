package params

import (
	"errors"
	"fmt"
	"math/big"

	"vaultchain/crypto"
)

const (
	// BpsDenominator is the fixed-point base for every rate and ratio.
	BpsDenominator = 10_000

	// MaxBatchSize bounds batch liquidations and batch risk reads.
	MaxBatchSize = 50

	// MinLiquidationThresholdBps and MaxLiquidationThresholdBps bound the
	// governable threshold to sane liquidation territory.
	MinLiquidationThresholdBps = 5_000
	MaxLiquidationThresholdBps = 10_000

	DefaultLiquidationThresholdBps = 8_000
	DefaultMinHealthFactorBps      = 10_000
	DefaultMaxQuoteAgeSeconds      = 900
	DefaultCloseFactorBps          = 5_000
)

// DefaultPartialLiquidationFloor is the debt value under which a position is
// closed in full instead of partially.
func DefaultPartialLiquidationFloor() *big.Int {
	return big.NewInt(1_000_000)
}

var (
	ErrThresholdOutOfRange     = errors.New("params: liquidation threshold out of range")
	ErrMinHealthBelowThreshold = errors.New("params: min health factor below liquidation threshold")
	ErrZeroRecipient           = errors.New("params: payout recipient must not be zero")
	ErrRateSum                 = errors.New("params: payout rates must sum to 10000 bps")
	ErrZeroQuoteAge            = errors.New("params: max quote age must be positive")
	ErrCloseFactorOutOfRange   = errors.New("params: close factor out of range")
	ErrNegativeFloor           = errors.New("params: partial liquidation floor must not be negative")
)

// RiskParameters is the single authoritative record for the liquidation
// threshold and the minimum health factor. Every module reads these two
// values through the store; nothing else persists its own copy.
type RiskParameters struct {
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	MinHealthFactorBps      uint64 `json:"minHealthFactorBps"`
}

// DefaultRiskParameters returns the genesis defaults.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		LiquidationThresholdBps: DefaultLiquidationThresholdBps,
		MinHealthFactorBps:      DefaultMinHealthFactorBps,
	}
}

// Validate enforces the cross-parameter invariants: the threshold stays
// inside its sanity band and the minimum health factor never drops below it.
func (p RiskParameters) Validate() error {
	if p.LiquidationThresholdBps < MinLiquidationThresholdBps || p.LiquidationThresholdBps > MaxLiquidationThresholdBps {
		return fmt.Errorf("%w: %d", ErrThresholdOutOfRange, p.LiquidationThresholdBps)
	}
	if p.MinHealthFactorBps < p.LiquidationThresholdBps {
		return fmt.Errorf("%w: %d < %d", ErrMinHealthBelowThreshold, p.MinHealthFactorBps, p.LiquidationThresholdBps)
	}
	return nil
}

// PayoutPolicy names the three fixed recipients of seized collateral and the
// four rates splitting it. The liquidator share is the fourth rate; its
// recipient is the caller of the liquidation.
type PayoutPolicy struct {
	Platform   crypto.Address `json:"platform"`
	Reserve    crypto.Address `json:"reserve"`
	LenderComp crypto.Address `json:"lenderComp"`

	PlatformBps   uint64 `json:"platformBps"`
	ReserveBps    uint64 `json:"reserveBps"`
	LenderBps     uint64 `json:"lenderBps"`
	LiquidatorBps uint64 `json:"liquidatorBps"`
}

// Validate rejects zero recipients and any rate split that does not sum to
// exactly 10000 bps.
func (p PayoutPolicy) Validate() error {
	if p.Platform.IsZero() || p.Reserve.IsZero() || p.LenderComp.IsZero() {
		return ErrZeroRecipient
	}
	rates := []uint64{p.PlatformBps, p.ReserveBps, p.LenderBps, p.LiquidatorBps}
	var sum uint64
	for _, rate := range rates {
		if rate > BpsDenominator {
			return fmt.Errorf("%w: rate %d exceeds denominator", ErrRateSum, rate)
		}
		sum += rate
	}
	if sum != BpsDenominator {
		return fmt.Errorf("%w: got %d", ErrRateSum, sum)
	}
	return nil
}

// OracleConfig bounds the staleness the price aggregator will accept.
type OracleConfig struct {
	MaxQuoteAgeSeconds uint64 `json:"maxQuoteAgeSeconds"`
}

// DefaultOracleConfig returns the genesis default.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{MaxQuoteAgeSeconds: DefaultMaxQuoteAgeSeconds}
}

// Validate rejects a zero staleness bound.
func (o OracleConfig) Validate() error {
	if o.MaxQuoteAgeSeconds == 0 {
		return ErrZeroQuoteAge
	}
	return nil
}

// SettlementParameters governs liquidation sizing: the close factor caps how
// much of the outstanding debt one liquidation may clear, and positions whose
// debt value sits under the floor are closed in full.
type SettlementParameters struct {
	CloseFactorBps          uint64   `json:"closeFactorBps"`
	PartialLiquidationFloor *big.Int `json:"partialLiquidationFloor"`
}

// DefaultSettlementParameters returns the genesis defaults.
func DefaultSettlementParameters() SettlementParameters {
	return SettlementParameters{
		CloseFactorBps:          DefaultCloseFactorBps,
		PartialLiquidationFloor: DefaultPartialLiquidationFloor(),
	}
}

// Validate bounds the close factor to (0, 10000] and rejects negative floors.
func (s SettlementParameters) Validate() error {
	if s.CloseFactorBps == 0 || s.CloseFactorBps > BpsDenominator {
		return fmt.Errorf("%w: %d", ErrCloseFactorOutOfRange, s.CloseFactorBps)
	}
	if s.PartialLiquidationFloor != nil && s.PartialLiquidationFloor.Sign() < 0 {
		return ErrNegativeFloor
	}
	return nil
}
