package params

import (
	"errors"
	"math/big"
	"testing"

	"vaultchain/crypto"
)

type memParamState map[string][]byte

func (m memParamState) ParamStoreSet(name string, value []byte) error {
	m[name] = append([]byte(nil), value...)
	return nil
}

func (m memParamState) ParamStoreGet(name string) ([]byte, bool, error) {
	value, ok := m[name]
	return value, ok, nil
}

func paramAddr(b byte) crypto.Address {
	var raw [20]byte
	raw[19] = b
	return crypto.NewAddress(raw[:])
}

func TestRiskDefaultsWhenUnset(t *testing.T) {
	store := NewStore(memParamState{})
	risk, err := store.Risk()
	if err != nil {
		t.Fatalf("risk: %v", err)
	}
	if risk != DefaultRiskParameters() {
		t.Fatalf("expected defaults, got %+v", risk)
	}
}

func TestSetRiskValidates(t *testing.T) {
	store := NewStore(memParamState{})

	err := store.SetRisk(RiskParameters{LiquidationThresholdBps: 0, MinHealthFactorBps: 10_000})
	if !errors.Is(err, ErrThresholdOutOfRange) {
		t.Fatalf("zero threshold should be out of range, got %v", err)
	}
	err = store.SetRisk(RiskParameters{LiquidationThresholdBps: 4_000, MinHealthFactorBps: 10_000})
	if !errors.Is(err, ErrThresholdOutOfRange) {
		t.Fatalf("threshold below band should fail, got %v", err)
	}
	err = store.SetRisk(RiskParameters{LiquidationThresholdBps: 9_000, MinHealthFactorBps: 8_500})
	if !errors.Is(err, ErrMinHealthBelowThreshold) {
		t.Fatalf("min health below threshold should fail, got %v", err)
	}

	want := RiskParameters{LiquidationThresholdBps: 8_500, MinHealthFactorBps: 10_500}
	if err := store.SetRisk(want); err != nil {
		t.Fatalf("set risk: %v", err)
	}
	got, err := store.Risk()
	if err != nil {
		t.Fatalf("risk: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestPayoutPolicyValidation(t *testing.T) {
	store := NewStore(memParamState{})
	valid := PayoutPolicy{
		Platform:      paramAddr(1),
		Reserve:       paramAddr(2),
		LenderComp:    paramAddr(3),
		PlatformBps:   2_000,
		ReserveBps:    1_500,
		LenderBps:     1_500,
		LiquidatorBps: 5_000,
	}

	if _, ok, err := store.PayoutPolicy(); err != nil || ok {
		t.Fatalf("expected unset policy, got ok=%v err=%v", ok, err)
	}

	zeroRecipient := valid
	zeroRecipient.Reserve = crypto.Address{}
	if err := store.SetPayoutPolicy(zeroRecipient); !errors.Is(err, ErrZeroRecipient) {
		t.Fatalf("zero recipient should fail, got %v", err)
	}

	badSum := valid
	badSum.LiquidatorBps = 5_001
	if err := store.SetPayoutPolicy(badSum); !errors.Is(err, ErrRateSum) {
		t.Fatalf("sum 10001 should fail, got %v", err)
	}

	if err := store.SetPayoutPolicy(valid); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	got, ok, err := store.PayoutPolicy()
	if err != nil || !ok {
		t.Fatalf("policy: ok=%v err=%v", ok, err)
	}
	if !got.Platform.Equal(valid.Platform) || got.LiquidatorBps != valid.LiquidatorBps {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestOracleConfigDefaults(t *testing.T) {
	store := NewStore(memParamState{})
	cfg, err := store.Oracle()
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	if cfg.MaxQuoteAgeSeconds != DefaultMaxQuoteAgeSeconds {
		t.Fatalf("expected default age, got %d", cfg.MaxQuoteAgeSeconds)
	}
	if err := store.SetOracle(OracleConfig{}); !errors.Is(err, ErrZeroQuoteAge) {
		t.Fatalf("zero age should fail, got %v", err)
	}
}

func TestSettlementParametersRoundTrip(t *testing.T) {
	store := NewStore(memParamState{})

	defaults, err := store.Settlement()
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if defaults.CloseFactorBps != DefaultCloseFactorBps {
		t.Fatalf("expected default close factor, got %d", defaults.CloseFactorBps)
	}
	if defaults.PartialLiquidationFloor.Cmp(DefaultPartialLiquidationFloor()) != 0 {
		t.Fatalf("expected default floor, got %s", defaults.PartialLiquidationFloor)
	}

	if err := store.SetSettlement(SettlementParameters{CloseFactorBps: 10_001}); !errors.Is(err, ErrCloseFactorOutOfRange) {
		t.Fatalf("close factor above denominator should fail, got %v", err)
	}

	want := SettlementParameters{CloseFactorBps: 2_500, PartialLiquidationFloor: big.NewInt(500)}
	if err := store.SetSettlement(want); err != nil {
		t.Fatalf("set settlement: %v", err)
	}
	got, err := store.Settlement()
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if got.CloseFactorBps != want.CloseFactorBps || got.PartialLiquidationFloor.Cmp(want.PartialLiquidationFloor) != 0 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
