// Package risk evaluates liquidatability, health factors, and risk scores.
// All reads are idempotent and never mutate ledger state; the governance
// parameter setters are the package's only writes and flow through the
// canonical parameter store. Liquidatability follows a safe-fallback
// policy: unknown or invalid health data reads as not liquidatable.
package risk

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/params"
)

var (
	ErrZeroAddress   = errors.New("risk: address must not be zero")
	ErrNegativeValue = errors.New("risk: values must not be negative")
	ErrEmptyBatch    = errors.New("risk: batch must not be empty")
	ErrBatchTooLarge = errors.New("risk: batch exceeds max size")
	ErrNoModuleCache = errors.New("risk: module cache not configured")
)

const roleSetParameter = "ROLE_SET_PARAMETER"

// Parameter names recorded on risk.parameter.changed events.
const (
	ParamLiquidationThreshold = "liquidationThresholdBps"
	ParamMinHealthFactor      = "minHealthFactorBps"
)

// Risk scores and their display levels.
const (
	ScoreMinimal  uint64 = 0
	ScoreLow      uint64 = 20
	ScoreModerate uint64 = 40
	ScoreElevated uint64 = 60
	ScoreHigh     uint64 = 80
	ScoreCritical uint64 = 100
)

// scoreBands maps health-factor ceilings to scores. The bands are monotonic
// in loan-to-value: a lower collateral/debt ratio never yields a lower
// score. Ratios at or above the last ceiling score ScoreLow; debt-free
// users score ScoreMinimal before the bands are consulted.
var scoreBands = []struct {
	belowBps uint64
	score    uint64
}{
	{10_000, ScoreCritical}, // undercollateralized
	{10_500, ScoreHigh},
	{11_000, ScoreElevated},
	{12_000, ScoreModerate},
}

type healthView interface {
	Snapshot(user crypto.Address) (types.HealthSnapshot, bool, error)
}

type collateralView interface {
	TotalValue(user crypto.Address) (*big.Int, error)
}

type debtView interface {
	TotalDebtValue(user crypto.Address) (*big.Int, error)
}

type parameterStore interface {
	Risk() (params.RiskParameters, error)
	SetRisk(p params.RiskParameters) error
}

type roleChecker interface {
	RequireRole(caller crypto.Address, role string) error
}

type moduleCache interface {
	RefreshCache(caller crypto.Address, keys ...string) error
}

// Assessor answers liquidatability and risk queries over the view cache and
// the live ledgers.
type Assessor struct {
	store      parameterStore
	health     healthView
	collateral collateralView
	debt       debtView
	access     roleChecker
	cache      moduleCache
	emitter    events.Emitter
	nowFn      func() int64

	// mirror is the last risk-parameter pair read from the canonical
	// store. It serves reads only while the store is unreachable.
	mirror    params.RiskParameters
	mirrorSet bool
}

// NewAssessor creates a risk assessor over the canonical parameter store,
// the health cache, the ledger valuation views, and the role oracle.
func NewAssessor(store parameterStore, health healthView, collateral collateralView, debt debtView, access roleChecker) *Assessor {
	return &Assessor{
		store:      store,
		health:     health,
		collateral: collateral,
		debt:       debt,
		access:     access,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (a *Assessor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

// SetNowFunc overrides the time source. Passing nil restores the wall clock.
func (a *Assessor) SetNowFunc(now func() int64) {
	if a == nil {
		return
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	a.nowFn = now
}

// SetModuleCache wires the registry resolver used by RefreshModuleCache.
func (a *Assessor) SetModuleCache(cache moduleCache) {
	if a == nil {
		return
	}
	a.cache = cache
}

// parameters returns the canonical risk parameters and refreshes the local
// mirror on success. When the canonical read fails, the mirror serves as a
// best-effort fallback; it is never preferred over a reachable store.
func (a *Assessor) parameters() (params.RiskParameters, error) {
	p, err := a.store.Risk()
	if err != nil {
		if a.mirrorSet {
			return a.mirror, nil
		}
		return params.RiskParameters{}, err
	}
	a.mirror = p
	a.mirrorSet = true
	return p, nil
}

// Parameters exposes the canonical threshold pair for read surfaces.
func (a *Assessor) Parameters() (params.RiskParameters, error) {
	return a.parameters()
}

// IsLiquidatable reports whether the user's cached health factor sits below
// the liquidation threshold. A missing, unreadable, or invalidated snapshot
// reads as not liquidatable: unknown health must never trigger a
// liquidation. Zero addresses read as not liquidatable.
func (a *Assessor) IsLiquidatable(user crypto.Address) (bool, error) {
	if user.IsZero() {
		return false, nil
	}
	snapshot, ok, err := a.health.Snapshot(user)
	if err != nil || !ok || !snapshot.Valid {
		return false, nil
	}
	p, err := a.parameters()
	if err != nil {
		return false, err
	}
	return snapshot.HealthFactorBps < p.LiquidationThresholdBps, nil
}

// IsLiquidatableWith evaluates caller-supplied valuations without touching
// the cache. The comparison cross-multiplies (collateral·10000 against
// debt·threshold) so zero debt never reaches a division.
func (a *Assessor) IsLiquidatableWith(collateralValue, debtValue *big.Int) (bool, error) {
	if (collateralValue != nil && collateralValue.Sign() < 0) || (debtValue != nil && debtValue.Sign() < 0) {
		return false, ErrNegativeValue
	}
	if debtValue == nil || debtValue.Sign() == 0 {
		return false, nil
	}
	p, err := a.parameters()
	if err != nil {
		return false, err
	}
	if collateralValue == nil {
		collateralValue = big.NewInt(0)
	}
	scaled := new(big.Int).Mul(collateralValue, big.NewInt(params.BpsDenominator))
	bound := new(big.Int).Mul(debtValue, new(big.Int).SetUint64(p.LiquidationThresholdBps))
	return scaled.Cmp(bound) < 0, nil
}

// RiskScore grades the user's live loan-to-value ratio from 0 (no debt) to
// 100 (undercollateralized) along the documented bands. Zero addresses
// score zero.
func (a *Assessor) RiskScore(user crypto.Address) (uint64, error) {
	if user.IsZero() {
		return ScoreMinimal, nil
	}
	debtValue, err := a.debt.TotalDebtValue(user)
	if err != nil {
		return 0, err
	}
	if debtValue == nil || debtValue.Sign() == 0 {
		return ScoreMinimal, nil
	}
	collateralValue, err := a.collateral.TotalValue(user)
	if err != nil {
		return 0, err
	}
	return scoreValues(collateralValue, debtValue), nil
}

func scoreValues(collateralValue, debtValue *big.Int) uint64 {
	if collateralValue == nil {
		collateralValue = big.NewInt(0)
	}
	scaled := new(big.Int).Mul(collateralValue, big.NewInt(params.BpsDenominator))
	for _, band := range scoreBands {
		bound := new(big.Int).Mul(debtValue, new(big.Int).SetUint64(band.belowBps))
		if scaled.Cmp(bound) < 0 {
			return band.score
		}
	}
	return ScoreLow
}

func checkBatch(size int) error {
	if size == 0 {
		return ErrEmptyBatch
	}
	if size > params.MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, size, params.MaxBatchSize)
	}
	return nil
}

// BatchIsLiquidatable evaluates up to MaxBatchSize users in order. Zero
// addresses yield false without failing the remainder of the batch.
func (a *Assessor) BatchIsLiquidatable(users []crypto.Address) ([]bool, error) {
	if err := checkBatch(len(users)); err != nil {
		return nil, err
	}
	out := make([]bool, len(users))
	for i, user := range users {
		liquidatable, err := a.IsLiquidatable(user)
		if err != nil {
			return nil, err
		}
		out[i] = liquidatable
	}
	return out, nil
}

// BatchRiskScores evaluates up to MaxBatchSize users in order. Zero
// addresses score zero without failing the remainder of the batch.
func (a *Assessor) BatchRiskScores(users []crypto.Address) ([]uint64, error) {
	if err := checkBatch(len(users)); err != nil {
		return nil, err
	}
	out := make([]uint64, len(users))
	for i, user := range users {
		score, err := a.RiskScore(user)
		if err != nil {
			return nil, err
		}
		out[i] = score
	}
	return out, nil
}

// Assessment aggregates the per-user reads for keepers and dashboards.
// Liquidatable follows the cached safe-fallback read, while the health
// factor and score come from live ledger totals, so the caller sees current
// valuations next to the flag a liquidation attempt would act on.
type Assessment struct {
	Liquidatable    bool
	RiskScore       uint64
	HealthFactorBps uint64
	RiskLevel       string
	SafetyMarginBps int64
}

// Assessment evaluates the full risk picture for one user.
func (a *Assessor) Assessment(user crypto.Address) (Assessment, error) {
	if user.IsZero() {
		return Assessment{}, ErrZeroAddress
	}
	p, err := a.parameters()
	if err != nil {
		return Assessment{}, err
	}
	liquidatable, err := a.IsLiquidatable(user)
	if err != nil {
		return Assessment{}, err
	}
	debtValue, err := a.debt.TotalDebtValue(user)
	if err != nil {
		return Assessment{}, err
	}
	collateralValue, err := a.collateral.TotalValue(user)
	if err != nil {
		return Assessment{}, err
	}
	hf := healthFactorBps(collateralValue, debtValue)
	score := ScoreMinimal
	if debtValue != nil && debtValue.Sign() != 0 {
		score = scoreValues(collateralValue, debtValue)
	}
	return Assessment{
		Liquidatable:    liquidatable,
		RiskScore:       score,
		HealthFactorBps: hf,
		RiskLevel:       RiskLevel(score),
		SafetyMarginBps: safetyMargin(hf, p.LiquidationThresholdBps),
	}, nil
}

// RiskLevel names a score band for display surfaces.
func RiskLevel(score uint64) string {
	switch {
	case score >= ScoreCritical:
		return "critical"
	case score >= ScoreHigh:
		return "high"
	case score >= ScoreElevated:
		return "elevated"
	case score >= ScoreModerate:
		return "moderate"
	case score >= ScoreLow:
		return "low"
	default:
		return "minimal"
	}
}

// healthFactorBps scales collateral/debt to basis points, rounding down.
// No debt reads as the sentinel; ratios past uint64 saturate to it.
func healthFactorBps(collateralValue, debtValue *big.Int) uint64 {
	if debtValue == nil || debtValue.Sign() == 0 {
		return types.NoDebtHealthFactor
	}
	if collateralValue == nil || collateralValue.Sign() <= 0 {
		return 0
	}
	ratio := new(big.Int).Mul(collateralValue, big.NewInt(params.BpsDenominator))
	ratio.Quo(ratio, debtValue)
	if !ratio.IsUint64() {
		return types.NoDebtHealthFactor
	}
	return ratio.Uint64()
}

// safetyMargin is the signed distance between the health factor and the
// liquidation threshold in basis points. Debt-free users saturate at
// MaxInt64.
func safetyMargin(healthFactorBps, thresholdBps uint64) int64 {
	if healthFactorBps > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(healthFactorBps) - int64(thresholdBps)
}

// UpdateLiquidationThreshold moves the liquidation threshold. Bounds and the
// min-health-factor ordering are enforced against the canonical store's
// current pair; a rejected update leaves both values untouched.
func (a *Assessor) UpdateLiquidationThreshold(caller crypto.Address, newBps uint64) error {
	return a.updateParameter(caller, ParamLiquidationThreshold, newBps)
}

// UpdateMinHealthFactor moves the minimum health factor. It may never drop
// below the current liquidation threshold.
func (a *Assessor) UpdateMinHealthFactor(caller crypto.Address, newBps uint64) error {
	return a.updateParameter(caller, ParamMinHealthFactor, newBps)
}

func (a *Assessor) updateParameter(caller crypto.Address, name string, newBps uint64) error {
	if err := a.access.RequireRole(caller, roleSetParameter); err != nil {
		return err
	}
	// The write path reads the canonical pair directly: a stale mirror must
	// never decide whether an update is valid.
	current, err := a.store.Risk()
	if err != nil {
		return err
	}
	next := current
	var old uint64
	switch name {
	case ParamLiquidationThreshold:
		old = current.LiquidationThresholdBps
		next.LiquidationThresholdBps = newBps
	case ParamMinHealthFactor:
		old = current.MinHealthFactorBps
		next.MinHealthFactorBps = newBps
	default:
		return fmt.Errorf("risk: unknown parameter %q", name)
	}
	if err := a.store.SetRisk(next); err != nil {
		return err
	}
	a.mirror = next
	a.mirrorSet = true
	a.emitter.Emit(events.RiskParameterChanged{
		Name:      name,
		OldValue:  old,
		NewValue:  newBps,
		Caller:    caller,
		Timestamp: uint64(a.nowFn()),
	})
	return nil
}

// RefreshModuleCache eagerly re-fetches module address bindings through the
// registry resolver, which enforces the cache-maintenance role and skips
// unregistered keys.
func (a *Assessor) RefreshModuleCache(caller crypto.Address, keys ...string) error {
	if a.cache == nil {
		return ErrNoModuleCache
	}
	return a.cache.RefreshCache(caller, keys...)
}
