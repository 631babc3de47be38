// Package payout is the single source of truth for how seized collateral is
// split between the platform, the reserve, lender compensation, and the
// liquidator. Rates are basis points summing to exactly 10000; share math
// conserves the input to the last unit by assigning all rounding dust to the
// liquidator.
package payout

import (
	"errors"
	"math/big"
	"time"

	"vaultchain/core/events"
	"vaultchain/crypto"
	"vaultchain/native/params"
)

var (
	ErrPolicyNotConfigured = errors.New("payout: policy not configured")
	ErrPolicyExists        = errors.New("payout: policy already configured")
	ErrNegativeAmount      = errors.New("payout: amount must not be negative")
)

type policyStore interface {
	PayoutPolicy() (params.PayoutPolicy, bool, error)
	SetPayoutPolicy(p params.PayoutPolicy) error
}

type roleChecker interface {
	RequireRole(caller crypto.Address, role string) error
}

const roleSetParameter = "ROLE_SET_PARAMETER"

// Recipients names the three fixed payout destinations. The liquidator is
// the fourth destination and is supplied per liquidation.
type Recipients struct {
	Platform   crypto.Address
	Reserve    crypto.Address
	LenderComp crypto.Address
}

// Rates is the basis-point split applied to seized collateral.
type Rates struct {
	PlatformBps   uint64
	ReserveBps    uint64
	LenderBps     uint64
	LiquidatorBps uint64
}

// Shares is one computed distribution. Platform + Reserve + Lender +
// Liquidator always equals the collateral amount the split was computed
// from.
type Shares struct {
	Platform   *big.Int
	Reserve    *big.Int
	Lender     *big.Int
	Liquidator *big.Int
}

// Config reads and governs the payout policy.
type Config struct {
	store   policyStore
	access  roleChecker
	emitter events.Emitter
	nowFn   func() int64
}

// NewConfig creates the payout policy module over the provided parameter
// store and role oracle.
func NewConfig(store policyStore, access roleChecker) *Config {
	return &Config{
		store:   store,
		access:  access,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Config) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetNowFunc overrides the time source. Passing nil restores the wall clock.
func (c *Config) SetNowFunc(now func() int64) {
	if c == nil {
		return
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	c.nowFn = now
}

func assemble(recipients Recipients, rates Rates) params.PayoutPolicy {
	return params.PayoutPolicy{
		Platform:      recipients.Platform,
		Reserve:       recipients.Reserve,
		LenderComp:    recipients.LenderComp,
		PlatformBps:   rates.PlatformBps,
		ReserveBps:    rates.ReserveBps,
		LenderBps:     rates.LenderBps,
		LiquidatorBps: rates.LiquidatorBps,
	}
}

// Initialize persists the first policy. Genesis bootstrap is the only
// expected caller; a second initialization fails so governance updates stay
// on the gated paths.
func (c *Config) Initialize(recipients Recipients, rates Rates) error {
	if _, ok, err := c.store.PayoutPolicy(); err != nil {
		return err
	} else if ok {
		return ErrPolicyExists
	}
	return c.persist(crypto.Address{}, assemble(recipients, rates))
}

// Policy returns the full stored policy.
func (c *Config) Policy() (params.PayoutPolicy, error) {
	policy, ok, err := c.store.PayoutPolicy()
	if err != nil {
		return params.PayoutPolicy{}, err
	}
	if !ok {
		return params.PayoutPolicy{}, ErrPolicyNotConfigured
	}
	return policy, nil
}

// Recipients returns the three fixed payout destinations.
func (c *Config) Recipients() (Recipients, error) {
	policy, err := c.Policy()
	if err != nil {
		return Recipients{}, err
	}
	return Recipients{
		Platform:   policy.Platform,
		Reserve:    policy.Reserve,
		LenderComp: policy.LenderComp,
	}, nil
}

// Rates returns the basis-point split.
func (c *Config) Rates() (Rates, error) {
	policy, err := c.Policy()
	if err != nil {
		return Rates{}, err
	}
	return Rates{
		PlatformBps:   policy.PlatformBps,
		ReserveBps:    policy.ReserveBps,
		LenderBps:     policy.LenderBps,
		LiquidatorBps: policy.LiquidatorBps,
	}, nil
}

// CalculateShares splits a collateral amount by the stored rates. Platform,
// reserve, and lender shares round down; the liquidator share is the exact
// remainder, so the four shares always sum to the input. A nil or zero
// amount yields four zero shares.
func (c *Config) CalculateShares(amount *big.Int) (Shares, error) {
	if amount != nil && amount.Sign() < 0 {
		return Shares{}, ErrNegativeAmount
	}
	if amount == nil || amount.Sign() == 0 {
		return Shares{
			Platform:   big.NewInt(0),
			Reserve:    big.NewInt(0),
			Lender:     big.NewInt(0),
			Liquidator: big.NewInt(0),
		}, nil
	}
	policy, err := c.Policy()
	if err != nil {
		return Shares{}, err
	}
	shares := Shares{
		Platform: floorShare(amount, policy.PlatformBps),
		Reserve:  floorShare(amount, policy.ReserveBps),
		Lender:   floorShare(amount, policy.LenderBps),
	}
	allocated := new(big.Int).Add(shares.Platform, shares.Reserve)
	allocated.Add(allocated, shares.Lender)
	shares.Liquidator = new(big.Int).Sub(amount, allocated)
	return shares, nil
}

func floorShare(amount *big.Int, bps uint64) *big.Int {
	if bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, big.NewInt(params.BpsDenominator))
}

// UpdateConfig replaces the complete policy. Requires the set-parameter
// role; validation rejects zero recipients and rate sums other than 10000
// before anything is written.
func (c *Config) UpdateConfig(caller crypto.Address, recipients Recipients, rates Rates) error {
	if err := c.access.RequireRole(caller, roleSetParameter); err != nil {
		return err
	}
	return c.persist(caller, assemble(recipients, rates))
}

// UpdateRecipients replaces only the recipient addresses, keeping the
// stored rates.
func (c *Config) UpdateRecipients(caller crypto.Address, recipients Recipients) error {
	if err := c.access.RequireRole(caller, roleSetParameter); err != nil {
		return err
	}
	policy, err := c.Policy()
	if err != nil {
		return err
	}
	policy.Platform = recipients.Platform
	policy.Reserve = recipients.Reserve
	policy.LenderComp = recipients.LenderComp
	return c.persist(caller, policy)
}

// UpdateRates replaces only the basis-point split, keeping the stored
// recipients.
func (c *Config) UpdateRates(caller crypto.Address, rates Rates) error {
	if err := c.access.RequireRole(caller, roleSetParameter); err != nil {
		return err
	}
	policy, err := c.Policy()
	if err != nil {
		return err
	}
	policy.PlatformBps = rates.PlatformBps
	policy.ReserveBps = rates.ReserveBps
	policy.LenderBps = rates.LenderBps
	policy.LiquidatorBps = rates.LiquidatorBps
	return c.persist(caller, policy)
}

func (c *Config) persist(caller crypto.Address, policy params.PayoutPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if err := c.store.SetPayoutPolicy(policy); err != nil {
		return err
	}
	c.emitter.Emit(events.PayoutPolicyUpdated{
		Platform:      policy.Platform,
		Reserve:       policy.Reserve,
		LenderComp:    policy.LenderComp,
		PlatformBps:   policy.PlatformBps,
		ReserveBps:    policy.ReserveBps,
		LenderBps:     policy.LenderBps,
		LiquidatorBps: policy.LiquidatorBps,
		Caller:        caller,
		Timestamp:     uint64(c.nowFn()),
	})
	return nil
}
