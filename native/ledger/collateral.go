package ledger

import (
	"fmt"
	"math/big"

	"vaultchain/crypto"
)

type collateralState interface {
	Collateral(user, asset crypto.Address) (*big.Int, error)
	SetCollateral(user, asset crypto.Address, amount *big.Int) error
	CollateralAssets(user crypto.Address) ([]crypto.Address, error)
	TokenBalance(holder, asset crypto.Address) (*big.Int, error)
	SetTokenBalance(holder, asset crypto.Address, amount *big.Int) error
}

// Collateral is the collateral ledger. Custody balances back loans and are
// the only balances the valuation paths see; WithdrawTo is the single
// mutation path out of custody, crediting the receiver's free token
// balance, so liquidation payouts and repayment releases share one audited
// code path.
type Collateral struct {
	st     collateralState
	oracle valuer
}

// NewCollateral creates a collateral ledger backed by the provided state
// and price oracle.
func NewCollateral(st collateralState, oracle valuer) *Collateral {
	return &Collateral{st: st, oracle: oracle}
}

// UserCollateralAssets lists the user's collateral assets in deposit order.
// Scan order is stable, which the coordinator's first-max tie-break relies
// on.
func (c *Collateral) UserCollateralAssets(user crypto.Address) ([]crypto.Address, error) {
	if user.IsZero() {
		return nil, ErrZeroAddress
	}
	return c.st.CollateralAssets(user)
}

// Collateral returns the user's balance for an asset.
func (c *Collateral) Collateral(user, asset crypto.Address) (*big.Int, error) {
	if user.IsZero() || asset.IsZero() {
		return nil, ErrZeroAddress
	}
	return c.st.Collateral(user, asset)
}

// AssetValue prices an asset amount in reference units.
func (c *Collateral) AssetValue(asset crypto.Address, amount *big.Int) (*big.Int, error) {
	if asset.IsZero() {
		return nil, ErrZeroAddress
	}
	return c.oracle.Value(asset, amount)
}

// TotalValue sums the user's collateral value across every deposited asset.
func (c *Collateral) TotalValue(user crypto.Address) (*big.Int, error) {
	assets, err := c.UserCollateralAssets(user)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, asset := range assets {
		balance, err := c.st.Collateral(user, asset)
		if err != nil {
			return nil, err
		}
		if balance.Sign() == 0 {
			continue
		}
		value, err := c.oracle.Value(asset, balance)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// Deposit credits the user's balance. It stands in for the vault-core
// deposit flow in genesis seeds and tests.
func (c *Collateral) Deposit(user, asset crypto.Address, amount *big.Int) error {
	if user.IsZero() || asset.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := c.st.Collateral(user, asset)
	if err != nil {
		return err
	}
	return c.st.SetCollateral(user, asset, new(big.Int).Add(balance, amount))
}

// WithdrawTo moves tokens out of the user's custody balance into the
// receiver's free balance. Requests exceeding the custody balance fail
// before any write, keeping balances non-negative. Releasing to the user
// themselves zeroes custody the same way a payout to a third party does.
func (c *Collateral) WithdrawTo(user, asset crypto.Address, amount *big.Int, receiver crypto.Address) error {
	if user.IsZero() || asset.IsZero() || receiver.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := c.st.Collateral(user, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s < withdrawal %s", ErrInsufficientCollateral, balance, amount)
	}
	if err := c.st.SetCollateral(user, asset, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	received, err := c.st.TokenBalance(receiver, asset)
	if err != nil {
		return err
	}
	return c.st.SetTokenBalance(receiver, asset, new(big.Int).Add(received, amount))
}

// TokenBalance returns the receiver-side free balance credited by
// withdrawals.
func (c *Collateral) TokenBalance(holder, asset crypto.Address) (*big.Int, error) {
	if holder.IsZero() || asset.IsZero() {
		return nil, ErrZeroAddress
	}
	return c.st.TokenBalance(holder, asset)
}
