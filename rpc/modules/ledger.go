package modules

import (
	"encoding/json"

	"vaultchain/core"
	"vaultchain/core/types"
	"vaultchain/crypto"
)

// LedgerModule exposes read access to loan orders and the collateral and
// debt balances.
type LedgerModule struct {
	node *core.Node
}

// NewLedgerModule constructs the ledger RPC gateway.
func NewLedgerModule(node *core.Node) *LedgerModule {
	return &LedgerModule{node: node}
}

type orderParams struct {
	OrderID string `json:"orderId"`
}

type balanceParams struct {
	User  string `json:"user"`
	Asset string `json:"asset"`
}

// LoanOrderResult is a loan order in transport form.
type LoanOrderResult struct {
	ID          string `json:"id"`
	Borrower    string `json:"borrower"`
	Asset       string `json:"asset"`
	Principal   string `json:"principal"`
	Outstanding string `json:"outstanding"`
	Maturity    uint64 `json:"maturity"`
	CreatedAt   uint64 `json:"createdAt"`
	Closed      bool   `json:"closed"`
}

// BalanceResult is one ledger balance in transport form.
type BalanceResult struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// CollateralAssetsResult lists a user's collateral assets in deposit order.
type CollateralAssetsResult struct {
	User   string   `json:"user"`
	Assets []string `json:"assets"`
}

// GetOrder fetches one loan order by id.
func (m *LedgerModule) GetOrder(raw json.RawMessage) (*LoanOrderResult, *ModuleError) {
	var params orderParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	orderID, err := types.ParseOrderID(params.OrderID)
	if err != nil {
		return nil, invalidParams("invalid orderId", err.Error())
	}
	result := &LoanOrderResult{}
	queryErr := m.node.Query(func() error {
		order, err := m.node.Loans().Order(orderID)
		if err != nil {
			return err
		}
		result.ID = order.ID.String()
		result.Borrower = order.Borrower.String()
		result.Asset = order.Asset.String()
		result.Principal = amountString(order.Principal)
		result.Outstanding = amountString(order.Outstanding)
		result.Maturity = order.Maturity
		result.CreatedAt = order.CreatedAt
		result.Closed = order.Closed()
		return nil
	})
	if queryErr != nil {
		return nil, classify(queryErr)
	}
	return result, nil
}

func parseBalanceParams(raw json.RawMessage) (crypto.Address, crypto.Address, *ModuleError) {
	var params balanceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return crypto.Address{}, crypto.Address{}, invalidParams("invalid parameter object", err.Error())
	}
	user, modErr := parseAddress("user", params.User)
	if modErr != nil {
		return crypto.Address{}, crypto.Address{}, modErr
	}
	asset, modErr := parseAddress("asset", params.Asset)
	if modErr != nil {
		return crypto.Address{}, crypto.Address{}, modErr
	}
	return user, asset, nil
}

// GetDebt reads a user's outstanding debt balance for an asset.
func (m *LedgerModule) GetDebt(raw json.RawMessage) (*BalanceResult, *ModuleError) {
	user, asset, modErr := parseBalanceParams(raw)
	if modErr != nil {
		return nil, modErr
	}
	result := &BalanceResult{User: user.String(), Asset: asset.String()}
	queryErr := m.node.Query(func() error {
		amount, err := m.node.Debts().Debt(user, asset)
		if err != nil {
			return err
		}
		result.Amount = amountString(amount)
		return nil
	})
	if queryErr != nil {
		return nil, classify(queryErr)
	}
	return result, nil
}

// GetCollateral reads a user's custody balance for an asset.
func (m *LedgerModule) GetCollateral(raw json.RawMessage) (*BalanceResult, *ModuleError) {
	user, asset, modErr := parseBalanceParams(raw)
	if modErr != nil {
		return nil, modErr
	}
	result := &BalanceResult{User: user.String(), Asset: asset.String()}
	queryErr := m.node.Query(func() error {
		amount, err := m.node.Collateral().Collateral(user, asset)
		if err != nil {
			return err
		}
		result.Amount = amountString(amount)
		return nil
	})
	if queryErr != nil {
		return nil, classify(queryErr)
	}
	return result, nil
}

// CollateralAssets lists a user's collateral assets in deposit order.
func (m *LedgerModule) CollateralAssets(raw json.RawMessage) (*CollateralAssetsResult, *ModuleError) {
	var params userParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	user, modErr := parseAddress("user", params.User)
	if modErr != nil {
		return nil, modErr
	}
	result := &CollateralAssetsResult{User: user.String(), Assets: []string{}}
	queryErr := m.node.Query(func() error {
		assets, err := m.node.Collateral().UserCollateralAssets(user)
		if err != nil {
			return err
		}
		for _, asset := range assets {
			result.Assets = append(result.Assets, asset.String())
		}
		return nil
	})
	if queryErr != nil {
		return nil, classify(queryErr)
	}
	return result, nil
}
