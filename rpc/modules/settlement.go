package modules

import (
	"encoding/json"
	"math/big"

	"vaultchain/core"
	"vaultchain/core/types"
	"vaultchain/crypto"
)

// SettlementModule gates the liquidation executor and the settlement
// coordinator behind the transport layer.
type SettlementModule struct {
	node *core.Node
}

// NewSettlementModule constructs the settlement RPC gateway.
func NewSettlementModule(node *core.Node) *SettlementModule {
	return &SettlementModule{node: node}
}

type repayAndSettleParams struct {
	Caller   string `json:"caller"`
	Borrower string `json:"borrower"`
	OrderID  string `json:"orderId"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
}

type settleOrLiquidateParams struct {
	Caller  string `json:"caller"`
	OrderID string `json:"orderId"`
}

type liquidateParams struct {
	Caller           string `json:"caller"`
	Liquidator       string `json:"liquidator"`
	Target           string `json:"target"`
	CollateralAsset  string `json:"collateralAsset"`
	DebtAsset        string `json:"debtAsset"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
	BonusBps         uint64 `json:"bonusBps"`
}

type batchLiquidateParams struct {
	Caller     string               `json:"caller"`
	Liquidator string               `json:"liquidator"`
	Items      []batchLiquidateItem `json:"items"`
}

type batchLiquidateItem struct {
	Target           string `json:"target"`
	CollateralAsset  string `json:"collateralAsset"`
	DebtAsset        string `json:"debtAsset"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
	BonusBps         uint64 `json:"bonusBps"`
}

type adminParams struct {
	Caller string `json:"caller"`
}

type authorizeUpgradeParams struct {
	Caller         string `json:"caller"`
	Implementation string `json:"implementation"`
}

// SettlementActionResult reports the post-call position state for mutating
// settlement methods.
type SettlementActionResult struct {
	OrderID     string `json:"orderId,omitempty"`
	Outstanding string `json:"outstanding,omitempty"`
	Status      string `json:"status"`
}

// RepayAndSettle forwards a vault-core repayment into the coordinator and
// reports the remaining outstanding amount.
func (m *SettlementModule) RepayAndSettle(raw json.RawMessage) (*SettlementActionResult, *ModuleError) {
	var params repayAndSettleParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	borrower, modErr := parseAddress("borrower", params.Borrower)
	if modErr != nil {
		return nil, modErr
	}
	orderID, err := types.ParseOrderID(params.OrderID)
	if err != nil {
		return nil, invalidParams("invalid orderId", err.Error())
	}
	asset, modErr := parseAddress("asset", params.Asset)
	if modErr != nil {
		return nil, modErr
	}
	amount, modErr := parseAmount("amount", params.Amount)
	if modErr != nil {
		return nil, modErr
	}

	var outstanding string
	execErr := m.node.ExecuteMutation(func() error {
		if err := m.node.Coordinator().RepayAndSettle(caller, borrower, orderID, asset, amount); err != nil {
			return err
		}
		order, err := m.node.Loans().Order(orderID)
		if err != nil {
			return err
		}
		outstanding = amountString(order.Outstanding)
		return nil
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	status := "repaid"
	if outstanding != "0" {
		status = "partially-repaid"
	}
	return &SettlementActionResult{OrderID: orderID.String(), Outstanding: outstanding, Status: status}, nil
}

// SettleOrLiquidate runs the keeper entry point against one order and
// reports the order's refreshed outstanding amount. The forced debt
// reduction settles the borrower's oldest open orders on the asset first,
// so the named order only shrinks once older ones are exhausted.
func (m *SettlementModule) SettleOrLiquidate(raw json.RawMessage) (*SettlementActionResult, *ModuleError) {
	var params settleOrLiquidateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	orderID, err := types.ParseOrderID(params.OrderID)
	if err != nil {
		return nil, invalidParams("invalid orderId", err.Error())
	}

	var outstanding string
	execErr := m.node.ExecuteMutation(func() error {
		if err := m.node.Coordinator().SettleOrLiquidate(caller, orderID); err != nil {
			return err
		}
		order, err := m.node.Loans().Order(orderID)
		if err != nil {
			return err
		}
		outstanding = amountString(order.Outstanding)
		return nil
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &SettlementActionResult{OrderID: orderID.String(), Outstanding: outstanding, Status: "liquidated"}, nil
}

// Liquidate runs one direct executor liquidation.
func (m *SettlementModule) Liquidate(raw json.RawMessage) (*SettlementActionResult, *ModuleError) {
	var params liquidateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	liquidator, modErr := parseAddress("liquidator", params.Liquidator)
	if modErr != nil {
		return nil, modErr
	}
	target, modErr := parseAddress("target", params.Target)
	if modErr != nil {
		return nil, modErr
	}
	collateralAsset, modErr := parseAddress("collateralAsset", params.CollateralAsset)
	if modErr != nil {
		return nil, modErr
	}
	debtAsset, modErr := parseAddress("debtAsset", params.DebtAsset)
	if modErr != nil {
		return nil, modErr
	}
	collateralAmount, modErr := parseAmount("collateralAmount", params.CollateralAmount)
	if modErr != nil {
		return nil, modErr
	}
	debtAmount, modErr := parseAmount("debtAmount", params.DebtAmount)
	if modErr != nil {
		return nil, modErr
	}

	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Executor().Liquidate(caller, liquidator, target, collateralAsset, debtAsset, collateralAmount, debtAmount, params.BonusBps)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &SettlementActionResult{Status: "executed"}, nil
}

// BatchLiquidate unpacks the item list into the executor's positional
// batch call. The batch reverts as one unit on any element failure.
func (m *SettlementModule) BatchLiquidate(raw json.RawMessage) (*SettlementActionResult, *ModuleError) {
	var params batchLiquidateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	liquidator, modErr := parseAddress("liquidator", params.Liquidator)
	if modErr != nil {
		return nil, modErr
	}

	targets := make([]crypto.Address, len(params.Items))
	collateralAssets := make([]crypto.Address, len(params.Items))
	debtAssets := make([]crypto.Address, len(params.Items))
	collateralAmounts := make([]*big.Int, len(params.Items))
	debtAmounts := make([]*big.Int, len(params.Items))
	bonuses := make([]uint64, len(params.Items))
	for i, item := range params.Items {
		target, modErr := parseAddress("target", item.Target)
		if modErr != nil {
			return nil, modErr
		}
		collateralAsset, modErr := parseAddress("collateralAsset", item.CollateralAsset)
		if modErr != nil {
			return nil, modErr
		}
		debtAsset, modErr := parseAddress("debtAsset", item.DebtAsset)
		if modErr != nil {
			return nil, modErr
		}
		collateralAmount, modErr := parseAmount("collateralAmount", item.CollateralAmount)
		if modErr != nil {
			return nil, modErr
		}
		debtAmount, modErr := parseAmount("debtAmount", item.DebtAmount)
		if modErr != nil {
			return nil, modErr
		}
		targets[i] = target
		collateralAssets[i] = collateralAsset
		debtAssets[i] = debtAsset
		collateralAmounts[i] = collateralAmount
		debtAmounts[i] = debtAmount
		bonuses[i] = item.BonusBps
	}

	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Executor().BatchLiquidate(caller, liquidator, targets, collateralAssets, debtAssets, collateralAmounts, debtAmounts, bonuses)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &SettlementActionResult{Status: "executed"}, nil
}

// Pause halts the liquidation paths.
func (m *SettlementModule) Pause(raw json.RawMessage) (*SettlementActionResult, *ModuleError) {
	caller, modErr := parseAdminCaller(raw)
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Executor().Pause(caller)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &SettlementActionResult{Status: "paused"}, nil
}

// Resume reopens the liquidation paths.
func (m *SettlementModule) Resume(raw json.RawMessage) (*SettlementActionResult, *ModuleError) {
	caller, modErr := parseAdminCaller(raw)
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Executor().Resume(caller)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &SettlementActionResult{Status: "active"}, nil
}

// AuthorizeUpgrade records the approved implementation address. Stays
// callable while the module is paused.
func (m *SettlementModule) AuthorizeUpgrade(raw json.RawMessage) (*SettlementActionResult, *ModuleError) {
	var params authorizeUpgradeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	implementation, modErr := parseAddress("implementation", params.Implementation)
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Executor().AuthorizeUpgrade(caller, implementation)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &SettlementActionResult{Status: "authorized"}, nil
}

func parseAdminCaller(raw json.RawMessage) (crypto.Address, *ModuleError) {
	var params adminParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return crypto.Address{}, invalidParams("invalid parameter object", err.Error())
	}
	return parseAddress("caller", params.Caller)
}
