package modules

import (
	"net/http"
	"testing"
)

func TestGetOrderSeededFields(t *testing.T) {
	node := newTestNode(t)
	gateway := NewLedgerModule(node)

	order, modErr := gateway.GetOrder(rawParams(t, map[string]string{"orderId": healthyOrder.String()}))
	if modErr != nil {
		t.Fatalf("get order: %v", modErr)
	}
	if order.ID != healthyOrder.String() {
		t.Fatalf("unexpected id %q", order.ID)
	}
	if order.Borrower != healthyAddr.String() || order.Asset != debtAssetAddr.String() {
		t.Fatalf("unexpected parties %q/%q", order.Borrower, order.Asset)
	}
	if order.Principal != "1000" || order.Outstanding != "1000" {
		t.Fatalf("unexpected amounts %q/%q", order.Principal, order.Outstanding)
	}
	if order.Closed {
		t.Fatalf("seeded order reported closed")
	}
	if order.Maturity == 0 || order.CreatedAt == 0 {
		t.Fatalf("expected populated timestamps, got %d/%d", order.Maturity, order.CreatedAt)
	}
}

func TestGetOrderUnknown(t *testing.T) {
	node := newTestNode(t)
	gateway := NewLedgerModule(node)

	_, modErr := gateway.GetOrder(rawParams(t, map[string]string{"orderId": testOrderID(0x7f).String()}))
	expectModuleError(t, modErr, http.StatusNotFound, codeInvalidParams)
}

func TestGetOrderRejectsMalformedID(t *testing.T) {
	node := newTestNode(t)
	gateway := NewLedgerModule(node)

	_, modErr := gateway.GetOrder(rawParams(t, map[string]string{"orderId": "0x1234"}))
	expectModuleError(t, modErr, http.StatusBadRequest, codeInvalidParams)
}

func TestGetDebtAndCollateral(t *testing.T) {
	node := newTestNode(t)
	gateway := NewLedgerModule(node)

	debt, modErr := gateway.GetDebt(rawParams(t, map[string]string{
		"user":  healthyAddr.String(),
		"asset": debtAssetAddr.String(),
	}))
	if modErr != nil {
		t.Fatalf("get debt: %v", modErr)
	}
	if debt.Amount != "1000" {
		t.Fatalf("expected debt 1000, got %q", debt.Amount)
	}
	if debt.User != healthyAddr.String() || debt.Asset != debtAssetAddr.String() {
		t.Fatalf("unexpected echo %+v", debt)
	}

	collateral, modErr := gateway.GetCollateral(rawParams(t, map[string]string{
		"user":  riskyAddr.String(),
		"asset": collAssetAddr.String(),
	}))
	if modErr != nil {
		t.Fatalf("get collateral: %v", modErr)
	}
	if collateral.Amount != "700" {
		t.Fatalf("expected collateral 700, got %q", collateral.Amount)
	}
}

func TestGetDebtZeroForStranger(t *testing.T) {
	node := newTestNode(t)
	gateway := NewLedgerModule(node)

	debt, modErr := gateway.GetDebt(rawParams(t, map[string]string{
		"user":  testAddr(0x66).String(),
		"asset": debtAssetAddr.String(),
	}))
	if modErr != nil {
		t.Fatalf("get debt: %v", modErr)
	}
	if debt.Amount != "0" {
		t.Fatalf("expected zero debt, got %q", debt.Amount)
	}
}

func TestCollateralAssetsListsDepositOrder(t *testing.T) {
	node := newTestNode(t)
	gateway := NewLedgerModule(node)

	assets, modErr := gateway.CollateralAssets(rawParams(t, map[string]string{"user": healthyAddr.String()}))
	if modErr != nil {
		t.Fatalf("collateral assets: %v", modErr)
	}
	if len(assets.Assets) != 1 || assets.Assets[0] != collAssetAddr.String() {
		t.Fatalf("unexpected asset list %v", assets.Assets)
	}

	empty, modErr := gateway.CollateralAssets(rawParams(t, map[string]string{"user": testAddr(0x66).String()}))
	if modErr != nil {
		t.Fatalf("collateral assets for stranger: %v", modErr)
	}
	if len(empty.Assets) != 0 {
		t.Fatalf("expected empty list, got %v", empty.Assets)
	}
}
