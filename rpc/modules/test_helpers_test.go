package modules

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"vaultchain/config"
	"vaultchain/core"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/access"
	"vaultchain/native/registry"
	"vaultchain/storage"
)

// Fixture identities shared across the gateway tests.
var (
	adminAddr      = testAddr(0x01)
	keeperAddr     = testAddr(0x02)
	pauserAddr     = testAddr(0x03)
	maintainerAddr = testAddr(0x04)
	upgraderAddr   = testAddr(0x05)
	coreAddr       = testAddr(0x06)
	coordAddr      = testAddr(0x07)
	payoutAddr     = testAddr(0x08)
	receiptAddr    = testAddr(0x09)
	platformAddr   = testAddr(0x0a)
	reserveAddr    = testAddr(0x0b)
	lenderAddr     = testAddr(0x0c)
	healthyAddr    = testAddr(0x10)
	riskyAddr      = testAddr(0x11)
	debtAssetAddr  = testAddr(0x20)
	collAssetAddr  = testAddr(0x21)

	healthyOrder = testOrderID(0x01)
	riskyOrder   = testOrderID(0x02)
)

func testAddr(b byte) crypto.Address {
	var raw [20]byte
	raw[19] = b
	return crypto.NewAddress(raw[:])
}

func testOrderID(b byte) types.OrderID {
	var id types.OrderID
	id[31] = b
	return id
}

// newTestNode boots a node with two seeded borrowers: one comfortably
// collateralised at a 20000 bps health factor, one below the 8000 bps
// liquidation threshold at 7000 bps. Both assets quote 1.0 so amounts and
// values coincide.
func newTestNode(t *testing.T) *core.Node {
	t.Helper()
	addr := func(a crypto.Address) config.Address { return config.Address{Address: a} }
	amount := func(n int64) config.Amount { return config.Amount{Int: big.NewInt(n)} }
	maturity := uint64(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	doc := &config.Genesis{
		Network: "vault-test",
		Roles: []config.RoleGrant{
			{Role: access.RoleAdmin, Addresses: []config.Address{addr(adminAddr)}},
			{Role: access.RoleSetParameter, Addresses: []config.Address{addr(adminAddr)}},
			{Role: access.RoleLiquidator, Addresses: []config.Address{addr(keeperAddr)}},
			{Role: access.RolePauser, Addresses: []config.Address{addr(pauserAddr)}},
			{Role: access.RoleCacheMaintainer, Addresses: []config.Address{addr(maintainerAddr)}},
			{Role: access.RoleUpgradeModule, Addresses: []config.Address{addr(upgraderAddr)}},
		},
		Registry: []config.RegistryEntry{
			{Key: registry.KeyVaultCore, Address: addr(coreAddr)},
			{Key: registry.KeySettlementCoordinator, Address: addr(coordAddr)},
			{Key: registry.KeyPayoutConfig, Address: addr(payoutAddr)},
			{Key: registry.KeyLoanReceipt, Address: addr(receiptAddr)},
		},
		Payout: &config.PayoutGenesis{
			Platform:      addr(platformAddr),
			Reserve:       addr(reserveAddr),
			LenderComp:    addr(lenderAddr),
			PlatformBps:   5000,
			ReserveBps:    3000,
			LenderCompBps: 1500,
			LiquidatorBps: 500,
		},
		Risk:       &config.RiskGenesis{LiquidationThresholdBps: 8000, MinHealthFactorBps: 10000},
		Settlement: &config.SettlementGenesis{CloseFactorBps: 5000, PartialLiquidationFloor: amount(1)},
		Oracle: []config.SeedPrice{
			{Asset: addr(debtAssetAddr), Rate: "1.0"},
			{Asset: addr(collAssetAddr), Rate: "1.0"},
		},
		Orders: []config.GenesisOrder{
			{ID: healthyOrder.String(), Borrower: addr(healthyAddr), Asset: addr(debtAssetAddr), Principal: amount(1000), Outstanding: amount(1000), Maturity: maturity},
			{ID: riskyOrder.String(), Borrower: addr(riskyAddr), Asset: addr(debtAssetAddr), Principal: amount(1000), Outstanding: amount(1000), Maturity: maturity},
		},
		Collateral: []config.GenesisCollateral{
			{User: addr(healthyAddr), Asset: addr(collAssetAddr), Amount: amount(2000)},
			{User: addr(riskyAddr), Asset: addr(collAssetAddr), Amount: amount(700)},
		},
	}

	node, err := core.NewNode(storage.NewMemDB(), core.Options{OracleMaxQuoteAge: time.Hour})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if err := node.SeedPrices(doc, time.Now()); err != nil {
		t.Fatalf("seed prices: %v", err)
	}
	if _, err := node.ApplyGenesis(doc); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	return node
}

func rawParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return raw
}

func expectModuleError(t *testing.T, modErr *ModuleError, status, code int) {
	t.Helper()
	if modErr == nil {
		t.Fatalf("expected module error, got success")
	}
	if modErr.HTTPStatus != status || modErr.Code != code {
		t.Fatalf("expected %d/%d, got %d/%d (%s)", status, code, modErr.HTTPStatus, modErr.Code, modErr.Message)
	}
}

// debtOf reads the current debt-ledger balance straight off the node.
func debtOf(t *testing.T, node *core.Node, user, asset crypto.Address) string {
	t.Helper()
	var balance *big.Int
	err := node.Query(func() error {
		var queryErr error
		balance, queryErr = node.Debts().Debt(user, asset)
		return queryErr
	})
	if err != nil {
		t.Fatalf("read debt: %v", err)
	}
	return balance.String()
}

// collateralOf reads the current custody balance straight off the node.
func collateralOf(t *testing.T, node *core.Node, user, asset crypto.Address) string {
	t.Helper()
	var balance *big.Int
	err := node.Query(func() error {
		var queryErr error
		balance, queryErr = node.Collateral().Collateral(user, asset)
		return queryErr
	})
	if err != nil {
		t.Fatalf("read collateral: %v", err)
	}
	return balance.String()
}
