package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
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

const testAuthToken = "test-token"

// Fixture identities. Only the last payload byte varies so failures print
// recognisable addresses.
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

// testGenesis seeds two borrowers against one debt asset: the first is
// comfortably collateralised (health factor 20000 bps), the second sits
// below the 8000 bps liquidation threshold (7000 bps). Both quote at a
// 1.0 rate so amounts equal values.
func testGenesis() *config.Genesis {
	addr := func(a crypto.Address) config.Address { return config.Address{Address: a} }
	amount := func(n int64) config.Amount { return config.Amount{Int: big.NewInt(n)} }
	maturity := uint64(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	return &config.Genesis{
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
}

type testEnv struct {
	server *Server
	node   *core.Node
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithOptions(t, Options{
		AuthToken:      testAuthToken,
		RateLimitRPS:   10000,
		RateLimitBurst: 10000,
	})
}

func newTestEnvWithOptions(t *testing.T, opts Options) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	node, err := core.NewNode(db, core.Options{OracleMaxQuoteAge: time.Hour})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	doc := testGenesis()
	if err := node.SeedPrices(doc, time.Now()); err != nil {
		t.Fatalf("seed prices: %v", err)
	}
	applied, err := node.ApplyGenesis(doc)
	if err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	if !applied {
		t.Fatalf("genesis skipped on fresh state")
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	server := NewServer(node, opts)
	return &testEnv{server: server, node: node, token: opts.AuthToken}
}

func (env *testEnv) newRequest() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	return req
}

// call drives the full handle path with a well-formed envelope. withAuth
// controls the bearer header so mutating-method auth can be exercised.
func (env *testEnv) call(t *testing.T, method string, withAuth bool, params ...interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raws := make([]json.RawMessage, 0, len(params))
	for _, param := range params {
		raws = append(raws, marshalParam(t, param))
	}
	body, err := json.Marshal(&RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raws, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return env.post(t, body, withAuth)
}

func (env *testEnv) post(t *testing.T, body []byte, withAuth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+env.token)
	}
	recorder := httptest.NewRecorder()
	env.server.handle(recorder, req)
	return recorder
}

func marshalParam(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal param: %v", err)
	}
	return raw
}

func decodeRPCResponse(t *testing.T, rec *httptest.ResponseRecorder) (json.RawMessage, *RPCError) {
	t.Helper()
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Result, resp.Error
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("unexpected rpc error: code=%d message=%q", rpcErr.Code, rpcErr.Message)
	}
	if err := json.Unmarshal(result, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func expectRPCError(t *testing.T, rec *httptest.ResponseRecorder, status, code int) *RPCError {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected HTTP %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil {
		t.Fatalf("expected rpc error, got success: %s", rec.Body.String())
	}
	if rpcErr.Code != code {
		t.Fatalf("expected rpc code %d, got %d (%s)", code, rpcErr.Code, rpcErr.Message)
	}
	return rpcErr
}
