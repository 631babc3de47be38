package state

import (
	"errors"
	"math/big"
	"testing"

	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/storage"
	"vaultchain/storage/trie"
)

func newTestManager(t *testing.T) (*Manager, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	return NewManager(tr), db
}

func testAddr(b byte) crypto.Address {
	var raw [20]byte
	raw[19] = b
	return crypto.NewAddress(raw[:])
}

func TestLoanOrderRoundTrip(t *testing.T) {
	manager, _ := newTestManager(t)
	order := &types.LoanOrder{
		ID:          types.OrderID{0xAA, 0x01},
		Borrower:    testAddr(0x11),
		Asset:       testAddr(0x22),
		Principal:   big.NewInt(1_000_000),
		Outstanding: big.NewInt(750_000),
		Maturity:    1_700_000_000,
		CreatedAt:   1_690_000_000,
	}
	if err := manager.PutLoanOrder(order); err != nil {
		t.Fatalf("put loan order: %v", err)
	}
	loaded, ok, err := manager.LoanOrder(order.ID)
	if err != nil {
		t.Fatalf("load loan order: %v", err)
	}
	if !ok {
		t.Fatalf("expected order to exist")
	}
	if !loaded.Borrower.Equal(order.Borrower) || !loaded.Asset.Equal(order.Asset) {
		t.Fatalf("addresses did not round trip: %+v", loaded)
	}
	if loaded.Outstanding.Cmp(order.Outstanding) != 0 {
		t.Fatalf("outstanding mismatch: got %s want %s", loaded.Outstanding, order.Outstanding)
	}
	if loaded.Maturity != order.Maturity || loaded.CreatedAt != order.CreatedAt {
		t.Fatalf("timestamps mismatch: %+v", loaded)
	}

	if _, ok, err := manager.LoanOrder(types.OrderID{0xFF}); err != nil || ok {
		t.Fatalf("expected missing order, got ok=%v err=%v", ok, err)
	}
}

func TestLoanOrderRejectsZeroID(t *testing.T) {
	manager, _ := newTestManager(t)
	err := manager.PutLoanOrder(&types.LoanOrder{Borrower: testAddr(1), Asset: testAddr(2)})
	if err == nil {
		t.Fatalf("expected zero order id to be rejected")
	}
}

func TestDebtBalances(t *testing.T) {
	manager, _ := newTestManager(t)
	user := testAddr(0x01)
	asset := testAddr(0x02)

	balance, err := manager.Debt(user, asset)
	if err != nil {
		t.Fatalf("read empty debt: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero default, got %s", balance)
	}

	if err := manager.SetDebt(user, asset, big.NewInt(42)); err != nil {
		t.Fatalf("set debt: %v", err)
	}
	balance, err = manager.Debt(user, asset)
	if err != nil {
		t.Fatalf("read debt: %v", err)
	}
	if balance.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("debt mismatch: got %s", balance)
	}

	if err := manager.SetDebt(user, asset, big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative debt to be rejected")
	}
	overflow := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := manager.SetDebt(user, asset, overflow); err == nil {
		t.Fatalf("expected 2^256 to be rejected")
	}
	if err := manager.SetDebt(user, asset, nil); err != nil {
		t.Fatalf("nil amount should normalize to zero: %v", err)
	}
	balance, err = manager.Debt(user, asset)
	if err != nil {
		t.Fatalf("read zeroed debt: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero after nil write, got %s", balance)
	}
}

func TestCollateralAssetsTrackDepositOrder(t *testing.T) {
	manager, _ := newTestManager(t)
	user := testAddr(0x01)
	first := testAddr(0xA0)
	second := testAddr(0xB0)

	if err := manager.SetCollateral(user, first, big.NewInt(10)); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	if err := manager.SetCollateral(user, second, big.NewInt(20)); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	// Re-touching an asset must not duplicate the list entry.
	if err := manager.SetCollateral(user, first, big.NewInt(15)); err != nil {
		t.Fatalf("update collateral: %v", err)
	}

	assets, err := manager.CollateralAssets(user)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(assets))
	}
	if !assets[0].Equal(first) || !assets[1].Equal(second) {
		t.Fatalf("asset order not preserved: %v", assets)
	}

	balance, err := manager.Collateral(user, first)
	if err != nil {
		t.Fatalf("read collateral: %v", err)
	}
	if balance.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("collateral mismatch: got %s", balance)
	}
}

func TestRoleMembership(t *testing.T) {
	manager, _ := newTestManager(t)
	liquidator := testAddr(0x01)
	other := testAddr(0x02)

	if manager.HasRole("ROLE_LIQUIDATOR", liquidator.Bytes()) {
		t.Fatalf("role should start empty")
	}
	if err := manager.SetRole("ROLE_LIQUIDATOR", liquidator.Bytes()); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	if err := manager.SetRole("ROLE_LIQUIDATOR", liquidator.Bytes()); err != nil {
		t.Fatalf("duplicate grant should be a no-op: %v", err)
	}
	if err := manager.SetRole("ROLE_LIQUIDATOR", other.Bytes()); err != nil {
		t.Fatalf("grant role: %v", err)
	}

	members, err := manager.RoleMembers("ROLE_LIQUIDATOR")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if !manager.HasRole("ROLE_LIQUIDATOR", liquidator.Bytes()) {
		t.Fatalf("expected membership for liquidator")
	}

	if err := manager.UnsetRole("ROLE_LIQUIDATOR", liquidator.Bytes()); err != nil {
		t.Fatalf("revoke role: %v", err)
	}
	if manager.HasRole("ROLE_LIQUIDATOR", liquidator.Bytes()) {
		t.Fatalf("membership should be gone after revoke")
	}
	if !manager.HasRole("ROLE_LIQUIDATOR", other.Bytes()) {
		t.Fatalf("other member should survive revoke")
	}
}

func TestParamStoreRoundTrip(t *testing.T) {
	manager, _ := newTestManager(t)
	payload := []byte(`{"liquidationThreshold":8000}`)

	if _, ok, err := manager.ParamStoreGet("risk"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if err := manager.ParamStoreSet("risk", payload); err != nil {
		t.Fatalf("set param: %v", err)
	}
	stored, ok, err := manager.ParamStoreGet("risk")
	if err != nil {
		t.Fatalf("get param: %v", err)
	}
	if !ok || string(stored) != string(payload) {
		t.Fatalf("param mismatch: ok=%v payload=%s", ok, stored)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	manager, _ := newTestManager(t)
	coordinator := testAddr(0x99)

	if _, ok, err := manager.RegistryGet("settlement"); err != nil || ok {
		t.Fatalf("expected empty registry, got ok=%v err=%v", ok, err)
	}
	if err := manager.RegistrySet("settlement", coordinator); err != nil {
		t.Fatalf("register: %v", err)
	}
	resolved, ok, err := manager.RegistryGet("settlement")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ok || !resolved.Equal(coordinator) {
		t.Fatalf("resolve mismatch: ok=%v addr=%s", ok, resolved)
	}
	if err := manager.RegistrySet("", coordinator); err == nil {
		t.Fatalf("expected empty key rejection")
	}
	if err := manager.RegistrySet("oracle", crypto.Address{}); err == nil {
		t.Fatalf("expected zero address rejection")
	}
}

func TestHealthSnapshotRoundTrip(t *testing.T) {
	manager, _ := newTestManager(t)
	user := testAddr(0x05)

	if _, ok, err := manager.HealthSnapshot(user); err != nil || ok {
		t.Fatalf("expected no snapshot, got ok=%v err=%v", ok, err)
	}
	snapshot := types.HealthSnapshot{HealthFactorBps: 11_500, Valid: true, UpdatedAt: 1_700_000_123}
	if err := manager.SetHealthSnapshot(user, snapshot); err != nil {
		t.Fatalf("set snapshot: %v", err)
	}
	loaded, ok, err := manager.HealthSnapshot(user)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !ok || loaded != snapshot {
		t.Fatalf("snapshot mismatch: ok=%v got=%+v", ok, loaded)
	}
}

func TestPauseFlags(t *testing.T) {
	manager, _ := newTestManager(t)

	if manager.IsPaused("settlement") {
		t.Fatalf("modules start unpaused")
	}
	if err := manager.SetPaused("settlement", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !manager.IsPaused("settlement") {
		t.Fatalf("expected settlement paused")
	}
	if manager.IsPaused("risk") {
		t.Fatalf("pause must be per module")
	}
	if err := manager.SetPaused("settlement", false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if manager.IsPaused("settlement") {
		t.Fatalf("expected settlement unpaused")
	}
}

func TestApprovedImplementation(t *testing.T) {
	manager, _ := newTestManager(t)
	impl := testAddr(0x42)

	if _, ok, err := manager.ApprovedImplementation("settlement"); err != nil || ok {
		t.Fatalf("expected no approval, got ok=%v err=%v", ok, err)
	}
	if err := manager.SetApprovedImplementation("settlement", impl); err != nil {
		t.Fatalf("approve: %v", err)
	}
	approved, ok, err := manager.ApprovedImplementation("settlement")
	if err != nil {
		t.Fatalf("read approval: %v", err)
	}
	if !ok || !approved.Equal(impl) {
		t.Fatalf("approval mismatch: ok=%v addr=%s", ok, approved)
	}
}

func TestReceiptIndex(t *testing.T) {
	manager, _ := newTestManager(t)
	holder := testAddr(0x07)
	loanID := types.OrderID{0xCC}

	if err := manager.PutLoanReceipt(holder, types.LoanReceipt{TokenID: 3, LoanID: loanID, Status: types.ReceiptStatusActive}); err != nil {
		t.Fatalf("put receipt: %v", err)
	}
	if err := manager.PutLoanReceipt(holder, types.LoanReceipt{TokenID: 9, LoanID: types.OrderID{0xDD}, Status: types.ReceiptStatusActive}); err != nil {
		t.Fatalf("put receipt: %v", err)
	}
	// Re-minting the same token must not duplicate the index entry.
	if err := manager.PutLoanReceipt(holder, types.LoanReceipt{TokenID: 3, LoanID: loanID, Status: types.ReceiptStatusActive}); err != nil {
		t.Fatalf("re-put receipt: %v", err)
	}

	tokens, err := manager.UserReceiptTokens(holder)
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != 3 || tokens[1] != 9 {
		t.Fatalf("token index mismatch: %v", tokens)
	}

	receipt, ok, err := manager.LoanReceipt(3)
	if err != nil || !ok {
		t.Fatalf("read receipt: ok=%v err=%v", ok, err)
	}
	if receipt.LoanID != loanID || receipt.Status != types.ReceiptStatusActive {
		t.Fatalf("receipt mismatch: %+v", receipt)
	}

	if err := manager.SetReceiptStatus(3, types.ReceiptStatusRepaid); err != nil {
		t.Fatalf("set status: %v", err)
	}
	receipt, _, err = manager.LoanReceipt(3)
	if err != nil {
		t.Fatalf("reread receipt: %v", err)
	}
	if receipt.Status != types.ReceiptStatusRepaid {
		t.Fatalf("status not updated: %+v", receipt)
	}

	if err := manager.SetReceiptStatus(404, types.ReceiptStatusRepaid); err == nil {
		t.Fatalf("expected unknown token rejection")
	}
}

func TestSnapshotRevertDiscardsWrites(t *testing.T) {
	manager, _ := newTestManager(t)
	user := testAddr(0x01)
	asset := testAddr(0x02)

	if err := manager.SetDebt(user, asset, big.NewInt(100)); err != nil {
		t.Fatalf("seed debt: %v", err)
	}
	id, err := manager.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := manager.SetDebt(user, asset, big.NewInt(999)); err != nil {
		t.Fatalf("speculative write: %v", err)
	}
	if err := manager.SetPaused("settlement", true); err != nil {
		t.Fatalf("speculative pause: %v", err)
	}
	if err := manager.RevertToSnapshot(id); err != nil {
		t.Fatalf("revert: %v", err)
	}

	balance, err := manager.Debt(user, asset)
	if err != nil {
		t.Fatalf("read debt: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("revert did not restore debt: got %s", balance)
	}
	if manager.IsPaused("settlement") {
		t.Fatalf("revert did not restore pause flag")
	}
	if err := manager.RevertToSnapshot(id); err == nil {
		t.Fatalf("snapshot should be consumed by revert")
	}
}

func TestSnapshotDiscardKeepsWrites(t *testing.T) {
	manager, _ := newTestManager(t)
	user := testAddr(0x01)
	asset := testAddr(0x02)

	id, err := manager.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := manager.SetDebt(user, asset, big.NewInt(55)); err != nil {
		t.Fatalf("write: %v", err)
	}
	manager.DiscardSnapshot(id)

	balance, err := manager.Debt(user, asset)
	if err != nil {
		t.Fatalf("read debt: %v", err)
	}
	if balance.Cmp(big.NewInt(55)) != 0 {
		t.Fatalf("discard must keep writes: got %s", balance)
	}
}

func TestCommitAndReload(t *testing.T) {
	db := storage.NewMemDB()
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	manager := NewManager(tr)

	empty, err := manager.Empty()
	if err != nil {
		t.Fatalf("empty check: %v", err)
	}
	if !empty {
		t.Fatalf("fresh store should report empty")
	}

	user := testAddr(0x01)
	asset := testAddr(0x02)
	if err := manager.SetDebt(user, asset, big.NewInt(777)); err != nil {
		t.Fatalf("set debt: %v", err)
	}
	if err := manager.SetRole("ROLE_ADMIN", user.Bytes()); err != nil {
		t.Fatalf("set role: %v", err)
	}
	root, err := manager.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(root) == 0 {
		t.Fatalf("commit returned empty root")
	}

	reloaded, err := LoadManager(db)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	empty, err = reloaded.Empty()
	if err != nil {
		t.Fatalf("empty check: %v", err)
	}
	if empty {
		t.Fatalf("committed store should not report empty")
	}
	balance, err := reloaded.Debt(user, asset)
	if err != nil {
		t.Fatalf("read debt after reload: %v", err)
	}
	if balance.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("debt lost across reload: got %s", balance)
	}
	if !reloaded.HasRole("ROLE_ADMIN", user.Bytes()) {
		t.Fatalf("role lost across reload")
	}
	if reloaded.version != 1 {
		t.Fatalf("version not restored: got %d", reloaded.version)
	}
}

func TestEnsureSchemaVersion(t *testing.T) {
	manager, _ := newTestManager(t)

	if err := EnsureSchemaVersion(manager, false); err != nil {
		t.Fatalf("fresh state should be stamped: %v", err)
	}
	version, ok, err := manager.SchemaVersion()
	if err != nil || !ok {
		t.Fatalf("read version: ok=%v err=%v", ok, err)
	}
	if version != SchemaVersion {
		t.Fatalf("unexpected version %d", version)
	}

	if err := manager.SetSchemaVersion(SchemaVersion + 1); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := EnsureSchemaVersion(manager, false); !errors.Is(err, ErrSchemaVersionMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := EnsureSchemaVersion(manager, true); err != nil {
		t.Fatalf("migration mode should tolerate mismatch: %v", err)
	}
}
