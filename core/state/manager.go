package state

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/storage"
	"vaultchain/storage/trie"
)

var (
	stateRootMetaKey    = []byte("state-root")
	stateVersionMetaKey = []byte("state-version")

	loanOrderPrefix        = []byte("loan-order:")
	loanOrdersByUserPrefix = []byte("loan-orders-by-user:")
	debtPrefix             = []byte("debt:")
	debtAssetsPrefix       = []byte("debt-assets:")
	collateralPrefix       = []byte("collateral:")
	collateralAssetsPrefix = []byte("collateral-assets:")
	tokenBalancePrefix     = []byte("token-balance:")
	rolePrefix             = []byte("role:")
	paramPrefix            = []byte("param:")
	registryPrefix         = []byte("registry:")
	healthPrefix           = []byte("health:")
	pausePrefix            = []byte("pause:")
	upgradePrefix          = []byte("upgrade:")
	receiptPrefix          = []byte("receipt:")
	receiptTokensPrefix    = []byte("receipt-tokens:")
	receiptSeqKeyRaw       = []byte("receipt-seq")
)

// Manager reads and writes settlement state through a keccak-keyed trie.
// It implements the narrow state interfaces the native engines declare.
//
// Manager is not safe for concurrent use; the RPC layer serializes mutating
// calls, matching the transactional execution model of the system.
type Manager struct {
	trie      *trie.Trie
	store     storage.Database
	version   uint64
	snapshots []*trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr, store: tr.Store()}
}

// LoadManager opens the manager at the last committed root recorded in the
// backing store, or at the empty trie when no root has been committed yet.
func LoadManager(db storage.Database) (*Manager, error) {
	var root []byte
	if ok, err := db.Has(stateRootMetaKey); err != nil {
		return nil, err
	} else if ok {
		stored, err := db.Get(stateRootMetaKey)
		if err != nil {
			return nil, err
		}
		root = stored
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, err
	}
	manager := NewManager(tr)
	if ok, err := db.Has(stateVersionMetaKey); err != nil {
		return nil, err
	} else if ok {
		raw, err := db.Get(stateVersionMetaKey)
		if err != nil {
			return nil, err
		}
		if len(raw) == 8 {
			manager.version = binary.BigEndian.Uint64(raw)
		}
	}
	return manager, nil
}

// Empty reports whether any state has ever been committed. Used by the
// genesis bootstrap to decide whether to apply the seed document.
func (m *Manager) Empty() (bool, error) {
	ok, err := m.store.Has(stateRootMetaKey)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

// checkedAmount normalizes nil to zero and rejects negative values and
// values that do not fit in 256 bits, mirroring the ledger's word size.
func checkedAmount(amount *big.Int) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("state: negative amount not allowed")
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return nil, fmt.Errorf("state: amount overflows 256 bits")
	}
	return amount, nil
}

func (m *Manager) readAmount(key []byte) (*big.Int, error) {
	data, err := m.trie.Get(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (m *Manager) writeAmount(key []byte, amount *big.Int) error {
	normalized, err := checkedAmount(amount)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(normalized)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

// --- Loan orders ---

type storedLoanOrder struct {
	ID          [32]byte
	Borrower    [20]byte
	Asset       [20]byte
	Principal   *big.Int
	Outstanding *big.Int
	Maturity    uint64
	CreatedAt   uint64
}

// PutLoanOrder stores the canonical record for an order id.
func (m *Manager) PutLoanOrder(order *types.LoanOrder) error {
	if order == nil {
		return fmt.Errorf("state: nil loan order")
	}
	if order.ID.IsZero() {
		return fmt.Errorf("state: loan order id must not be zero")
	}
	principal, err := checkedAmount(order.Principal)
	if err != nil {
		return err
	}
	outstanding, err := checkedAmount(order.Outstanding)
	if err != nil {
		return err
	}
	stored := storedLoanOrder{
		ID:          order.ID,
		Borrower:    order.Borrower.Array(),
		Asset:       order.Asset.Array(),
		Principal:   principal,
		Outstanding: outstanding,
		Maturity:    order.Maturity,
		CreatedAt:   order.CreatedAt,
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	if err := m.trie.Update(prefixedKey(loanOrderPrefix, order.ID[:]), encoded); err != nil {
		return err
	}
	return m.appendUserLoanOrder(order.Borrower, order.ID)
}

func (m *Manager) appendUserLoanOrder(borrower crypto.Address, id types.OrderID) error {
	key := prefixedKey(loanOrdersByUserPrefix, borrower.Bytes())
	data, err := m.trie.Get(key)
	if err != nil {
		return err
	}
	var ids [][32]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &ids); err != nil {
			return err
		}
	}
	for _, existing := range ids {
		if existing == [32]byte(id) {
			return nil
		}
	}
	ids = append(ids, id)
	encoded, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

// UserLoanOrders lists a borrower's order ids in creation order.
func (m *Manager) UserLoanOrders(borrower crypto.Address) ([]types.OrderID, error) {
	data, err := m.trie.Get(prefixedKey(loanOrdersByUserPrefix, borrower.Bytes()))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []types.OrderID{}, nil
	}
	var raw [][32]byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	ids := make([]types.OrderID, 0, len(raw))
	for _, entry := range raw {
		ids = append(ids, types.OrderID(entry))
	}
	return ids, nil
}

// LoanOrder retrieves the canonical record for an order id.
func (m *Manager) LoanOrder(id types.OrderID) (*types.LoanOrder, bool, error) {
	data, err := m.trie.Get(prefixedKey(loanOrderPrefix, id[:]))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	stored := new(storedLoanOrder)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, err
	}
	order := &types.LoanOrder{
		ID:          stored.ID,
		Borrower:    crypto.NewAddress(stored.Borrower[:]),
		Asset:       crypto.NewAddress(stored.Asset[:]),
		Principal:   stored.Principal,
		Outstanding: stored.Outstanding,
		Maturity:    stored.Maturity,
		CreatedAt:   stored.CreatedAt,
	}
	if order.Principal == nil {
		order.Principal = big.NewInt(0)
	}
	if order.Outstanding == nil {
		order.Outstanding = big.NewInt(0)
	}
	return order, true, nil
}

// --- Debt balances ---

// SetDebt stores a user's outstanding debt for an asset and records the
// asset in the user's debt asset list on first touch. List order is the
// borrow order and is preserved for the lifetime of the account.
func (m *Manager) SetDebt(user, asset crypto.Address, amount *big.Int) error {
	if user.IsZero() || asset.IsZero() {
		return fmt.Errorf("state: debt requires non-zero user and asset")
	}
	if err := m.writeAmount(prefixedKey(debtPrefix, asset.Bytes(), user.Bytes()), amount); err != nil {
		return err
	}
	return m.appendAddressList(prefixedKey(debtAssetsPrefix, user.Bytes()), asset)
}

// Debt retrieves a user's outstanding debt for an asset.
func (m *Manager) Debt(user, asset crypto.Address) (*big.Int, error) {
	return m.readAmount(prefixedKey(debtPrefix, asset.Bytes(), user.Bytes()))
}

// DebtAssets returns the user's debt assets in borrow order.
func (m *Manager) DebtAssets(user crypto.Address) ([]crypto.Address, error) {
	return m.readAddressList(prefixedKey(debtAssetsPrefix, user.Bytes()))
}

// --- Collateral balances ---

// SetCollateral stores a user's collateral balance for an asset and records
// the asset in the user's asset list on first touch. List order is the
// deposit order and is preserved for the lifetime of the account.
func (m *Manager) SetCollateral(user, asset crypto.Address, amount *big.Int) error {
	if user.IsZero() || asset.IsZero() {
		return fmt.Errorf("state: collateral requires non-zero user and asset")
	}
	if err := m.writeAmount(prefixedKey(collateralPrefix, asset.Bytes(), user.Bytes()), amount); err != nil {
		return err
	}
	return m.appendAddressList(prefixedKey(collateralAssetsPrefix, user.Bytes()), asset)
}

// Collateral retrieves a user's collateral balance for an asset.
func (m *Manager) Collateral(user, asset crypto.Address) (*big.Int, error) {
	return m.readAmount(prefixedKey(collateralPrefix, asset.Bytes(), user.Bytes()))
}

// CollateralAssets returns the user's collateral assets in deposit order.
func (m *Manager) CollateralAssets(user crypto.Address) ([]crypto.Address, error) {
	return m.readAddressList(prefixedKey(collateralAssetsPrefix, user.Bytes()))
}

// --- Token balances ---

// SetTokenBalance stores an account's free balance for an asset. Free
// balances hold tokens outside collateral custody; liquidation payouts and
// repayment releases credit them.
func (m *Manager) SetTokenBalance(holder, asset crypto.Address, amount *big.Int) error {
	if holder.IsZero() || asset.IsZero() {
		return fmt.Errorf("state: token balance requires non-zero holder and asset")
	}
	return m.writeAmount(prefixedKey(tokenBalancePrefix, asset.Bytes(), holder.Bytes()), amount)
}

// TokenBalance retrieves an account's free balance for an asset.
func (m *Manager) TokenBalance(holder, asset crypto.Address) (*big.Int, error) {
	return m.readAmount(prefixedKey(tokenBalancePrefix, asset.Bytes(), holder.Bytes()))
}

func (m *Manager) appendAddressList(key []byte, addr crypto.Address) error {
	data, err := m.trie.Get(key)
	if err != nil {
		return err
	}
	var members [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &members); err != nil {
			return err
		}
	}
	target := addr.Bytes()
	for _, existing := range members {
		if bytes.Equal(existing, target) {
			return nil
		}
	}
	members = append(members, target)
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

func (m *Manager) readAddressList(key []byte) ([]crypto.Address, error) {
	data, err := m.trie.Get(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []crypto.Address{}, nil
	}
	var raw [][]byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	members := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		addr, err := crypto.AddressFromBytes(entry)
		if err != nil {
			return nil, err
		}
		members = append(members, addr)
	}
	return members, nil
}

// --- Roles ---

// SetRole associates an address with the specified role. Duplicate grants
// are ignored while the stored member list stays sorted for determinism.
func (m *Manager) SetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("state: role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	key := prefixedKey(rolePrefix, []byte(trimmed))
	members, err := m.roleMembers(key)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool {
		return hex.EncodeToString(members[i]) < hex.EncodeToString(members[j])
	})
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

// UnsetRole removes an address from the specified role. Removing an absent
// member is a no-op.
func (m *Manager) UnsetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("state: role must not be empty")
	}
	key := prefixedKey(rolePrefix, []byte(trimmed))
	members, err := m.roleMembers(key)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, existing := range members {
		if !bytes.Equal(existing, addr) {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == 0 {
		return m.trie.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(filtered)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

func (m *Manager) roleMembers(key []byte) ([][]byte, error) {
	data, err := m.trie.Get(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// RoleMembers returns all addresses assigned to the provided role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	return m.roleMembers(prefixedKey(rolePrefix, []byte(strings.TrimSpace(role))))
}

// HasRole reports whether the provided address holds the specified role.
// Read errors report false, matching the best-effort semantics required by
// the role-gated callers.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := m.roleMembers(prefixedKey(rolePrefix, []byte(strings.TrimSpace(role))))
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// --- Governance parameters ---

// ParamStoreSet persists a raw parameter payload under a canonical name.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("state: parameter name must not be empty")
	}
	return m.trie.Update(prefixedKey(paramPrefix, []byte(trimmed)), value)
}

// ParamStoreGet retrieves a raw parameter payload.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	data, err := m.trie.Get(prefixedKey(paramPrefix, []byte(strings.TrimSpace(name))))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

// --- Module registry ---

// RegistrySet binds a module key to an address.
func (m *Manager) RegistrySet(key string, addr crypto.Address) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("state: registry key must not be empty")
	}
	if addr.IsZero() {
		return fmt.Errorf("state: registry address must not be zero")
	}
	return m.trie.Update(prefixedKey(registryPrefix, []byte(trimmed)), addr.Bytes())
}

// RegistryGet resolves a module key to its registered address.
func (m *Manager) RegistryGet(key string) (crypto.Address, bool, error) {
	data, err := m.trie.Get(prefixedKey(registryPrefix, []byte(strings.TrimSpace(key))))
	if err != nil {
		return crypto.Address{}, false, err
	}
	if len(data) == 0 {
		return crypto.Address{}, false, nil
	}
	addr, err := crypto.AddressFromBytes(data)
	if err != nil {
		return crypto.Address{}, false, err
	}
	return addr, true, nil
}

// --- Health snapshots ---

type storedHealthSnapshot struct {
	HealthFactorBps uint64
	Valid           bool
	UpdatedAt       uint64
}

// SetHealthSnapshot stores a user's last computed health factor.
func (m *Manager) SetHealthSnapshot(user crypto.Address, snapshot types.HealthSnapshot) error {
	if user.IsZero() {
		return fmt.Errorf("state: health snapshot requires a non-zero user")
	}
	stored := storedHealthSnapshot{
		HealthFactorBps: snapshot.HealthFactorBps,
		Valid:           snapshot.Valid,
		UpdatedAt:       snapshot.UpdatedAt,
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	return m.trie.Update(prefixedKey(healthPrefix, user.Bytes()), encoded)
}

// HealthSnapshot retrieves a user's cached health factor.
func (m *Manager) HealthSnapshot(user crypto.Address) (types.HealthSnapshot, bool, error) {
	data, err := m.trie.Get(prefixedKey(healthPrefix, user.Bytes()))
	if err != nil {
		return types.HealthSnapshot{}, false, err
	}
	if len(data) == 0 {
		return types.HealthSnapshot{}, false, nil
	}
	stored := new(storedHealthSnapshot)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return types.HealthSnapshot{}, false, err
	}
	return types.HealthSnapshot{
		HealthFactorBps: stored.HealthFactorBps,
		Valid:           stored.Valid,
		UpdatedAt:       stored.UpdatedAt,
	}, true, nil
}

// --- Pause flags ---

// SetPaused flips a module's pause flag.
func (m *Manager) SetPaused(module string, paused bool) error {
	trimmed := strings.TrimSpace(module)
	if trimmed == "" {
		return fmt.Errorf("state: module name must not be empty")
	}
	key := prefixedKey(pausePrefix, []byte(trimmed))
	if paused {
		return m.trie.Update(key, []byte{1})
	}
	return m.trie.Delete(key)
}

// IsPaused reports whether a module is paused. Read errors report false so
// a degraded state read never wedges the module shut.
func (m *Manager) IsPaused(module string) bool {
	data, err := m.trie.Get(prefixedKey(pausePrefix, []byte(strings.TrimSpace(module))))
	if err != nil {
		return false
	}
	return len(data) == 1 && data[0] == 1
}

// --- Approved upgrades ---

// SetApprovedImplementation records the implementation address authorized
// for a module upgrade.
func (m *Manager) SetApprovedImplementation(module string, impl crypto.Address) error {
	trimmed := strings.TrimSpace(module)
	if trimmed == "" {
		return fmt.Errorf("state: module name must not be empty")
	}
	if impl.IsZero() {
		return fmt.Errorf("state: implementation address must not be zero")
	}
	return m.trie.Update(prefixedKey(upgradePrefix, []byte(trimmed)), impl.Bytes())
}

// ApprovedImplementation returns the recorded upgrade approval, if any.
func (m *Manager) ApprovedImplementation(module string) (crypto.Address, bool, error) {
	data, err := m.trie.Get(prefixedKey(upgradePrefix, []byte(strings.TrimSpace(module))))
	if err != nil {
		return crypto.Address{}, false, err
	}
	if len(data) == 0 {
		return crypto.Address{}, false, nil
	}
	addr, err := crypto.AddressFromBytes(data)
	if err != nil {
		return crypto.Address{}, false, err
	}
	return addr, true, nil
}

// --- Loan receipts ---

type storedReceipt struct {
	LoanID [32]byte
	Status string
}

// PutLoanReceipt stores receipt metadata and indexes the token under its
// holder.
func (m *Manager) PutLoanReceipt(holder crypto.Address, receipt types.LoanReceipt) error {
	if holder.IsZero() {
		return fmt.Errorf("state: receipt holder must not be zero")
	}
	stored := storedReceipt{LoanID: receipt.LoanID, Status: string(receipt.Status)}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	var tokenKey [8]byte
	binary.BigEndian.PutUint64(tokenKey[:], receipt.TokenID)
	if err := m.trie.Update(prefixedKey(receiptPrefix, tokenKey[:]), encoded); err != nil {
		return err
	}
	listKey := prefixedKey(receiptTokensPrefix, holder.Bytes())
	data, err := m.trie.Get(listKey)
	if err != nil {
		return err
	}
	var tokens []uint64
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &tokens); err != nil {
			return err
		}
	}
	for _, existing := range tokens {
		if existing == receipt.TokenID {
			return nil
		}
	}
	tokens = append(tokens, receipt.TokenID)
	encodedList, err := rlp.EncodeToBytes(tokens)
	if err != nil {
		return err
	}
	return m.trie.Update(listKey, encodedList)
}

// UserReceiptTokens lists a holder's receipt token ids in mint order.
func (m *Manager) UserReceiptTokens(holder crypto.Address) ([]uint64, error) {
	data, err := m.trie.Get(prefixedKey(receiptTokensPrefix, holder.Bytes()))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []uint64{}, nil
	}
	var tokens []uint64
	if err := rlp.DecodeBytes(data, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// LoanReceipt retrieves receipt metadata for a token id.
func (m *Manager) LoanReceipt(tokenID uint64) (types.LoanReceipt, bool, error) {
	var tokenKey [8]byte
	binary.BigEndian.PutUint64(tokenKey[:], tokenID)
	data, err := m.trie.Get(prefixedKey(receiptPrefix, tokenKey[:]))
	if err != nil {
		return types.LoanReceipt{}, false, err
	}
	if len(data) == 0 {
		return types.LoanReceipt{}, false, nil
	}
	stored := new(storedReceipt)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return types.LoanReceipt{}, false, err
	}
	return types.LoanReceipt{
		TokenID: tokenID,
		LoanID:  stored.LoanID,
		Status:  types.ReceiptStatus(stored.Status),
	}, true, nil
}

// NextReceiptToken allocates the next receipt token id. Ids start at 1 so a
// zero id can signal "no token" in scan results.
func (m *Manager) NextReceiptToken() (uint64, error) {
	key := prefixedKey(receiptSeqKeyRaw)
	data, err := m.trie.Get(key)
	if err != nil {
		return 0, err
	}
	var next uint64 = 1
	if len(data) == 8 {
		next = binary.BigEndian.Uint64(data) + 1
	}
	var encoded [8]byte
	binary.BigEndian.PutUint64(encoded[:], next)
	if err := m.trie.Update(key, encoded[:]); err != nil {
		return 0, err
	}
	return next, nil
}

// SetReceiptStatus updates the status of an existing receipt.
func (m *Manager) SetReceiptStatus(tokenID uint64, status types.ReceiptStatus) error {
	receipt, ok, err := m.LoanReceipt(tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: receipt %d not found", tokenID)
	}
	stored := storedReceipt{LoanID: receipt.LoanID, Status: string(status)}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	var tokenKey [8]byte
	binary.BigEndian.PutUint64(tokenKey[:], tokenID)
	return m.trie.Update(prefixedKey(receiptPrefix, tokenKey[:]), encoded)
}

// --- Snapshots & commits ---

// Snapshot captures the current in-memory state and returns an identifier
// for a later revert. Speculative writes between Snapshot and
// RevertToSnapshot are discarded by the revert.
func (m *Manager) Snapshot() (int, error) {
	copied, err := m.trie.Copy()
	if err != nil {
		return 0, err
	}
	m.snapshots = append(m.snapshots, copied)
	return len(m.snapshots) - 1, nil
}

// RevertToSnapshot restores the state captured by Snapshot and discards the
// identified snapshot along with any later ones.
func (m *Manager) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(m.snapshots) {
		return fmt.Errorf("state: unknown snapshot %d", id)
	}
	m.trie = m.snapshots[id]
	m.snapshots = m.snapshots[:id]
	return nil
}

// DiscardSnapshot drops the identified snapshot and any later ones without
// reverting.
func (m *Manager) DiscardSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.snapshots = m.snapshots[:id]
}

// Commit persists all pending writes and records the new root in the
// backing store's metadata space.
func (m *Manager) Commit() ([]byte, error) {
	parent := m.trie.Root()
	m.version++
	root, err := m.trie.Commit(parent, m.version)
	if err != nil {
		return nil, err
	}
	if err := m.store.Put(stateRootMetaKey, root.Bytes()); err != nil {
		return nil, err
	}
	var versionBytes [8]byte
	binary.BigEndian.PutUint64(versionBytes[:], m.version)
	if err := m.store.Put(stateVersionMetaKey, versionBytes[:]); err != nil {
		return nil, err
	}
	m.snapshots = m.snapshots[:0]
	return root.Bytes(), nil
}
