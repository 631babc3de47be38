package storage

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// ErrNotFound is returned when a key is absent from the metadata store.
var ErrNotFound = errors.New("storage: key not found")

// Database is the key-value store backing settlement state. The plain
// Put/Get surface holds node metadata (current state root, schema markers);
// TrieDB exposes the handle ledger state is committed through.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	TrieDB() *triedb.Database
	Close()
}

// --- In-memory database ---

// MemDB keeps metadata in a map and trie nodes in an ephemeral geth memory
// database. Used by tests and the daemon's --ephemeral mode.
type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	return &MemDB{
		data:   make(map[string][]byte),
		trieDB: triedb.NewDatabase(rawdb.NewMemoryDatabase(), triedb.HashDefaults),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	db.data[string(key)] = stored
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) TrieDB() *triedb.Database {
	return db.trieDB
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	_ = db.trieDB.Close()
}

// --- Persistent database ---

// LevelDB persists metadata and trie nodes in two LevelDB stores under the
// same data directory: <path>/meta for the plain key-value surface and
// <path>/state for trie nodes.
type LevelDB struct {
	meta    *leveldb.DB
	stateKV ethdb.Database
	trieDB  *triedb.Database
}

// NewLevelDB creates or opens the databases rooted at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	meta, err := leveldb.OpenFile(filepath.Join(path, "meta"), nil)
	if err != nil {
		return nil, err
	}
	stateStore, err := ethleveldb.New(filepath.Join(path, "state"), 128, 1024, "vault/db/state", false)
	if err != nil {
		meta.Close()
		return nil, err
	}
	stateKV := rawdb.NewDatabase(stateStore)
	return &LevelDB{
		meta:    meta,
		stateKV: stateKV,
		trieDB:  triedb.NewDatabase(stateKV, triedb.HashDefaults),
	}, nil
}

// Put inserts or updates a metadata key.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.meta.Put(key, value, nil)
}

// Get retrieves a metadata value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.meta.Get(key, nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Has reports whether a metadata key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.meta.Has(key, nil)
}

// Delete removes a metadata key.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.meta.Delete(key, nil)
}

func (ldb *LevelDB) TrieDB() *triedb.Database {
	return ldb.trieDB
}

// Close closes both underlying stores.
func (ldb *LevelDB) Close() {
	_ = ldb.trieDB.Close()
	_ = ldb.stateKV.Close()
	_ = ldb.meta.Close()
}
