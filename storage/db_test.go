package storage

import (
	"errors"
	"testing"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("root"), []byte{0x01, 0x02}); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("root"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(value) != 2 || value[0] != 0x01 {
		t.Fatalf("unexpected value %x", value)
	}
	ok, err := db.Has([]byte("root"))
	if err != nil || !ok {
		t.Fatalf("has: ok=%v err=%v", ok, err)
	}
	if err := db.Delete([]byte("root")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("root")); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	original := []byte{0xaa}
	if err := db.Put([]byte("k"), original); err != nil {
		t.Fatalf("put: %v", err)
	}
	original[0] = 0xbb
	stored, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored[0] != 0xaa {
		t.Fatal("stored value must not alias the caller's slice")
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()

	if _, err := db.Get([]byte("absent")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("state-root"), []byte{0xde, 0xad}); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("state-root"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(value) != 2 || value[1] != 0xad {
		t.Fatalf("unexpected value %x", value)
	}
	if db.TrieDB() == nil {
		t.Fatal("trie database handle must be available")
	}
}
