package state

import (
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/rlp"
)

// SchemaVersion identifies the expected layout of the persisted settlement
// state. Increment whenever a breaking change is made to a stored record.
const SchemaVersion uint32 = 1

var (
	schemaVersionPrefix = []byte("schema:version")
	// ErrSchemaVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrSchemaVersionMismatch = errors.New("state: schema version mismatch")
)

// SetSchemaVersion records the provided schema version in state. Callers
// invoke this after applying any required migrations.
func (m *Manager) SetSchemaVersion(version uint32) error {
	encoded, err := rlp.EncodeToBytes(uint64(version))
	if err != nil {
		return err
	}
	return m.trie.Update(prefixedKey(schemaVersionPrefix), encoded)
}

// SchemaVersion returns the stored schema version and whether it was present.
func (m *Manager) SchemaVersion() (uint32, bool, error) {
	data, err := m.trie.Get(prefixedKey(schemaVersionPrefix))
	if err != nil {
		return 0, false, err
	}
	if len(data) == 0 {
		return 0, false, nil
	}
	var stored uint64
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return 0, false, err
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureSchemaVersion verifies the persisted schema version matches the one
// supported by this binary. A fresh store is stamped with the current
// version. When allowMigrate is true mismatches are tolerated so operators
// can run manual migrations.
func EnsureSchemaVersion(m *Manager, allowMigrate bool) error {
	if m == nil {
		return fmt.Errorf("state: manager must not be nil")
	}
	version, ok, err := m.SchemaVersion()
	if err != nil {
		return err
	}
	if !ok {
		return m.SetSchemaVersion(SchemaVersion)
	}
	if version == SchemaVersion {
		return nil
	}
	if allowMigrate {
		return nil
	}
	return fmt.Errorf("%w: on-disk=%d expected=%d", ErrSchemaVersionMismatch, version, SchemaVersion)
}
