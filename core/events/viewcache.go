package events

import (
	"vaultchain/core/types"
	"vaultchain/crypto"
)

const (
	// TypeViewCacheSnapshotInvalidated is emitted when a maintenance caller
	// marks a user's health snapshot invalid.
	TypeViewCacheSnapshotInvalidated = "viewcache.snapshot.invalidated"
	// TypeViewCacheSnapshotUpdated is emitted when a push refreshes a
	// user's health snapshot.
	TypeViewCacheSnapshotUpdated = "viewcache.snapshot.updated"
)

// ViewCacheSnapshotInvalidated records a manual snapshot invalidation.
type ViewCacheSnapshotInvalidated struct {
	Subject   crypto.Address `json:"subject"`
	Caller    crypto.Address `json:"caller"`
	Timestamp uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (ViewCacheSnapshotInvalidated) EventType() string { return TypeViewCacheSnapshotInvalidated }

// Event converts the invalidation to the generic event payload.
func (e ViewCacheSnapshotInvalidated) Event() *types.Event {
	return &types.Event{
		Type: TypeViewCacheSnapshotInvalidated,
		Attributes: map[string]string{
			"subject":   e.Subject.String(),
			"caller":    e.Caller.String(),
			"timestamp": uintString(e.Timestamp),
		},
	}
}

// ViewCacheSnapshotUpdated records a refreshed health snapshot.
type ViewCacheSnapshotUpdated struct {
	Subject         crypto.Address `json:"subject"`
	HealthFactorBps uint64         `json:"healthFactorBps"`
	Valid           bool           `json:"valid"`
	Timestamp       uint64         `json:"timestamp"`
}

// EventType implements the Event interface.
func (ViewCacheSnapshotUpdated) EventType() string { return TypeViewCacheSnapshotUpdated }

// Event converts the snapshot refresh to the generic event payload.
func (e ViewCacheSnapshotUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeViewCacheSnapshotUpdated,
		Attributes: map[string]string{
			"subject":           e.Subject.String(),
			"health_factor_bps": uintString(e.HealthFactorBps),
			"valid":             boolString(e.Valid),
			"timestamp":         uintString(e.Timestamp),
		},
	}
}
