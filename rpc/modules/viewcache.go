package modules

import (
	"encoding/json"
	"strconv"

	"vaultchain/core"
)

// ViewCacheModule exposes cached health snapshots.
type ViewCacheModule struct {
	node *core.Node
}

// NewViewCacheModule constructs the view-cache RPC gateway.
func NewViewCacheModule(node *core.Node) *ViewCacheModule {
	return &ViewCacheModule{node: node}
}

type invalidateParams struct {
	Caller string `json:"caller"`
	User   string `json:"user"`
}

// HealthSnapshotResult is a cached health snapshot in transport form. The
// health factor travels as a decimal string because the no-debt sentinel
// exceeds the safe JSON integer range.
type HealthSnapshotResult struct {
	User            string `json:"user"`
	Found           bool   `json:"found"`
	HealthFactorBps string `json:"healthFactorBps,omitempty"`
	Valid           bool   `json:"valid"`
	UpdatedAt       uint64 `json:"updatedAt,omitempty"`
}

// InvalidateResult names the snapshot that was dropped.
type InvalidateResult struct {
	User   string `json:"user"`
	Status string `json:"status"`
}

// Snapshot reads the cached health snapshot for a user, if one exists.
func (m *ViewCacheModule) Snapshot(raw json.RawMessage) (*HealthSnapshotResult, *ModuleError) {
	var params userParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	user, modErr := parseAddress("user", params.User)
	if modErr != nil {
		return nil, modErr
	}
	result := &HealthSnapshotResult{User: user.String()}
	queryErr := m.node.Query(func() error {
		snapshot, ok, err := m.node.ViewCache().Snapshot(user)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		result.Found = true
		result.HealthFactorBps = strconv.FormatUint(snapshot.HealthFactorBps, 10)
		result.Valid = snapshot.Valid
		result.UpdatedAt = snapshot.UpdatedAt
		return nil
	})
	if queryErr != nil {
		return nil, classify(queryErr)
	}
	return result, nil
}

// Invalidate drops a user's cached snapshot. Cache maintainers only.
func (m *ViewCacheModule) Invalidate(raw json.RawMessage) (*InvalidateResult, *ModuleError) {
	var params invalidateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	user, modErr := parseAddress("user", params.User)
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.ViewCache().Invalidate(caller, user)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &InvalidateResult{User: user.String(), Status: "invalidated"}, nil
}
