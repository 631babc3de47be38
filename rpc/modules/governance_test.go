package modules

import (
	"net/http"
	"testing"

	"vaultchain/native/access"
	"vaultchain/native/registry"
)

func TestRegistryResolveNormalizesKey(t *testing.T) {
	node := newTestNode(t)
	gateway := NewRegistryModule(node)

	result, modErr := gateway.Resolve(rawParams(t, map[string]string{"key": "  Vault-Core  "}))
	if modErr != nil {
		t.Fatalf("resolve: %v", modErr)
	}
	if result.Key != registry.KeyVaultCore {
		t.Fatalf("expected normalized key, got %q", result.Key)
	}
	if result.Address != coreAddr.String() {
		t.Fatalf("expected %s, got %q", coreAddr, result.Address)
	}
}

func TestRegistryResolveUnregisteredKey(t *testing.T) {
	node := newTestNode(t)
	gateway := NewRegistryModule(node)

	_, modErr := gateway.Resolve(rawParams(t, map[string]string{"key": registry.KeyDebtLedger}))
	expectModuleError(t, modErr, http.StatusNotFound, codeInvalidParams)
}

func TestRegistryResolveInvalidKey(t *testing.T) {
	node := newTestNode(t)
	gateway := NewRegistryModule(node)

	_, modErr := gateway.Resolve(rawParams(t, map[string]string{"key": "bogus key!"}))
	expectModuleError(t, modErr, http.StatusBadRequest, codeInvalidParams)
}

func TestRegistryRegisterRequiresAdmin(t *testing.T) {
	node := newTestNode(t)
	gateway := NewRegistryModule(node)
	cacheModule := testAddr(0x30)

	_, modErr := gateway.Register(rawParams(t, map[string]string{
		"caller":  keeperAddr.String(),
		"key":     registry.KeyViewCache,
		"address": cacheModule.String(),
	}))
	expectModuleError(t, modErr, http.StatusForbidden, codeUnauthorized)

	result, modErr := gateway.Register(rawParams(t, map[string]string{
		"caller":  adminAddr.String(),
		"key":     registry.KeyViewCache,
		"address": cacheModule.String(),
	}))
	if modErr != nil {
		t.Fatalf("register: %v", modErr)
	}
	if result.Key != registry.KeyViewCache || result.Address != cacheModule.String() {
		t.Fatalf("unexpected echo %+v", result)
	}

	resolved, modErr := gateway.Resolve(rawParams(t, map[string]string{"key": registry.KeyViewCache}))
	if modErr != nil {
		t.Fatalf("resolve after register: %v", modErr)
	}
	if resolved.Address != cacheModule.String() {
		t.Fatalf("expected %s, got %q", cacheModule, resolved.Address)
	}
}

func TestAccessGrantHasRevokeFlow(t *testing.T) {
	node := newTestNode(t)
	gateway := NewAccessModule(node)
	grantee := testAddr(0x31)

	granted, modErr := gateway.GrantRole(rawParams(t, map[string]string{
		"caller":  adminAddr.String(),
		"role":    access.RoleLiquidator,
		"grantee": grantee.String(),
	}))
	if modErr != nil {
		t.Fatalf("grant: %v", modErr)
	}
	if !granted.Held {
		t.Fatalf("expected held after grant")
	}

	held, modErr := gateway.HasRole(rawParams(t, map[string]string{
		"role":    access.RoleLiquidator,
		"address": grantee.String(),
	}))
	if modErr != nil {
		t.Fatalf("has role: %v", modErr)
	}
	if !held.Held {
		t.Fatalf("expected role held after grant")
	}

	revoked, modErr := gateway.RevokeRole(rawParams(t, map[string]string{
		"caller":  adminAddr.String(),
		"role":    access.RoleLiquidator,
		"grantee": grantee.String(),
	}))
	if modErr != nil {
		t.Fatalf("revoke: %v", modErr)
	}
	if revoked.Held {
		t.Fatalf("expected held=false after revoke")
	}

	held, modErr = gateway.HasRole(rawParams(t, map[string]string{
		"role":    access.RoleLiquidator,
		"address": grantee.String(),
	}))
	if modErr != nil {
		t.Fatalf("has role after revoke: %v", modErr)
	}
	if held.Held {
		t.Fatalf("expected role cleared after revoke")
	}
}

func TestAccessGrantRequiresAdmin(t *testing.T) {
	node := newTestNode(t)
	gateway := NewAccessModule(node)

	_, modErr := gateway.GrantRole(rawParams(t, map[string]string{
		"caller":  keeperAddr.String(),
		"role":    access.RoleLiquidator,
		"grantee": testAddr(0x31).String(),
	}))
	expectModuleError(t, modErr, http.StatusForbidden, codeUnauthorized)
}

func TestAccessRejectsUnknownRole(t *testing.T) {
	node := newTestNode(t)
	gateway := NewAccessModule(node)

	_, modErr := gateway.GrantRole(rawParams(t, map[string]string{
		"caller":  adminAddr.String(),
		"role":    "ROLE_BOGUS",
		"grantee": testAddr(0x31).String(),
	}))
	expectModuleError(t, modErr, http.StatusBadRequest, codeInvalidParams)
}

func TestAccessHasRoleSeededAdmin(t *testing.T) {
	node := newTestNode(t)
	gateway := NewAccessModule(node)

	held, modErr := gateway.HasRole(rawParams(t, map[string]string{
		"role":    access.RoleAdmin,
		"address": adminAddr.String(),
	}))
	if modErr != nil {
		t.Fatalf("has role: %v", modErr)
	}
	if !held.Held {
		t.Fatalf("expected seeded admin role")
	}
}

func TestViewCacheSnapshotSeededBorrower(t *testing.T) {
	node := newTestNode(t)
	gateway := NewViewCacheModule(node)

	result, modErr := gateway.Snapshot(rawParams(t, map[string]string{"user": healthyAddr.String()}))
	if modErr != nil {
		t.Fatalf("snapshot: %v", modErr)
	}
	if !result.Found || !result.Valid {
		t.Fatalf("expected found and valid snapshot, got %+v", result)
	}
	if result.HealthFactorBps != "20000" {
		t.Fatalf("expected health factor 20000, got %q", result.HealthFactorBps)
	}
	if result.UpdatedAt == 0 {
		t.Fatalf("expected genesis priming timestamp")
	}
}

func TestViewCacheSnapshotUnknownUser(t *testing.T) {
	node := newTestNode(t)
	gateway := NewViewCacheModule(node)

	result, modErr := gateway.Snapshot(rawParams(t, map[string]string{"user": testAddr(0x66).String()}))
	if modErr != nil {
		t.Fatalf("snapshot: %v", modErr)
	}
	if result.Found || result.Valid {
		t.Fatalf("expected missing snapshot, got %+v", result)
	}
}

func TestViewCacheInvalidateKeepsRecord(t *testing.T) {
	node := newTestNode(t)
	gateway := NewViewCacheModule(node)

	result, modErr := gateway.Invalidate(rawParams(t, map[string]string{
		"caller": maintainerAddr.String(),
		"user":   healthyAddr.String(),
	}))
	if modErr != nil {
		t.Fatalf("invalidate: %v", modErr)
	}
	if result.Status != "invalidated" {
		t.Fatalf("unexpected status %q", result.Status)
	}

	snapshot, modErr := gateway.Snapshot(rawParams(t, map[string]string{"user": healthyAddr.String()}))
	if modErr != nil {
		t.Fatalf("snapshot after invalidate: %v", modErr)
	}
	if !snapshot.Found {
		t.Fatalf("expected record retained after invalidate")
	}
	if snapshot.Valid {
		t.Fatalf("expected invalidated snapshot")
	}
}

func TestViewCacheInvalidateRequiresMaintainer(t *testing.T) {
	node := newTestNode(t)
	gateway := NewViewCacheModule(node)

	_, modErr := gateway.Invalidate(rawParams(t, map[string]string{
		"caller": keeperAddr.String(),
		"user":   healthyAddr.String(),
	}))
	expectModuleError(t, modErr, http.StatusForbidden, codeUnauthorized)
}
