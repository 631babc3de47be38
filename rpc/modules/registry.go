package modules

import (
	"encoding/json"
	"fmt"

	"vaultchain/core"
	"vaultchain/native/registry"
)

// RegistryModule exposes the on-chain module registry.
type RegistryModule struct {
	node *core.Node
}

// NewRegistryModule constructs the registry RPC gateway.
func NewRegistryModule(node *core.Node) *RegistryModule {
	return &RegistryModule{node: node}
}

type resolveParams struct {
	Key string `json:"key"`
}

type registerParams struct {
	Caller  string `json:"caller"`
	Key     string `json:"key"`
	Address string `json:"address"`
}

// RegistryEntryResult is one registry binding in transport form.
type RegistryEntryResult struct {
	Key     string `json:"key"`
	Address string `json:"address"`
}

// Resolve looks up the address registered under a key.
func (m *RegistryModule) Resolve(raw json.RawMessage) (*RegistryEntryResult, *ModuleError) {
	var params resolveParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	key, err := registry.NormalizeKey(params.Key)
	if err != nil {
		return nil, invalidParams("invalid key", err.Error())
	}
	result := &RegistryEntryResult{Key: key}
	queryErr := m.node.Query(func() error {
		addr, ok, err := m.node.Registry().Resolve(key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", registry.ErrUnregisteredModule, key)
		}
		result.Address = addr.String()
		return nil
	})
	if queryErr != nil {
		return nil, classify(queryErr)
	}
	return result, nil
}

// Register binds a key to a module address. Admin only.
func (m *RegistryModule) Register(raw json.RawMessage) (*RegistryEntryResult, *ModuleError) {
	var params registerParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	addr, modErr := parseAddress("address", params.Address)
	if modErr != nil {
		return nil, modErr
	}
	key, err := registry.NormalizeKey(params.Key)
	if err != nil {
		return nil, invalidParams("invalid key", err.Error())
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Registry().Register(caller, key, addr)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &RegistryEntryResult{Key: key, Address: addr.String()}, nil
}
