package modules

import (
	"encoding/json"

	"vaultchain/core"
)

// AccessModule exposes role management.
type AccessModule struct {
	node *core.Node
}

// NewAccessModule constructs the access-control RPC gateway.
func NewAccessModule(node *core.Node) *AccessModule {
	return &AccessModule{node: node}
}

type roleChangeParams struct {
	Caller  string `json:"caller"`
	Role    string `json:"role"`
	Grantee string `json:"grantee"`
}

type hasRoleParams struct {
	Role    string `json:"role"`
	Address string `json:"address"`
}

// RoleChangeResult reports the membership change that was applied.
type RoleChangeResult struct {
	Role    string `json:"role"`
	Grantee string `json:"grantee"`
	Held    bool   `json:"held"`
}

// HasRoleResult reports whether an address holds a role.
type HasRoleResult struct {
	Role    string `json:"role"`
	Address string `json:"address"`
	Held    bool   `json:"held"`
}

func parseRoleChangeParams(raw json.RawMessage) (roleChangeParams, *ModuleError) {
	var params roleChangeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, invalidParams("invalid parameter object", err.Error())
	}
	if params.Role == "" {
		return params, invalidParams("role must not be empty", nil)
	}
	return params, nil
}

// GrantRole adds the grantee to a role. Admin only.
func (m *AccessModule) GrantRole(raw json.RawMessage) (*RoleChangeResult, *ModuleError) {
	params, modErr := parseRoleChangeParams(raw)
	if modErr != nil {
		return nil, modErr
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	grantee, modErr := parseAddress("grantee", params.Grantee)
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Access().Grant(caller, params.Role, grantee)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &RoleChangeResult{Role: params.Role, Grantee: grantee.String(), Held: true}, nil
}

// RevokeRole removes the grantee from a role. Admin only.
func (m *AccessModule) RevokeRole(raw json.RawMessage) (*RoleChangeResult, *ModuleError) {
	params, modErr := parseRoleChangeParams(raw)
	if modErr != nil {
		return nil, modErr
	}
	caller, modErr := parseAddress("caller", params.Caller)
	if modErr != nil {
		return nil, modErr
	}
	grantee, modErr := parseAddress("grantee", params.Grantee)
	if modErr != nil {
		return nil, modErr
	}
	execErr := m.node.ExecuteMutation(func() error {
		return m.node.Access().Revoke(caller, params.Role, grantee)
	})
	if execErr != nil {
		return nil, classify(execErr)
	}
	return &RoleChangeResult{Role: params.Role, Grantee: grantee.String(), Held: false}, nil
}

// HasRole reports whether an address holds a role.
func (m *AccessModule) HasRole(raw json.RawMessage) (*HasRoleResult, *ModuleError) {
	var params hasRoleParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	addr, modErr := parseAddress("address", params.Address)
	if modErr != nil {
		return nil, modErr
	}
	result := &HasRoleResult{Role: params.Role, Address: addr.String()}
	queryErr := m.node.Query(func() error {
		held, err := m.node.Access().HasRole(params.Role, addr)
		if err != nil {
			return err
		}
		result.Held = held
		return nil
	})
	if queryErr != nil {
		return nil, classify(queryErr)
	}
	return result, nil
}
