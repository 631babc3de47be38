package config

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vaultchain/crypto"
)

// Address wraps crypto.Address with YAML decoding from the bech32 form.
type Address struct {
	crypto.Address
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	a.Address = decoded
	return nil
}

// Amount wraps big.Int with YAML decoding from a base-10 string.
type Amount struct {
	*big.Int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		return fmt.Errorf("line %d: empty amount", node.Line)
	}
	parsed, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("line %d: invalid amount %q", node.Line, raw)
	}
	if parsed.Sign() < 0 {
		return fmt.Errorf("line %d: negative amount %q", node.Line, raw)
	}
	a.Int = parsed
	return nil
}

// RoleGrant seeds one role with its initial holders.
type RoleGrant struct {
	Role      string    `yaml:"role"`
	Addresses []Address `yaml:"addresses"`
}

// RegistryEntry seeds a module-registry binding.
type RegistryEntry struct {
	Key     string  `yaml:"key"`
	Address Address `yaml:"address"`
}

// PayoutGenesis initialises the payout policy.
type PayoutGenesis struct {
	Platform      Address `yaml:"platform"`
	Reserve       Address `yaml:"reserve"`
	LenderComp    Address `yaml:"lenderComp"`
	PlatformBps   uint64  `yaml:"platformBps"`
	ReserveBps    uint64  `yaml:"reserveBps"`
	LenderCompBps uint64  `yaml:"lenderCompBps"`
	LiquidatorBps uint64  `yaml:"liquidatorBps"`
}

// RiskGenesis seeds the governed risk parameters.
type RiskGenesis struct {
	LiquidationThresholdBps uint64 `yaml:"liquidationThresholdBps"`
	MinHealthFactorBps      uint64 `yaml:"minHealthFactorBps"`
}

// SettlementGenesis seeds the liquidation sizing policy.
type SettlementGenesis struct {
	CloseFactorBps          uint64 `yaml:"closeFactorBps"`
	PartialLiquidationFloor Amount `yaml:"partialLiquidationFloor"`
}

// SeedPrice sets an asset's initial oracle quote. Rate is a decimal string
// such as "25.50".
type SeedPrice struct {
	Asset Address `yaml:"asset"`
	Rate  string  `yaml:"rate"`
}

// GenesisOrder seeds a loan order for demos and integration runs.
type GenesisOrder struct {
	ID          string  `yaml:"id"`
	Borrower    Address `yaml:"borrower"`
	Asset       Address `yaml:"asset"`
	Principal   Amount  `yaml:"principal"`
	Outstanding Amount  `yaml:"outstanding"`
	Maturity    uint64  `yaml:"maturity"`
}

// GenesisCollateral seeds a custody balance.
type GenesisCollateral struct {
	User   Address `yaml:"user"`
	Asset  Address `yaml:"asset"`
	Amount Amount  `yaml:"amount"`
}

// Genesis is the bootstrap document applied once to an empty state.
type Genesis struct {
	Network    string              `yaml:"network"`
	Roles      []RoleGrant         `yaml:"roles"`
	Registry   []RegistryEntry     `yaml:"registry"`
	Payout     *PayoutGenesis      `yaml:"payout"`
	Risk       *RiskGenesis        `yaml:"risk"`
	Settlement *SettlementGenesis  `yaml:"settlement"`
	Oracle     []SeedPrice         `yaml:"oracle"`
	Orders     []GenesisOrder      `yaml:"orders"`
	Collateral []GenesisCollateral `yaml:"collateral"`
}

// LoadGenesis parses and validates the genesis document at path. Unknown
// fields are rejected so typos fail loudly instead of silently skipping a
// grant.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	genesis := &Genesis{}
	if err := decoder.Decode(genesis); err != nil {
		return nil, fmt.Errorf("genesis: parse %s: %w", path, err)
	}
	if err := genesis.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	return genesis, nil
}

// Validate applies the shallow structural checks; engine-level validation
// (rate sums, threshold bands) happens when the document is applied.
func (g *Genesis) Validate() error {
	for i, grant := range g.Roles {
		if strings.TrimSpace(grant.Role) == "" {
			return fmt.Errorf("roles[%d]: role name required", i)
		}
		if len(grant.Addresses) == 0 {
			return fmt.Errorf("roles[%d]: at least one address required", i)
		}
	}
	for i, entry := range g.Registry {
		if strings.TrimSpace(entry.Key) == "" {
			return fmt.Errorf("registry[%d]: key required", i)
		}
		if entry.Address.IsZero() {
			return fmt.Errorf("registry[%d]: address required", i)
		}
	}
	for i, price := range g.Oracle {
		if strings.TrimSpace(price.Rate) == "" {
			return fmt.Errorf("oracle[%d]: rate required", i)
		}
	}
	for i, order := range g.Orders {
		if strings.TrimSpace(order.ID) == "" {
			return fmt.Errorf("orders[%d]: id required", i)
		}
		if order.Principal.Int == nil || order.Outstanding.Int == nil {
			return fmt.Errorf("orders[%d]: principal and outstanding required", i)
		}
	}
	for i, entry := range g.Collateral {
		if entry.Amount.Int == nil {
			return fmt.Errorf("collateral[%d]: amount required", i)
		}
	}
	return nil
}
