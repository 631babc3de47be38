package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultchain/crypto"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func testAddrString(b byte) string {
	var raw [20]byte
	raw[19] = b
	return crypto.NewAddress(raw[:]).String()
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeFile(t, "config.toml", `RPCAddress = "0.0.0.0:9000"
OpsAddress = ":9100"
DataDir = "./data"
GenesisFile = "genesis.yaml"
NetworkName = "vault-test"
AuthToken = "secret-token"

[log]
Level = "debug"
File = "vault.log"
FileMaxSizeMB = 64

[rate]
RPS = 25.0
Burst = 50

[oracle]
MaxQuoteAgeSecs = 300

[otel]
Traces = true
Metrics = true
Endpoint = "collector:4318"
Insecure = true
Headers = "x-team=settlement"

[audit]
Path = "./audit.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, ":9100", cfg.OpsAddress)
	require.Equal(t, "vault-test", cfg.NetworkName)
	require.Equal(t, "secret-token", cfg.AuthToken)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "vault.log", cfg.Log.File)
	require.Equal(t, 64, cfg.Log.FileMaxSizeMB)
	require.Equal(t, 25.0, cfg.Rate.RPS)
	require.Equal(t, 50, cfg.Rate.Burst)
	require.Equal(t, uint64(300), cfg.Oracle.MaxQuoteAgeSecs)
	require.True(t, cfg.Otel.Traces)
	require.Equal(t, "collector:4318", cfg.Otel.Endpoint)
	require.Equal(t, "./audit.db", cfg.Audit.Path)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.RPCAddress)
	require.Equal(t, "vault-local", cfg.NetworkName)
	require.FileExists(t, path)

	// A second load round-trips the persisted defaults.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
	require.Equal(t, cfg.Rate.Burst, reloaded.Rate.Burst)
}

func TestLoadAppliesFallbacks(t *testing.T) {
	path := writeFile(t, "config.toml", `DataDir = "./data"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.RPCAddress)
	require.Equal(t, 50.0, cfg.Rate.RPS)
	require.Equal(t, uint64(900), cfg.Oracle.MaxQuoteAgeSecs)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"missing rpc address", func(cfg *Config) { cfg.RPCAddress = " " }},
		{"missing data dir", func(cfg *Config) { cfg.DataDir = "" }},
		{"unknown log level", func(cfg *Config) { cfg.Log.Level = "verbose" }},
		{"zero rps", func(cfg *Config) { cfg.Rate.RPS = 0 }},
		{"zero burst", func(cfg *Config) { cfg.Rate.Burst = 0 }},
		{"zero quote age", func(cfg *Config) { cfg.Oracle.MaxQuoteAgeSecs = 0 }},
		{"otel without endpoint", func(cfg *Config) {
			cfg.Otel.Traces = true
			cfg.Otel.Endpoint = ""
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
	require.NoError(t, Validate(Default()))
}

func TestLoadGenesisParsesDocument(t *testing.T) {
	doc := fmt.Sprintf(`network: vault-test
roles:
  - role: ROLE_ADMIN
    addresses: [%s]
  - role: ROLE_LIQUIDATOR
    addresses: [%s, %s]
registry:
  - key: settlement-coordinator
    address: %s
payout:
  platform: %s
  reserve: %s
  lenderComp: %s
  platformBps: 5000
  reserveBps: 3000
  lenderCompBps: 1500
  liquidatorBps: 500
risk:
  liquidationThresholdBps: 8000
  minHealthFactorBps: 10000
settlement:
  closeFactorBps: 5000
  partialLiquidationFloor: "1000000"
oracle:
  - asset: %s
    rate: "25.50"
orders:
  - id: "0x0000000000000000000000000000000000000000000000000000000000000001"
    borrower: %s
    asset: %s
    principal: "1000000"
    outstanding: "800000"
    maturity: 1767225600
collateral:
  - user: %s
    asset: %s
    amount: "1500000"
`,
		testAddrString(0x01),
		testAddrString(0x02), testAddrString(0x03),
		testAddrString(0xC0),
		testAddrString(0x10), testAddrString(0x11), testAddrString(0x12),
		testAddrString(0xA1),
		testAddrString(0x20), testAddrString(0xA2),
		testAddrString(0x20), testAddrString(0xA1),
	)
	path := writeFile(t, "genesis.yaml", doc)

	genesis, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Equal(t, "vault-test", genesis.Network)
	require.Len(t, genesis.Roles, 2)
	require.Len(t, genesis.Roles[1].Addresses, 2)
	require.Equal(t, "settlement-coordinator", genesis.Registry[0].Key)
	require.NotNil(t, genesis.Payout)
	require.Equal(t, uint64(5000), genesis.Payout.PlatformBps)
	require.Equal(t, uint64(10000), genesis.Risk.MinHealthFactorBps)
	require.Equal(t, "1000000", genesis.Settlement.PartialLiquidationFloor.String())
	require.Equal(t, "25.50", genesis.Oracle[0].Rate)
	require.Equal(t, "800000", genesis.Orders[0].Outstanding.String())
	require.Equal(t, "1500000", genesis.Collateral[0].Amount.String())
}

func TestLoadGenesisRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"unknown field", "network: x\nbogus: true\n"},
		{"bad address", "registry:\n  - key: vault-core\n    address: not-bech32\n"},
		{"negative amount", fmt.Sprintf("collateral:\n  - user: %s\n    asset: %s\n    amount: \"-5\"\n", testAddrString(1), testAddrString(2))},
		{"role without addresses", "roles:\n  - role: ROLE_ADMIN\n    addresses: []\n"},
		{"registry without key", fmt.Sprintf("registry:\n  - key: \"\"\n    address: %s\n", testAddrString(1))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "genesis.yaml", tc.doc)
			_, err := LoadGenesis(path)
			require.Error(t, err)
		})
	}
}
