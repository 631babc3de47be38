// Package config loads the node's TOML configuration and the YAML genesis
// document. Missing config files are created with defaults so a bare
// `vaultd` starts a working local node.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	OpsAddress  string `toml:"OpsAddress"`
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`
	NetworkName string `toml:"NetworkName"`
	AuthToken   string `toml:"AuthToken"`

	Log    Log    `toml:"log"`
	Rate   Rate   `toml:"rate"`
	Oracle Oracle `toml:"oracle"`
	Otel   Otel   `toml:"otel"`
	Audit  Audit  `toml:"audit"`
}

// Default returns the configuration a fresh node runs with.
func Default() *Config {
	return &Config{
		RPCAddress:  ":8645",
		OpsAddress:  ":9464",
		DataDir:     "./vault-data",
		NetworkName: "vault-local",
		Log: Log{
			Level:          "info",
			FileMaxSizeMB:  100,
			FileMaxBackups: 5,
			FileMaxAgeDays: 28,
		},
		Rate: Rate{
			RPS:   50,
			Burst: 100,
		},
		Oracle: Oracle{
			MaxQuoteAgeSecs: 900,
		},
		Otel: Otel{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

// Load reads the configuration at path, creating it with defaults when it
// does not exist. The loaded configuration is validated before return.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyFallbacks(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFallbacks(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "vault-local"
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.OpsAddress) == "" {
		cfg.OpsAddress = ":9464"
	}
	if cfg.Rate.RPS <= 0 {
		cfg.Rate.RPS = 50
	}
	if cfg.Rate.Burst <= 0 {
		cfg.Rate.Burst = 100
	}
	if cfg.Oracle.MaxQuoteAgeSecs == 0 {
		cfg.Oracle.MaxQuoteAgeSecs = 900
	}
}

// createDefault materialises a default configuration file at path.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
