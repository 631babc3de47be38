package config

import (
	"fmt"
	"strings"
)

var knownLogLevels = map[string]struct{}{
	"": {}, "debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {},
}

// Validate rejects configurations a node cannot safely run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, ok := knownLogLevels[strings.ToLower(strings.TrimSpace(cfg.Log.Level))]; !ok {
		return fmt.Errorf("config: log.Level %q unknown", cfg.Log.Level)
	}
	if cfg.Rate.RPS <= 0 {
		return fmt.Errorf("config: rate.RPS must be positive")
	}
	if cfg.Rate.Burst <= 0 {
		return fmt.Errorf("config: rate.Burst must be positive")
	}
	if cfg.Oracle.MaxQuoteAgeSecs == 0 {
		return fmt.Errorf("config: oracle.MaxQuoteAgeSecs must be positive")
	}
	if (cfg.Otel.Traces || cfg.Otel.Metrics) && strings.TrimSpace(cfg.Otel.Endpoint) == "" {
		return fmt.Errorf("config: otel.Endpoint required when exporters are enabled")
	}
	return nil
}
