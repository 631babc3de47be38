package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every reconciler environment variable.
const EnvPrefix = "recon"

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures the runtime settings for the reconciler service.
type Config struct {
	Listen         string        `envconfig:"RECON_LISTEN" default:"0.0.0.0:9470"`
	NodeWSURL      string        `envconfig:"RECON_NODE_WS_URL" default:"ws://127.0.0.1:8645/ws/events"`
	DBDriver       string        `envconfig:"RECON_DB_DRIVER" default:"sqlite"`
	DBDSN          string        `envconfig:"RECON_DB_DSN" default:"./recon-data/recon.db"`
	JWTSecret      string        `envconfig:"RECON_JWT_SECRET"`
	JWTIssuer      string        `envconfig:"RECON_JWT_ISSUER" default:"vaultchain-reconciler"`
	CheckpointPath string        `envconfig:"RECON_CHECKPOINT_PATH" default:"./recon-data/checkpoint.db"`
	ExportDir      string        `envconfig:"RECON_EXPORT_DIR" default:"./recon-data/exports"`
	ExportHour     int           `envconfig:"RECON_EXPORT_HOUR" default:"1"`
	ExportMinute   int           `envconfig:"RECON_EXPORT_MINUTE" default:"15"`
	ExportWindow   time.Duration `envconfig:"RECON_EXPORT_WINDOW" default:"24h"`
	ExportTZ       string        `envconfig:"RECON_EXPORT_TZ" default:"UTC"`
	LogLevel       string        `envconfig:"RECON_LOG_LEVEL" default:"info"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	return cfg, nil
}

// Sanitized returns a copy of the Config with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	if clone.JWTSecret != "" {
		clone.JWTSecret = maskSecret(clone.JWTSecret)
	}
	return clone
}

// Validate ensures the configuration is internally consistent.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen address is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(cfg.NodeWSURL))
	if err != nil {
		return fmt.Errorf("invalid node websocket url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("node websocket url must use ws or wss, got %q", parsed.Scheme)
	}
	switch cfg.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return fmt.Errorf("database DSN is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if strings.TrimSpace(cfg.CheckpointPath) == "" {
		return fmt.Errorf("checkpoint path is required")
	}
	if strings.TrimSpace(cfg.ExportDir) == "" {
		return fmt.Errorf("export directory is required")
	}
	if cfg.ExportHour < 0 || cfg.ExportHour > 23 {
		return fmt.Errorf("export hour must be between 0 and 23")
	}
	if cfg.ExportMinute < 0 || cfg.ExportMinute > 59 {
		return fmt.Errorf("export minute must be between 0 and 59")
	}
	if cfg.ExportWindow <= 0 {
		return fmt.Errorf("export window must be positive")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.ExportTZ)); err != nil {
		return fmt.Errorf("invalid export timezone %q: %w", cfg.ExportTZ, err)
	}
	return nil
}

// Location resolves the configured export timezone. Validate must have
// accepted the config first.
func (cfg Config) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(cfg.ExportTZ))
	if err != nil {
		return time.UTC
	}
	return loc
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	return "***"
}
