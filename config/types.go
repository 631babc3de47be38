package config

// Log controls the structured logger. A non-empty File enables size-rotated
// output alongside stdout.
type Log struct {
	Level          string `toml:"Level"`
	File           string `toml:"File"`
	FileMaxSizeMB  int    `toml:"FileMaxSizeMB"`
	FileMaxBackups int    `toml:"FileMaxBackups"`
	FileMaxAgeDays int    `toml:"FileMaxAgeDays"`
}

// Rate bounds per-client JSON-RPC request admission.
type Rate struct {
	RPS   float64 `toml:"RPS"`
	Burst int     `toml:"Burst"`
}

// Oracle holds the price-feed freshness window.
type Oracle struct {
	MaxQuoteAgeSecs uint64 `toml:"MaxQuoteAgeSecs"`
}

// Otel gates the OpenTelemetry exporters. Headers uses the
// comma-separated key=value form the collector convention expects.
type Otel struct {
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
}

// Audit enables the sqlite audit sink when Path is set.
type Audit struct {
	Path string `toml:"Path"`
}
