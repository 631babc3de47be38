package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultchain/config"
	"vaultchain/core"
	"vaultchain/core/events"
	"vaultchain/observability"
	"vaultchain/observability/audit"
	"vaultchain/observability/logging"
	telemetry "vaultchain/observability/otel"
	"vaultchain/rpc"
	"vaultchain/storage"
)

const (
	rpcTokenEnv    = "VAULT_RPC_TOKEN"
	genesisPathEnv = "VAULT_GENESIS"

	shutdownTimeout = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	dataDirFlag := flag.String("data-dir", "", "Path to the state directory (overrides config DataDir)")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML document (overrides VAULT_GENESIS and config GenesisFile)")
	ephemeral := flag.Bool("ephemeral", false, "Run against an in-memory store; all state is lost on exit")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULT_ENV"))
	logger := logging.Setup("vaultd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logOpts := []logging.Option{logging.WithLevel(logging.ParseLevel(cfg.Log.Level))}
	if strings.TrimSpace(cfg.Log.File) != "" {
		logOpts = append(logOpts, logging.WithFile(cfg.Log.File, cfg.Log.FileMaxSizeMB, cfg.Log.FileMaxBackups, cfg.Log.FileMaxAgeDays))
	}
	logger = logging.Setup("vaultd", env, logOpts...)

	if trimmed := strings.TrimSpace(*dataDirFlag); trimmed != "" {
		cfg.DataDir = trimmed
	}
	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)
	authToken := resolveAuthToken(cfg.AuthToken, os.LookupEnv)
	if authToken == "" {
		logger.Warn("No RPC auth token configured; every mutating call will be rejected",
			slog.String("hint", "set AuthToken in config or export "+rpcTokenEnv))
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "vaultd",
		Environment: env,
		Endpoint:    cfg.Otel.Endpoint,
		Insecure:    cfg.Otel.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Otel.Headers),
		Traces:      cfg.Otel.Traces,
		Metrics:     cfg.Otel.Metrics,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialise telemetry: %v", err))
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	// 1. Open the backing store.
	var db storage.Database
	if *ephemeral {
		logger.Warn("Running with an in-memory store; state will not survive restart")
		db = storage.NewMemDB()
	} else {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			panic(fmt.Sprintf("Failed to prepare data directory: %v", err))
		}
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = ldb
	}
	defer db.Close()

	// 2. Create the core node against the last committed state root.
	node, err := core.NewNode(db, core.Options{
		OracleMaxQuoteAge: time.Duration(cfg.Oracle.MaxQuoteAgeSecs) * time.Second,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}

	// 3. Load the genesis document and seed the manual price feed. Quotes
	//    live outside consensus state, so every boot reseeds them.
	var genesisDoc *config.Genesis
	if genesisPath != "" {
		genesisDoc, err = config.LoadGenesis(genesisPath)
		if err != nil {
			panic(fmt.Sprintf("Failed to load genesis document: %v", err))
		}
		if err := node.SeedPrices(genesisDoc, time.Now()); err != nil {
			panic(fmt.Sprintf("Failed to seed oracle prices: %v", err))
		}
	}

	// 4. Route committed events to the websocket hub, the event meters
	//    and, when configured, the sqlite audit trail.
	server := rpc.NewServer(node, rpc.Options{
		AuthToken:      authToken,
		RateLimitRPS:   cfg.Rate.RPS,
		RateLimitBurst: cfg.Rate.Burst,
		Log:            logger,
	})
	sinks := []events.Emitter{server.Hub(), observability.NewMeterEmitter(nil)}
	if strings.TrimSpace(cfg.Audit.Path) != "" {
		auditStore, err := audit.NewStore(cfg.Audit.Path, logger)
		if err != nil {
			panic(fmt.Sprintf("Failed to open audit store: %v", err))
		}
		defer func() { _ = auditStore.Close() }()
		sinks = append(sinks, auditStore)
	}
	node.SetEmitter(events.Multi(sinks...))

	// 5. Apply genesis. The call is a no-op against a store that already
	//    carries a committed state root, so restarts keep their history.
	if genesisDoc != nil {
		applied, err := node.ApplyGenesis(genesisDoc)
		if err != nil {
			panic(fmt.Sprintf("Failed to apply genesis: %v", err))
		}
		if applied {
			logger.Info("Genesis state applied", slog.String("path", genesisPath))
		}
	}

	// 6. Serve the JSON-RPC API and the ops listener.
	rpcSrv := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	opsSrv := &http.Server{
		Addr:              cfg.OpsAddress,
		Handler:           opsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 2)
	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.RPCAddress))
		if err := rpcSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		logger.Info("Ops server listening", slog.String("address", cfg.OpsAddress))
		if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("ops server: %w", err)
		}
	}()

	if err := waitForStartup(cfg.RPCAddress, serveErrCh, 5*time.Second); err != nil {
		logger.Error("RPC server failed to start", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Vaultchain node initialised and running",
		slog.String("network", cfg.NetworkName),
		slog.Bool("ephemeral", *ephemeral))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErrCh:
		logger.Error("Server terminated", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("RPC shutdown failed", slog.Any("error", err))
	}
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ops shutdown failed", slog.Any("error", err))
	}
}

type envLookupFunc func(string) (string, bool)

// resolveGenesisPath picks the genesis document location with CLI flag,
// environment and config precedence. An empty result means boot without a
// document, which only a store with existing state survives usefully.
func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(cfgPath)
}

// resolveAuthToken prefers the environment over the config file so the
// token can stay out of files checked into provisioning repos.
func resolveAuthToken(cfgToken string, lookup envLookupFunc) string {
	if lookup != nil {
		if value, ok := lookup(rpcTokenEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(cfgToken)
}

// opsHandler serves the Prometheus scrape endpoint and the liveness probe.
func opsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// waitForStartup polls addr until the listener accepts connections or a
// serve goroutine reports a failure.
func waitForStartup(addr string, errCh <-chan error, timeout time.Duration) error {
	dialAddr := dialAddressFor(addr)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return err
		default:
		}

		conn, err := net.DialTimeout("tcp", dialAddr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for RPC server to start on %s", addr)
		}
	}
}

func dialAddressFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
