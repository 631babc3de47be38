package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vaultchain/observability/logging"
	"vaultchain/services/reconciler/config"
	"vaultchain/services/reconciler/export"
	"vaultchain/services/reconciler/ingest"
	"vaultchain/services/reconciler/server"
	"vaultchain/services/reconciler/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	env := os.Getenv("VAULT_ENV")
	if env == "" {
		env = "dev"
	}
	logger := logging.Setup("reconciler", env, logging.WithLevel(logging.ParseLevel(cfg.LogLevel)))
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger.Info("reconciler starting", "config", cfg.Sanitized())

	for _, dir := range []string{filepath.Dir(cfg.CheckpointPath), cfg.ExportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("ensure data dir", "dir", dir, "error", err)
			os.Exit(1)
		}
	}
	if cfg.DBDriver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBDSN), 0o755); err != nil {
			logger.Error("ensure database dir", "error", err)
			os.Exit(1)
		}
	}

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	checkpoint, err := ingest.OpenCheckpoint(cfg.CheckpointPath)
	if err != nil {
		logger.Error("open checkpoint", "error", err)
		os.Exit(1)
	}
	defer checkpoint.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestor := ingest.NewIngestor(cfg.NodeWSURL, st, checkpoint, logger)
	go ingestor.Run(ctx)

	exporter := export.NewExporter(st, cfg.ExportDir, logger)
	scheduler := export.NewScheduler(export.SchedulerConfig{
		Exporter:  exporter,
		Window:    cfg.ExportWindow,
		RunHour:   cfg.ExportHour,
		RunMinute: cfg.ExportMinute,
		Location:  cfg.Location(),
		Logger:    logger,
	})
	go scheduler.Start(ctx)

	api := server.New(st, cfg.JWTSecret, cfg.JWTIssuer, logger)
	srv := &http.Server{Addr: cfg.Listen, Handler: api}
	go func() {
		logger.Info("reconciler API listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down reconciler")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
