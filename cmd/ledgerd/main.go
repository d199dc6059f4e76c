// Package main provides the ledgerd daemon - the custody ledger core.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klingon-exchange/custody-ledger/internal/config"
	"github.com/klingon-exchange/custody-ledger/internal/ledger"
	"github.com/klingon-exchange/custody-ledger/internal/ledger/templates"
	"github.com/klingon-exchange/custody-ledger/internal/logging"
	"github.com/klingon-exchange/custody-ledger/internal/metrics"
	"github.com/klingon-exchange/custody-ledger/internal/outbox"
	"github.com/klingon-exchange/custody-ledger/internal/store"
	"github.com/klingon-exchange/custody-ledger/internal/utxo"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.ledgerd", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/ledgerd.yaml)")
		dsn         = flag.String("dsn", "", "PostgreSQL DSN, overrides config")
		metricsAddr = flag.String("metrics", "127.0.0.1:9090", "Prometheus /metrics listen address")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Info("ledgerd", "version", version, "commit", commit)
		os.Exit(0)
	}

	configDir := expandPath(*dataDir)
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}

	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	cfg.Logging.Level = *logLevel

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("config loaded", "path", filepath.Join(configDir, config.ConfigFileName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal("failed to open database", "err", err)
	}

	registry, err := templates.NewRegistry()
	if err != nil {
		log.Fatal("failed to build ledger template registry", "err", err)
	}

	engine := ledger.NewEngine(registry)
	utxoRepo := utxo.New(db.DB())
	pub := outbox.New(db.DB(), cfg.Outbox)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	printBanner(log, cfg, *metricsAddr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: mux}

	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "err", err)
		}
	}()

	outboxErrCh := make(chan error, 1)
	go func() {
		outboxErrCh <- pub.Run(ctx, func(ctx context.Context, event outbox.JournalEvent) error {
			log.Debug("journal event delivered",
				"account_id", event.AccountId,
				"sequence", event.Sequence,
				"template", event.Template,
			)
			return nil
		})
	}()

	_ = utxoRepo
	_ = engine

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-outboxErrCh:
		if err != nil && err != context.Canceled {
			log.Error("outbox publisher stopped unexpectedly", "err", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("error stopping metrics server", "err", err)
	}

	if err := db.Close(); err != nil {
		log.Error("error closing database", "err", err)
	}

	log.Info("goodbye")
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func printBanner(log *logging.Logger, cfg *config.Config, metricsAddr string) {
	log.Info("=================================================")
	log.Info(fmt.Sprintf("  ledgerd %s", version))
	log.Info("=================================================")
	log.Info("  database", "dsn", redactDSN(cfg.Database.DSN))
	log.Info("  outbox", "poll_interval", cfg.Outbox.PollInterval, "batch_size", cfg.Outbox.BatchSize)
	log.Info("  metrics", "addr", fmt.Sprintf("http://%s/metrics", metricsAddr))
	log.Info("=================================================")
}

// redactDSN hides any userinfo credentials embedded in a libpq-style DSN
// before it is logged.
func redactDSN(dsn string) string {
	at := -1
	schemeEnd := -1
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == '@' {
			at = i
		}
		if schemeEnd == -1 && i+2 < len(dsn) && dsn[i] == ':' && dsn[i+1] == '/' && dsn[i+2] == '/' {
			schemeEnd = i + 3
		}
	}
	if at == -1 || schemeEnd == -1 || at < schemeEnd {
		return dsn
	}
	return dsn[:schemeEnd] + "***:***" + dsn[at:]
}
