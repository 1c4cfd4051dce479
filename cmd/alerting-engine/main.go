package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentinelops/alerting-engine/internal/api"
	"github.com/sentinelops/alerting-engine/internal/store"
	"github.com/sentinelops/alerting-engine/pkg/alerting"
	"github.com/sentinelops/alerting-engine/pkg/alerting/notify"
	"github.com/sentinelops/alerting-engine/pkg/logging"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to the engine YAML config file")
		listenAddr  = flag.String("listen", ":8090", "operational API listen address")
		databaseDSN = flag.String("db", os.Getenv("ALERT_DATABASE_URL"), "Postgres DSN for the alert store (empty = in-memory)")
		logFormat   = flag.String("log-format", "json", "log format: json or text")
	)
	flag.Parse()

	logger := logging.NewStructuredLogger(logging.Config{
		Level:       logging.LogLevel(os.Getenv("LOG_LEVEL")),
		Format:      *logFormat,
		ServiceName: "alerting-engine",
		Version:     version,
		Environment: os.Getenv("ENVIRONMENT"),
	})

	if err := run(logger, *configPath, *listenAddr, *databaseDSN); err != nil {
		logger.ErrorWithContext("Fatal startup error", err)
		os.Exit(1)
	}
}

func run(logger *logging.StructuredLogger, configPath, listenAddr, databaseDSN string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, cfgErr := alerting.LoadEngineConfig(configPath)
	if cfgErr != nil {
		logger.WarnWithContext("Using default configuration", "reason", cfgErr.Error())
	}

	// Persistence and metric source: Postgres when a DSN is provided,
	// in-memory otherwise.
	var (
		alertStore   alerting.Store
		metricSource alerting.MetricSource
		notifWriter  notify.NotificationWriter
	)
	if databaseDSN != "" {
		pg, err := store.NewPostgresStore(ctx, databaseDSN, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		alertStore = pg
		metricSource = store.NewPostgresMetricSource(pg)
		notifWriter = pg
	} else {
		logger.WarnWithContext("No database configured, alerts will not survive restarts")
		mem := store.NewMemoryStore()
		alertStore = mem
		metricSource = store.NewMemoryMetricSource()
		notifWriter = mem
	}

	thresholds, err := alerting.NewThresholdRegistry(alerting.DefaultThresholds())
	if err != nil {
		return err
	}

	transports := notify.BuildTransports(cfg.Channels, notifWriter)
	channels := alerting.NewChannelRegistry(cfg.Channels, transports)

	collectors := []alerting.Collector{
		alerting.NewRealtimeCollector(metricSource, cfg.AnomalyDetection, logger),
		alerting.NewPerformanceCollector(metricSource, thresholds, logger),
		alerting.NewBusinessCollector(metricSource, thresholds, logger),
		alerting.NewWorkflowCollector(metricSource, logger),
	}

	engine := alerting.NewEngine(cfg, thresholds, channels, collectors, alertStore, logger, alerting.EngineOptions{})
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	if configPath != "" {
		go func() {
			err := alerting.WatchConfig(ctx, configPath, logger, func(newCfg *alerting.EngineConfig) {
				engine.Reconfigure(newCfg, notify.BuildTransports(newCfg.Channels, notifWriter))
			})
			if err != nil {
				logger.ErrorWithContext("Config watcher stopped", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           api.NewServer(engine, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.InfoWithContext("Operational API listening", "addr", listenAddr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.InfoWithContext("Shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
