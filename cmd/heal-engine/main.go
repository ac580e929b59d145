package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neurocloudstack/neurocloud-heal/internal/api"
	"github.com/neurocloudstack/neurocloud-heal/internal/config"
	"github.com/neurocloudstack/neurocloud-heal/internal/detector"
	"github.com/neurocloudstack/neurocloud-heal/internal/events"
	"github.com/neurocloudstack/neurocloud-heal/internal/healing"
	"github.com/neurocloudstack/neurocloud-heal/internal/metrics"
	"github.com/neurocloudstack/neurocloud-heal/internal/models"
	"github.com/neurocloudstack/neurocloud-heal/internal/monitor"
	"github.com/neurocloudstack/neurocloud-heal/internal/simulator"
	"github.com/neurocloudstack/neurocloud-heal/internal/store"
	"github.com/neurocloudstack/neurocloud-heal/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting neurocloud-heal", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	blobs, err := newStore(cfg.Store)
	if err != nil {
		logger.Error("failed to open store", slog.String("backend", cfg.Store.Backend), slog.Any("error", err))
		os.Exit(1)
	}
	defer blobs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history, err := simulator.NewHistory(ctx, blobs, cfg.Simulator.HistoryCapacity)
	if err != nil {
		logger.Error("failed to load metric history", slog.Any("error", err))
		os.Exit(1)
	}
	generator := simulator.NewGenerator(cfg.Simulator.Seed)

	catalog, err := healing.LoadCatalog(cfg.Healing.CatalogPath, healing.Thresholds{
		CPUCritical:          cfg.Healing.Thresholds.CPUCritical,
		MemoryCritical:       cfg.Healing.Thresholds.MemoryCritical,
		ResponseTimeCritical: cfg.Healing.Thresholds.ResponseTimeCriticalMs,
	}, logger)
	if err != nil {
		logger.Error("failed to load action catalog", slog.Any("error", err))
		os.Exit(1)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.Enabled && len(cfg.Events.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
		publisher = kafkaPublisher
		defer kafkaPublisher.Close()
	}

	// The monitor is both loop driver and event log; it is constructed
	// after the orchestrator, so events reach it through a relay.
	var mon *monitor.Monitor
	relay := healing.ObserverFunc(func(event models.DetectionEvent) {
		if mon != nil {
			mon.ObserveEvent(event)
		}
	})
	observer := healing.MultiObserver(
		healing.NewLogObserver(logger),
		relay,
		events.NewObserver(publisher, logger),
	)

	det := detector.New(detector.Config{
		NumTrees:           cfg.Detector.NumTrees,
		SubsampleSize:      cfg.Detector.SubsampleSize,
		Contamination:      cfg.Detector.Contamination,
		Seed:               cfg.Detector.Seed,
		MinTrainingSamples: cfg.Detector.MinTrainingSamples,
	})
	orch := healing.NewOrchestrator(
		logger,
		det,
		catalog,
		healing.NewCooldownTable(cfg.Healing.CooldownDuration()),
		healing.NewLedger(cfg.Healing.LedgerCapacity),
		healing.NewSimulatedExecutor(logger),
		observer,
	)

	initialiseModel(ctx, logger, orch, blobs, history)
	restoreLedger(ctx, logger, orch, blobs)

	var sink monitor.SampleSink
	if cfg.Simulator.Influx.Enabled && cfg.Simulator.Influx.Addr != "" {
		influx, err := simulator.NewInfluxSink(cfg.Simulator.Influx.Addr, cfg.Simulator.Influx.Database)
		if err != nil {
			logger.Warn("influx sink unavailable", slog.Any("error", err))
		} else {
			sink = influx
			defer influx.Close()
		}
	}

	mon = monitor.New(orch, generator, history, monitor.Options{
		Interval:      cfg.Monitor.Interval,
		EventCapacity: cfg.Monitor.EventCapacity,
		StartEnabled:  cfg.Monitor.StartEnabled,
		Sink:          sink,
		Logger:        logger,
	})
	go mon.Run(ctx)

	handlers := api.NewHandlers(logger, mon, orch, history, blobs, catalog.Thresholds(), api.RestartPolicy{
		AutoRestart:        cfg.Healing.AutoRestart,
		MaxRestartAttempts: cfg.Healing.MaxRestartAttempts,
	})
	server := api.NewServer(cfg.Server, handlers, logger)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	persistState(logger, orch, blobs)
	logger.Info("neurocloud-heal stopped")
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "file":
		return store.NewFileStore(cfg.Dir)
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.Path)
	case "valkey":
		return store.NewValkeyStore(store.ValkeyConfig{
			Addr:         cfg.Valkey.Addr,
			Username:     cfg.Valkey.Username,
			Password:     cfg.Valkey.Password,
			DB:           cfg.Valkey.DB,
			DialTimeout:  cfg.Valkey.DialTimeout,
			ReadTimeout:  cfg.Valkey.ReadTimeout,
			WriteTimeout: cfg.Valkey.WriteTimeout,
			MaxRetries:   cfg.Valkey.MaxRetries,
			TLS:          cfg.Valkey.TLS,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// initialiseModel restores a persisted model snapshot, or trains from the
// metric history when enough samples survived a previous run.
func initialiseModel(ctx context.Context, logger *slog.Logger, orch *healing.Orchestrator, blobs store.Store, history *simulator.History) {
	blob, err := blobs.Load(ctx, store.KeyModelSnapshot)
	if err == nil {
		if err := orch.RestoreModel(blob); err != nil {
			logger.Warn("restore model snapshot", slog.Any("error", err))
		} else {
			logger.Info("model restored from snapshot")
			return
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("load model snapshot", slog.Any("error", err))
	}

	corpus := history.Recent(0)
	if err := orch.Train(corpus); err != nil {
		logger.Warn("no trained model yet", slog.Int("history", len(corpus)), slog.Any("error", err))
		return
	}
	if blob, err := orch.SnapshotModel(); err == nil {
		if err := blobs.Save(ctx, store.KeyModelSnapshot, blob); err != nil {
			logger.Warn("persist model snapshot", slog.Any("error", err))
		}
	}
}

func restoreLedger(ctx context.Context, logger *slog.Logger, orch *healing.Orchestrator, blobs store.Store) {
	blob, err := blobs.Load(ctx, store.KeyLedger)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Warn("load healing ledger", slog.Any("error", err))
		return
	}
	if err := orch.RestoreLedger(blob); err != nil {
		logger.Warn("restore healing ledger", slog.Any("error", err))
	}
}

func persistState(logger *slog.Logger, orch *healing.Orchestrator, blobs store.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if blob, err := orch.SnapshotLedger(); err == nil {
		if err := blobs.Save(ctx, store.KeyLedger, blob); err != nil {
			logger.Warn("persist healing ledger", slog.Any("error", err))
		}
	}
	if orch.Trained() {
		if blob, err := orch.SnapshotModel(); err == nil {
			if err := blobs.Save(ctx, store.KeyModelSnapshot, blob); err != nil {
				logger.Warn("persist model snapshot", slog.Any("error", err))
			}
		}
	}
}
