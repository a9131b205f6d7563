package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantpipe/tickfeed/internal/analysis"
	"github.com/quantpipe/tickfeed/internal/bus"
	"github.com/quantpipe/tickfeed/internal/config"
	"github.com/quantpipe/tickfeed/internal/database"
	"github.com/quantpipe/tickfeed/internal/feed"
	"github.com/quantpipe/tickfeed/internal/ingest"
	"github.com/quantpipe/tickfeed/internal/pool"
	"github.com/quantpipe/tickfeed/internal/store"
	"github.com/quantpipe/tickfeed/internal/universe"
	"github.com/quantpipe/tickfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.Feed.WSURL,
		"slots", len(cfg.Slots),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	db, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("database connected")

	barStore := store.NewPGStore(db, logger)
	resolver := universe.NewPGResolver(db, cfg.Ingest.UniverseCacheTTL, logger)

	// Event bus for advisory events (analysis completions, detector alerts)
	events := bus.New(cfg.Ingest.BusBufferSize)
	defer events.Close()
	go logBusEvents(events.Subscribe(), logger)

	// Analysis scheduler: bounded queue, fixed worker pool
	analyzer := analysis.NewMomentumAnalyzer(barStore, 0, 0, logger)
	scheduler := analysis.NewScheduler(analysis.SchedulerConfig{
		Workers:   cfg.Ingest.AnalysisWorkers,
		QueueSize: cfg.Ingest.AnalysisQueueSize,
	}, analyzer, events, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start analysis scheduler", "error", err)
		os.Exit(1)
	}

	// Ingestion pipeline
	var detector ingest.Detector
	if cfg.Ingest.DetectorEnabled {
		detector = ingest.NewJumpDetector(cfg.Ingest.DetectorThreshold, events, logger)
	}
	pipeline := ingest.NewPipeline(ingest.PipelineConfig{
		Store:        barStore,
		Detector:     detector,
		Scheduler:    scheduler,
		Logger:       logger,
		WriteTimeout: cfg.Ingest.WriteTimeout,
	})
	defer pipeline.Close()

	// Connection pool
	slots := make([]pool.Slot, 0, len(cfg.Slots))
	for _, s := range cfg.Slots {
		slots = append(slots, pool.Slot{
			Enabled:   s.Enabled,
			Name:      s.Name,
			Universes: s.Universes,
			Symbols:   s.Symbols,
		})
	}

	manager := pool.NewManager(pool.Config{
		Client: feed.ClientConfig{
			URL:                cfg.Feed.WSURL,
			APIKey:             cfg.Feed.APIKey,
			AuthTimeout:        cfg.Feed.AuthTimeout,
			WriteTimeout:       cfg.Feed.WriteTimeout,
			ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
			MaxReconnects:      cfg.Feed.MaxReconnects,
		},
		Slots:  slots,
		OnTick: pipeline.HandleTick,
		OnStatus: func(connID int, s feed.StatusUpdate) {
			logger.Info("connection status",
				"conn_id", connID,
				"status", s.Status,
				"message", s.Message,
			)
		},
	}, resolver, logger)

	// Start health server early so connect progress is observable
	healthPort := cfg.Health.Port
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: createHealthHandler(cfg.Health.Path, db, manager, pipeline, scheduler),
	}

	go func() {
		logger.Info("starting health server", "port", healthPort)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	// Connect the pool. Best-effort: one live connection is enough to run.
	logger.Info("connecting feed pool", "slots", len(slots))
	if err := manager.Connect(ctx); err != nil {
		logger.Error("no feed connections established", "error", err)
		os.Exit(1)
	}

	health := manager.HealthStatus()
	logger.Info("gatherer running",
		"instance_id", cfg.Instance.ID,
		"connections", health.ConnectedCount,
		"configured", health.TotalConnections,
		"health_url", fmt.Sprintf("http://localhost:%d%s", healthPort, cfg.Health.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	// Stop intake first, then drain analysis, then close the HTTP surface.
	manager.Disconnect()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	scheduler.Stop(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	logger.Info("gatherer stopped")
}

// logBusEvents drains the advisory event stream into the log.
func logBusEvents(events <-chan bus.Event, logger *slog.Logger) {
	for e := range events {
		logger.Debug("bus event",
			"topic", e.Topic,
			"ticker", e.Ticker,
			"fields", e.Fields,
		)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// createHealthHandler serves a JSON health document assembled from the
// pool, the pipeline and the database.
func createHealthHandler(path string, db pinger, manager *pool.Manager, pipeline *ingest.Pipeline, scheduler *analysis.Scheduler) http.Handler {
	if path == "" {
		path = "/health"
	}
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check pool
		ph := manager.HealthStatus()
		health.Components["pool"] = ph
		if ph.ConnectedCount == 0 {
			health.Status = "degraded"
		}

		// Pipeline and scheduler counters
		health.Components["ingest"] = pipeline.Health()
		health.Components["analysis"] = scheduler.Stats()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/connections", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(manager.HealthStatus().Connections)
	})

	return mux
}
