package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/incident-triage-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/incident-triage-service/internal/adapter/kafka"
	"github.com/couchcryptid/incident-triage-service/internal/adapter/mapbox"
	"github.com/couchcryptid/incident-triage-service/internal/adapter/memory"
	"github.com/couchcryptid/incident-triage-service/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/incident-triage-service/internal/adapter/redis"
	"github.com/couchcryptid/incident-triage-service/internal/config"
	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/fanout"
	"github.com/couchcryptid/incident-triage-service/internal/lifecycle"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/couchcryptid/incident-triage-service/internal/pipeline"
	"github.com/couchcryptid/incident-triage-service/internal/scoring"
	"github.com/couchcryptid/incident-triage-service/internal/trust"
	"github.com/couchcryptid/incident-triage-service/internal/zone"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks readinessGroup
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Storage backend.
	var (
		incidents  lifecycle.Store
		trustStore trust.Store
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		closers = append(closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		incidents = postgres.NewIncidentStore(db)
		trustStore = postgres.NewTrustStore(db)
		checks = append(checks, db)
		logger.Info("using postgres store")
	default:
		incidents = memory.NewIncidentStore()
		trustStore = memory.NewTrustStore()
		logger.Info("using in-memory store")
	}

	// Zone message fan-out backend.
	var feeds fanout.Store
	switch cfg.FanoutBackend {
	case config.BackendRedis:
		rs := redisadapter.NewFeedStore(cfg.RedisAddr, cfg.FanoutHistory, logger)
		closers = append(closers, func() {
			if err := rs.Close(); err != nil {
				logger.Error("redis close error", "error", err)
			}
		})
		feeds = rs
		checks = append(checks, rs)
		logger.Info("using redis fan-out", "addr", cfg.RedisAddr)
	default:
		feeds = memory.NewFeedStore(cfg.FanoutHistory)
	}

	// Reverse geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled, using latitude bands")
	}

	for _, name := range cfg.DisasterZones {
		if _, ok := zone.Canonical(name); !ok {
			logger.Warn("ignoring unknown district in DISASTER_ZONES", "district", name)
		}
	}

	ledger := trust.NewLedger(trustStore, logger)
	engine := scoring.NewEngine(
		ledger,
		zone.NewProfiles(cfg.DisasterZones),
		scoring.NewContextModel(cfg.Location),
		cfg.DependencyTimeout,
		logger,
		metrics,
	)
	resolver := zone.NewResolver(geocoder, cfg.DependencyTimeout, logger, metrics)

	opts := []lifecycle.Option{lifecycle.WithDependencyTimeout(cfg.DependencyTimeout)}
	var verdicts *pipeline.Pipeline
	var reader *kafkaadapter.Reader
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		closers = append(closers, func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		})
		opts = append(opts, lifecycle.WithEventPublisher(writer))
		reader = kafkaadapter.NewReader(cfg, logger)
	}

	svc := lifecycle.NewService(incidents, ledger, engine, resolver, logger, metrics, opts...)
	router := fanout.NewRouter(feeds, logger, metrics,
		fanout.WithHub(fanout.NewHub(fanout.DefaultListenerBuffer, logger)),
		fanout.WithDependencyTimeout(cfg.DependencyTimeout),
	)

	if reader != nil {
		verdicts = pipeline.New(reader, pipeline.NewTransformer(logger), pipeline.NewLoader(svc, logger, metrics), logger, metrics, cfg.BatchSize)
		checks = append(checks, verdicts)
		logger.Info("kafka enabled", "events_topic", cfg.KafkaEventsTopic, "outcomes_topic", cfg.KafkaOutcomesTopic)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, router, checks, logger, metrics)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	pipelineDone := make(chan struct{})
	if verdicts != nil {
		go func() {
			defer close(pipelineDone)
			if err := verdicts.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		close(pipelineDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		stop()
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}

// readinessGroup is ready when every member is.
type readinessGroup []sharedobs.ReadinessChecker

func (g readinessGroup) CheckReadiness(ctx context.Context) error {
	for _, c := range g {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
