package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/haulware/dispatch-task-service/internal/adapter/gemini"
	"github.com/haulware/dispatch-task-service/internal/adapter/googleaddr"
	httpadapter "github.com/haulware/dispatch-task-service/internal/adapter/http"
	kafkaadapter "github.com/haulware/dispatch-task-service/internal/adapter/kafka"
	"github.com/haulware/dispatch-task-service/internal/adapter/loctracker"
	"github.com/haulware/dispatch-task-service/internal/adapter/sqlite"
	"github.com/haulware/dispatch-task-service/internal/buffer"
	"github.com/haulware/dispatch-task-service/internal/config"
	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
	"github.com/haulware/dispatch-task-service/internal/processor"
	"github.com/haulware/dispatch-task-service/internal/reconcile"
	"github.com/haulware/dispatch-task-service/internal/resolver"
)

// storeReadiness adapts the store's ping to the HTTP readiness check.
type storeReadiness struct {
	store *sqlite.Store
}

func (r *storeReadiness) CheckReadiness(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	store, err := sqlite.NewStore(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Collaborators are feature-flagged by their credentials; anything
	// unconfigured leaves its routes answering 503.
	var validator domain.AddressValidator
	if cfg.GoogleAPIKey != "" {
		validator = googleaddr.NewClient(cfg.GoogleAPIKey, cfg.GoogleTimeout, logger, metrics)
		logger.Info("address validation enabled", "timeout", cfg.GoogleTimeout)
	} else {
		logger.Info("address validation disabled")
	}

	var extractor domain.OrderExtractor
	if cfg.GeminiAPIKey != "" {
		extractor = gemini.NewExtractor(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GoogleTimeout, logger, metrics)
		logger.Info("document extraction enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("document extraction disabled")
	}

	var dispatcher domain.Dispatcher
	if cfg.LocTrackerBaseURL != "" {
		dispatcher = loctracker.NewClient(cfg.LocTrackerBaseURL, cfg.LocTrackerUsername, cfg.LocTrackerPassword, cfg.LocTrackerTimeout, logger, metrics)
		logger.Info("task dispatch enabled", "timeout", cfg.LocTrackerTimeout)
	} else {
		logger.Info("task dispatch disabled")
	}

	var publisher domain.EventPublisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, logger)
		publisher = kafkaPublisher
		logger.Info("event stream enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaEventsTopic)
	} else {
		logger.Info("event stream disabled")
	}

	buffers := buffer.NewSet(store, cfg.BufferThreshold, logger, metrics)
	res := resolver.New(store, buffers, validator, publisher, cfg.CoordinateEpsilon, logger, metrics)

	var proc *processor.Processor
	var rec *reconcile.Reconciler
	if dispatcher != nil {
		proc = processor.New(res, dispatcher, publisher, logger, metrics)
		rec = reconcile.New(res, dispatcher, cfg.ReconcileChunkSize, logger, metrics)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, &storeReadiness{store: store}, res, proc, rec, extractor, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	// Drain everything below the buffer threshold before exit.
	if err := res.FlushAll(shutdownCtx); err != nil {
		logger.Error("final flush error", "error", err)
	}

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
