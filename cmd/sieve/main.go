package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	httpadapter "github.com/couchcryptid/citysieve/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/citysieve/internal/adapter/kafka"
	"github.com/couchcryptid/citysieve/internal/app"
	"github.com/couchcryptid/citysieve/internal/config"
	"github.com/couchcryptid/citysieve/internal/observability"
	"github.com/couchcryptid/citysieve/internal/pipeline"
)

// alwaysReady reports ready when no search worker is running.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	stack := app.NewStack(cfg, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		ready  sharedobs.ReadinessChecker = alwaysReady{}
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
		opts   []pipeline.SearcherOption
	)

	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, pipeline.WithPublisher(writer))

		// The worker publishes through the loader, not the searcher.
		worker := stack.Searcher(cfg, logger, metrics)
		p := pipeline.New(reader, pipeline.NewTransformer(worker, logger), writer, logger, metrics, cfg.BatchSize, cfg.SearchConcurrency)
		ready = p

		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("search worker error", "error", err)
			}
		}()
		logger.Info("search worker started", "topic", cfg.KafkaRequestTopic, "concurrency", cfg.SearchConcurrency)
	}

	searcher := stack.Searcher(cfg, logger, metrics, opts...)
	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, searcher, logger)

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
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
