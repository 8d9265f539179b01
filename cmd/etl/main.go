package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/firms-detection-etl/internal/adapter/firms"
	httpadapter "github.com/couchcryptid/firms-detection-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/firms-detection-etl/internal/adapter/kafka"
	"github.com/couchcryptid/firms-detection-etl/internal/config"
	"github.com/couchcryptid/firms-detection-etl/internal/observability"
	"github.com/couchcryptid/firms-detection-etl/internal/pipeline"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := firms.NewClient(cfg.FIRMSBaseURL, cfg.FIRMSMapKey, cfg.FIRMSTimeout, logger, metrics)
	if cfg.FIRMSMapKey == "" {
		logger.Warn("FIRMS_MAP_KEY not set, country queries and account status are disabled")
	}

	builder := pipeline.NewBuilder(client, pipeline.BuilderConfig{
		CacheSize:        cfg.CacheSize,
		CacheTTL:         cfg.CacheTTL,
		FallbackCentroid: cfg.FallbackCentroid,
	}, logger, metrics)
	logger.Info("result cache configured", "cache_size", cfg.CacheSize, "cache_ttl", cfg.CacheTTL,
		"fallback_centroid", cfg.FallbackCentroid != nil)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(client, builder, logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize,
		pipeline.WithConcurrency(cfg.BuildConcurrency))

	srv := httpadapter.NewServer(cfg.HTTPAddr, observability.AllReady(p, reader), httpadapter.API{
		Builder:      builder,
		FIRMS:        client,
		SourcePrefix: cfg.FIRMSBaseURL + "/",
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return p.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
		exitCode = 1
	}

	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
	os.Exit(exitCode)
}
