package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dunamismax/pixelfn/internal/api"
	"github.com/dunamismax/pixelfn/internal/config"
	"github.com/dunamismax/pixelfn/internal/pipeline"
	"github.com/dunamismax/pixelfn/internal/ratelimit"
	"github.com/dunamismax/pixelfn/internal/storage"
	"github.com/dunamismax/pixelfn/internal/store"
	"github.com/dunamismax/pixelfn/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pixelfn-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Tracing.ServiceName, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown failed")
		}
	}()

	acct, err := storage.ParseConnectionString(cfg.Storage.ConnectionString)
	if err != nil {
		return err
	}
	blobs, err := storage.Open(ctx, acct)
	if err != nil {
		return fmt.Errorf("open blob storage: %w", err)
	}
	logs, err := store.Open(ctx, acct.TableEndpoint)
	if err != nil {
		return fmt.Errorf("open log store: %w", err)
	}
	defer func() {
		if err := logs.Close(); err != nil {
			logger.Error().Err(err).Msg("log store close failed")
		}
	}()

	if cfg.Storage.EnsureContainers {
		if err := ensureResources(ctx, logger, cfg.Storage, blobs, logs); err != nil {
			return err
		}
	}

	if err := pipeline.Startup(); err != nil {
		return fmt.Errorf("start image runtime: %w", err)
	}
	defer pipeline.Shutdown()

	processor, err := pipeline.NewProcessor(pipeline.Config{
		SourceContainer: cfg.Storage.SourceContainer,
		DestContainer:   cfg.Storage.DestContainer,
		LogTable:        cfg.Storage.LogTable,
	}, blobs, logs, pipeline.NewCodec(), acct)
	if err != nil {
		return fmt.Errorf("build processor: %w", err)
	}

	var opts []api.Option
	if cfg.RateLimit.Enabled() {
		redisClient := redis.NewClient(cfg.RateLimit.RedisOptions())
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("redis client close failed")
			}
		}()
		limiter, err := ratelimit.NewTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			return fmt.Errorf("build rate limiter: %w", err)
		}
		opts = append(opts, api.WithRateLimiter(limiter, cfg.RateLimit.UserIDHeader))
		logger.Info().
			Str("redis_addr", cfg.RateLimit.RedisAddr).
			Int("capacity", cfg.RateLimit.Capacity).
			Dur("window", cfg.RateLimit.Window).
			Msg("rate limiting enabled")
	}

	app := api.NewServer(logger, processor, opts...)
	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.API.Addr).
			Str("provider", acct.Provider).
			Str("blob_base_url", acct.BlobBaseURL()).
			Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func ensureResources(ctx context.Context, logger zerolog.Logger, cfg config.StorageConfig, blobs storage.Store, logs store.LogStore) error {
	for _, container := range []string{cfg.SourceContainer, cfg.DestContainer} {
		if err := blobs.EnsureContainer(ctx, container); err != nil {
			return fmt.Errorf("ensure container %s: %w", container, err)
		}
	}
	if err := logs.EnsureTable(ctx, cfg.LogTable); err != nil {
		return fmt.Errorf("ensure log table %s: %w", cfg.LogTable, err)
	}
	logger.Debug().Strs("containers", []string{cfg.SourceContainer, cfg.DestContainer}).Str("table", cfg.LogTable).Msg("storage resources ready")
	return nil
}
