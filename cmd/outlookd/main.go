package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/archive"
	httpadapter "github.com/couchcryptid/spc-outlook-etl/internal/adapter/http"
	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/iem"
	kafkaadapter "github.com/couchcryptid/spc-outlook-etl/internal/adapter/kafka"
	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/spc-outlook-etl/internal/config"
	"github.com/couchcryptid/spc-outlook-etl/internal/observability"
	"github.com/couchcryptid/spc-outlook-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	store, closeStore, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open archive store", "error", err)
		os.Exit(1)
	}

	fetcher := archive.NewCachingFetcher(iem.NewClient(cfg, logger, metrics), store, logger, metrics)
	p := pipeline.New(fetcher, shapefile.NewDecoder(logger), logger, metrics, cfg.ExtractWorkers)
	writer := kafkaadapter.NewWriter(cfg, logger)
	poller := pipeline.NewPoller(p, writer, cfg.PollProducts, cfg.PollInterval, clockwork.NewRealClock(), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, poller, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start poller.
	go func() {
		if err := poller.Run(ctx); err != nil {
			logger.Error("poller error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := closeStore(); err != nil {
		logger.Error("archive store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newStore builds the configured archive store behind the in-memory tier.
func newStore(cfg *config.Config, logger *slog.Logger) (archive.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.ArchiveStore {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rs := archive.NewRedisStore(client, cfg.RedisTTL)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		logger.Info("archive store ready", "store", config.StoreRedis, "addr", cfg.RedisAddr, "memory_entries", cfg.ArchiveMemoryEntries)
		return archive.NewLRUStore(rs, cfg.ArchiveMemoryEntries), client.Close, nil
	default:
		logger.Info("archive store ready", "store", config.StoreFS, "dir", cfg.ArchiveDir, "memory_entries", cfg.ArchiveMemoryEntries)
		return archive.NewLRUStore(archive.NewFSStore(cfg.ArchiveDir), cfg.ArchiveMemoryEntries), noop, nil
	}
}
