package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/jointaccount/internal/config"
	"github.com/congo-pay/jointaccount/internal/events"
	"github.com/congo-pay/jointaccount/internal/infra"
	"github.com/congo-pay/jointaccount/internal/logging"
	"github.com/congo-pay/jointaccount/internal/notification"
	"github.com/congo-pay/jointaccount/internal/server"
)

const relayCursorKey = "ledger:relay:cursor"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "app", cfg.AppName, "env", cfg.AppEnv)

	if err := run(cfg, logger); err != nil {
		logger.Error("exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := infra.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		db = pool
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		cache = client
	}

	srv, err := server.New(cfg, db, cache, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	relay := newRelay(cfg, srv, db != nil, cache, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Address())
		return srv.Listen()
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newRelay forwards to the Redis stream only when the log is durable: an
// in-memory ledger restarts at seq 1 and would collide with stored entries.
func newRelay(cfg config.Config, srv *server.Server, durable bool, cache *redis.Client, logger *slog.Logger) *events.Relay {
	sinks := []events.Sink{events.NewNotifierSink(notification.NewLoggerNotifier(logger))}
	var cursor events.CursorStore = &events.MemoryCursor{}
	if durable && cache != nil {
		sinks = append(sinks, events.NewStreamSink(cache, cfg.EventStream, cfg.EventStreamMaxLen))
		cursor = events.NewRedisCursor(cache, relayCursorKey)
	}
	return events.NewRelay(srv.Ledger(), cursor, sinks, logger, events.WithInterval(cfg.EventPollInterval))
}
