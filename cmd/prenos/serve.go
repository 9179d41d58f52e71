package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/prenos/internal/api"
	"github.com/erazemk/prenos/internal/auth"
	"github.com/erazemk/prenos/internal/config"
	"github.com/erazemk/prenos/internal/events"
	"github.com/erazemk/prenos/internal/lock"
	"github.com/erazemk/prenos/internal/scheduler"
	"github.com/erazemk/prenos/internal/store"
	"github.com/erazemk/prenos/internal/transfer"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the transfer scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *cfgFile)
			if err != nil {
				return err
			}

			closeLog, err := setupLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringP("addr", "a", "", "listen address (default: :8080)")
	_ = v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	database, err := openDatabase(cfg.DB, cfg.AdminUser)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("database ready", "path", cfg.DB)

	// Load JWT secret from database (auto-generated on first run).
	secret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	lockStore, closeLocks, err := newLockStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocks()

	bus := events.NewBus(0, slog.Default())
	bus.Subscribe(events.LogNotifier(slog.Default()))

	svc := transfer.NewService(database,
		lock.NewAssetLocks(lockStore, cfg.Lock.TTL),
		lock.NewGuard(lockStore),
		bus,
		transfer.Options{
			UndoWindow:  cfg.Undo.Window,
			MaxAttempts: cfg.Scheduler.MaxAttempts,
		},
	)

	sched := scheduler.New(database, svc, scheduler.Config{
		Interval:    cfg.Scheduler.Interval,
		Workers:     cfg.Scheduler.Workers,
		MaxAttempts: cfg.Scheduler.MaxAttempts,
		Backoff:     cfg.Scheduler.Backoff,
		Lease:       cfg.Scheduler.Lease,
	}, slog.Default())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(database, svc, auth.NewTokens(secret, cfg.TokenTTL))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		slog.Info("server started", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("server stopped, closing database")
	return err
}

// newLockStore connects the configured lock backend. The returned function
// releases its resources.
func newLockStore(ctx context.Context, cfg *config.Config) (lock.Store, func(), error) {
	if cfg.Lock.Backend != config.LockRedis {
		slog.Info("using in-process lock store")
		return lock.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}

	slog.Info("using redis lock store", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return lock.NewRedisStore(client), func() {
		if err := client.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}, nil
}
