// Package main is the entrypoint for the crashd API server.
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
	"time"

	"github.com/kiranshivaraju/crashd/internal/api"
	"github.com/kiranshivaraju/crashd/internal/api/handler"
	"github.com/kiranshivaraju/crashd/internal/api/response"
	"github.com/kiranshivaraju/crashd/internal/cache"
	"github.com/kiranshivaraju/crashd/internal/config"
	"github.com/kiranshivaraju/crashd/internal/crash"
	"github.com/kiranshivaraju/crashd/internal/store"
	"github.com/kiranshivaraju/crashd/pkg/models"
	"github.com/urfave/cli/v2"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 30 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("crashd failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "crashd",
		Usage:   "Crash report ingestion and grouping service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (TOML); CRASHD_* env vars override it",
				EnvVars: []string{"CRASHD_CONFIG"},
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Apply migrations and start the HTTP API",
				Action: serveAction,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending database migrations and exit",
				Action: migrateAction,
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, c.String("config"))
}

func migrateAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied", "dir", cfg.Database.MigrationsDir)
	return nil
}

func run(ctx context.Context, configPath string) error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build router with dependencies
	router := newRouter(store.NewPostgresStore(pool), redisCache, cfg.Cache.GroupTTL)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newRouter wires the crash pipeline and read model onto the HTTP routes.
func newRouter(st store.Store, c cache.Cache, groupTTL time.Duration) http.Handler {
	ingestor := crash.NewIngestor(st,
		crash.WithGroupCache(c),
		crash.WithLogger(slog.Default().With("component", "ingest")),
	)
	groups := handler.NewCrashGroups(st, c, groupTTL)

	return api.NewRouter(api.Dependencies{
		HealthHandler: healthHandler(st, c),

		CreateCrashReport: handler.NewCreateCrashReportHandler(ingestor),
		RegisterSession:   handler.NewRegisterSessionHandler(ingestor.Sessions()),

		ListCrashGroups:  groups.List,
		GetCrashGroup:    groups.Get,
		UpdateCrashGroup: groups.Update,
		ListGroupReports: groups.Reports,
	})
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":    "ok",
			"timestamp": models.FormatTimestamp(time.Now()),
			"services":  checks,
		})
	}
}
