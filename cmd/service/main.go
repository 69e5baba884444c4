// cmd/service/main.go
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

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"package-health/internal/api"
	"package-health/internal/config"
	"package-health/internal/database"
	"package-health/internal/fetch"
	"package-health/internal/github"
	"package-health/internal/npm"
	"package-health/internal/report"
	"package-health/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations, if configured
	var dbpool *pgxpool.Pool
	if cfg.DBURL != "" {
		dbpool, err = pgxpool.New(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbpool.Close()
		logger.Info("Database connection established")

		if err := database.Migrate(cfg.DBURL); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		logger.Info("Database migrations applied successfully")
	} else {
		logger.Info("DB_URL not set; snapshot history and tracking are disabled")
	}

	// 5. Initialize application components
	app, err := newApp(cfg, dbpool, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// 6. Start the tracker and the HTTP server
	if app.tracker != nil {
		g.Go(func() error {
			app.tracker.Start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// 7. Wait for shutdown signal
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received. Draining connections.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type app struct {
	router  http.Handler
	getter  *fetch.Client
	reports *report.Service
	tracker *tracker.Tracker
}

// Close releases the shared HTTP client.
func (a *app) Close() {
	a.getter.Close()
}

// newApp wires clients, the report service, the tracker and the router.
// dbpool may be nil.
func newApp(cfg *config.Config, dbpool *pgxpool.Pool, logger *slog.Logger) (_ *app, err error) {
	getter := fetch.New(fetch.WithTimeout(cfg.RequestTimeout))
	defer func() {
		if err != nil {
			getter.Close()
		}
	}()
	registry := npm.NewClient(cfg.NpmRegistryURL, cfg.NpmDownloadsURL, getter, logger)

	ghClient, err := github.NewClient(cfg.GithubToken, cfg.GithubAPIURL, cfg.RequestTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	if cfg.GithubToken == "" {
		logger.Warn("GITHUB_TOKEN not set; GitHub requests are limited to 60 per hour")
	}

	a := &app{getter: getter, reports: report.NewService(registry, ghClient, logger)}

	var querier database.Querier
	if dbpool != nil {
		querier = database.New(dbpool)
		if len(cfg.WatchPackages) > 0 {
			a.tracker, err = tracker.NewTracker(dbpool, a.reports, logger, cfg.WatchPackages, cfg.RefreshInterval, cfg.TrackerConcurrency)
			if err != nil {
				return nil, fmt.Errorf("failed to create tracker: %w", err)
			}
		}
	}

	a.router = api.NewRouter(registry, ghClient, a.reports, querier, logger, api.WithUpstreamStatus(getter))
	return a, nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
