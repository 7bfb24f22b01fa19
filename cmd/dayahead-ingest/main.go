// Command dayahead-ingest runs the ENTSO-E day-ahead price ingestion
// service: scheduled fetches, gap backfill, and a read-only HTTP API over
// persisted prices.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/entsoeprices/dayahead/migrations"
	"github.com/entsoeprices/dayahead/pkg/backfill"
	"github.com/entsoeprices/dayahead/pkg/client"
	"github.com/entsoeprices/dayahead/pkg/config"
	"github.com/entsoeprices/dayahead/pkg/log"
	"github.com/entsoeprices/dayahead/pkg/orchestrator"
	"github.com/entsoeprices/dayahead/pkg/repository"
	"github.com/entsoeprices/dayahead/pkg/scheduler"
	"github.com/entsoeprices/dayahead/pkg/server"
	"github.com/entsoeprices/dayahead/pkg/telemetry/prom"
	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := config.LocalConfigPathFlag()

	lflag.Configure()

	var level slog.Level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.With(ctx, logger)

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	repo, err := repository.Open(repository.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.ConnectTimeout() * 6,
		ConnectTimeout:  cfg.ConnectTimeout(),
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close database pool", "error", err)
		}
	}()

	if err := runMigrations(ctx, cfg.Database.URL); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to apply migrations", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	sink := prom.New("dayahead", registry)

	entsoeClient := client.New(client.Config{
		BaseURL:         cfg.Entsoe.BaseURL,
		SecurityToken:   cfg.Entsoe.SecurityToken,
		RateLimitPerMin: cfg.Entsoe.RateLimitPerMinute,
		Timeout:         cfg.EntsoeTimeout(),
	}, sink)

	orch := orchestrator.New(repo, entsoeClient, sink)
	bf := backfill.New(repo, entsoeClient, sink)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		primary := func(ctx context.Context) error {
			_, err := orch.FetchAllPrices(ctx)
			return err
		}
		retry := func(ctx context.Context) error {
			_, err := orch.FetchTomorrowIfMissing(ctx)
			return err
		}
		sched, err = scheduler.New(primary, retry, sink)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to configure scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start()
		defer sched.Stop(context.Background())
	}

	srv := server.New(server.Config{
		ListenAddr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ServerName: "dayahead-ingest",
	}, repo, orch, bf, registry)

	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}

// runMigrations opens a short-lived plain database/sql connection to apply
// the embedded schema, independent of the sqlx pool the repository uses
// for steady-state traffic.
func runMigrations(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrations.Apply(ctx, db)
}
