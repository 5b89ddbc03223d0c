package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-hailing/internal/accounts"
	"github.com/example/ride-hailing/internal/config"
	"github.com/example/ride-hailing/internal/events"
	"github.com/example/ride-hailing/internal/fare"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/history"
	httpapi "github.com/example/ride-hailing/internal/http"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/matcher"
	"github.com/example/ride-hailing/internal/storage"
	"github.com/example/ride-hailing/internal/trips"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("ride-hailing", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if cfg.PGDSN != "" && cfg.RunMigrations {
		migrate(cfg.PGDSN, logger)
	}

	store := storage.NewMemoryStore()

	var archive storage.TripArchive
	if cfg.PGDSN != "" {
		pa, err := storage.NewPostgresArchive(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres archive disabled", "error", err)
		} else {
			defer pa.Close()
			archive = pa
		}
	}

	var g geo.Geo = geo.NewIndex()
	if cfg.RedisAddr != "" {
		rg := geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		defer rg.Close()
		g = rg
	}

	var pub events.Publisher = events.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaTripTopic)
		defer kp.Close()
		pub = kp
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Accounts: accounts.NewService(accounts.Deps{Store: store, Geo: g, Events: pub, Logger: logger}),
		Trips: trips.NewService(trips.Deps{
			Store:   store,
			Matcher: matcher.NewService(store, logger),
			Fares:   fare.NewEstimator(cfg.FareNominalKm),
			Archive: archive,
			Events:  pub,
			Logger:  logger,
		}),
		History:     history.NewService(store),
		Geo:         g,
		Logger:      logger,
		NearbyLimit: cfg.NearbyLimit,
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-hailing listening", "addr", cfg.HTTPAddr, "redis", cfg.RedisAddr != "", "kafka", len(cfg.KafkaBrokers) > 0, "postgres", archive != nil)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}

// migrate applies migrations/001_create_trips.sql. Failures are logged and
// the server keeps running without the archive table.
func migrate(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_trips.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_trips.sql")
}
