package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/example/carpool-matching/internal/booking"
	"github.com/example/carpool-matching/internal/config"
	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/geocode"
	httpapi "github.com/example/carpool-matching/internal/http"
	"github.com/example/carpool-matching/internal/ingest"
	"github.com/example/carpool-matching/internal/logging"
	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/notify"
	"github.com/example/carpool-matching/internal/payments"
	"github.com/example/carpool-matching/internal/storage"
)

const migrationFile = "001_create_trips.sql"

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	var store storage.TripStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer ps.Close()
		if cfg.RunMigrations {
			if err := migrate(ctx, ps, logger); err != nil {
				return err
			}
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set; trips are kept in memory")
		store = storage.NewMemoryStore()
	}

	var history storage.HistoryStore = storage.NewMemoryHistoryStore()
	if cfg.MongoURI != "" {
		client, err := storage.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer disconnectMongo(client, logger)
		hs := storage.NewMongoHistoryStore(client, cfg.MongoDatabase)
		if err := hs.EnsureIndexes(ctx); err != nil {
			return err
		}
		history = hs
	}

	var index geo.TripIndex
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		index = geo.NewRedisIndex(rc, cfg.RedisGeoKey)
	} else {
		index = geo.NewIndex()
	}

	m := &matcher.Service{
		Index:          index,
		Store:          store,
		Geocoder:       geocode.NewStatic(),
		Logger:         logger,
		RadiusKm:       cfg.SearchRadiusKm,
		CandidateLimit: cfg.CandidateLimit,
		TopN:           cfg.MatcherTopN,
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		m.Publisher = kp
	}

	wsreg := notify.NewWSRegistry()
	hub := notify.NewHub(logger)

	b := &booking.Service{
		Store:    store,
		History:  history,
		Notifier: hub,
		Currency: cfg.Currency,
		Logger:   logger,
	}
	if cfg.StripeAPIKey != "" {
		b.Payments = payments.NewStripeClient(cfg.StripeAPIKey)
	} else {
		logger.Warn("STRIPE_API_KEY not set; bookings are not charged")
	}

	api := httpapi.NewServer(httpapi.Deps{
		Matcher:  m,
		Bookings: b,
		Store:    store,
		History:  history,
		Hub:      hub,
		WSReg:    wsreg,

		MinDriverRating: cfg.MinDriverRating,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("carpool-matching listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrate(ctx context.Context, ps *storage.PostgresStore, logger *slog.Logger) error {
	b, err := os.ReadFile(filepath.Join("migrations", migrationFile))
	if err != nil {
		return err
	}
	if _, err := ps.DB().ExecContext(ctx, string(b)); err != nil {
		return err
	}
	logger.Info("migration applied", "file", migrationFile)
	return nil
}

func disconnectMongo(c *mongo.Client, logger *slog.Logger) {
	if err := c.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect failed", "error", err)
	}
}
