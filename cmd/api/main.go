package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/api"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/audit"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/config"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/face"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/repository"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/service"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/token"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/webhook"
)

const janitorInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLoggerWithFile(cfg.Environment, cfg.LogFile)
	slog.SetDefault(logger)

	logger.Info("starting Liveguard API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("session_store", cfg.SessionStore),
		slog.String("detector", cfg.DetectorType),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to load challenge catalog: %w", err)
	}

	store, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	detector, err := face.NewDetector(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create face detector: %w", err)
	}

	deps := &api.Dependencies{
		Store:    store,
		Catalog:  catalog,
		Tokens:   token.NewResultService(cfg.ResultSigningKey, "liveguard", cfg.ResultTokenTTL),
		Detector: detector,
		Webhook:  webhook.NewService(cfg.WebhookURL, cfg.WebhookSecret),
		Audit:    audit.NewSlogLogger(logger),
		Options: service.Options{
			Preview:          cfg.Preview(),
			Framing:          liveness.FramingMode(cfg.Framing),
			EdgeMargin:       cfg.EdgeMargin,
			TooCloseMargin:   cfg.TooCloseMargin,
			SessionTTL:       cfg.SessionTTL,
			Shuffle:          cfg.ShuffleChallenges,
			FrameMinInterval: cfg.FrameMinInterval,
			CompletionDelay:  cfg.CompletionDelay,
		},
		APIClients:   cfg.APIClients,
		RateLimitMax: cfg.RateLimitMax,
	}

	// Setup router
	router := api.NewRouter(logger, deps)
	router.Setup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if cfg.SessionStore == "memory" {
		g.Go(func() error {
			repository.RunJanitor(gctx, store, janitorInterval, logger.With("component", "session_janitor"))
			return nil
		})
	}

	// Graceful shutdown on signal or server failure
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		done := make(chan error, 1)
		go func() { done <- router.Shutdown() }()

		select {
		case err := <-done:
			if err != nil {
				logger.Error("shutdown error", slog.Any("error", err))
			}
		case <-time.After(10 * time.Second):
			logger.Warn("shutdown timed out")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newSessionStore(ctx context.Context, cfg *config.Config) (repository.SessionStore, func(), error) {
	if cfg.SessionStore != "redis" {
		return repository.NewMemorySessionStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	return repository.NewRedisSessionStore(client, cfg.RedisNamespace), func() { _ = client.Close() }, nil
}
