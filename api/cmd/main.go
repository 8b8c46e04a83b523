package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/audit"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/infrastructure/memory"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/infrastructure/postgres"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/infrastructure/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/infrastructure/redis"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/security"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}
	logger.Init()
	log := logger.Logger.With().
		Str("service", "waitlist-service").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Store ----
	var (
		store domain.WaitlistStore
		inbox rabbitmq.Inbox
		ready func(ctx context.Context) error
		repo  *postgres.Repository
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		mem := memory.New()
		mem.OutboxLimit = cfg.MemoryOutboxLimit
		store, inbox = mem, mem
		log.Warn().Msg("using in-memory store (dev/test only); state is lost on restart")
		if cfg.RetentionEnabled {
			mem.StartRetentionCleanup(rootCtx, cfg.RetentionPeriod, time.Hour)
		}

	default:
		dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres pool create failed")
		}
		defer dbPool.Close()

		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		err = dbPool.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")

		if cfg.MigrateOnStart {
			v, err := postgres.Migrate(cfg.DBDSN)
			if err != nil {
				log.Fatal().Err(err).Msg("migrations failed")
			}
			log.Info().Uint("schema_version", v).Msg("migrations applied")
		}

		repo = postgres.New(dbPool)
		store, inbox, ready = repo, repo, dbPool.Ping
	}

	// ---- Redis (optional) ----
	var cache domain.EventCache
	if cfg.RedisEnabled {
		rc := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.CacheEventTTL)
		defer rc.Client.Close()

		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing; cache and rate limit fail open)")
		} else {
			log.Info().Msg("redis connected")
		}
		cancel()
		cache = rc
	}

	// ---- Application service ----
	opts := []service.Option{service.WithAudit(audit.New(logger.Logger))}
	if cache != nil {
		opts = append(opts, service.WithCache(cache))
	}
	svc := service.NewLotteryService(store, opts...)

	verifier := security.NewHS256Verifier(cfg.JWTSecret, security.WithIssuer(cfg.JWTIssuer))

	httpHandler := rest.NewRouter(rest.RouterDeps{
		Cache:            cache,
		Handler:          rest.NewHandler(svc),
		Verifier:         verifier,
		JWTIssuer:        cfg.JWTIssuer,
		RateLimitEnabled: cfg.RLEnabled,
		RateLimit:        cfg.RLLimit,
		RateWindow:       cfg.RLWindow,
		DrawLimit:        cfg.DrawRLLimit,
		DrawWindow:       cfg.DrawRLWindow,
		Ready:            ready,
	})

	// ---- Inbound event snapshots ----
	if cfg.ConsumerEnabled {
		consumer := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitExchange, cfg.RabbitQueue, svc, inbox)
		if err := consumer.Start(rootCtx); err != nil {
			log.Error().Err(err).Msg("rabbitmq consumer start failed (continuing without snapshots)")
		}
	}

	// ---- Background workers (Postgres only) ----
	if repo != nil {
		if cfg.OutboxEnabled {
			repo.StartOutboxWorker(rootCtx, cfg.RabbitURL, cfg.RabbitExchange)
			log.Info().Msg("outbox worker started")
		}
		if cfg.RetentionEnabled {
			repo.StartRetentionCleanup(rootCtx, cfg.RetentionPeriod, time.Hour)
			log.Info().Dur("retention", cfg.RetentionPeriod).Msg("retention cleanup started")
		}
	}

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("store", cfg.StoreBackend).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	log.Info().Msg("shutdown complete")
}
