/**
 * @description
 * This is the main entry point for the referral-service. It loads
 * configuration, connects to PostgreSQL, Redis and RabbitMQ, bootstraps the
 * schema and genesis account, wires the reward ledger, payment verifier and
 * HTTP router, and starts the scheduler and HTTP server.
 *
 * @dependencies
 * - github.com/joho/godotenv: local .env loading.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: distributed rate limiting.
 * - go.uber.org/zap: structured logging.
 * - internal/api, internal/app, internal/config, internal/store: service packages.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/algoadopt/referral-service/internal/api"
	"github.com/algoadopt/referral-service/internal/app"
	"github.com/algoadopt/referral-service/internal/config"
	"github.com/algoadopt/referral-service/internal/store"
	"github.com/algoadopt/referral-service/pkg/algoindexer"
	"github.com/algoadopt/referral-service/pkg/identity"
	"github.com/algoadopt/referral-service/pkg/logging"
	"github.com/algoadopt/referral-service/pkg/rabbitmq"
	"github.com/algoadopt/referral-service/pkg/ratelimit"
	"github.com/algoadopt/referral-service/pkg/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using process environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"logger init failed\" err=%v", err)
	}
	defer logger.Sync() //nolint:errcheck

	bootLog := logger.With(zap.String("component", "bootstrap"))
	bootLog.Info("starting referral-service", zap.String("port", cfg.ServerPort))

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		bootLog.Fatal("database url parse failed", zap.Error(err))
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		bootLog.Fatal("database connection failed", zap.Error(err))
	}
	defer dbpool.Close()
	bootLog.Info("database connected")

	repository := store.NewPostgresAccountRepository(dbpool, logger)
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repository.EnsureSchema(bootCtx); err != nil {
		cancelBoot()
		bootLog.Fatal("schema bootstrap failed", zap.Error(err))
	}
	if err := repository.EnsureGenesisAccount(bootCtx, cfg.GenesisAccountID, cfg.GenesisWalletAddress); err != nil {
		cancelBoot()
		bootLog.Fatal("genesis account bootstrap failed", zap.Error(err))
	}
	cancelBoot()
	bootLog.Info("genesis account ready", zap.String("genesis_account_id", cfg.GenesisAccountID))

	var publisher rabbitmq.Publisher = &rabbitmq.FallbackPublisher{Logger: logger}
	if cfg.RabbitMQURL == "" {
		bootLog.Warn("rabbitmq url missing; account events will be logged only")
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger); err != nil {
		bootLog.Warn("rabbitmq producer unavailable; using fallback",
			zap.String("url", rabbitmq.MaskURL(cfg.RabbitMQURL)),
			zap.Error(err))
	} else {
		publisher = producer
		bootLog.Info("rabbitmq producer connected", zap.String("url", rabbitmq.MaskURL(cfg.RabbitMQURL)))
	}
	defer publisher.Close()

	localLimiter := ratelimit.NewLocalLimiter()
	var limiter ratelimit.Limiter = localLimiter
	usingLocalLimiter := true
	if cfg.RedisURL == "" {
		bootLog.Warn("redis url missing; using in-process rate limiting")
	} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
		bootLog.Warn("redis url parse failed; using in-process rate limiting", zap.Error(parseErr))
	} else {
		redisClient := redis.NewClient(redisOptions)
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr := redisClient.Ping(pingCtx).Err()
		cancelPing()
		if pingErr != nil {
			bootLog.Warn("redis ping failed; using in-process rate limiting", zap.Error(pingErr))
			redisClient.Close()
		} else {
			defer redisClient.Close()
			limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RedisRateLimitPrefix)
			usingLocalLimiter = false
			bootLog.Info("redis connected")
		}
	}

	issuer, err := session.NewIssuer(cfg.SessionSigningKey, time.Duration(cfg.SessionTTLMinutes)*time.Minute)
	if err != nil {
		bootLog.Fatal("session issuer init failed", zap.Error(err))
	}

	ledger := app.NewLedger(
		repository,
		identity.NewPostgresProvider(dbpool),
		issuer,
		publisher,
		app.LedgerConfig{
			GenesisAccountID: cfg.GenesisAccountID,
			AtomicSignup:     cfg.AtomicSignup,
			EventsExchange:   cfg.AccountEventsExchange,
		},
		logger,
	)
	verifier := app.NewTransactionVerifier(
		algoindexer.NewClient(cfg.IndexerURL, cfg.IndexerAPIToken),
		cfg.FeeRecipientAddress,
		cfg.FeeAmountMicroAlgos,
		logger,
	)

	scheduler := app.NewScheduler(app.NewJobs(ledger, cfg.GenesisAccountID, logger), logger, cfg.StatsJobSchedule)
	if usingLocalLimiter {
		_ = scheduler.AddJob("rate_limit_prune", "@every 10m", func() {
			localLimiter.Prune(10 * time.Minute)
		})
	}
	scheduler.Start()

	handler := api.NewHandler(ledger, verifier, logger)
	router := api.NewRouter(handler, issuer, limiter, api.RouterConfig{
		AllowedOrigins:         cfg.AllowedOrigins,
		AuthRateLimitPerMinute: cfg.AuthRateLimitPerMinute,
	}, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("component", "http"), zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.String("component", "http"), zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server", zap.String("component", "http"))

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.String("component", "http"), zap.Error(err))
	}
	logger.Info("server exited", zap.String("component", "http"))
}
