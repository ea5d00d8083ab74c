package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/ia-marketing/internal/api"
	"github.com/hugh/ia-marketing/internal/app"
	"github.com/hugh/ia-marketing/internal/auth"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/storage"
	"github.com/hugh/ia-marketing/internal/tasks"
	"github.com/hugh/ia-marketing/internal/videos"
	"github.com/hugh/ia-marketing/pkg/config"
	"github.com/hugh/ia-marketing/pkg/crypto"
	"github.com/hugh/ia-marketing/pkg/queue"
	"github.com/hugh/ia-marketing/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting ia-marketing server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Production schemas move with `iamctl migrate up`.
	if cfg.Server.IsDevelopment() {
		if err := database.Migrate(db, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	services, err := app.NewServices(db, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	// Without redis, jobs stay queued until a dispatch is enqueued by hand.
	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		services.Videos.WithDispatcher(tasks.NewEnqueuer(asynqClient, 0))
	} else {
		logger.Warn("provider dispatch disabled: no redis")
	}

	presigner := storage.NewFromConfig(context.Background(), cfg.Storage, logger)
	services.Videos.WithURLSigner(presigner)

	sealer, err := crypto.NewSealer(cfg.Encryption.Key, cfg.Encryption.Recipients...)
	if err != nil {
		logger.Error("failed to create sealer", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - sealed webhook payloads will be unreadable after restart")
	}

	if cfg.Webhook.Secret == "" {
		logger.Warn("WEBHOOK_SECRET not set, provider callbacks will be rejected")
	}
	verifier := videos.NewSignatureVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance())
	webhooks := videos.NewWebhookProcessor(services.Tx, services.Videos, sealer, cfg.Provider.Name, logger)

	var opts []auth.Option
	if cfg.JWT.Issuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.JWT.Issuer))
	}
	if cfg.JWT.Audience != "" {
		opts = append(opts, auth.WithAudience(cfg.JWT.Audience))
	}
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry(), opts...)

	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		Tokens:         jwtService,
		Services:       services,
		Webhooks:       webhooks,
		Signatures:     verifier,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
		UserLimitReqs:  cfg.RateLimit.UserRequests,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
