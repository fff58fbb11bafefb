package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/tunecard/tunecard/internal/api"
	"github.com/tunecard/tunecard/internal/audit"
	"github.com/tunecard/tunecard/internal/auth"
	"github.com/tunecard/tunecard/internal/cards"
	"github.com/tunecard/tunecard/internal/config"
	"github.com/tunecard/tunecard/internal/database"
	"github.com/tunecard/tunecard/internal/middleware"
	inats "github.com/tunecard/tunecard/internal/nats"
	iredis "github.com/tunecard/tunecard/internal/redis"
	"github.com/tunecard/tunecard/internal/replicate"
	"github.com/tunecard/tunecard/internal/server"
	"github.com/tunecard/tunecard/internal/spotify"
	"github.com/tunecard/tunecard/internal/storage"
	"github.com/tunecard/tunecard/internal/usage"
	"github.com/tunecard/tunecard/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx := context.Background()

	// PostgreSQL
	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional): without it the service runs, just without the
	// persisted audit trail.
	var natsClient *inats.Client
	var cardPublisher cards.EventPublisher
	var usagePublisher cards.UsagePublisher
	var authPublisher auth.EventPublisher
	if cfg.NATS.Enabled {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		publisher := inats.NewPublisher(natsClient.JetStream())
		cardPublisher = publisher
		usagePublisher = publisher
		authPublisher = publisher
	}

	// Object storage
	imageStore, err := storage.New(cfg.Storage, slog.Default())
	if err != nil {
		slog.Error("configuring object storage", "error", err)
		os.Exit(1)
	}
	if err := imageStore.EnsureBucket(ctx); err != nil {
		slog.Error("ensuring storage bucket", "error", err)
		os.Exit(1)
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	tokenSvc := auth.NewTokenService(auth.NewTokenRepository(pool))

	encryptor, err := auth.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		slog.Error("configuring encryptor", "error", err)
		os.Exit(1)
	}

	// Users
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)

	// Spotify OAuth + API
	spotifyAuth := spotify.NewAuthenticator(cfg.Spotify)
	authHandler := auth.NewHandler(authSvc, tokenSvc, userSvc, encryptor, spotifyAuth, authPublisher)

	// Usage accounting
	limiter := usage.NewLimiter(usage.NewRepository(pool), usage.DefaultRules())

	// Card generation pipeline
	tasteSource := cards.NewSpotifyTasteSource(userSvc, encryptor, spotifyAuth)
	generator := replicate.NewClient(cfg.Replicate)
	cardSvc := cards.NewService(cards.NewRepository(pool), tasteSource, generator, imageStore, cardPublisher, slog.Default())
	cardHandler := cards.NewHandler(cardSvc, limiter, usagePublisher)

	// Audit trail
	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)
	if natsClient != nil {
		consumer := audit.NewConsumer(auditRepo, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Router
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter: middleware.NewIPRateLimiter(redisClient, "auth",
			cfg.AuthLimit.MaxRequests, cfg.AuthLimit.WindowSec).Middleware,
	}, api.HandlerSet{
		Login:    authHandler.Login,
		Callback: authHandler.Callback,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		GenerateCard: cardHandler.Generate,
		ListCards:    cardHandler.List,
		GetCard:      cardHandler.Get,
		DownloadCard: cardHandler.Download,

		GetUsage:      cardHandler.Usage,
		ListAuditLogs: auditHandler.List,

		CreateToken: authHandler.CreateToken,
		ListTokens:  authHandler.ListTokens,
		DeleteToken: authHandler.DeleteToken,

		AuthMiddleware: auth.Middleware(authSvc, tokenSvc, userSvc),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
