package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/account"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/audit"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/copilot"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/handler"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/lifecycle"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/middleware"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/notify"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/config"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/database"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/jwtutil"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/prometheus"
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()
	log.Info("Starting visitor gate service...", cfg.LogConfig()...)

	// Initialize database
	db, err := database.InitDB(&cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(db, model.All()...); err != nil {
		log.Fatal("Failed to migrate models", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Accounts and the bootstrap admin
	tokens := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})
	accounts := account.NewService(db, log, tokens)
	if err := accounts.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		log.Fatal("Failed to ensure admin account", zap.Error(err))
	}

	// Initialize Prometheus metrics
	prometheus.Register(prom.WrapRegistererWithPrefix(cfg.Metrics.Prefix+"_", prom.DefaultRegisterer))

	// Push notifications run off the request path
	dispatcher := notify.NewDispatcher(accounts, newSink(cfg, log), log, cfg.Notify.QueueSize)
	dispatched := make(chan struct{})
	go func() {
		// detached from ctx so queued pushes are still delivered during shutdown
		dispatcher.Run(context.Background())
		close(dispatched)
	}()

	loc := cfg.Location()
	engine := lifecycle.New(db, log,
		lifecycle.WithSubscriber(dispatcher),
		lifecycle.WithClock(func() time.Time { return time.Now().In(loc) }),
	)
	recorder := audit.NewRecorder(db)

	if cfg.LLM.APIKey == "" {
		log.Warn("OPENAI_API_KEY is not set, chat requests will fail")
	}
	orchestrator := copilot.NewOrchestrator(
		copilot.NewOpenAIModel(&cfg.LLM),
		copilot.NewBridge(engine, log),
		log,
		cfg.Chat.HistoryLimit,
	)

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	handler.Register(e, handler.Routes{
		Visitors:    handler.NewVisitorHandler(engine, recorder),
		Accounts:    handler.NewAccountHandler(accounts),
		Events:      handler.NewEventHandler(recorder),
		Chat:        handler.NewChatHandler(orchestrator),
		Auth:        middleware.JWTAuthMiddleware(tokens, accounts),
		ChatLimiter: middleware.PerUserRateLimiter(cfg.Chat.RateLimitPerS, cfg.Chat.RateLimitBurst),
	})

	// Start server
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	dispatcher.Close()
	<-dispatched
}

func newSink(cfg *config.Config, log *zap.Logger) notify.Sink {
	switch cfg.Notify.Sink {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info("Push notifications go to redis", zap.String("addr", cfg.Redis.Addr), zap.String("stream", cfg.Redis.Stream))
		return notify.NewRedisStreamSink(client, cfg.Redis.Stream, log)
	case "fcm":
		if cfg.Notify.FCMProjectID == "" {
			log.Warn("FCM_PROJECT_ID is not set, falling back to the log sink")
			return notify.NewLogSink(log)
		}
		tokens, err := notify.FCMTokenSource(context.Background(), cfg.Notify.FCMCredentialsFile)
		if err != nil {
			log.Warn("FCM credentials unavailable, falling back to the log sink", zap.Error(err))
			return notify.NewLogSink(log)
		}
		return notify.NewFCMSink(cfg.Notify.FCMEndpoint, cfg.Notify.FCMProjectID, tokens, cfg.Notify.FCMTimeout, log)
	default:
		return notify.NewLogSink(log)
	}
}
