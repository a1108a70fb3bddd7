package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"parley/internal/core/ports"
	"parley/internal/core/services"
	httphandlers "parley/internal/handlers/http"
	backupinfra "parley/internal/infrastructure/backup"
	"parley/internal/infrastructure/distributed"
	"parley/internal/infrastructure/irc"
	"parley/internal/infrastructure/middleware"
	"parley/internal/infrastructure/monitoring"
	"parley/internal/infrastructure/realtime"
	"parley/internal/infrastructure/registry"
	"parley/internal/infrastructure/repositories"
	"parley/internal/infrastructure/webhook"
	"parley/pkg/backup"
	"parley/pkg/config"
	"parley/pkg/logger"
	"parley/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := os.Getenv("PARLEY_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()
	sugar := log.Sugar()

	if err == nil {
		sugar.Infow("loaded config", "path", configPath)
	} else {
		sugar.Warnw("config not found, using defaults", "path", configPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "parley",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		sugar.Fatalw("failed to initialize tracing", "error", err)
	}

	instanceID := uuid.NewString()

	repos, err := repositories.NewRepositoryFactory(cfg, sugar)
	if err != nil {
		sugar.Fatalw("failed to initialize repositories", "error", err)
	}
	defer repos.Close()

	reg := registry.NewInstanceRegistry(cfg, log)
	reg.Start()
	defer reg.Stop()

	identity := services.NewIdentityService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Bootstrap.Admins)
	permissions := services.NewPermissionService(repos.Roles(), repos.Members(), repos.Servers())
	presence := services.NewPresenceService(reg, cfg.Typing.TTL, cfg.Typing.SweepInterval, log)
	presence.Start(ctx)
	defer presence.Stop()

	var recorder services.MetricsRecorder
	if cfg.Monitoring.PrometheusEnabled {
		recorder = monitoring.NewPrometheusCollector()
	}
	stats := services.NewStatsService(repos, reg, presence, recorder)

	var sinks []ports.EventSink

	dispatcher := webhook.NewDispatcher(repos.Webhooks(), sugar)
	defer dispatcher.Stop()
	sinks = append(sinks, dispatcher)

	var directory *distributed.PresenceDirectory
	if client := repos.RedisClient(); client != nil {
		relay := distributed.NewEventRelay(client, reg, instanceID, sugar)
		relay.Start(ctx)
		defer relay.Stop()
		sinks = append(sinks, relay)

		directory = distributed.NewPresenceDirectory(client, instanceID, sugar)
		directory.Start(ctx)
		sinks = append(sinks, directory)
	}

	chat := services.NewChatService(repos, reg, permissions, presence, stats, sinks, cfg, log)
	if err := chat.Bootstrap(ctx); err != nil {
		sugar.Fatalw("failed to bootstrap chat state", "error", err)
	}

	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Dir)
		if err != nil {
			sugar.Fatalw("failed to initialize backup storage", "error", err)
		}
		scheduler := backupinfra.NewScheduler(
			backup.NewBackupService(storage, "1"),
			repos,
			repos.RedisClient(),
			backupinfra.Config{
				Interval:      cfg.Backup.Interval,
				RetentionDays: cfg.Backup.RetentionDays,
			},
			sugar,
		)
		go scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	health := monitoring.NewHealthChecker()
	health.Register("storage", repos.HealthCheck)

	router := buildRouter(cfg, chat, identity, reg, presence, repos, stats, directory, health, sugar)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		sugar.Infow("http server listening", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("http server failed", "error", err)
		}
	}()

	ircServer := irc.NewServer(cfg, chat, identity, reg, presence, repos.Members(), stats, log)
	if err := ircServer.Start(ctx); err != nil {
		sugar.Fatalw("irc server failed to start", "error", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	ircServer.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("http shutdown did not complete cleanly", "error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("tracer shutdown did not complete cleanly", "error", err)
	}
	cancel()
	sugar.Info("shutdown complete")
}

func buildRouter(
	cfg *config.Config,
	chat ports.ChatService,
	identity ports.IdentityProvider,
	reg ports.Registry,
	presence ports.PresenceService,
	repos *repositories.RepositoryFactory,
	stats *services.StatsService,
	directory *distributed.PresenceDirectory,
	health *monitoring.HealthChecker,
	sugar *zap.SugaredLogger,
) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(sugar),
		middleware.ErrorHandlerMiddleware(sugar),
	)
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	router.GET("/health", health.LivenessHandler)
	router.GET("/ready", health.ReadinessHandler)
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	wsServer := realtime.NewWebSocketServer(cfg, chat, identity, reg, presence, repos.Members(), stats, sugar.Desugar())
	router.GET("/ws", middleware.WSRateLimit(cfg), wsServer.HandleWebSocket)

	auth := middleware.AuthMiddleware(identity)
	authHandler := httphandlers.NewAuthHandler(identity, cfg)
	authHandler.SetupRoutes(router, middleware.AuthRateLimit(cfg), auth)

	adminHandler := httphandlers.NewAdminHandler(stats, directory)
	adminHandler.SetupRoutes(router, auth, middleware.AdminMiddleware(), middleware.APIRateLimit(cfg))

	return router
}
