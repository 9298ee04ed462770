package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/meetsync/meetsync-api/api/swagger"
	"github.com/meetsync/meetsync-api/internal/handler"
	"github.com/meetsync/meetsync-api/internal/middleware"
	"github.com/meetsync/meetsync-api/internal/repository"
	"github.com/meetsync/meetsync-api/internal/service"
	"github.com/meetsync/meetsync-api/pkg/cache"
	"github.com/meetsync/meetsync-api/pkg/config"
	"github.com/meetsync/meetsync-api/pkg/database"
	"github.com/meetsync/meetsync-api/pkg/jobs"
	"github.com/meetsync/meetsync-api/pkg/logger"
	corsmiddleware "github.com/meetsync/meetsync-api/pkg/middleware/cors"
	reqidmiddleware "github.com/meetsync/meetsync-api/pkg/middleware/requestid"
)

// @title MeetSync API
// @version 1.0.0
// @description Scheduling, availability and conflict reconciliation service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The API degrades to uncached reads when Redis is unreachable.
		logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	eventRepo := repository.NewEventRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	conflictService := service.NewConflictService(scheduleRepo, userRepo, cacheRepo, metricsService, validate, logr, cfg.Conflicts)
	scheduleService := service.NewScheduleService(scheduleRepo, cacheRepo, validate, logr)

	var eventService *service.EventService
	scheduleWrites := jobs.NewQueue("schedule-writes", func(ctx context.Context, job jobs.Job) error {
		return eventService.HandleScheduleJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Events.ScheduleWriteWorkers,
		MaxRetries: cfg.Events.ScheduleWriteRetries,
		RetryDelay: cfg.Events.ScheduleWriteDelay,
		Logger:     logr,
	})
	eventService = service.NewEventService(eventRepo, userRepo, scheduleRepo, conflictService, scheduleWrites, cacheRepo, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduleWrites.Start(ctx)
	defer scheduleWrites.Stop()

	authHandler := handler.NewAuthHandler(authService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService)
	conflictHandler := handler.NewConflictHandler(conflictService)
	eventHandler := handler.NewEventHandler(eventService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	secured := api.Group("", middleware.JWT(authService))

	schedules := secured.Group("/schedules")
	schedules.GET("", scheduleHandler.List)
	schedules.POST("", scheduleHandler.Create)
	schedules.PUT("/:id", scheduleHandler.Update)
	schedules.DELETE("/:id", scheduleHandler.Delete)
	schedules.POST("/selection", scheduleHandler.SaveSelection)
	schedules.GET("/export", scheduleHandler.Export)

	secured.POST("/conflicts/check", conflictHandler.Check)

	events := secured.Group("/events")
	events.GET("", eventHandler.List)
	events.POST("", eventHandler.Create)
	events.POST("/:id/respond", eventHandler.Respond)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
