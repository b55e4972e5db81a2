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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/therapy-booking-api/api/swagger"
	"github.com/noah-isme/therapy-booking-api/internal/handler"
	"github.com/noah-isme/therapy-booking-api/internal/middleware"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	"github.com/noah-isme/therapy-booking-api/internal/repository"
	"github.com/noah-isme/therapy-booking-api/internal/service"
	"github.com/noah-isme/therapy-booking-api/internal/worker"
	"github.com/noah-isme/therapy-booking-api/pkg/cache"
	"github.com/noah-isme/therapy-booking-api/pkg/config"
	"github.com/noah-isme/therapy-booking-api/pkg/database"
	"github.com/noah-isme/therapy-booking-api/pkg/export"
	"github.com/noah-isme/therapy-booking-api/pkg/jobs"
	"github.com/noah-isme/therapy-booking-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/therapy-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/therapy-booking-api/pkg/middleware/requestid"
)

// @title Therapy Booking API
// @version 1.0.0
// @description Session booking, availability and credit ledger for therapy sessions.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type handlers struct {
	sessions     *handler.SessionHandler
	availability *handler.AvailabilityHandler
	schedule     *handler.ScheduleHandler
	credits      *handler.CreditHandler
	exports      *handler.ExportHandler
	metrics      *handler.MetricsHandler
}

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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, availability cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	therapistRepo := repository.NewTherapistRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	eventRepo := repository.NewSessionEventRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	ruleRepo := repository.NewScheduleRuleRepository(db)
	overrideRepo := repository.NewAvailabilityOverrideRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	transactor := repository.NewTransactor(db, repository.TxOptions{
		Isolation:   repository.IsolationFromString(cfg.Booking.Isolation),
		LockTimeout: cfg.Booking.LockTimeout,
	})

	availabilityCache := service.NewAvailabilityCacheService(cacheRepo, metricsSvc, cfg.Availability.CacheTTL, logr, cfg.Availability.CacheEnabled && redisClient != nil)
	availabilitySvc := service.NewAvailabilityService(therapistRepo, ruleRepo, overrideRepo, sessionRepo, availabilityCache,
		service.AvailabilityConfig{DefaultSessionMinutes: cfg.Availability.DefaultSessionMinutes}, logr)
	ledger := service.NewCreditLedgerService(creditRepo, sessionRepo, metricsSvc, logr)
	effects := service.NewSideEffectDispatcher(
		service.LogVideoRoomProvisioner{BaseURL: cfg.VideoRoom.BaseURL, Logger: logr},
		service.LogNotifier{Logger: logr},
		sessionRepo,
		availabilityCache,
		logr,
	)

	sideEffectQueue := jobs.NewQueue("side_effects", effects.Handle, jobs.QueueConfig{
		Workers:    cfg.Workers.Concurrency,
		BufferSize: cfg.Workers.BufferSize,
		MaxRetries: cfg.Workers.MaxRetries,
		RetryDelay: cfg.Workers.RetryDelay,
		Logger:     logr,
	})
	sideEffectQueue.Start(ctx)
	defer sideEffectQueue.Stop()
	effects.UseQueue(sideEffectQueue)
	availabilityCache.UseRetryQueue(sideEffectQueue)

	atomicCfg := service.AtomicConfig{
		Timeout:      cfg.Booking.TxTimeout,
		MaxRetries:   cfg.Booking.MaxRetries,
		RetryBackoff: cfg.Booking.RetryBackoff,
	}
	deps := service.BookingDependencies{
		Therapists:   therapistRepo,
		Sessions:     sessionRepo,
		Events:       eventRepo,
		Availability: availabilitySvc,
		Conflicts:    service.NewConflictService(sessionRepo),
		Ledger:       ledger,
		Cache:        availabilityCache,
		Effects:      effects,
		Tx:           transactor,
		Validator:    validate,
		Metrics:      metricsSvc,
		Logger:       logr,
	}
	bookingSvc := service.NewBookingService(deps, service.BookingConfig{
		MinLeadTime: cfg.Booking.MinLeadTime,
		HorizonDays: cfg.Booking.HorizonDays,
		Atomic:      atomicCfg,
	})
	lifecycleSvc := service.NewSessionLifecycleService(deps, service.LifecycleConfig{
		NoShowPolicy:      cfg.Booking.NoShowPolicy,
		JoinOpensBefore:   cfg.Booking.JoinOpensBefore,
		DeferredJoinGrace: cfg.Booking.DeferredJoinGrace,
		NoShowGrace:       cfg.Booking.NoShowGrace,
		Atomic:            atomicCfg,
	})
	scheduleSvc := service.NewScheduleService(therapistRepo, ruleRepo, overrideRepo, availabilityCache, validate, logr)
	exportSvc := service.NewExportService(therapistRepo, sessionRepo, validate, logr, export.NewCSVExporter(), export.NewPDFExporter())
	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret})

	if cfg.Sweeper.Enabled {
		sweeper := worker.NewSweeper(lifecycleSvc, ledger, 0, logr)
		if err := sweeper.Start(cfg.Sweeper.Spec); err != nil {
			logr.Fatal("failed to schedule sweeper", zap.Error(err))
		}
		defer sweeper.Stop(context.Background())
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, cfg, authSvc, logr, handlers{
		sessions:     handler.NewSessionHandler(bookingSvc, lifecycleSvc),
		availability: handler.NewAvailabilityHandler(availabilitySvc),
		schedule:     handler.NewScheduleHandler(scheduleSvc),
		credits:      handler.NewCreditHandler(ledger),
		exports:      handler.NewExportHandler(exportSvc),
		metrics:      handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient)),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}

func registerRoutes(r *gin.Engine, cfg *config.Config, authSvc *service.AuthService, logr *zap.Logger, h handlers) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	clients := middleware.RequireUserTypes(models.UserTypeClient)
	therapists := middleware.RequireUserTypes(models.UserTypeTherapist)
	therapistsOrAdmins := middleware.RequireUserTypes(models.UserTypeTherapist, models.UserTypeAdmin)

	api.GET("/therapists/:id/availability", h.availability.Get)

	sessions := api.Group("/sessions")
	sessions.POST("", clients, middleware.Audit(logr, "sessions.book"), h.sessions.Book)
	sessions.GET("", h.sessions.ListMine)
	sessions.GET("/:id", h.sessions.Get)
	sessions.POST("/:id/approve", therapistsOrAdmins, middleware.Audit(logr, "sessions.approve"), h.sessions.Approve)
	sessions.POST("/:id/join", middleware.Audit(logr, "sessions.join"), h.sessions.Join)
	sessions.POST("/:id/complete", therapistsOrAdmins, middleware.Audit(logr, "sessions.complete"), h.sessions.Complete)
	sessions.POST("/:id/cancel", middleware.Audit(logr, "sessions.cancel"), h.sessions.Cancel)
	sessions.POST("/:id/no-show", therapistsOrAdmins, middleware.Audit(logr, "sessions.no_show"), h.sessions.NoShow)

	me := api.Group("/therapists/me", therapists)
	me.GET("/sessions", h.sessions.ListTherapist)
	me.POST("/sessions", middleware.Audit(logr, "sessions.create_deferred"), h.sessions.CreateDeferred)
	me.GET("/sessions/export", h.exports.Agenda)
	me.GET("/schedule-rules", h.schedule.ListRules)
	me.POST("/schedule-rules", middleware.Audit(logr, "schedule_rules.create"), h.schedule.CreateRule)
	me.PUT("/schedule-rules/:id", middleware.Audit(logr, "schedule_rules.update"), h.schedule.UpdateRule)
	me.DELETE("/schedule-rules/:id", middleware.Audit(logr, "schedule_rules.delete"), h.schedule.DeleteRule)
	me.GET("/overrides", h.schedule.ListOverrides)
	me.PUT("/overrides", middleware.Audit(logr, "overrides.upsert"), h.schedule.UpsertOverride)
	me.DELETE("/overrides/:date", middleware.Audit(logr, "overrides.delete"), h.schedule.DeleteOverride)

	credits := api.Group("/credits", clients)
	credits.GET("", h.credits.Summary)
	credits.GET("/usage", h.credits.Usage)
}
