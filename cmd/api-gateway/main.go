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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/loan-desk-api/api/swagger"
	"github.com/noah-isme/loan-desk-api/internal/handler"
	internalmiddleware "github.com/noah-isme/loan-desk-api/internal/middleware"
	"github.com/noah-isme/loan-desk-api/internal/models"
	"github.com/noah-isme/loan-desk-api/internal/realtime"
	"github.com/noah-isme/loan-desk-api/internal/repository"
	"github.com/noah-isme/loan-desk-api/internal/service"
	"github.com/noah-isme/loan-desk-api/pkg/cache"
	"github.com/noah-isme/loan-desk-api/pkg/config"
	"github.com/noah-isme/loan-desk-api/pkg/database"
	"github.com/noah-isme/loan-desk-api/pkg/export"
	"github.com/noah-isme/loan-desk-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/loan-desk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/loan-desk-api/pkg/middleware/requestid"
)

// @title Loan Desk API
// @version 1.0.0
// @description Request-to-loan lifecycle for the school library and equipment desk
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
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	var quotaCache *service.QuotaCache
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, quota cache disabled", "error", err)
		} else {
			defer client.Close()
			quotaCache = service.NewQuotaCache(repository.NewQuotaCacheRepository(client), metricsSvc, cfg.Cache.QuotaTTL, logr)
		}
	}

	requestRepo := repository.NewRequestRepository(db)
	loanRepo := repository.NewLoanRepository(db, cfg.Loans.TxTimeout)
	unitRepo := repository.NewUnitRepository(db)
	sanctionRepo := repository.NewSanctionRepository(db)
	reasonRepo := repository.NewRejectionReasonRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	settingsSvc := service.NewSettingsService(settingRepo, auditRepo, logr, service.SettingsServiceConfig{
		Defaults: service.DefaultsFromLoans(cfg.Loans.TrimesterCutoffs, cfg.Loans.PersonalQuota),
	})
	quotaSvc := service.NewQuotaService(requestRepo, settingsSvc, quotaCache, logr, service.QuotaServiceConfig{
		Location: cfg.Loans.Location(),
	})
	availabilitySvc := service.NewAvailabilityService(requestRepo, unitRepo)

	notificationSvc := service.NewNotificationService(
		service.NewLogMailer(logr),
		export.NewLoanSlipRenderer("Loan slip"),
		metricsSvc,
		logr,
		service.NotificationConfig{
			Enabled:        cfg.Notifications.Enabled,
			Workers:        cfg.Notifications.Workers,
			Retries:        cfg.Notifications.Retries,
			DefaultLocale:  cfg.Notifications.DefaultLocale,
			FromAddress:    cfg.Notifications.FromAddress,
			AttachLoanSlip: cfg.Notifications.AttachLoanSlip,
		},
	)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	verifier := service.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)

	deps := service.RequestServiceDeps{
		Requests:  requestRepo,
		Loans:     loanRepo,
		Sanctions: sanctionRepo,
		Reasons:   reasonRepo,
		Users:     userRepo,
		Quota:     quotaSvc,
		Notifier:  notificationSvc,
		Audit:     auditRepo,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	}

	var hub *realtime.Hub
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(verifier, metricsSvc, cfg.CORS.AllowedOrigins, logr)
		go hub.Run(ctx)
		deps.Events = hub
	}

	requestSvc := service.NewRequestService(deps, service.RequestServiceConfig{
		DueHour:       cfg.Loans.DueHour,
		SoftCancel:    cfg.Loans.SoftCancel,
		Location:      cfg.Loans.Location(),
		DefaultLocale: cfg.Notifications.DefaultLocale,
	})

	requestHandler := handler.NewRequestHandler(requestSvc, availabilitySvc)
	loanHandler := handler.NewLoanHandler(requestSvc)
	quotaHandler := handler.NewQuotaHandler(quotaSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if hub != nil {
		// The websocket handshake authenticates itself since browsers cannot set headers.
		api.GET("/ws/requests", hub.ServeWS)
	}

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(verifier))

	staff := internalmiddleware.RequireStaff()
	admin := internalmiddleware.RequireRoles(models.RoleAdmin)

	requests := secured.Group("/requests")
	requests.POST("", requestHandler.Create)
	requests.GET("", requestHandler.List)
	requests.GET("/pending", staff, requestHandler.ListPending)
	requests.GET("/:id", requestHandler.Get)
	requests.GET("/:id/availability", staff, requestHandler.Availability)
	requests.POST("/:id/approve", staff, requestHandler.Approve)
	requests.POST("/:id/reject", staff, requestHandler.Reject)
	requests.DELETE("/:id", requestHandler.Cancel)

	secured.GET("/rejection-reasons", staff, requestHandler.RejectionReasons)

	loans := secured.Group("/loans")
	loans.POST("/walk-up", staff, loanHandler.WalkUp)
	loans.GET("/:id", loanHandler.Get)

	quota := secured.Group("/quota")
	quota.GET("/me", quotaHandler.Me)
	quota.GET("/users/:userId", internalmiddleware.RBAC(string(models.RoleStaff), string(models.RoleAdmin), internalmiddleware.Self), quotaHandler.ForUser)

	configuration := secured.Group("/configuration")
	configuration.GET("", settingsHandler.List)
	configuration.GET("/:key", settingsHandler.Get)
	configuration.PUT("/bulk", admin, settingsHandler.BulkUpdate)
	configuration.PUT("/:key", admin, settingsHandler.Update)

	secured.GET("/metrics/summary", admin, metricsHandler.Summary)

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
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
