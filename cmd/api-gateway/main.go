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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/halaqa-api/api/swagger"
	"github.com/noah-isme/halaqa-api/internal/handler"
	internalmiddleware "github.com/noah-isme/halaqa-api/internal/middleware"
	"github.com/noah-isme/halaqa-api/internal/repository"
	"github.com/noah-isme/halaqa-api/internal/service"
	"github.com/noah-isme/halaqa-api/pkg/cache"
	"github.com/noah-isme/halaqa-api/pkg/config"
	"github.com/noah-isme/halaqa-api/pkg/database"
	"github.com/noah-isme/halaqa-api/pkg/logger"
	"github.com/noah-isme/halaqa-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/halaqa-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/halaqa-api/pkg/middleware/requestid"
)

// @title Halaqa API
// @version 1.0.0
// @description Join requests, eligibility and enrollments for Quran study circles
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Notifications.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache and pub/sub", zap.Error(err))
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	halaqaRepo := repository.NewHalaqaRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	joinRequestRepo := repository.NewJoinRequestRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.HalaqaTTL, logr, cfg.Cache.Enabled && redisClient != nil)
	halaqaSvc := service.NewHalaqaService(halaqaRepo, cacheSvc, cfg.Cache.HalaqaTTL, logr)
	eligibilitySvc := service.NewEligibilityService(halaqaSvc, enrollmentRepo)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, halaqaSvc, eligibilitySvc, userRepo, metricsSvc, validate, logr, service.EnrollmentServiceConfig{
		StrictProjection: cfg.Workflow.StrictProjection,
	})

	var mail mailer.Mailer = mailer.NewLogMailer(logr)
	if sg := cfg.Notifications.SendGrid; sg.APIKey != "" {
		mail = mailer.NewSendGrid(sg.APIKey, sg.Host, sg.FromName, sg.FromEmail)
	}
	notificationSvc := service.NewNotificationService(cacheRepo, mail, userRepo, metricsSvc, cfg.Notifications, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	joinRequestSvc := service.NewJoinRequestService(joinRequestRepo, userRepo, halaqaSvc, eligibilitySvc, enrollmentSvc, logr,
		service.WithJoinRequestTx(db),
		service.WithJoinRequestAudit(userRepo),
		service.WithJoinRequestNotifier(notificationSvc),
		service.WithJoinRequestMetrics(metricsSvc),
		service.WithJoinRequestValidator(validate),
		service.WithJoinRequestListLimit(cfg.Workflow.ListLimit),
	)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	checks := map[string]handler.Pinger{
		"postgres": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, internalmiddleware.JWT(authSvc), handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		JoinRequests: handler.NewJoinRequestHandler(joinRequestSvc),
		Enrollments:  handler.NewEnrollmentHandler(enrollmentSvc),
		Halaqas:      handler.NewHalaqaHandler(halaqaSvc, enrollmentSvc),
		Metrics:      handler.NewMetricsHandler(metricsSvc, checks),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

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
