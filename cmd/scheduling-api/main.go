package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	_ "github.com/traincal/scheduling-api/api/swagger"
	"github.com/traincal/scheduling-api/internal/handler"
	"github.com/traincal/scheduling-api/internal/models"
	"github.com/traincal/scheduling-api/internal/repository"
	"github.com/traincal/scheduling-api/internal/router"
	"github.com/traincal/scheduling-api/internal/service"
	"github.com/traincal/scheduling-api/pkg/cache"
	"github.com/traincal/scheduling-api/pkg/config"
	"github.com/traincal/scheduling-api/pkg/database"
	"github.com/traincal/scheduling-api/pkg/jobs"
	"github.com/traincal/scheduling-api/pkg/lock"
	"github.com/traincal/scheduling-api/pkg/logger"
)

// @title Course Scheduling API
// @version 0.1.0
// @description Scheduling and availability engine for recurring training courses
// @BasePath /
// @schemes http

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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	courseRepo := repository.NewCourseRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	rescheduleRepo := repository.NewRescheduleRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "scheduling-api",
	}, logr)

	locker := lock.NewRedisLocker(redisClient, lock.Options{
		TTL:         cfg.Booking.LockTTL,
		AcquireWait: cfg.Booking.LockAcquireWait,
		RetryDelay:  cfg.Booking.LockRetryDelay,
	})

	availabilitySvc := service.NewAvailabilityService(availabilityRepo, cacheRepo, cfg.Booking.AvailabilityTTL, logr)
	conflictSvc := service.NewConflictService(availabilitySvc, courseRepo, logr)
	pricingSvc := service.NewPricingService(cfg.Pricing, logr)
	scheduleValidator := service.NewScheduleValidator()

	courseSvc := service.NewCourseService(service.CourseServiceConfig{
		Courses:         courseRepo,
		Reschedules:     rescheduleRepo,
		Instructors:     instructorRepo,
		Catalog:         catalogRepo,
		Schedule:        scheduleValidator,
		Conflicts:       conflictSvc,
		Pricing:         pricingSvc,
		Locker:          locker,
		Metrics:         metricsSvc,
		VirtualLocation: cfg.Booking.VirtualLocation,
		Validator:       validate,
		Logger:          logr,
	})
	instructorSvc := service.NewInstructorService(instructorRepo, availabilityRepo, cacheRepo, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var auditQueue *jobs.Queue
	if cfg.Audit.Enabled {
		auditQueue = jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
			entry, ok := job.Payload.(*models.AuditLog)
			if !ok {
				return fmt.Errorf("unexpected audit payload type %T", job.Payload)
			}
			return auditRepo.CreateAuditLog(ctx, entry)
		}, jobs.QueueConfig{
			Workers:    cfg.Audit.WorkerConcurrency,
			MaxRetries: cfg.Audit.WorkerRetries,
			Logger:     logr,
		})
		auditQueue.Start(ctx)
		defer auditQueue.Stop()
	}

	engine := router.New(router.Dependencies{
		Config:        cfg,
		Logger:        logr,
		Auth:          authSvc,
		Metrics:       metricsSvc,
		AuditQueue:    auditQueue,
		Courses:       handler.NewCourseHandler(courseSvc),
		Instructors:   handler.NewInstructorHandler(instructorSvc),
		Availability:  handler.NewAvailabilityHandler(availabilitySvc, instructorSvc),
		Observability: handler.NewMetricsHandler(metricsSvc, db, redisClient),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
