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

	_ "github.com/noah-isme/ano-letivo-api/api/swagger"
	"github.com/noah-isme/ano-letivo-api/internal/handler"
	internalmiddleware "github.com/noah-isme/ano-letivo-api/internal/middleware"
	"github.com/noah-isme/ano-letivo-api/internal/models"
	"github.com/noah-isme/ano-letivo-api/internal/repository"
	"github.com/noah-isme/ano-letivo-api/internal/service"
	"github.com/noah-isme/ano-letivo-api/pkg/cache"
	"github.com/noah-isme/ano-letivo-api/pkg/config"
	"github.com/noah-isme/ano-letivo-api/pkg/database"
	"github.com/noah-isme/ano-letivo-api/pkg/jobs"
	"github.com/noah-isme/ano-letivo-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ano-letivo-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ano-letivo-api/pkg/middleware/requestid"
	"github.com/noah-isme/ano-letivo-api/pkg/storage"
)

// @title Ano Letivo API
// @version 1.0.0
// @description Academic year transition for the municipal school network
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

	logr, err := logger.New(cfg, "api-gateway")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(context.Background(), cfg.Database, "ano-letivo-api")
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(context.Background(), cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, using in-process lock and run tracker", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	yearRepo := repository.NewSchoolYearRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	classRepo := repository.NewClassRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	auditRepo := repository.NewTransitionAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	runRepo := repository.NewRunStatusRepository(redisClient, cfg.Transition.RunStatusTTL, logr)
	store := repository.NewTransitionStore(db, yearRepo, enrollmentRepo, classRepo, gradeRepo)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		TokenTTL: cfg.JWT.Expiration,
		Issuer:   cfg.JWT.Issuer,
	})
	pendingSvc := service.NewPendingGradesService(gradeRepo, yearRepo, logr)

	backupStore, err := storage.NewLocalStorage(cfg.Backup.Dir)
	if err != nil {
		logr.Fatal("failed to prepare backup directory", zap.Error(err))
	}
	backupSvc := service.NewBackupService(backupStore, service.ExecRunner, service.BackupConfig{
		MaxAge:    cfg.Backup.MaxAge,
		Retention: cfg.Backup.Retention,
		Command:   cfg.Backup.Command,
		Timeout:   cfg.Backup.Timeout,
		DSN:       database.DSN(cfg.Database, "pg_dump"),
	}, logr)

	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare report directory", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	reportSvc := service.NewTransitionReportService(reportStore, signer, cfg.Reports.Format, logr, nil, nil)

	transitionSvc := service.NewTransitionService(service.TransitionDependencies{
		Store:       store,
		Years:       yearRepo,
		Enrollments: enrollmentRepo,
		Pending:     pendingSvc,
		Audits:      auditRepo,
		Auth:        authSvc,
		Backup:      backupSvc,
		Reports:     reportSvc,
		Lock:        service.NewRunLock(redisClient),
		Metrics:     metricsSvc,
	}, service.TransitionConfig{
		PassingGrade: cfg.Transition.PassingGrade,
		Location:     cfg.Transition.Location(),
		LockTTL:      cfg.Transition.LockTTL,
		AuditDryRun:  cfg.Transition.AuditDryRun,
	}, validate, logr)

	runner := service.NewTransitionRunner(transitionSvc, runRepo, logr)
	queue := jobs.NewQueue("transicoes", runner.Handle, jobs.QueueConfig{
		Workers: cfg.Transition.WorkerConcurrency,
		Timeout: cfg.Transition.LockTTL,
		Logger:  logr,
	})
	runner.SetQueue(queue)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(rootCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/health", "/metrics"))

	healthChecks := map[string]handler.HealthCheck{"postgres": db.PingContext}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, healthChecks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	transitionHandler := handler.NewTransitionHandler(transitionSvc, pendingSvc, runner, auditRepo, reportSvc)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/transitions/reports/:token", transitionHandler.DownloadReport)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))
	secured.GET("/auth/me", authHandler.Me)

	readers := internalmiddleware.RequireRoles(models.TransitionReaderRoles...)
	operators := internalmiddleware.RequireRoles(models.TransitionOperatorRoles...)

	transitions := secured.Group("/transitions")
	transitions.GET("/preconditions", readers, transitionHandler.Preconditions)
	transitions.GET("/pending-grades", readers, transitionHandler.PendingGrades)
	transitions.GET("/runs/:id", readers, transitionHandler.Run)
	transitions.GET("/audits", readers, transitionHandler.Audits)
	transitions.POST("", operators, transitionHandler.Start)
	secured.GET("/metrics/summary", operators, metricsHandler.Summary)

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	queue.Stop()
}
