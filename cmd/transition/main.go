package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/ano-letivo-api/internal/repository"
	"github.com/noah-isme/ano-letivo-api/internal/service"
	"github.com/noah-isme/ano-letivo-api/pkg/cache"
	"github.com/noah-isme/ano-letivo-api/pkg/config"
	"github.com/noah-isme/ano-letivo-api/pkg/database"
	"github.com/noah-isme/ano-letivo-api/pkg/logger"
	"github.com/noah-isme/ano-letivo-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "transition-cli")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, "ano-letivo-cli")
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, using in-process lock", zap.Error(err))
		redisClient = nil
	}

	yearRepo := repository.NewSchoolYearRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	userRepo := repository.NewUserRepository(db)
	store := repository.NewTransitionStore(db, yearRepo, enrollmentRepo, repository.NewClassRepository(db), gradeRepo)

	backupStore, err := storage.NewLocalStorage(cfg.Backup.Dir)
	if err != nil {
		logr.Fatal("failed to prepare backup directory", zap.Error(err))
	}
	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare report directory", zap.Error(err))
	}

	pendingSvc := service.NewPendingGradesService(gradeRepo, yearRepo, logr)
	transitionSvc := service.NewTransitionService(service.TransitionDependencies{
		Store:       store,
		Years:       yearRepo,
		Enrollments: enrollmentRepo,
		Pending:     pendingSvc,
		Audits:      repository.NewTransitionAuditRepository(db),
		Auth: service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
			Secret:   cfg.JWT.Secret,
			TokenTTL: cfg.JWT.Expiration,
			Issuer:   cfg.JWT.Issuer,
		}),
		Backup: service.NewBackupService(backupStore, service.ExecRunner, service.BackupConfig{
			MaxAge:    cfg.Backup.MaxAge,
			Retention: cfg.Backup.Retention,
			Command:   cfg.Backup.Command,
			Timeout:   cfg.Backup.Timeout,
			DSN:       database.DSN(cfg.Database, "pg_dump"),
		}, logr),
		Reports: service.NewTransitionReportService(reportStore,
			storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL),
			cfg.Reports.Format, logr, nil, nil),
		Lock: service.NewRunLock(redisClient),
	}, service.TransitionConfig{
		PassingGrade: cfg.Transition.PassingGrade,
		Location:     cfg.Transition.Location(),
		LockTTL:      cfg.Transition.LockTTL,
		AuditDryRun:  cfg.Transition.AuditDryRun,
	}, nil, logr)

	cli := commandLine{
		checker:   transitionSvc,
		executor:  transitionSvc,
		operators: userRepo,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		os.Exit(1)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
