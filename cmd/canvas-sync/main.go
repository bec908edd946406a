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
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/handler"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/repository"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/service"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/transform"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/cache"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/config"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/database"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/logger"
	corsmiddleware "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/middleware/requestid"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/tracing"
)

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

	shutdownTracing, err := tracing.Init(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logr.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		logr.Fatal("failed to open database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, cfg.ResultCache.Enabled)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}

	repository.SetLookupChunkSize(cfg.Sync.ChunkSize)
	metrics := service.NewMetricsService()

	courseRepo := repository.NewCourseRepository()
	studentRepo := repository.NewStudentRepository()
	assignmentRepo := repository.NewAssignmentRepository()
	enrollmentRepo := repository.NewEnrollmentRepository()
	historyRepo := repository.NewHistoryRepository()
	resultRepo := repository.NewResultCacheRepository(redisClient, logr)
	defer resultRepo.Close() //nolint:errcheck

	txManager := repository.NewTxManager(db)
	detector := service.NewChangeDetector()
	history := service.NewHistoryRecorder(historyRepo, metrics, logr)
	results := service.NewResultCacheService(resultRepo, metrics, cfg.ResultCache.TTL, logr, cfg.ResultCache.Enabled)

	syncService := service.NewSyncService(service.SyncServiceParams{
		Tx:           txManager,
		Transformers: transform.NewRegistry(logr, validator.New()),
		Operations: []service.EntityUpserter{
			service.NewCourseOperations(courseRepo, detector, history, logr),
			service.NewStudentOperations(studentRepo, detector, history, logr),
			service.NewAssignmentOperations(assignmentRepo, courseRepo, detector, history, logr),
			service.NewEnrollmentOperations(enrollmentRepo, studentRepo, courseRepo, detector, history, logr),
		},
		Courses:  courseRepo,
		Students: studentRepo,
		Results:  results,
		Metrics:  metrics,
		Logger:   logr,
		Config: service.SyncServiceConfig{
			Strict:         cfg.Sync.Strict(),
			OptionalFields: optionalFields(cfg.Sync.OptionalFields),
			ResultTTL:      cfg.ResultCache.TTL,
		},
	})

	syncHandler := handler.NewSyncHandler(syncService, results, service.NewGradeHistoryService(historyRepo, txManager.Reader()), logr)
	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
		"database": txManager,
		"redis":    resultRepo,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, metrics))
	r.Use(corsmiddleware.New(cfg.CORSOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/snapshot", metricsHandler.Snapshot)
	api.POST("/sync", syncHandler.Sync)
	api.POST("/sync/validate", syncHandler.Validate)
	api.GET("/sync/latest", syncHandler.Latest)
	api.GET("/sync/runs/:id", syncHandler.Run)
	api.GET("/students/:id/grade-history", syncHandler.GradeHistory)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "sync_mode", cfg.Sync.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func optionalFields(raw map[string][]string) map[models.EntityType][]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[models.EntityType][]string, len(raw))
	for entity, fields := range raw {
		out[models.EntityType(entity)] = fields
	}
	return out
}
