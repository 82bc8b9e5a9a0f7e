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
	"go.uber.org/zap"

	_ "github.com/noah-isme/letter-workflow-api/api/swagger"
	"github.com/noah-isme/letter-workflow-api/internal/handler"
	"github.com/noah-isme/letter-workflow-api/internal/middleware"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/internal/repository"
	"github.com/noah-isme/letter-workflow-api/internal/service"
	"github.com/noah-isme/letter-workflow-api/pkg/cache"
	"github.com/noah-isme/letter-workflow-api/pkg/config"
	"github.com/noah-isme/letter-workflow-api/pkg/database"
	"github.com/noah-isme/letter-workflow-api/pkg/export"
	"github.com/noah-isme/letter-workflow-api/pkg/jobs"
	"github.com/noah-isme/letter-workflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/letter-workflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/letter-workflow-api/pkg/middleware/requestid"
	"github.com/noah-isme/letter-workflow-api/pkg/storage"
)

// @title Faculty Letter Workflow API
// @version 1.0.0
// @description Formal letter requests routed through program, faculty and dean approval.
// @BasePath /api/v1
// @schemes http https
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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()
	readiness := map[string]handler.Pinger{"postgres": db}

	var roleCache *service.CacheService
	if cfg.DirectoryCache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, directory cache disabled", zap.Error(err))
		} else {
			defer client.Close() //nolint:errcheck
			cacheRepo := repository.NewCacheRepository(client, cfg.Redis.Namespace, logr)
			roleCache = service.NewCacheService(cacheRepo, metrics, cfg.DirectoryCache.TTL, logr, true)
			readiness["redis"] = handler.PingFunc(cacheRepo.Ping)
		}
	}

	users := repository.NewUserRepository(db)
	students := repository.NewStudentRepository(db)
	letters := repository.NewLetterRequestRepository(db)
	documents := repository.NewSupportingDocumentRepository(db)
	trackingLogs := repository.NewTrackingLogRepository(db)
	dispositions := repository.NewDispositionRepository(db)
	exportJobs := repository.NewExportJobRepository(db)

	directory, err := service.NewRoleDirectory(cfg.Routing.Policy, users)
	if err != nil {
		return err
	}

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	letterSvc := service.NewLetterService(db, letters, users, students, documents, trackingLogs, dispositions, directory, validate, logr,
		service.WithLetterMetrics(metrics))
	dispositionSvc := service.NewDispositionService(db, letters, users, dispositions, trackingLogs, directory, validate, logr,
		service.WithDispositionMetrics(metrics))
	querySvc := service.NewLetterQueryService(letters, users, students, trackingLogs, documents, dispositions, metrics, logr)
	directorySvc := service.NewDirectoryService(users, students, roleCache, cfg.DirectoryCache.TTL, validate, logr)

	var exportHandler *handler.ExportHandler
	if cfg.Exports.Enabled {
		queue, exportSvc, err := buildExports(cfg, logr, metrics, validate, exportJobs, letters, users, trackingLogs, querySvc)
		if err != nil {
			return err
		}
		queue.Start(ctx)
		defer queue.Stop()
		if n := exportSvc.RecoverPendingJobs(ctx); n > 0 {
			logr.Info("recovered queued exports", zap.Int("count", n))
		}
		exportSvc.StartCleanup(ctx)
		exportHandler = handler.NewExportHandler(exportSvc)
	}

	router := newRouter(cfg, logr, metrics, routes{
		auth:         handler.NewAuthHandler(authSvc),
		letters:      handler.NewLetterHandler(letterSvc, querySvc),
		dispositions: handler.NewDispositionHandler(dispositionSvc, querySvc),
		directory:    handler.NewDirectoryHandler(directorySvc),
		exports:      exportHandler,
		metrics:      handler.NewMetricsHandler(metrics, readiness),
		tokens:       authSvc,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildExports(
	cfg *config.Config,
	logr *zap.Logger,
	metrics *service.MetricsService,
	validate *validator.Validate,
	exportJobs *repository.ExportJobRepository,
	letters *repository.LetterRequestRepository,
	users *repository.UserRepository,
	trackingLogs *repository.TrackingLogRepository,
	visibility *service.LetterQueryService,
) (*jobs.Queue, *service.TrackingExportService, error) {
	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	renderer := service.NewExportService(letters, trackingLogs, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, export.NewCSVExporter(export.WithBOM()), export.NewPDFExporter())

	queue := jobs.NewQueue("tracking-exports", jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	worker := service.NewExportWorker(exportJobs, renderer, metrics, cfg.Exports.WorkerRetries, logr)
	queue.Register(service.TrackingExportJobType, worker.Handle)
	metrics.RegisterQueue("tracking-exports", queue.Stats)

	svc := service.NewTrackingExportService(exportJobs, letters, users, visibility, queue, renderer, validate, logr, service.TrackingExportConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})
	return queue, svc, nil
}

type routes struct {
	auth         *handler.AuthHandler
	letters      *handler.LetterHandler
	dispositions *handler.DispositionHandler
	directory    *handler.DirectoryHandler
	exports      *handler.ExportHandler
	metrics      *handler.MetricsHandler
	tokens       middleware.TokenValidator
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h routes) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, middleware.LogFields))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health", "/ready"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.auth.Login)
	if h.exports != nil {
		api.GET("/exports/:token", h.exports.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(h.tokens))
	secured.GET("/auth/me", h.auth.Me)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	secured.POST("/users", adminOnly, h.directory.CreateUser)
	secured.GET("/users", h.directory.ListUsers)
	secured.GET("/users/:id", h.directory.GetUser)
	secured.POST("/students", middleware.RequireRoles(models.RoleAdmin, models.RoleStaffProdi), h.directory.CreateStudent)
	secured.GET("/students", h.directory.ListStudents)
	secured.GET("/admin/metrics", adminOnly, h.metrics.Summary)

	letters := secured.Group("/letters")
	letters.POST("", h.letters.Create)
	letters.GET("", h.letters.List)
	letters.GET("/:id", h.letters.Get)
	letters.PATCH("/:id/status", h.letters.UpdateStatus)
	letters.POST("/:id/final-letter", h.letters.UploadFinalLetter)
	letters.POST("/:id/sign", middleware.RequireRoles(models.RoleDekan), h.letters.Sign)
	letters.POST("/:id/documents", h.letters.UploadDocument)
	letters.GET("/:id/documents", h.letters.ListDocuments)
	letters.POST("/:id/tracking", h.letters.AddTrackingLog)
	letters.GET("/:id/tracking", h.letters.ListTrackingLogs)
	letters.POST("/:id/dispositions", middleware.RequireRoles(models.RoleDekan), h.dispositions.Create)
	letters.GET("/:id/dispositions", h.dispositions.List)
	secured.POST("/dispositions/:id/process", h.dispositions.Process)

	if h.exports != nil {
		letters.POST("/:id/tracking/export", h.exports.Create)
		secured.GET("/exports/jobs/:id", h.exports.Status)
	}
	return r
}
