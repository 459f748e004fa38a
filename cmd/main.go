package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"filevault/internal/auth"
	"filevault/internal/config"
	"filevault/internal/database"
	"filevault/internal/handler"
	"filevault/internal/logger"
	"filevault/internal/metrics"
	"filevault/internal/repository"
	"filevault/internal/service"
	"filevault/internal/storage"
	"filevault/internal/storage/minio"
	"filevault/internal/storage/s3"
)

const serviceName = "filevault"

// blobStore - хранилище блобов с проверкой доступности
type blobStore interface {
	storage.Store
	Ping(ctx context.Context) error
}

func newBlobStore(cfg *config.Config, log *logger.Logger) (blobStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverMinio:
		return minio.NewClient(cfg.Minio(), log)
	default:
		return s3.NewClient(cfg.S3(), log)
	}
}

func main() {
	// Загружаем конфигурацию
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	log, err := logger.New(&appConfig.Log)
	if err != nil {
		stdlog.Fatalf("Failed to create logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключаемся к базе данных
	db, err := database.Connect(ctx, &appConfig.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(&appConfig.Database, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Инициализация клиента хранилища
	store, err := newBlobStore(appConfig, log)
	if err != nil {
		log.Fatal("Failed to create storage client",
			zap.String("driver", appConfig.Storage.Driver),
			zap.Error(err),
		)
	}

	readiness := map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
		"storage":  store,
	}

	// Инициализация репозиториев
	var fileRepo repository.FileStore = repository.NewFileRepository(db)

	if appConfig.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appConfig.Redis.Addr,
			Password: appConfig.Redis.Password,
			DB:       appConfig.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			// Без кэша сервис работает, запросы идут напрямую в базу
			log.Warn("Redis is unavailable at startup", zap.String("addr", appConfig.Redis.Addr), zap.Error(err))
		}

		fileRepo = repository.NewCachedFileRepository(fileRepo, rdb, appConfig.Redis.TTL, log)
		readiness["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Инициализация сервисов
	limits := service.UploadLimits{
		MaxUploadBytes: appConfig.Upload.MaxUploadBytes,
		AllowedTypes:   appConfig.Upload.AllowedTypes,
	}
	uploadService := service.NewUploadService(fileRepo, store, limits, m, log)
	downloadService := service.NewDownloadService(fileRepo, store, m, log)
	deleteService := service.NewDeleteService(fileRepo, store, m, log)
	fileService := service.NewFileService(fileRepo, uploadService, downloadService, deleteService)

	// Инициализация хендлеров
	router := handler.NewRouter(handler.RouterConfig{
		Files:          handler.NewFileHandler(fileService, appConfig.Upload.MaxFilesPerRequest, log),
		Health:         handler.NewHealthHandler(readiness, log),
		Auth:           auth.NewManager(appConfig.Auth.JWTSecret, appConfig.Auth.Issuer),
		Metrics:        m,
		MetricsHandler: promhttp.Handler(),
		RequestTimeout: appConfig.Server.RequestTimeout,
		Log:            log,
	})

	// Создаем gRPC сервер со стандартной проверкой здоровья
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)

	// Запускаем gRPC сервер
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", appConfig.Server.GRPCPort))
		if err != nil {
			errCh <- fmt.Errorf("failed to listen for gRPC: %w", err)
			return
		}
		log.Info("Starting gRPC server", zap.String("port", appConfig.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()

	// Запускаем HTTP сервер
	go func() {
		log.Info("Starting HTTP server",
			zap.String("port", appConfig.Server.Port),
			zap.String("storage_driver", appConfig.Storage.Driver),
			zap.Int64("max_upload_bytes", limits.MaxUploadBytes),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}()

	// Ожидаем сигнал завершения или отказ сервера
	select {
	case <-ctx.Done():
		log.Info("Shutting down servers...")
	case err := <-errCh:
		log.Error("Server failed, shutting down", zap.Error(err))
	}

	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server forced to shutdown", zap.Error(err))
	}

	grpcServer.GracefulStop()

	log.Info("Server exited properly")
}
