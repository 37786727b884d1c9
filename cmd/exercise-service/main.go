package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"exforge/internal/common/cache"
	"exforge/internal/common/db"
	commonmw "exforge/internal/common/http/middleware"
	"exforge/internal/common/mq"
	"exforge/internal/common/storage"
	"exforge/internal/exercise/access"
	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/clone"
	"exforge/internal/exercise/controller"
	"exforge/internal/exercise/metrics"
	"exforge/internal/exercise/provision"
	"exforge/internal/exercise/repository"
	"exforge/internal/exercise/schedule"
	"exforge/internal/exercise/service"
	"exforge/internal/exercise/vcs"
	"exforge/pkg/utils/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/exercise_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	database, err := openDatabase(appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = database.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var mqClient mq.MessageQueue
	if appCfg.Queue.InMemory() {
		logger.Warn(context.Background(), "no kafka brokers configured, using in-process queue")
		mqClient = mq.NewMemoryQueue()
	} else {
		mqClient, err = mq.NewKafkaQueue(appCfg.Queue.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
	}
	defer func() {
		_ = mqClient.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	gitCLI, err := vcs.NewGitCLI(appCfg.Git)
	if err != nil {
		logger.Error(context.Background(), "init git failed", zap.Error(err))
		return
	}
	bareVCS, err := vcs.NewLocalBareVCS(appCfg.VCS, appCfg.Git)
	if err != nil {
		logger.Error(context.Background(), "init vcs failed", zap.Error(err))
		return
	}
	vcsClient := vcs.NewCachedBranches(bareVCS, redisCache, appCfg.Import.BranchTTL)
	ciClient := ci.NewRegistryClient(redisCache, mqClient, appCfg.CI)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exerciseMetrics := metrics.NewExerciseMetrics(registry)

	store := repository.NewSQLStore(database)
	provisioner := provision.NewProvisioner(vcsClient, ciClient, gitCLI, provision.Options{
		DefaultBranch: appCfg.Git.DefaultBranch,
		Archive:       provision.NewArchiveImporter(objStorage, appCfg.MinIO.Bucket, appCfg.Archive.KeyPrefix),
		Observer:      exerciseMetrics,
	})

	messenger := access.NewQueueMessenger(mqClient, appCfg.Access.Topic)
	synchronizer := access.NewSynchronizer(messenger, exerciseMetrics)
	scheduler := schedule.NewRedisScheduler(redisCache, store, messenger, appCfg.Schedule)

	deps := service.ImportDeps{
		Database:    database,
		Store:       store,
		Cloner:      clone.NewCloner(store, clone.NewStoreHintCloner(store)),
		Provisioner: provisioner,
		VCS:         vcsClient,
		CI:          ciClient,
		Guard:       redisCache,
		Scheduler:   scheduler,
		Observer:    exerciseMetrics,
		LockTTL:     appCfg.Import.LockTTL,
	}
	importService := service.NewImportService(deps)
	provisionService := service.NewProvisionService(deps)
	updateService := service.NewUpdateService(store, synchronizer, scheduler)
	cleanupPublisher := service.NewExerciseCleanupPublisher(mqClient, appCfg.Cleanup.Topic, appCfg.MinIO.Bucket, appCfg.Archive.KeyPrefix)
	deletionService := service.NewDeletionService(store, vcsClient, ciClient, scheduler, cleanupPublisher)
	taskService := service.NewTaskService(database, store)

	lockConsumer := access.NewLockUnlockConsumer(mqClient, store, vcsClient, access.ConsumerOptions{
		Parallel: appCfg.Access.Parallel,
		Timeout:  appCfg.Access.Timeout,
	})
	if err := lockConsumer.Subscribe(context.Background(), appCfg.Access.Topic, appCfg.Access.ConsumerGroup, appCfg.Access.toSubscribeOptions()); err != nil {
		logger.Error(context.Background(), "subscribe lock/unlock commands failed", zap.Error(err))
		return
	}
	cleanupConsumer := service.NewExerciseCleanupConsumer(mqClient, store, objStorage, service.CleanupOptions{
		Bucket:        appCfg.MinIO.Bucket,
		KeyPrefix:     appCfg.Archive.KeyPrefix,
		BatchSize:     appCfg.Cleanup.BatchSize,
		ListTimeout:   appCfg.Cleanup.ListTimeout,
		DeleteTimeout: appCfg.Cleanup.DeleteTimeout,
	})
	if err := cleanupConsumer.Subscribe(context.Background(), appCfg.Cleanup.Topic, appCfg.Cleanup.ConsumerGroup, appCfg.Cleanup.toSubscribeOptions()); err != nil {
		logger.Error(context.Background(), "subscribe cleanup events failed", zap.Error(err))
		return
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go scheduler.Run(shutdownCtx)

	exerciseController := controller.NewExerciseController(importService, provisionService, updateService, deletionService, taskService)
	router := controller.NewRouter(exerciseController, controller.RouterOptions{
		Observer:       commonmw.NewPrometheusHTTPObserver(registry),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORS:           appCfg.Server.CORS,
		RateLimiter:    commonmw.NewRateLimiter(redisCache, "exforge:rate"),
		ProvisionLimit: appCfg.Server.ProvisionLimit,
	})
	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "exercise http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	_ = mqClient.Stop()
}

func openDatabase(cfg DatabaseConfig) (db.Database, error) {
	pool := cfg.PoolConfig
	if cfg.Driver == driverPostgres {
		return db.NewPostgreSQLWithConfig(&pool)
	}
	return db.NewMySQLWithConfig(&pool)
}
