package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskpilot/taskpilot/api/httpapi"
	"github.com/taskpilot/taskpilot/config/logger"
	postgresConfig "github.com/taskpilot/taskpilot/config/storage/postgresql"
	redisConfig "github.com/taskpilot/taskpilot/config/storage/redis"
	config "github.com/taskpilot/taskpilot/config/utils"
	"github.com/taskpilot/taskpilot/internal/adapter/queue/rabbitmq"
	postgresAdapter "github.com/taskpilot/taskpilot/internal/adapter/storage/postgres"
	redisAdapter "github.com/taskpilot/taskpilot/internal/adapter/storage/redis"
	"github.com/taskpilot/taskpilot/internal/core/port"
	"github.com/taskpilot/taskpilot/internal/core/service"
	"github.com/taskpilot/taskpilot/internal/metrics"
	"go.uber.org/zap"
)

// _shutdownPeriod is time to wait before gracefully shutting server
// _readinessDrainDelay is time to sleep while context shutdown message propagate
const (
	_shutdownPeriod      = 10 * time.Second
	_readinessDrainDelay = 2 * time.Second
)

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	// Init config & logger
	appConfig := config.New()
	baseLogger := logger.Build(appConfig.Logger)
	zap.L().Info("Starting the scheduler daemon",
		zap.String("app", appConfig.App.Name),
		zap.String("env", appConfig.App.Env),
		zap.String("owner", appConfig.App.Owner))

	metrics.Register()

	// Core services
	gen := service.NewReportGenerator(reportThresholds(appConfig.Report))
	tracker := service.NewTracker(service.TrackerConfig{
		ArchiveCapacity: appConfig.Tracker.ArchiveCapacity,
		RecentActivity:  appConfig.Tracker.RecentActivity,
	}, gen, baseLogger.Named("Tracker"))
	sched := service.NewScheduler(schedulerConfig(appConfig.Scheduler), tracker, baseLogger.Named("Scheduler"))

	// Optional durable archive
	var archiveStore port.ArchiveStore
	var dbService *postgresConfig.DB
	if appConfig.DB != nil && appConfig.DB.Enabled {
		var err error
		dbService, err = postgresConfig.New(rootCtx, appConfig.DB, baseLogger.Named("DB"))
		if err != nil {
			zap.L().Error("Error initializing database connection", zap.Error(err))
			os.Exit(1)
		}
		defer dbService.Close()
		if err := dbService.Migrate(); err != nil {
			zap.L().Error("Error migrating database", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Archive database ready", zap.String("host", appConfig.DB.Host))
		archiveStore = postgresAdapter.NewArchiveRepository(dbService.Pool, dbService.QueryBuilder, baseLogger.Named("Archive"))
		tracker.SetArchiveStore(archiveStore)
	}

	// Optional worker directory
	var directory port.WorkerDirectory
	if appConfig.Redis != nil && appConfig.Redis.Enabled {
		redisClient, err := redisConfig.New(rootCtx, appConfig.Redis)
		if err != nil {
			zap.L().Error("Error initializing redis connection", zap.Error(err))
			os.Exit(1)
		}
		defer redisClient.Close()
		zap.L().Info("Worker directory ready", zap.String("addr", appConfig.Redis.Addr))
		directory = redisAdapter.NewWorkerDirectory(redisClient, baseLogger.Named("Directory"))
		sched.SetWorkerDirectory(directory)
	}

	// Execution backend: RabbitMQ when configured, in-process otherwise
	if appConfig.MQ != nil && appConfig.MQ.Enabled {
		amqpURL := fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
			appConfig.MQ.User, appConfig.MQ.Pass,
			appConfig.MQ.Host, appConfig.MQ.Port, appConfig.MQ.VHost)
		exec, err := rabbitmq.NewExecutor(amqpURL, baseLogger.Named("MQ"))
		if err != nil {
			zap.L().Error("Error initializing RabbitMQ executor", zap.Error(err))
			os.Exit(1)
		}
		defer exec.Close()
		if err := exec.ConsumeCompletions(rootCtx, sched); err != nil {
			zap.L().Error("Error starting completion consumer", zap.Error(err))
			os.Exit(1)
		}
		sched.SetExecutor(exec)
	} else {
		local := service.NewLocalExecutor(nil, baseLogger.Named("Local"))
		local.Bind(sched)
		sched.SetExecutor(local)
	}

	// Statically configured workers
	for _, w := range appConfig.Workers {
		if _, err := sched.RegisterWorker(service.WorkerSpec{
			ID:           w.ID,
			Capabilities: w.Capabilities,
			MaxLoad:      w.MaxLoad,
		}); err != nil {
			zap.L().Error("Failed to register configured worker", zap.String("worker_id", w.ID), zap.Error(err))
			os.Exit(1)
		}
	}

	// Dispatch loop
	go sched.Run(rootCtx)

	// HTTP API
	srv := httpapi.NewServer(httpapi.Config{Port: appConfig.HTTP.Port}, baseLogger.Named("HTTP"), sched, gen)
	if archiveStore != nil {
		srv.SetArchiveStore(archiveStore)
	}
	if directory != nil {
		srv.SetWorkerDirectory(directory)
	}
	if dbService != nil {
		srv.SetHealthCheck(dbService.DBHealth)
	}
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("HTTP server failed", zap.Error(err))
			rootCtxCancel()
		}
	}()

	// Wait for ctx cancelation
	<-rootCtx.Done()

	// Wait for signal propagation
	time.Sleep(_readinessDrainDelay)
	zap.L().Info("Readiness check propagated, now waiting for ongoing requests to finish")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), _shutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	zap.L().Info("Graceful shutdown complete.")
	_ = baseLogger.Sync()
}

func schedulerConfig(c *config.Scheduler) service.SchedulerConfig {
	if c == nil {
		return service.SchedulerConfig{}
	}
	return service.SchedulerConfig{
		MaxConcurrentTasks:   c.MaxConcurrentTasks,
		DefaultMaxAttempts:   c.DefaultMaxAttempts,
		DefaultWorkerMaxLoad: c.DefaultWorkerMaxLoad,
		TickInterval:         c.TickInterval,
		TaskTimeout:          c.TaskTimeout,
		RetryDelay:           c.RetryDelay,
	}
}

func reportThresholds(c *config.Report) service.Thresholds {
	t := service.DefaultThresholds()
	if c == nil {
		return t
	}
	if c.SlowTask > 0 {
		t.SlowTask = c.SlowTask
	}
	if c.ResourceCalls > 0 {
		t.ResourceCalls = c.ResourceCalls
	}
	if c.ErrorRatePct > 0 {
		t.ErrorRatePct = c.ErrorRatePct
	}
	if c.SlowAverage > 0 {
		t.SlowAverage = c.SlowAverage
	}
	if c.SuccessRatePct > 0 {
		t.SuccessRatePct = c.SuccessRatePct
	}
	return t
}
