package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quarters-data/internal/config"
	"quarters-data/internal/database"
	httpapi "quarters-data/internal/http"
	"quarters-data/internal/metrics"
	"quarters-data/internal/repository"
	"quarters-data/internal/service"
	"quarters-data/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Postgres is the system of record. Without it we fall back to the
	// in-memory store so the API stays usable for local development.
	var db *sql.DB
	var queueRepo repository.QueueRepository
	var unitsRepo repository.UnitsRepository
	var allocRepo repository.AllocationsRepository
	var auditRepo repository.AuditRepository

	if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
		db = d
		queueRepo = repository.NewPostgresQueueRepository(db)
		unitsRepo = repository.NewPostgresUnitsRepository(db)
		allocRepo = repository.NewPostgresAllocationsRepository(db)
		auditRepo = repository.NewPostgresAuditRepository(db)
		logger.Info("Connected to Postgres", zap.String("host", cfg.Database.Host))
	} else {
		logger.Warn("Postgres unavailable, using in-memory store (data is not persisted)", zap.Error(err))
		mem := repository.NewMemoryStore()
		queueRepo, unitsRepo, allocRepo, auditRepo = mem, mem, mem, mem
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	var kv store.KV = store.NewRedisKV(redisClient)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis unavailable, using in-memory KV", zap.Error(err))
		kv = store.NewMemoryKV()
	}

	m := metrics.New(nil)
	audit := service.NewAuditRecorder(auditRepo, logger)
	letters := service.NewLetterClient(cfg.Letters, logger)

	queueService := service.NewQueueService(queueRepo, audit, m, logger)
	unitService := service.NewUnitService(unitsRepo, allocRepo, audit, m, logger)
	allocService := service.NewAllocationService(queueRepo, unitsRepo, allocRepo, letters, audit, m, logger)
	importService := service.NewImportService(allocRepo, kv, audit, m, cfg.Import, logger)

	router := httpapi.NewRouter(m, logger)
	router.RegisterOpsRoutes()
	router.RegisterQueueRoutes(httpapi.NewQueueHandler(queueService, logger))
	router.RegisterUnitRoutes(httpapi.NewUnitHandler(unitService, logger))
	router.RegisterAllocationRoutes(httpapi.NewAllocationHandler(allocService, logger))
	router.RegisterImportRoutes(httpapi.NewImportHandler(importService, logger))
	router.RegisterAuditRoutes(httpapi.NewAuditHandler(auditRepo, logger))

	srv := service.NewServer(cfg.HTTP.Addr, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	_ = redisClient.Close()
	if db != nil {
		_ = db.Close()
	}
}
