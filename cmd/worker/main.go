package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"lectureattend/internal/config"
	"lectureattend/internal/logger"
	"lectureattend/internal/provenance"
	"lectureattend/internal/queue"
	"lectureattend/internal/store"
)

// Worker drains provenance events from redis into the capture log.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := checkBackends(cfg); err != nil {
		zl.Fatal("unsupported worker configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		zl.Warn("redis not reachable yet; consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(rdb.Client, cfg.ProvenanceQueueKey)
	if err := provenance.NewWorker(q, st, zl.Named("worker")).Run(ctx); err != nil {
		zl.Error("worker failed", zap.Error(err))
	}
}

// checkBackends refuses combinations where the worker's writes or reads
// would be invisible to the api process.
func checkBackends(cfg config.App) error {
	if cfg.QueueBackend == "memory" {
		return errors.New("worker needs QUEUE_BACKEND=redis; the api drains in-memory queues itself")
	}
	if cfg.StoreBackend == store.BackendMemory {
		return errors.New("worker needs STORE_BACKEND=postgres; an in-memory store is private to this process")
	}
	return nil
}
