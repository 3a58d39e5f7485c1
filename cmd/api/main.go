package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lectureattend/internal/capture"
	"lectureattend/internal/config"
	"lectureattend/internal/devices"
	"lectureattend/internal/handler"
	"lectureattend/internal/ledger"
	"lectureattend/internal/logger"
	"lectureattend/internal/matcher"
	"lectureattend/internal/provenance"
	"lectureattend/internal/queue"
	"lectureattend/internal/session"
	"lectureattend/internal/store"
	"lectureattend/internal/vault"
)

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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, zl); err != nil {
		zl.Fatal("http server failed", zap.Error(err))
	}
}

func run(cfg config.App, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	checks := map[string]handler.Checker{"db": st}
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		q = mem
		// No separate worker can reach an in-process queue.
		go func() {
			if err := provenance.NewWorker(mem, st, zl.Named("worker")).Run(ctx); err != nil {
				zl.Error("in-process worker stopped", zap.Error(err))
			}
		}()
	} else {
		rdb := store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		checks["redis"] = rdb
		q = queue.NewRedisQueue(rdb.Client, cfg.ProvenanceQueueKey)
	}

	gate := devices.NewGate(st, zl.Named("devices"))
	sessions := session.NewManager(st, zl.Named("session"))
	led := ledger.New(st, zl.Named("ledger"))
	orch := capture.New(capture.Deps{
		Gate:     gate,
		Matcher:  matcher.NewEngine(cfg.MatchParallelism),
		Sessions: sessions,
		Ledger:   led,
		Roster:   st,
		Events:   provenance.NewPublisher(q, zl.Named("provenance")),
		Logger:   zl.Named("capture"),
	})

	h := handler.New(handler.Services{
		Captures: orch,
		Vault:    vault.New(st, zl.Named("vault")),
		Sessions: sessions,
		Ledger:   led,
		Devices:  gate,
	}, nil, zl)

	r := handler.NewRouter(h, handler.RouterConfig{
		SigningKey:            cfg.JWTSigningKey,
		Issuer:                cfg.JWTIssuer,
		RateLimitPerMin:       cfg.RateLimitPerMin,
		DeviceRateLimitPerMin: cfg.DeviceRateLimitPerMin,
		Checks:                checks,
		Logger:                zl,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server",
			zap.String("port", cfg.HTTPPort),
			zap.String("store", cfg.StoreBackend),
			zap.String("queue", cfg.QueueBackend),
		)
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
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("server forced shutdown", zap.Error(err))
	}
	zl.Info("server exited")
	return nil
}
