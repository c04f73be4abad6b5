package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"job-forensics/internal/api"
	"job-forensics/internal/assets"
	"job-forensics/internal/config"
	"job-forensics/internal/faststore"
	"job-forensics/internal/forensics"
	"job-forensics/internal/logging"
	"job-forensics/internal/ratelimit"
	"job-forensics/internal/relstore"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)
	logger := logging.WithModule("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	rel, err := relstore.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer rel.Close()

	if cfg.Env == "dev" {
		if err := rel.RunMigrations(ctx); err != nil {
			logger.Error("migrations", "error", err)
			os.Exit(1)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()

	fast := faststore.NewReader(redisClient, cfg.ScanMaxKeys)

	verifier, err := assets.NewVerifier(ctx, cfg)
	if err != nil {
		logger.Error("init asset verifier", "error", err)
		os.Exit(1)
	}

	engine := forensics.NewEngine(fast, rel, checkerOrNil(verifier), forensics.Timeouts{
		Read:     cfg.ReadTimeout,
		Scan:     cfg.ScanTimeout,
		BatchJob: cfg.BatchJobTimeout,
	})

	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	server := api.New(cfg, engine, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info("forensics api listening", "port", cfg.HTTPPort, "scan_max_keys", cfg.ScanMaxKeys)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	slog.Info("shutdown complete")
}

// checkerOrNil avoids handing the engine a typed-nil interface when asset
// verification is disabled.
func checkerOrNil(v *assets.Verifier) forensics.AssetChecker {
	if v == nil {
		return nil
	}
	return v
}
