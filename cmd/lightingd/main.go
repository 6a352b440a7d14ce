package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"lighting-control-backend/config"
	"lighting-control-backend/internal/api"
	"lighting-control-backend/internal/db"
	"lighting-control-backend/internal/device"
	"lighting-control-backend/internal/executor"
	"lighting-control-backend/internal/reconcile"
	"lighting-control-backend/internal/scheduler"
	"lighting-control-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "lightingd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Database and store layer.
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Device command channel. A failed first open is not fatal; the channel
	// keeps retrying and commands fail typed until the link is up.
	channel := device.NewChannel(
		device.Config{
			CommandTimeout: cfg.Serial.CommandTimeout,
			ReconnectDelay: cfg.Serial.ReconnectDelay,
			SettleDelay:    cfg.Serial.SettleDelay,
		},
		device.SerialOpener(cfg.Serial.Port, cfg.Serial.BaudRate),
		func(state device.ConnectionState) {
			logger.Printf("device connection state: open=%v last=%q", state.IsOpen, state.LastMessage)
		},
	)
	if err := channel.Open(); err != nil {
		logger.Printf("device channel open failed (will keep retrying): %v", err)
	}
	defer channel.Close()

	// Action executor shared by every scheduling path.
	exec := executor.New(channel, appStore, cfg.Scheduler.MaxAttempts)

	// Durable queue backend. Redis being down at boot is non-fatal: the
	// scheduler's health check degrades to the timer fallback.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	durable := scheduler.NewRedisBackend(rdb, cfg.Redis.KeyPrefix, cfg.Scheduler, exec)
	fallback := scheduler.NewFallbackBackend(exec)
	sched := scheduler.New(cfg.Scheduler, durable, fallback)
	sched.CheckHealth(ctx)
	go sched.Run(ctx)

	// Reconciliation: startup run, daily boundary, direct-execution sweep.
	recon, err := reconcile.NewService(cfg.Reconcile, appStore, sched, exec)
	if err != nil {
		logger.Fatalf("failed to initialize reconciliation service: %v", err)
	}
	go recon.Run(ctx)

	// Ops API.
	handler := api.NewHandler(sched, recon, channel, cfg.Channels.Count)
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
