package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/ward-api/internal/app"
	"github.com/jwalitptl/ward-api/internal/config"
	cleanup "github.com/jwalitptl/ward-api/internal/worker"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/messaging/redis"
	"github.com/jwalitptl/ward-api/pkg/metrics"
	"github.com/jwalitptl/ward-api/pkg/worker"
)

const healthAddr = ":8081"

func setupHealthCheck(ready func(ctx context.Context) error, logger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: healthAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "health check server failed")
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLogger := app.NewLogger(cfg).WithFields(map[string]interface{}{"worker_id": workerID()})
	m := metrics.NewMetrics(cfg.Server.MetricsPrefix, "worker", prometheus.DefaultRegisterer)

	if cfg.Storage != "postgres" {
		appLogger.Fatal(fmt.Errorf("storage %q", cfg.Storage), "the worker needs the postgres store; use outbox.embedded with the memory store")
	}

	store, closeStore, err := app.OpenStore(cfg)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer closeStore()

	redisCfg := app.RedisConfig(cfg)
	client, err := redis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal(err, "failed to create Redis client")
	}
	broker := redis.NewRedisBroker(client, redisCfg, appLogger.Zerolog(), m)
	defer broker.Close()

	processor, err := worker.NewOutboxProcessor(store, broker, worker.OutboxProcessorConfig{
		Channel:        cfg.Redis.Channel,
		BatchSize:      cfg.Outbox.BatchSize,
		PollInterval:   cfg.Outbox.PollInterval,
		RetryAttempts:  cfg.Outbox.RetryAttempts,
		RetryDelay:     cfg.Outbox.RetryDelay,
		PublishRetries: cfg.Outbox.PublishRetries,
		Lease:          cfg.Outbox.Lease,
	}, appLogger, m)
	if err != nil {
		appLogger.Fatal(err, "invalid outbox configuration")
	}
	cleaner := cleanup.NewOutboxCleanupWorker(store.Outbox(), cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, appLogger, m)

	healthSrv := setupHealthCheck(store.Ping, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleaner.Start(ctx)
	}()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "health server forced to shutdown")
	}
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("worker-%s-%d", hostname, time.Now().UnixNano())
}
