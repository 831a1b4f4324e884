package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/ward-api/internal/app"
	"github.com/jwalitptl/ward-api/internal/config"
	admissionHandler "github.com/jwalitptl/ward-api/internal/handler/admission"
	auditHandler "github.com/jwalitptl/ward-api/internal/handler/audit"
	bedHandler "github.com/jwalitptl/ward-api/internal/handler/bed"
	"github.com/jwalitptl/ward-api/internal/handler/health"
	"github.com/jwalitptl/ward-api/internal/middleware"
	"github.com/jwalitptl/ward-api/internal/router"
	admissionService "github.com/jwalitptl/ward-api/internal/service/admission"
	auditService "github.com/jwalitptl/ward-api/internal/service/audit"
	bedService "github.com/jwalitptl/ward-api/internal/service/bed"
	"github.com/jwalitptl/ward-api/internal/service/conflict"
	eventService "github.com/jwalitptl/ward-api/internal/service/event"
	patientService "github.com/jwalitptl/ward-api/internal/service/patient"
	"github.com/jwalitptl/ward-api/pkg/auth"
	"github.com/jwalitptl/ward-api/pkg/messaging/redis"
	"github.com/jwalitptl/ward-api/pkg/metrics"
	"github.com/jwalitptl/ward-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := app.NewLogger(cfg)
	m := metrics.NewMetrics(cfg.Server.MetricsPrefix, "", prometheus.DefaultRegisterer)

	store, closeStore, err := app.OpenStore(cfg)
	if err != nil {
		appLogger.Fatal(err, "failed to open store", "storage", cfg.Storage)
	}
	defer closeStore()

	// Redis backs the reference sequence and the outbox broker. Neither is
	// needed when both run in memory.
	var redisClient *goredis.Client
	if cfg.Sequence.Backend == "redis" || cfg.Outbox.Embedded {
		redisClient, err = redis.NewClient(app.RedisConfig(cfg))
		if err != nil {
			appLogger.Fatal(err, "failed to create Redis client")
		}
		defer redisClient.Close()
	}

	seq, err := app.NewSequence(cfg, redisClient)
	if err != nil {
		appLogger.Fatal(err, "failed to create sequence generator")
	}

	// Services
	patients := patientService.NewCachedDirectory(patientService.NewService(store.Patients()), patientService.CacheConfig{
		TTL:             cfg.PatientCache.TTL,
		CleanupInterval: cfg.PatientCache.CleanupInterval,
	})
	resolver := conflict.NewResolver(patients)
	auditor := auditService.NewService(store.Audit())
	registry := bedService.NewRegistry(store, resolver, auditor, appLogger)
	admissions := admissionService.NewService(admissionService.Dependencies{
		Store:    store,
		Beds:     registry,
		Resolver: resolver,
		Patients: patients,
		Sequence: seq,
		Auditor:  auditor,
		Events:   eventService.NewEmitter(),
		Metrics:  m,
		Logger:   appLogger,
	})

	// HTTP
	tokens := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	checks := map[string]health.Pinger{"store": store}
	if redisClient != nil {
		checks["redis"] = health.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(tokens),
		admissionHandler.NewHandler(admissions),
		bedHandler.NewHandler(registry),
		auditHandler.NewHandler(auditor),
		health.NewHandler(checks),
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   cfg.Server.RequestTimeout,
			CORSConfig:       middleware.DefaultCORSConfig(),
			MetricsPrefix:    cfg.Server.MetricsPrefix,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Outbox.Embedded {
		broker := redis.NewRedisBroker(redisClient, app.RedisConfig(cfg), appLogger.Zerolog(), m)
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
		go processor.Start(ctx)
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "server forced to shutdown")
	}

	appLogger.Info("server exited")
}
