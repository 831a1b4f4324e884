// Package app builds the shared infrastructure the binaries start from.
package app

import (
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/ward-api/internal/config"
	"github.com/jwalitptl/ward-api/internal/repository"
	"github.com/jwalitptl/ward-api/internal/repository/memory"
	"github.com/jwalitptl/ward-api/internal/repository/postgres"
	"github.com/jwalitptl/ward-api/internal/sequence"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/messaging/redis"
)

// NewLogger builds the service logger and installs it as the zerolog global
// used by the HTTP middleware.
func NewLogger(cfg *config.Config) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})
	log.Logger = l.Zerolog()
	return l
}

// OpenStore connects the configured backend. The returned close function is
// never nil.
func OpenStore(cfg *config.Config) (repository.Store, func() error, error) {
	if cfg.Storage == "memory" {
		return memory.NewStore(cfg.Database.LockTimeout), func() error { return nil }, nil
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStore(db, cfg.Database.LockTimeout), db.Close, nil
}

func RedisConfig(cfg *config.Config) redis.Config {
	return redis.Config{
		URL:                 cfg.Redis.URL,
		MaxRetries:          cfg.Redis.MaxRetries,
		RetryBackoff:        cfg.Redis.RetryBackoff,
		PoolSize:            cfg.Redis.PoolSize,
		MinIdleConns:        cfg.Redis.MinIdleConns,
		ConsecutiveFailures: cfg.Redis.BreakerFailures,
		OpenTimeout:         cfg.Redis.BreakerTimeout,
	}
}

// NewSequence returns the reference generator for the configured backend.
// client may be nil when the backend is memory.
func NewSequence(cfg *config.Config, client *goredis.Client) (sequence.Generator, error) {
	format := sequence.Format{Prefix: cfg.Sequence.Prefix, Padding: cfg.Sequence.Padding}
	switch cfg.Sequence.Backend {
	case "memory":
		return sequence.NewMemoryGenerator(format), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis sequence backend needs a redis client")
		}
		return sequence.NewRedisGenerator(client, format), nil
	}
	return nil, fmt.Errorf("unknown sequence backend %q", cfg.Sequence.Backend)
}
