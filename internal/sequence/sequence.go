// Package sequence hands out unique, human-readable document references such
// as ADM00042.
package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KindAdmission is the sequence used for admission references.
const KindAdmission = "hospital.admission"

type Generator interface {
	Next(ctx context.Context, kind string) (string, error)
}

type Format struct {
	Prefix  string
	Padding int
}

func (f Format) render(n int64) string {
	return fmt.Sprintf("%s%0*d", f.Prefix, f.Padding, n)
}

// RedisGenerator keeps one INCR counter per kind, so references stay unique
// across every API instance sharing the Redis database.
type RedisGenerator struct {
	client *redis.Client
	format Format
	keyFmt string
}

func NewRedisGenerator(client *redis.Client, format Format) *RedisGenerator {
	return &RedisGenerator{client: client, format: format, keyFmt: "seq:%s"}
}

func (g *RedisGenerator) Next(ctx context.Context, kind string) (string, error) {
	n, err := g.client.Incr(ctx, fmt.Sprintf(g.keyFmt, kind)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to advance sequence %s: %w", kind, err)
	}
	return g.format.render(n), nil
}

// Seed raises the counter for kind to at least n, e.g. after restoring a
// database whose references are ahead of Redis.
func (g *RedisGenerator) Seed(ctx context.Context, kind string, n int64) error {
	key := fmt.Sprintf(g.keyFmt, kind)
	err := g.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur >= n {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, n, time.Duration(0))
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to seed sequence %s: %w", kind, err)
	}
	return nil
}

// MemoryGenerator is a process-local generator for tests and single-node use.
type MemoryGenerator struct {
	mu       sync.Mutex
	format   Format
	counters map[string]int64
}

func NewMemoryGenerator(format Format) *MemoryGenerator {
	return &MemoryGenerator{format: format, counters: make(map[string]int64)}
}

func (g *MemoryGenerator) Next(ctx context.Context, kind string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[kind]++
	return g.format.render(g.counters[kind]), nil
}
