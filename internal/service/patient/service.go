package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

// Directory resolves patient references. Demographics are owned elsewhere;
// admissions only need to know a patient exists and what to call them.
type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*model.PatientRef, error)
}

type Service struct {
	repo repository.PatientRepository
}

func NewService(repo repository.PatientRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*model.PatientRef, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", model.ErrPatientNotFound, id)
		}
		return nil, fmt.Errorf("failed to look up patient: %w", err)
	}
	return p, nil
}

type CacheConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// CachedDirectory keeps successful lookups for TTL. Misses are not cached so
// a newly registered patient is visible immediately.
type CachedDirectory struct {
	next  Directory
	cache *cache.Cache
}

func NewCachedDirectory(next Directory, cfg CacheConfig) *CachedDirectory {
	return &CachedDirectory{
		next:  next,
		cache: cache.New(cfg.TTL, cfg.CleanupInterval),
	}
}

func (d *CachedDirectory) Lookup(ctx context.Context, id uuid.UUID) (*model.PatientRef, error) {
	key := id.String()
	if cached, found := d.cache.Get(key); found {
		p := cached.(model.PatientRef)
		return &p, nil
	}

	p, err := d.next.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.Set(key, *p, cache.DefaultExpiration)
	return p, nil
}
