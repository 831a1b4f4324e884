// Package memory is an in-process implementation of repository.Store. Each
// unit of work runs against a private copy of the data that replaces the
// committed copy only when the work succeeds. Units of work are serialized by
// a store-wide lock whose wait is bounded by the configured lock timeout.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

const DefaultLockTimeout = 2 * time.Second

type state struct {
	beds       map[uuid.UUID]model.Bed
	rooms      map[uuid.UUID]model.Room
	admissions map[uuid.UUID]model.Admission
	outbox     []model.OutboxEvent
	audit      []model.AuditLog
}

func newState() *state {
	return &state{
		beds:       make(map[uuid.UUID]model.Bed),
		rooms:      make(map[uuid.UUID]model.Room),
		admissions: make(map[uuid.UUID]model.Admission),
	}
}

func (s *state) clone() *state {
	c := &state{
		beds:       make(map[uuid.UUID]model.Bed, len(s.beds)),
		rooms:      make(map[uuid.UUID]model.Room, len(s.rooms)),
		admissions: make(map[uuid.UUID]model.Admission, len(s.admissions)),
		outbox:     append([]model.OutboxEvent(nil), s.outbox...),
		audit:      append([]model.AuditLog(nil), s.audit...),
	}
	for id, b := range s.beds {
		c.beds[id] = b
	}
	for id, r := range s.rooms {
		c.rooms[id] = r
	}
	for id, a := range s.admissions {
		c.admissions[id] = a
	}
	return c
}

type Store struct {
	sem         chan struct{}
	lockTimeout time.Duration

	mu        sync.RWMutex
	committed *state

	patientsMu sync.RWMutex
	patients   map[uuid.UUID]model.PatientRef
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store. A non-positive lockTimeout selects
// DefaultLockTimeout.
func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		sem:         make(chan struct{}, 1),
		lockTimeout: lockTimeout,
		committed:   newState(),
		patients:    make(map[uuid.UUID]model.PatientRef),
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.RLock()
	working := s.committed.clone()
	s.mu.RUnlock()

	// A panicking fn leaves the committed state untouched.
	if err := fn(&txRepos{st: working}); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = working
	s.mu.Unlock()
	return nil
}

func (s *Store) acquire(ctx context.Context) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("memory store: %w", model.ErrLockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.sem
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Beds() repository.BedRepository {
	return &bedRepository{st: s.snapshot(), autocommit: s}
}

func (s *Store) Rooms() repository.RoomRepository {
	return &roomRepository{st: s.snapshot(), autocommit: s}
}

func (s *Store) Admissions() repository.AdmissionRepository {
	return &admissionRepository{st: s.snapshot(), autocommit: s}
}

func (s *Store) Outbox() repository.OutboxRepository {
	return &outboxRepository{st: s.snapshot(), autocommit: s}
}

func (s *Store) Audit() repository.AuditRepository {
	return &auditRepository{st: s.snapshot(), autocommit: s}
}

func (s *Store) Patients() repository.PatientRepository {
	return &patientRepository{store: s}
}

// AddPatient registers a patient for lookups.
func (s *Store) AddPatient(p model.PatientRef) {
	s.patientsMu.Lock()
	defer s.patientsMu.Unlock()
	s.patients[p.ID] = p
}

// txRepos binds repositories to the working copy of one unit of work.
type txRepos struct {
	st *state
}

func (t *txRepos) Beds() repository.BedRepository             { return &bedRepository{st: t.st} }
func (t *txRepos) Rooms() repository.RoomRepository           { return &roomRepository{st: t.st} }
func (t *txRepos) Admissions() repository.AdmissionRepository { return &admissionRepository{st: t.st} }
func (t *txRepos) Outbox() repository.OutboxRepository        { return &outboxRepository{st: t.st} }
func (t *txRepos) Audit() repository.AuditRepository          { return &auditRepository{st: t.st} }

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func page(n int, p model.Pagination) (int, int) {
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Limit()
	if end > n {
		end = n
	}
	return start, end
}
