package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/ward-api/internal/repository"
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
}

// Store implements repository.Store on Postgres. Units of work run in a
// transaction with a bounded lock_timeout, so a command blocked on a bed row
// lock fails with model.ErrLockTimeout instead of waiting indefinitely.
type Store struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sqlx.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Beds() repository.BedRepository             { return &bedRepository{q: s.db} }
func (s *Store) Rooms() repository.RoomRepository           { return &roomRepository{q: s.db} }
func (s *Store) Admissions() repository.AdmissionRepository { return &admissionRepository{q: s.db} }
func (s *Store) Outbox() repository.OutboxRepository        { return &outboxRepository{q: s.db} }
func (s *Store) Audit() repository.AuditRepository          { return &auditRepository{q: s.db} }
func (s *Store) Patients() repository.PatientRepository     { return &patientRepository{q: s.db} }

// WithinTx executes fn within a transaction
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to set lock timeout: %w", mapError(err))
		}
	}

	if err := fn(&txRepos{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

type txRepos struct {
	tx *sqlx.Tx
}

func (t *txRepos) Beds() repository.BedRepository             { return &bedRepository{q: t.tx} }
func (t *txRepos) Rooms() repository.RoomRepository           { return &roomRepository{q: t.tx} }
func (t *txRepos) Admissions() repository.AdmissionRepository { return &admissionRepository{q: t.tx} }
func (t *txRepos) Outbox() repository.OutboxRepository        { return &outboxRepository{q: t.tx} }
func (t *txRepos) Audit() repository.AuditRepository          { return &auditRepository{q: t.tx} }
