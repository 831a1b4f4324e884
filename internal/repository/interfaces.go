package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
)

// All repository interfaces in one file
type (
	BedRepository interface {
		Create(ctx context.Context, bed *model.Bed) error
		Get(ctx context.Context, id uuid.UUID) (*model.Bed, error)
		List(ctx context.Context, filters *model.BedFilters) ([]*model.Bed, error)
		Delete(ctx context.Context, id uuid.UUID) error
		// Lock takes exclusive row locks on the beds in ascending id order and
		// returns them in that order. Locks are held until the transaction ends.
		Lock(ctx context.Context, ids ...uuid.UUID) ([]*model.Bed, error)
		// SetState moves a bed from one state to another. It reports false when
		// the bed was not in the from state.
		SetState(ctx context.Context, id uuid.UUID, from, to model.BedState) (bool, error)
	}

	RoomRepository interface {
		Create(ctx context.Context, room *model.Room) error
		Get(ctx context.Context, id uuid.UUID) (*model.Room, error)
		List(ctx context.Context) ([]*model.Room, error)
		Occupancy(ctx context.Context, id uuid.UUID) (*model.RoomOccupancy, error)
		ListOccupancy(ctx context.Context) ([]*model.RoomOccupancy, error)
	}

	AdmissionRepository interface {
		Create(ctx context.Context, admission *model.Admission) error
		Get(ctx context.Context, id uuid.UUID) (*model.Admission, error)
		GetByReference(ctx context.Context, reference string) (*model.Admission, error)
		// Lock reads the admission and holds its row lock until the
		// transaction ends. Callers lock the admission before its beds.
		Lock(ctx context.Context, id uuid.UUID) (*model.Admission, error)
		Update(ctx context.Context, admission *model.Admission) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.AdmissionFilters) ([]*model.Admission, error)
		// FindActiveByBed returns active admissions on the bed, skipping excludeID.
		FindActiveByBed(ctx context.Context, bedID uuid.UUID, excludeID *uuid.UUID) ([]*model.Admission, error)
		CountByBed(ctx context.Context, bedID uuid.UUID) (int, error)
		CountByState(ctx context.Context, from, to *time.Time) (map[model.AdmissionState]int, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPendingEvents marks up to limit due events processing until
		// leaseUntil and returns them oldest first. Processing events whose
		// lease has passed are due again.
		ClaimPendingEvents(ctx context.Context, limit int, leaseUntil time.Time) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error)
	}

	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.PatientRef, error)
	}

	// Repositories groups the repositories that share one unit of work.
	Repositories interface {
		Beds() BedRepository
		Rooms() RoomRepository
		Admissions() AdmissionRepository
		Outbox() OutboxRepository
		Audit() AuditRepository
	}

	// Store gives non-transactional access through the embedded Repositories
	// and runs units of work through WithinTx. fn's writes commit together
	// when it returns nil and are discarded otherwise.
	Store interface {
		Repositories
		Patients() PatientRepository
		WithinTx(ctx context.Context, fn func(tx Repositories) error) error
		Ping(ctx context.Context) error
	}
)
