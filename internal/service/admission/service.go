package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
	"github.com/jwalitptl/ward-api/internal/sequence"
	"github.com/jwalitptl/ward-api/internal/service/audit"
	"github.com/jwalitptl/ward-api/internal/service/bed"
	"github.com/jwalitptl/ward-api/internal/service/conflict"
	"github.com/jwalitptl/ward-api/internal/service/event"
	"github.com/jwalitptl/ward-api/internal/service/patient"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/metrics"
)

type AdmissionServicer interface {
	Create(ctx context.Context, actor model.Actor, req *model.CreateAdmissionRequest) (*model.Admission, error)
	Admit(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Admission, error)
	Discharge(ctx context.Context, actor model.Actor, id uuid.UUID, summary string) (*model.Admission, error)
	Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Admission, error)
	Reassign(ctx context.Context, actor model.Actor, id, bedID uuid.UUID) (*model.Admission, error)
	UpdateDetails(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdateAdmissionRequest) (*model.Admission, error)
	Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*model.Admission, error)
	GetByReference(ctx context.Context, reference string) (*model.Admission, error)
	List(ctx context.Context, filters *model.AdmissionFilters) ([]*model.Admission, error)
	Summary(ctx context.Context, from, to *time.Time) (*model.AdmissionSummary, error)
}

type Dependencies struct {
	Store    repository.Store
	Beds     *bed.Registry
	Resolver *conflict.Resolver
	Patients patient.Directory
	Sequence sequence.Generator
	Auditor  *audit.Service
	Events   *event.Emitter
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// Service drives the admission lifecycle. Every command that touches a bed
// runs in one unit of work: the admission row is locked first, then its beds
// in ascending id order.
type Service struct {
	store    repository.Store
	beds     *bed.Registry
	resolver *conflict.Resolver
	patients patient.Directory
	sequence sequence.Generator
	auditor  *audit.Service
	events   *event.Emitter
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

func NewService(deps Dependencies) *Service {
	return &Service{
		store:    deps.Store,
		beds:     deps.Beds,
		resolver: deps.Resolver,
		patients: deps.Patients,
		sequence: deps.Sequence,
		auditor:  deps.Auditor,
		events:   deps.Events,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		now:      time.Now,
	}
}

// change describes what a command did. A nil change means the command was a
// no-op and nothing is written.
type change struct {
	event   string
	prevBed *uuid.UUID
	details interface{}
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreateAdmissionRequest) (*model.Admission, error) {
	start := time.Now()
	a, err := s.create(ctx, actor, req)
	s.observe(model.CommandCreate, start, false, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create admission: %w", err)
	}

	s.log.Info("admission created",
		"admission_id", a.ID.String(),
		"reference", a.Reference,
		"actor_id", actor.ID.String(),
	)
	return a, nil
}

func (s *Service) create(ctx context.Context, actor model.Actor, req *model.CreateAdmissionRequest) (*model.Admission, error) {
	if _, err := s.patients.Lookup(ctx, req.PatientID); err != nil {
		return nil, err
	}

	reference, err := s.sequence.Next(ctx, sequence.KindAdmission)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reference: %w", err)
	}

	a := &model.Admission{
		Reference: reference,
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		BedID:     req.BedID,
		Kind:      req.Kind,
		Diagnosis: req.Diagnosis,
		State:     model.AdmissionStateDraft,
		CreatedBy: actor.ID,
		UpdatedBy: actor.ID,
	}
	if a.Kind == "" {
		a.Kind = model.AdmissionKindPlanned
	}
	if req.AdmittedAt != nil {
		a.AdmittedAt = *req.AdmittedAt
	} else {
		a.AdmittedAt = s.now()
	}

	err = s.store.WithinTx(ctx, func(tx repository.Repositories) error {
		if a.BedID != nil {
			if _, err := tx.Beds().Get(ctx, *a.BedID); err != nil {
				return bedLookup(err)
			}
		}
		if err := tx.Admissions().Create(ctx, a); err != nil {
			return err
		}
		if err := s.auditor.Log(ctx, tx.Audit(), actor, string(model.CommandCreate), model.AuditEntityAdmission, a.ID, &audit.LogOptions{
			ToState: string(a.State),
		}); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx.Outbox(), model.EventAdmissionCreated, a.ID, s.payload(a, actor, nil))
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Admit moves a draft admission to active and claims its bed.
func (s *Service) Admit(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Admission, error) {
	return s.execute(ctx, actor, id, model.CommandAdmit, func(ctx context.Context, tx repository.Repositories, a *model.Admission) (*change, error) {
		to, _, err := model.Transition(a.State, model.CommandAdmit)
		if err != nil {
			return nil, err
		}
		if a.BedID == nil {
			return nil, model.ErrNoBedSelected
		}

		beds, err := s.lockBeds(ctx, tx, *a.BedID)
		if err != nil {
			return nil, err
		}
		if err := s.claim(ctx, tx, a, beds[*a.BedID]); err != nil {
			return nil, err
		}

		a.State = to
		return &change{event: model.EventAdmissionAdmitted}, nil
	})
}

// Discharge ends an active admission and frees its bed. Discharging twice
// returns the record unchanged.
func (s *Service) Discharge(ctx context.Context, actor model.Actor, id uuid.UUID, summary string) (*model.Admission, error) {
	return s.execute(ctx, actor, id, model.CommandDischarge, func(ctx context.Context, tx repository.Repositories, a *model.Admission) (*change, error) {
		to, noop, err := model.Transition(a.State, model.CommandDischarge)
		if err != nil || noop {
			return nil, err
		}

		if err := s.releaseHeld(ctx, tx, a); err != nil {
			return nil, err
		}

		if a.DischargedAt == nil {
			now := s.now()
			a.DischargedAt = &now
		}
		if summary != "" {
			a.DischargeSummary = summary
		}
		a.State = to
		return &change{event: model.EventAdmissionDischarged}, nil
	})
}

// Cancel withdraws a draft or active admission. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Admission, error) {
	return s.execute(ctx, actor, id, model.CommandCancel, func(ctx context.Context, tx repository.Repositories, a *model.Admission) (*change, error) {
		to, noop, err := model.Transition(a.State, model.CommandCancel)
		if err != nil || noop {
			return nil, err
		}

		if err := s.releaseHeld(ctx, tx, a); err != nil {
			return nil, err
		}

		a.State = to
		return &change{event: model.EventAdmissionCancelled}, nil
	})
}

// Reassign moves an active admission to bedID. The new bed is validated and
// claimed before the old one is released; a failure leaves both untouched.
func (s *Service) Reassign(ctx context.Context, actor model.Actor, id, bedID uuid.UUID) (*model.Admission, error) {
	return s.execute(ctx, actor, id, model.CommandReassign, func(ctx context.Context, tx repository.Repositories, a *model.Admission) (*change, error) {
		to, _, err := model.Transition(a.State, model.CommandReassign)
		if err != nil {
			return nil, err
		}
		if a.BedID != nil && *a.BedID == bedID {
			return nil, nil
		}

		ids := []uuid.UUID{bedID}
		if a.BedID != nil {
			ids = append(ids, *a.BedID)
		}
		beds, err := s.lockBeds(ctx, tx, ids...)
		if err != nil {
			return nil, err
		}

		if err := s.claim(ctx, tx, a, beds[bedID]); err != nil {
			return nil, err
		}
		prev := a.BedID
		if prev != nil {
			if err := s.beds.Release(ctx, tx.Beds(), *prev); err != nil {
				return nil, err
			}
		}

		target := bedID
		a.BedID = &target
		a.State = to
		return &change{
			event:   model.EventAdmissionReassigned,
			prevBed: prev,
			details: map[string]interface{}{"from_bed_id": prev, "to_bed_id": target},
		}, nil
	})
}

// UpdateDetails applies a partial update. Only a draft admission may change
// its bed here; active admissions move through Reassign. Terminal admissions
// accept text fields only.
func (s *Service) UpdateDetails(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdateAdmissionRequest) (*model.Admission, error) {
	return s.execute(ctx, actor, id, model.CommandUpdate, func(ctx context.Context, tx repository.Repositories, a *model.Admission) (*change, error) {
		if a.State.Terminal() && (req.DoctorID != nil || req.Kind != nil || req.BedID != nil) {
			return nil, &model.TransitionError{From: a.State, Command: model.CommandUpdate}
		}

		if req.BedID != nil && (a.BedID == nil || *a.BedID != *req.BedID) {
			if a.State != model.AdmissionStateDraft {
				return nil, &model.TransitionError{From: a.State, Command: model.CommandUpdate}
			}
			if _, err := tx.Beds().Get(ctx, *req.BedID); err != nil {
				return nil, bedLookup(err)
			}
			bedID := *req.BedID
			a.BedID = &bedID
		}
		if req.DoctorID != nil {
			doctorID := *req.DoctorID
			a.DoctorID = &doctorID
		}
		if req.Kind != nil {
			a.Kind = *req.Kind
		}
		if req.Diagnosis != nil {
			a.Diagnosis = *req.Diagnosis
		}
		if req.DischargeSummary != nil {
			a.DischargeSummary = *req.DischargeSummary
		}
		return &change{event: model.EventAdmissionUpdated, details: req}, nil
	})
}

// Delete removes an admission in any state, releasing its bed first when it
// is active.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	_, err := s.execute(ctx, actor, id, model.CommandDelete, func(ctx context.Context, tx repository.Repositories, a *model.Admission) (*change, error) {
		if err := s.releaseHeld(ctx, tx, a); err != nil {
			return nil, err
		}
		return &change{event: model.EventAdmissionDeleted}, nil
	})
	return err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	a, err := s.store.Admissions().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get admission: %w", err)
	}
	return a, nil
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*model.Admission, error) {
	a, err := s.store.Admissions().GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to get admission: %w", err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, filters *model.AdmissionFilters) ([]*model.Admission, error) {
	admissions, err := s.store.Admissions().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list admissions: %w", err)
	}
	return admissions, nil
}

// Summary counts admissions by state over [from, to) of the admission date.
// Every state appears in the result, zero or not.
func (s *Service) Summary(ctx context.Context, from, to *time.Time) (*model.AdmissionSummary, error) {
	counts, err := s.store.Admissions().CountByState(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize admissions: %w", err)
	}

	summary := &model.AdmissionSummary{
		From:   from,
		To:     to,
		Counts: make(map[model.AdmissionState]int, len(model.AdmissionStates)),
	}
	for _, state := range model.AdmissionStates {
		summary.Counts[state] = counts[state]
		summary.Total += counts[state]
	}
	return summary, nil
}

// execute runs fn against the locked admission and persists the result with
// its audit entry and outbox event in the same unit of work.
func (s *Service) execute(ctx context.Context, actor model.Actor, id uuid.UUID, cmd model.Command,
	fn func(ctx context.Context, tx repository.Repositories, a *model.Admission) (*change, error),
) (*model.Admission, error) {
	start := time.Now()
	var (
		result *model.Admission
		from   model.AdmissionState
		noop   bool
	)

	err := s.store.WithinTx(ctx, func(tx repository.Repositories) error {
		a, err := tx.Admissions().Lock(ctx, id)
		if err != nil {
			return err
		}
		from = a.State

		ch, err := fn(ctx, tx, a)
		if err != nil {
			return err
		}
		if ch == nil {
			noop = true
			result = a
			return nil
		}

		a.UpdatedBy = actor.ID
		toState := string(a.State)
		if cmd == model.CommandDelete {
			toState = ""
			if err := tx.Admissions().Delete(ctx, a.ID); err != nil {
				return err
			}
		} else if err := tx.Admissions().Update(ctx, a); err != nil {
			return err
		}

		if err := s.auditor.Log(ctx, tx.Audit(), actor, string(cmd), model.AuditEntityAdmission, a.ID, &audit.LogOptions{
			FromState: string(from),
			ToState:   toState,
			Changes:   ch.details,
		}); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx.Outbox(), ch.event, a.ID, s.payload(a, actor, ch.prevBed)); err != nil {
			return err
		}

		result = a
		return nil
	})

	s.observe(cmd, start, noop, err)
	if err != nil {
		s.logFailure(cmd, id, actor, err)
		return nil, fmt.Errorf("failed to %s admission: %w", cmd, err)
	}

	bedID := ""
	if result.BedID != nil {
		bedID = result.BedID.String()
	}
	s.log.Info("admission command applied",
		"command", string(cmd),
		"admission_id", id.String(),
		"bed_id", bedID,
		"from_state", string(from),
		"to_state", string(result.State),
		"noop", noop,
		"actor_id", actor.ID.String(),
	)
	return result, nil
}

func (s *Service) lockBeds(ctx context.Context, tx repository.Repositories, ids ...uuid.UUID) (map[uuid.UUID]*model.Bed, error) {
	locked, err := tx.Beds().Lock(ctx, ids...)
	if err != nil {
		return nil, bedLookup(err)
	}
	beds := make(map[uuid.UUID]*model.Bed, len(locked))
	for _, b := range locked {
		beds[b.ID] = b
	}
	return beds, nil
}

// claim validates that a may take the locked bed and marks it occupied.
func (s *Service) claim(ctx context.Context, tx repository.Repositories, a *model.Admission, b *model.Bed) error {
	if b.State == model.BedStateMaintenance {
		return fmt.Errorf("bed %s is under maintenance: %w", b.Name, model.ErrBedUnavailable)
	}
	if err := s.resolver.Check(ctx, tx.Admissions(), b.ID, &a.ID); err != nil {
		return err
	}
	return s.beds.Claim(ctx, tx.Beds(), b.ID)
}

// releaseHeld frees the bed of an active admission. Other states hold no bed.
func (s *Service) releaseHeld(ctx context.Context, tx repository.Repositories, a *model.Admission) error {
	if a.State != model.AdmissionStateActive || a.BedID == nil {
		return nil
	}
	if _, err := s.lockBeds(ctx, tx, *a.BedID); err != nil {
		return err
	}
	return s.beds.Release(ctx, tx.Beds(), *a.BedID)
}

func (s *Service) payload(a *model.Admission, actor model.Actor, prevBed *uuid.UUID) model.AdmissionEvent {
	return model.AdmissionEvent{
		AdmissionID: a.ID,
		Reference:   a.Reference,
		PatientID:   a.PatientID,
		State:       a.State,
		BedID:       a.BedID,
		PreviousBed: prevBed,
		ActorID:     actor.ID,
		OccurredAt:  s.now(),
	}
}

func (s *Service) observe(cmd model.Command, start time.Time, noop bool, err error) {
	s.metrics.CommandLatency.WithLabelValues(string(cmd)).Observe(time.Since(start).Seconds())

	result := "success"
	switch {
	case err == nil && noop:
		result = "noop"
	case err == nil:
	case errors.Is(err, model.ErrLockTimeout):
		result = "timeout"
		s.metrics.LockTimeouts.Inc()
	case errors.Is(err, model.ErrBedOccupied):
		result = "rejected"
		s.metrics.BedConflicts.WithLabelValues("occupied").Inc()
	case errors.Is(err, model.ErrBedUnavailable):
		result = "rejected"
		s.metrics.BedConflicts.WithLabelValues("unavailable").Inc()
	case errors.Is(err, model.ErrNoBedSelected):
		result = "rejected"
		s.metrics.BedConflicts.WithLabelValues("no_bed").Inc()
	case isRejection(err):
		result = "rejected"
	default:
		result = "error"
	}
	s.metrics.AdmissionCommands.WithLabelValues(string(cmd), result).Inc()
}

func (s *Service) logFailure(cmd model.Command, id uuid.UUID, actor model.Actor, err error) {
	fields := []interface{}{
		"command", string(cmd),
		"admission_id", id.String(),
		"actor_id", actor.ID.String(),
	}
	if isRejection(err) || errors.Is(err, model.ErrLockTimeout) {
		s.log.Warn(fmt.Sprintf("admission command rejected: %v", err), fields...)
		return
	}
	s.log.Error(err, "admission command failed", fields...)
}

// isRejection reports domain errors caused by the request rather than the
// system.
func isRejection(err error) bool {
	for _, target := range []error{
		model.ErrNotFound,
		model.ErrDuplicate,
		model.ErrNoBedSelected,
		model.ErrBedUnavailable,
		model.ErrBedOccupied,
		model.ErrInvalidTransition,
		model.ErrPatientNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// bedLookup marks a missing bed so it is not reported as a missing admission.
func bedLookup(err error) error {
	if errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrBedNotFound) {
		return fmt.Errorf("%w: %v", model.ErrBedNotFound, err)
	}
	return err
}
