// Package conflict decides whether a bed is already held by another active
// admission, and derives who currently occupies a bed.
package conflict

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
	"github.com/jwalitptl/ward-api/internal/service/patient"
)

type Resolver struct {
	patients patient.Directory
}

func NewResolver(patients patient.Directory) *Resolver {
	return &Resolver{patients: patients}
}

// HasActiveConflict reports the first active admission holding bedID other
// than excludingID. admissions must belong to the caller's unit of work so
// the answer is consistent with the bed locks it holds.
func (r *Resolver) HasActiveConflict(ctx context.Context, admissions repository.AdmissionRepository, bedID uuid.UUID, excludingID *uuid.UUID) (bool, *model.Admission, error) {
	active, err := admissions.FindActiveByBed(ctx, bedID, excludingID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check bed conflicts: %w", err)
	}
	if len(active) == 0 {
		return false, nil, nil
	}
	return true, active[0], nil
}

// Check returns a *model.BedOccupiedError naming the holder when bedID is
// taken by an admission other than excludingID.
func (r *Resolver) Check(ctx context.Context, admissions repository.AdmissionRepository, bedID uuid.UUID, excludingID *uuid.UUID) error {
	conflict, holder, err := r.HasActiveConflict(ctx, admissions, bedID, excludingID)
	if err != nil {
		return err
	}
	if !conflict {
		return nil
	}
	return &model.BedOccupiedError{
		Reference:   holder.Reference,
		PatientName: r.patientName(ctx, holder.PatientID),
	}
}

// CurrentOccupant projects the active admission on bedID. It returns nil
// when the bed is not held. The result is for display only.
func (r *Resolver) CurrentOccupant(ctx context.Context, admissions repository.AdmissionRepository, bedID uuid.UUID) (*model.Occupant, error) {
	conflict, holder, err := r.HasActiveConflict(ctx, admissions, bedID, nil)
	if err != nil || !conflict {
		return nil, err
	}
	return &model.Occupant{
		AdmissionID: holder.ID,
		Reference:   holder.Reference,
		PatientID:   holder.PatientID,
		PatientName: r.patientName(ctx, holder.PatientID),
	}, nil
}

// patientName falls back to the id when the directory cannot resolve it.
func (r *Resolver) patientName(ctx context.Context, id uuid.UUID) string {
	if r.patients == nil {
		return id.String()
	}
	p, err := r.patients.Lookup(ctx, id)
	if err != nil {
		return id.String()
	}
	return p.Name
}
