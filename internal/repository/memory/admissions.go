package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

type admissionRepository struct {
	st         *state
	autocommit *Store
}

func copyAdmission(a model.Admission) *model.Admission {
	a.DoctorID = cloneID(a.DoctorID)
	a.BedID = cloneID(a.BedID)
	a.DischargedAt = cloneTime(a.DischargedAt)
	return &a
}

func (r *admissionRepository) Create(ctx context.Context, admission *model.Admission) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Admissions().Create(ctx, admission)
		})
	}

	for _, existing := range r.st.admissions {
		if existing.Reference == admission.Reference {
			return fmt.Errorf("failed to create admission: %w: reference %q", model.ErrDuplicate, admission.Reference)
		}
	}
	if err := r.checkBed(admission.BedID); err != nil {
		return fmt.Errorf("failed to create admission: %w", err)
	}

	if admission.ID == uuid.Nil {
		admission.ID = uuid.New()
	}
	now := time.Now()
	admission.CreatedAt = now
	admission.UpdatedAt = now
	r.st.admissions[admission.ID] = *copyAdmission(*admission)
	return nil
}

func (r *admissionRepository) checkBed(id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, ok := r.st.beds[*id]; !ok {
		return fmt.Errorf("bed: %w", model.ErrNotFound)
	}
	return nil
}

func (r *admissionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	a, ok := r.st.admissions[id]
	if !ok {
		return nil, fmt.Errorf("failed to get admission: %w", model.ErrNotFound)
	}
	return copyAdmission(a), nil
}

// Lock is Get; the store lock already serializes units of work.
func (r *admissionRepository) Lock(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	return r.Get(ctx, id)
}

func (r *admissionRepository) GetByReference(ctx context.Context, reference string) (*model.Admission, error) {
	for _, a := range r.st.admissions {
		if a.Reference == reference {
			return copyAdmission(a), nil
		}
	}
	return nil, fmt.Errorf("failed to get admission: %w", model.ErrNotFound)
}

func (r *admissionRepository) Update(ctx context.Context, admission *model.Admission) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Admissions().Update(ctx, admission)
		})
	}

	existing, ok := r.st.admissions[admission.ID]
	if !ok {
		return fmt.Errorf("failed to update admission: %w", model.ErrNotFound)
	}
	if err := r.checkBed(admission.BedID); err != nil {
		return fmt.Errorf("failed to update admission: %w", err)
	}

	admission.Reference = existing.Reference
	admission.CreatedAt = existing.CreatedAt
	admission.UpdatedAt = time.Now()
	r.st.admissions[admission.ID] = *copyAdmission(*admission)
	return nil
}

func (r *admissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Admissions().Delete(ctx, id)
		})
	}

	if _, ok := r.st.admissions[id]; !ok {
		return fmt.Errorf("failed to delete admission: %w", model.ErrNotFound)
	}
	delete(r.st.admissions, id)
	return nil
}

func (r *admissionRepository) List(ctx context.Context, filters *model.AdmissionFilters) ([]*model.Admission, error) {
	if filters == nil {
		filters = &model.AdmissionFilters{}
	}

	var out []*model.Admission
	for _, a := range r.st.admissions {
		if filters.State != "" && a.State != filters.State {
			continue
		}
		if filters.BedID != nil && (a.BedID == nil || *a.BedID != *filters.BedID) {
			continue
		}
		if filters.PatientID != nil && a.PatientID != *filters.PatientID {
			continue
		}
		if !inRange(a.AdmittedAt, filters.From, filters.To) {
			continue
		}
		out = append(out, copyAdmission(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AdmittedAt.Equal(out[j].AdmittedAt) {
			return out[i].Reference > out[j].Reference
		}
		return out[i].AdmittedAt.After(out[j].AdmittedAt)
	})

	start, end := page(len(out), filters.Pagination)
	return out[start:end], nil
}

func (r *admissionRepository) FindActiveByBed(ctx context.Context, bedID uuid.UUID, excludeID *uuid.UUID) ([]*model.Admission, error) {
	var out []*model.Admission
	for _, a := range r.st.admissions {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.HoldsBed(bedID) {
			out = append(out, copyAdmission(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmittedAt.Before(out[j].AdmittedAt) })
	return out, nil
}

func (r *admissionRepository) CountByBed(ctx context.Context, bedID uuid.UUID) (int, error) {
	n := 0
	for _, a := range r.st.admissions {
		if a.BedID != nil && *a.BedID == bedID {
			n++
		}
	}
	return n, nil
}

func (r *admissionRepository) CountByState(ctx context.Context, from, to *time.Time) (map[model.AdmissionState]int, error) {
	counts := make(map[model.AdmissionState]int)
	for _, a := range r.st.admissions {
		if inRange(a.AdmittedAt, from, to) {
			counts[a.State]++
		}
	}
	return counts, nil
}

// inRange treats to as exclusive.
func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}
