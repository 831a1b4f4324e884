package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/ward-api/internal/model"
)

const admissionColumns = `id, reference, patient_id, doctor_id, admitted_at, discharged_at, bed_id,
	kind, diagnosis, discharge_summary, state, created_by, updated_by, created_at, updated_at`

type admissionRepository struct {
	q queryer
}

func (r *admissionRepository) Create(ctx context.Context, a *model.Admission) error {
	query := `
		INSERT INTO admissions (
			id, reference, patient_id, doctor_id, admitted_at, discharged_at, bed_id,
			kind, diagnosis, discharge_summary, state, created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, query,
		a.ID, a.Reference, a.PatientID, a.DoctorID, a.AdmittedAt, a.DischargedAt, a.BedID,
		a.Kind, a.Diagnosis, a.DischargeSummary, a.State, a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create admission: %w", mapError(err))
	}
	return nil
}

func (r *admissionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	var a model.Admission
	query := `SELECT ` + admissionColumns + ` FROM admissions WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &a, query, id); err != nil {
		return nil, fmt.Errorf("failed to get admission: %w", mapError(err))
	}
	return &a, nil
}

func (r *admissionRepository) Lock(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	var a model.Admission
	query := `SELECT ` + admissionColumns + ` FROM admissions WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.q, &a, query, id); err != nil {
		return nil, fmt.Errorf("failed to lock admission: %w", mapError(err))
	}
	return &a, nil
}

func (r *admissionRepository) GetByReference(ctx context.Context, reference string) (*model.Admission, error) {
	var a model.Admission
	query := `SELECT ` + admissionColumns + ` FROM admissions WHERE reference = $1`
	if err := sqlx.GetContext(ctx, r.q, &a, query, reference); err != nil {
		return nil, fmt.Errorf("failed to get admission: %w", mapError(err))
	}
	return &a, nil
}

// Update writes every mutable column. Reference and created_at never change.
func (r *admissionRepository) Update(ctx context.Context, a *model.Admission) error {
	query := `
		UPDATE admissions SET
			doctor_id = $1, admitted_at = $2, discharged_at = $3, bed_id = $4, kind = $5,
			diagnosis = $6, discharge_summary = $7, state = $8, updated_by = $9, updated_at = $10
		WHERE id = $11`

	a.UpdatedAt = time.Now()
	result, err := r.q.ExecContext(ctx, query,
		a.DoctorID, a.AdmittedAt, a.DischargedAt, a.BedID, a.Kind,
		a.Diagnosis, a.DischargeSummary, a.State, a.UpdatedBy, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update admission: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to update admission: %w", model.ErrNotFound)
	}
	return nil
}

func (r *admissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM admissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete admission: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to delete admission: %w", model.ErrNotFound)
	}
	return nil
}

func (r *admissionRepository) List(ctx context.Context, filters *model.AdmissionFilters) ([]*model.Admission, error) {
	if filters == nil {
		filters = &model.AdmissionFilters{}
	}

	query := `SELECT ` + admissionColumns + ` FROM admissions WHERE 1=1`
	var args []interface{}

	if filters.State != "" {
		args = append(args, filters.State)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if filters.BedID != nil {
		args = append(args, *filters.BedID)
		query += fmt.Sprintf(" AND bed_id = $%d", len(args))
	}
	if filters.PatientID != nil {
		args = append(args, *filters.PatientID)
		query += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if filters.From != nil {
		args = append(args, *filters.From)
		query += fmt.Sprintf(" AND admitted_at >= $%d", len(args))
	}
	if filters.To != nil {
		args = append(args, *filters.To)
		query += fmt.Sprintf(" AND admitted_at < $%d", len(args))
	}

	args = append(args, filters.Limit(), filters.Offset())
	query += fmt.Sprintf(" ORDER BY admitted_at DESC, reference DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var admissions []*model.Admission
	if err := sqlx.SelectContext(ctx, r.q, &admissions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list admissions: %w", mapError(err))
	}
	return admissions, nil
}

func (r *admissionRepository) FindActiveByBed(ctx context.Context, bedID uuid.UUID, excludeID *uuid.UUID) ([]*model.Admission, error) {
	query := `SELECT ` + admissionColumns + ` FROM admissions WHERE bed_id = $1 AND state = $2`
	args := []interface{}{bedID, model.AdmissionStateActive}

	if excludeID != nil {
		query += " AND id != $3"
		args = append(args, *excludeID)
	}
	query += " ORDER BY admitted_at"

	var admissions []*model.Admission
	if err := sqlx.SelectContext(ctx, r.q, &admissions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find active admissions: %w", mapError(err))
	}
	return admissions, nil
}

func (r *admissionRepository) CountByBed(ctx context.Context, bedID uuid.UUID) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(*) FROM admissions WHERE bed_id = $1`, bedID); err != nil {
		return 0, fmt.Errorf("failed to count admissions: %w", mapError(err))
	}
	return n, nil
}

func (r *admissionRepository) CountByState(ctx context.Context, from, to *time.Time) (map[model.AdmissionState]int, error) {
	query := `SELECT state, COUNT(*) AS count FROM admissions WHERE 1=1`
	var args []interface{}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND admitted_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND admitted_at < $%d", len(args))
	}
	query += " GROUP BY state"

	var rows []struct {
		State model.AdmissionState `db:"state"`
		Count int                  `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count admissions by state: %w", mapError(err))
	}

	counts := make(map[model.AdmissionState]int, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}
