package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/ward-api/internal/model"
)

// patientRepository reads the patient directory owned by the patient
// registry. The admissions service never writes to it.
type patientRepository struct {
	q queryer
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.PatientRef, error) {
	var p model.PatientRef
	query := `SELECT id, first_name || ' ' || last_name AS name FROM patients WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &p, query, id); err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", mapError(err))
	}
	return &p, nil
}
