package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/ward-api/internal/model"
	apperrors "github.com/jwalitptl/ward-api/pkg/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      apperrors.ErrorCode
		retryable bool
	}{
		{"not found", fmt.Errorf("failed to get bed: %w", model.ErrNotFound), http.StatusNotFound, apperrors.ErrNotFound, false},
		{"bed", fmt.Errorf("%w: lock", model.ErrBedNotFound), http.StatusNotFound, apperrors.ErrNotFound, false},
		{"patient", model.ErrPatientNotFound, http.StatusNotFound, apperrors.ErrNotFound, false},
		{"no bed", model.ErrNoBedSelected, http.StatusUnprocessableEntity, apperrors.ErrUnprocessable, false},
		{"occupied", &model.BedOccupiedError{Reference: "ADM00001", PatientName: "Jane Roe"}, http.StatusConflict, apperrors.ErrConflict, false},
		{"transition", &model.TransitionError{From: model.AdmissionStateDischarged, Command: model.CommandAdmit}, http.StatusConflict, apperrors.ErrConflict, false},
		{"unavailable", model.ErrBedUnavailable, http.StatusConflict, apperrors.ErrConflict, false},
		{"duplicate", model.ErrDuplicate, http.StatusConflict, apperrors.ErrConflict, false},
		{"referenced", model.ErrBedReferenced, http.StatusConflict, apperrors.ErrConflict, false},
		{"lock timeout", fmt.Errorf("failed to admit admission: %w", model.ErrLockTimeout), http.StatusServiceUnavailable, apperrors.ErrUnavailable, true},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, apperrors.ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := MapError(tt.err, "bed")
			assert.Equal(t, tt.status, appErr.StatusCode())
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.retryable, appErr.Retryable)
			assert.ErrorIs(t, appErr, tt.err)
		})
	}
}

func TestMapErrorKeepsOccupantInMessage(t *testing.T) {
	appErr := MapError(&model.BedOccupiedError{Reference: "ADM00007", PatientName: "Jane Roe"}, "admission")
	assert.Contains(t, appErr.Message, "ADM00007")
	assert.Contains(t, appErr.Message, "Jane Roe")
}

func TestMapErrorNamesMissingBed(t *testing.T) {
	appErr := MapError(fmt.Errorf("failed to reassign admission: %w", model.ErrBedNotFound), "admission")
	assert.Equal(t, "bed not found", appErr.Message)

	appErr = MapError(fmt.Errorf("failed to get admission: %w", model.ErrNotFound), "admission")
	assert.Equal(t, "admission not found", appErr.Message)
}
