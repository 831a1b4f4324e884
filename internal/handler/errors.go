package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/ward-api/internal/model"
	apperrors "github.com/jwalitptl/ward-api/pkg/errors"
)

// MapError converts a service error into the AppError the error middleware
// renders. resource names the entity for not-found messages.
func MapError(err error, resource string) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var occupied *model.BedOccupiedError
	var transition *model.TransitionError
	switch {
	case errors.As(err, &occupied):
		return apperrors.Conflict(occupied.Error(), err)
	case errors.As(err, &transition):
		return apperrors.Conflict(transition.Error(), err)
	case errors.Is(err, model.ErrPatientNotFound):
		return apperrors.NotFound("patient", err)
	case errors.Is(err, model.ErrBedNotFound):
		return apperrors.NotFound("bed", err)
	case errors.Is(err, model.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, model.ErrNoBedSelected):
		return apperrors.Unprocessable("admission has no bed selected", err)
	case errors.Is(err, model.ErrBedUnavailable):
		return apperrors.Conflict("bed is not available", err)
	case errors.Is(err, model.ErrDuplicate):
		return apperrors.Conflict(resource+" already exists", err)
	case errors.Is(err, model.ErrBedReferenced):
		return apperrors.Conflict("bed is referenced by admissions", err)
	case errors.Is(err, model.ErrLockTimeout):
		return apperrors.Unavailable("bed is busy, retry shortly", err)
	}
	return apperrors.Internal(err)
}

// Fail attaches err to the request for the error middleware and aborts.
func Fail(c *gin.Context, resource string, err error) {
	_ = c.Error(MapError(err, resource))
	c.Abort()
}

// BindFailed reports a request that could not be bound or validated.
func BindFailed(c *gin.Context, err error) {
	_ = c.Error(apperrors.BadRequest("invalid request", err))
	c.Abort()
}

// ParseID reads a uuid path parameter, failing the request when it is
// malformed.
func ParseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		_ = c.Error(apperrors.BadRequest("invalid "+param, err))
		c.Abort()
		return uuid.Nil, false
	}
	return id, true
}

// QueryID reads an optional uuid query parameter. A missing parameter
// yields nil.
func QueryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		_ = c.Error(apperrors.BadRequest("invalid "+name, err))
		c.Abort()
		return nil, false
	}
	return &id, true
}
