package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Pagination represents common pagination parameters
type Pagination struct {
	Page     int `json:"page" form:"page" binding:"omitempty,min=1"`
	PageSize int `json:"page_size" form:"page_size" binding:"omitempty,min=1,max=500"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Limit returns the row limit, falling back to DefaultPageSize.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Actor identifies the user on whose behalf a command runs.
type Actor struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Roles []string  `json:"roles,omitempty"`
}

// SystemActor is used by background jobs that act without a user.
var SystemActor = Actor{ID: uuid.Nil, Name: "system"}

func (a Actor) IsZero() bool {
	return a.ID == uuid.Nil && a.Name == ""
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}
