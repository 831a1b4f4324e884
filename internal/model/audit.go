package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records one change made by an actor.
type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ActorID    uuid.UUID       `json:"actor_id" db:"actor_id"`
	ActorName  string          `json:"actor_name" db:"actor_name"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	FromState  string          `json:"from_state,omitempty" db:"from_state"`
	ToState    string          `json:"to_state,omitempty" db:"to_state"`
	Changes    json.RawMessage `json:"changes,omitempty" db:"changes"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	AuditEntityAdmission = "admission"
	AuditEntityBed       = "bed"
	AuditEntityRoom      = "room"
)

type AuditFilters struct {
	EntityType string     `form:"entity_type"`
	EntityID   *uuid.UUID `form:"-"`
	ActorID    *uuid.UUID `form:"-"`
	Pagination
}
