package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusRetry   OutboxStatus = "retry"
	// Processing events are claimed by a processor until RetryAt.
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusProcessed  OutboxStatus = "processed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Lifecycle event types published to consumers.
const (
	EventAdmissionCreated    = "admission.created"
	EventAdmissionAdmitted   = "admission.admitted"
	EventAdmissionDischarged = "admission.discharged"
	EventAdmissionCancelled  = "admission.cancelled"
	EventAdmissionReassigned = "admission.reassigned"
	EventAdmissionUpdated    = "admission.updated"
	EventAdmissionDeleted    = "admission.deleted"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	AggregateID  uuid.UUID       `db:"aggregate_id" json:"aggregate_id"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// AdmissionEvent is the payload of every admission.* outbox event.
type AdmissionEvent struct {
	AdmissionID uuid.UUID      `json:"admission_id"`
	Reference   string         `json:"reference"`
	PatientID   uuid.UUID      `json:"patient_id"`
	State       AdmissionState `json:"state"`
	BedID       *uuid.UUID     `json:"bed_id,omitempty"`
	PreviousBed *uuid.UUID     `json:"previous_bed_id,omitempty"`
	ActorID     uuid.UUID      `json:"actor_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
}
