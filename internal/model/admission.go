package model

import (
	"time"

	"github.com/google/uuid"
)

type AdmissionState string

const (
	AdmissionStateDraft      AdmissionState = "draft"
	AdmissionStateActive     AdmissionState = "active"
	AdmissionStateDischarged AdmissionState = "discharged"
	AdmissionStateCancelled  AdmissionState = "cancelled"
)

// AdmissionStates lists every state in lifecycle order.
var AdmissionStates = []AdmissionState{
	AdmissionStateDraft,
	AdmissionStateActive,
	AdmissionStateDischarged,
	AdmissionStateCancelled,
}

func (s AdmissionState) Valid() bool {
	switch s {
	case AdmissionStateDraft, AdmissionStateActive, AdmissionStateDischarged, AdmissionStateCancelled:
		return true
	}
	return false
}

func (s AdmissionState) Terminal() bool {
	return s == AdmissionStateDischarged || s == AdmissionStateCancelled
}

type AdmissionKind string

const (
	AdmissionKindEmergency   AdmissionKind = "emergency"
	AdmissionKindPlanned     AdmissionKind = "planned"
	AdmissionKindObservation AdmissionKind = "observation"
)

func (k AdmissionKind) Valid() bool {
	switch k {
	case AdmissionKindEmergency, AdmissionKindPlanned, AdmissionKindObservation:
		return true
	}
	return false
}

// Command names a lifecycle operation on an admission.
type Command string

const (
	CommandCreate    Command = "create"
	CommandAdmit     Command = "admit"
	CommandDischarge Command = "discharge"
	CommandCancel    Command = "cancel"
	CommandReassign  Command = "reassign"
	CommandUpdate    Command = "update"
	CommandDelete    Command = "delete"
)

var transitions = map[Command]map[AdmissionState]AdmissionState{
	CommandAdmit: {
		AdmissionStateDraft: AdmissionStateActive,
	},
	CommandDischarge: {
		AdmissionStateActive: AdmissionStateDischarged,
	},
	CommandCancel: {
		AdmissionStateDraft:  AdmissionStateCancelled,
		AdmissionStateActive: AdmissionStateCancelled,
	},
	CommandReassign: {
		AdmissionStateActive: AdmissionStateActive,
	},
}

// terminalRepeats are commands that already produced the given terminal
// state; repeating them changes nothing.
var terminalRepeats = map[AdmissionState]Command{
	AdmissionStateDischarged: CommandDischarge,
	AdmissionStateCancelled:  CommandCancel,
}

// Transition resolves cmd against from. noop is true when cmd is a repeat of
// the command that produced the current terminal state.
func Transition(from AdmissionState, cmd Command) (to AdmissionState, noop bool, err error) {
	if repeat, ok := terminalRepeats[from]; ok && repeat == cmd {
		return from, true, nil
	}
	if next, ok := transitions[cmd][from]; ok {
		return next, false, nil
	}
	return from, false, &TransitionError{From: from, Command: cmd}
}

type Admission struct {
	Base
	Reference        string         `json:"reference" db:"reference"`
	PatientID        uuid.UUID      `json:"patient_id" db:"patient_id"`
	DoctorID         *uuid.UUID     `json:"doctor_id,omitempty" db:"doctor_id"`
	AdmittedAt       time.Time      `json:"admitted_at" db:"admitted_at"`
	DischargedAt     *time.Time     `json:"discharged_at,omitempty" db:"discharged_at"`
	BedID            *uuid.UUID     `json:"bed_id,omitempty" db:"bed_id"`
	Kind             AdmissionKind  `json:"kind" db:"kind"`
	Diagnosis        string         `json:"diagnosis" db:"diagnosis"`
	DischargeSummary string         `json:"discharge_summary" db:"discharge_summary"`
	State            AdmissionState `json:"state" db:"state"`
	CreatedBy        uuid.UUID      `json:"created_by" db:"created_by"`
	UpdatedBy        uuid.UUID      `json:"updated_by" db:"updated_by"`
}

// HoldsBed reports whether the admission is active on bedID.
func (a *Admission) HoldsBed(bedID uuid.UUID) bool {
	return a.State == AdmissionStateActive && a.BedID != nil && *a.BedID == bedID
}

type CreateAdmissionRequest struct {
	PatientID  uuid.UUID     `json:"patient_id" binding:"required"`
	DoctorID   *uuid.UUID    `json:"doctor_id"`
	BedID      *uuid.UUID    `json:"bed_id"`
	Kind       AdmissionKind `json:"kind" binding:"omitempty,admissionkind"`
	AdmittedAt *time.Time    `json:"admitted_at"`
	Diagnosis  string        `json:"diagnosis" binding:"max=4000"`
}

// UpdateAdmissionRequest is a partial update; nil fields are left unchanged.
type UpdateAdmissionRequest struct {
	DoctorID         *uuid.UUID     `json:"doctor_id"`
	BedID            *uuid.UUID     `json:"bed_id"`
	Kind             *AdmissionKind `json:"kind" binding:"omitempty,admissionkind"`
	Diagnosis        *string        `json:"diagnosis" binding:"omitempty,max=4000"`
	DischargeSummary *string        `json:"discharge_summary" binding:"omitempty,max=8000"`
}

type DischargeRequest struct {
	Summary string `json:"summary" binding:"max=8000"`
}

type ReassignRequest struct {
	BedID uuid.UUID `json:"bed_id" binding:"required"`
}

type AdmissionFilters struct {
	State     AdmissionState `form:"state" binding:"omitempty,admissionstate"`
	BedID     *uuid.UUID     `form:"-"`
	PatientID *uuid.UUID     `form:"-"`
	From      *time.Time     `form:"from" time_format:"2006-01-02"`
	To        *time.Time     `form:"to" time_format:"2006-01-02"`
	Pagination
}

// AdmissionSummary counts admissions by state over an admission-date range.
type AdmissionSummary struct {
	From   *time.Time             `json:"from,omitempty"`
	To     *time.Time             `json:"to,omitempty"`
	Counts map[AdmissionState]int `json:"counts"`
	Total  int                    `json:"total"`
}

// PatientRef is the slice of patient data admissions need.
type PatientRef struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}
