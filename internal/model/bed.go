package model

import (
	"github.com/google/uuid"
)

type BedType string

const (
	BedTypeStandard BedType = "standard"
	BedTypeICU      BedType = "icu"
	BedTypeVIP      BedType = "vip"
)

func (t BedType) Valid() bool {
	switch t {
	case BedTypeStandard, BedTypeICU, BedTypeVIP:
		return true
	}
	return false
}

type BedState string

const (
	BedStateFree        BedState = "free"
	BedStateOccupied    BedState = "occupied"
	BedStateMaintenance BedState = "maintenance"
)

func (s BedState) Valid() bool {
	switch s {
	case BedStateFree, BedStateOccupied, BedStateMaintenance:
		return true
	}
	return false
}

// Bed is a physical bed. State is occupied only while exactly one active
// admission references it.
type Bed struct {
	Base
	Name   string     `json:"name" db:"name"`
	RoomID *uuid.UUID `json:"room_id,omitempty" db:"room_id"`
	Type   BedType    `json:"bed_type" db:"bed_type"`
	State  BedState   `json:"state" db:"state"`
}

// Occupant is the read-only projection of who currently holds a bed.
type Occupant struct {
	AdmissionID uuid.UUID `json:"admission_id"`
	Reference   string    `json:"reference"`
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name"`
}

// BedView is a bed together with its derived occupant.
type BedView struct {
	Bed
	CurrentOccupant *Occupant `json:"current_occupant,omitempty"`
}

type CreateBedRequest struct {
	Name   string     `json:"name" binding:"required,max=64"`
	RoomID *uuid.UUID `json:"room_id"`
	Type   BedType    `json:"bed_type" binding:"omitempty,bedtype"`
	State  BedState   `json:"state" binding:"omitempty,oneof=free maintenance"`
}

type BedFilters struct {
	RoomID *uuid.UUID `form:"-"`
	Type   BedType    `form:"bed_type" binding:"omitempty,bedtype"`
	State  BedState   `form:"state" binding:"omitempty,bedstate"`
	Pagination
}
