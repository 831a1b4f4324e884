package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrNoBedSelected     = errors.New("no bed selected")
	ErrBedUnavailable    = errors.New("bed is not available")
	ErrBedOccupied       = errors.New("bed is occupied")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrLockTimeout       = errors.New("timed out waiting for lock")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrBedReferenced     = errors.New("bed is referenced by admissions")

	// ErrBedNotFound is an ErrNotFound for the bed an admission points at.
	ErrBedNotFound = fmt.Errorf("bed %w", ErrNotFound)
)

// BedOccupiedError reports the active admission that holds a bed.
type BedOccupiedError struct {
	Reference   string
	PatientName string
}

func (e *BedOccupiedError) Error() string {
	return fmt.Sprintf("bed is occupied by admission %s (patient %s)", e.Reference, e.PatientName)
}

func (e *BedOccupiedError) Is(target error) bool {
	return target == ErrBedOccupied
}

// TransitionError reports a command that is not allowed from the current state.
type TransitionError struct {
	From    AdmissionState
	Command Command
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s an admission in state %s", e.Command, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
