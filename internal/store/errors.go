package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("store: invalid status transition")

	ErrPatientIDRequired       = errors.New("store: patient_id is required")
	ErrInvalidDoctor           = errors.New("store: doctor must be dr_gabriel or dr_romulo")
	ErrInvalidAppointmentType  = errors.New("store: appointment_type must be first_consultation or procedure")
	ErrAppointmentDateRequired = errors.New("store: appointment_date is required")
)
