package domain

import "errors"

// Sentinel errors shared by the triage packages. Callers wrap them with
// fmt.Errorf("...: %w", err) and match with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrZoneUnresolved    = errors.New("zone could not be resolved")
	ErrUnknownDistrict   = errors.New("unknown district")
)
