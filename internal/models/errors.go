package models

import "errors"

var (
	ErrRiderNotFound  = errors.New("rider not found")
	ErrDriverNotFound = errors.New("driver not found")
	ErrTripNotFound   = errors.New("trip not found")
	ErrDriverOffline  = errors.New("driver offline")
	ErrForbidden      = errors.New("actor does not match trip")
	ErrInvalidState   = errors.New("invalid state transition")
	ErrValidation     = errors.New("validation failed")
)

// IsNotFound reports whether err is one of the entity lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRiderNotFound) ||
		errors.Is(err, ErrDriverNotFound) ||
		errors.Is(err, ErrTripNotFound)
}
