// Package apperr defines sentinel errors shared across Raido layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	// ErrSyncInFlight is returned when a pull for a purpose is requested
	// while another pull for the same purpose is still outstanding. The
	// request is a no-op, not a queued retry.
	ErrSyncInFlight = errors.New("sync already in flight")
)
