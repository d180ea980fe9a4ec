package domain

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConcurrentUpdate is returned by repositories when a conditional
	// status update lost against another writer.
	ErrConcurrentUpdate = errors.New("order changed concurrently")
)
