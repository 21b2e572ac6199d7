package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrTimeConflict = errors.New("booking time conflicts with existing booking")

	ErrLockTimeout = errors.New("timed out waiting for provider lock")

	ErrPersistence = errors.New("booking store unavailable")

	ErrVersionConflict = errors.New("booking was modified concurrently")
)
