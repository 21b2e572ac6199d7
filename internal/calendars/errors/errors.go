package errors

import "errors"

var (
	ErrNotFound = errors.New("calendar not found")

	ErrOverlappingWindows = errors.New("working windows overlap")

	ErrDuplicateException = errors.New("more than one exception for the same date")
)
