package rate

import "errors"

var (
	// ErrInvalidLimit is returned for a non-positive max or a window under one second.
	ErrInvalidLimit = errors.New("rate: invalid limit")
	// ErrBackendUnavailable wraps counter store failures.
	ErrBackendUnavailable = errors.New("rate: backend unavailable")
)
