package model

import "errors"

// Sentinel error kinds per spec §7. InsufficientData is never surfaced to
// callers — kernels and pipeline stages absorb it by returning empty output.
var (
	// ErrMalformedBar marks a non-finite value or a violated OHLC invariant.
	ErrMalformedBar = errors.New("malformed bar")

	// ErrConfigError marks invalid ChanlunParams, rejected at construction.
	ErrConfigError = errors.New("config error")
)
