package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed markers, positions or parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidPosition is returned for overlay positions that cannot be parsed.
	ErrInvalidPosition = fmt.Errorf("%w: invalid position", ErrInvalidInput)
	// ErrNotReady is used internally while the host map has not signalled readiness.
	ErrNotReady = errors.New("map not ready")
	// ErrMapRequired is returned by constructors given a nil map.
	ErrMapRequired = errors.New("map instance is required")
	// ErrDestroyed is returned by components after Destroy.
	ErrDestroyed = errors.New("component destroyed")
	// ErrCancelled is returned when a delayed open or close is superseded.
	ErrCancelled = errors.New("operation cancelled")

	ErrProviderNotFound = errors.New("provider not found")
	ErrAddressNotFound  = errors.New("address not found")
	ErrGeocodingFailed  = errors.New("geocoding failed")
	ErrRoutingFailed    = errors.New("routing failed")
	ErrMarkerNotFound   = errors.New("marker not found")
)
