package mapsync

import (
	"errors"
	"fmt"
)

// ErrSurfaceClosed is returned by adapter calls after the page unmounted.
var ErrSurfaceClosed = errors.New("map surface closed")

// ErrSurfaceNotReady is returned by marker calls before initialization.
var ErrSurfaceNotReady = errors.New("map surface not ready")

// StaleSelectionError means a marker referenced an asset that is no longer
// in the store. It is not fatal: the selection resets to Idle.
type StaleSelectionError struct {
	ID string
}

func (e *StaleSelectionError) Error() string {
	return fmt.Sprintf("stale selection: asset %q is no longer registered", e.ID)
}

// SurfaceInitError means the map provider could not be initialized. The map
// panel shows a fallback; the rest of the page keeps working.
type SurfaceInitError struct {
	Reason string
	Err    error
}

func (e *SurfaceInitError) Error() string {
	if e.Err != nil {
		return "map unavailable: " + e.Reason + ": " + e.Err.Error()
	}
	return "map unavailable: " + e.Reason
}

func (e *SurfaceInitError) Unwrap() error { return e.Err }
