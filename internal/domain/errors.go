package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when an outlook request fails validation.
	ErrInvalidRequest = errors.New("invalid outlook request")

	// ErrFetchFailed marks a transient upstream failure (network, 5xx) that
	// survived the retry budget.
	ErrFetchFailed = errors.New("could not reach the outlook data source")

	// ErrNoDataAvailable means upstream confirmed no outlook exists for the
	// requested date, day and type. It is never retried.
	ErrNoDataAvailable = errors.New("no outlook data exists for this date, try a different date")

	// ErrMalformedArchive means the archive could not be read as shapefiles.
	ErrMalformedArchive = errors.New("malformed outlook archive")

	// ErrHazardUnavailable is recorded when a cycle has no records for a hazard.
	ErrHazardUnavailable = errors.New("hazard not issued in cycle")

	// ErrCycleNotIssued is recorded when a requested or expected cycle is
	// missing from the archive.
	ErrCycleNotIssued = errors.New("cycle not issued")

	// ErrNoResults is returned when no (cycle, hazard) pair produced geometry.
	ErrNoResults = errors.New("no hazard geometry found for request")
)

// Diagnostic records a condition that was recovered locally during a run.
// Err is one of the package sentinels so callers can classify it with errors.Is.
type Diagnostic struct {
	Err    error
	Cycle  Cycle
	Hazard Hazard
}

func (d Diagnostic) Error() string {
	if d.Hazard == "" {
		return fmt.Sprintf("%s: %v", d.Cycle, d.Err)
	}
	return fmt.Sprintf("%s %s: %v", d.Cycle, d.Hazard, d.Err)
}

func (d Diagnostic) Unwrap() error { return d.Err }
