package domain

import (
	"errors"
	"fmt"
)

// ErrValidationRequired is returned when an address has no cached identity
// and no geocoder is available to validate it. A programming-contract
// violation for callers that promised a validation result.
var ErrValidationRequired = errors.New("address not cached and no validation result available")

// GeocodingError wraps a failed address validation call. The core does not
// retry; the failure aborts the single address being processed and commits
// no partial state.
type GeocodingError struct {
	Address string
	Err     error
}

func (e *GeocodingError) Error() string {
	return fmt.Sprintf("geocoding %q: %v", e.Address, e.Err)
}

func (e *GeocodingError) Unwrap() error { return e.Err }

// DispatchError wraps a failed dispatch API call (submit or fetch). The task
// is not persisted.
type DispatchError struct {
	Op  string
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Op, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// BatchWriteError wraps a failed bulk flush. The buffer contents are
// preserved in full for retry; a flush never partially clears.
type BatchWriteError struct {
	Table string
	Rows  int
	Err   error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("batch load %s (%d rows): %v", e.Table, e.Rows, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// ExtractionError wraps a failed document extraction call.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("document extraction: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
