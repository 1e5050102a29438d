// Package defect defines how the commit workflow obtains a defect breakdown
// from an external actor, and ships the adapters that implement it.
package defect

import (
	"context"
	"errors"
	"fmt"

	"mes-result-backend/internal/production"
)

var (
	// ErrAlreadyPending is returned when a request is made for a result that
	// already has an unresolved request.
	ErrAlreadyPending = errors.New("defect input already requested for this result")
	// ErrNoPendingRequest is returned when resolving a request that does not exist.
	ErrNoPendingRequest = errors.New("no pending defect input request")
	// ErrEmptySubmission is returned when a submission carries no records.
	ErrEmptySubmission = errors.New("at least one defect record is required")
	// ErrInvalidRecord is returned for records with a non-positive quantity or no cause.
	ErrInvalidRecord = errors.New("invalid defect record")
	// ErrOverAllocated is returned when records exceed the result's defect quantity.
	ErrOverAllocated = errors.New("defect records exceed the declared defect quantity")
)

// Prompt is what the collector is asked to fill in.
type Prompt struct {
	Result production.ProductionResult
	// Draft holds records from an earlier, rejected attempt so they can be
	// edited instead of re-entered. It may be empty.
	Draft []production.DefectRecord
}

// Response is the single resolution of a request: either records or a cancellation.
type Response struct {
	Records   []production.DefectRecord
	Cancelled bool
}

// Cancelled is the response of a dismissed request.
func Cancelled() Response {
	return Response{Cancelled: true}
}

// Submitted is the response carrying records.
func Submitted(records []production.DefectRecord) Response {
	return Response{Records: records}
}

// Collector asks an external actor for the defect breakdown of a result. The
// call blocks until the actor answers and resolves exactly once. The returned
// records need not be reconciled yet; the caller re-validates them.
type Collector interface {
	Request(ctx context.Context, prompt Prompt) (Response, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context, prompt Prompt) (Response, error)

// Request calls f.
func (f CollectorFunc) Request(ctx context.Context, prompt Prompt) (Response, error) {
	return f(ctx, prompt)
}

// ValidateSubmission checks records the way the entry dialog does before it
// lets the user confirm: every record needs a positive quantity and a cause,
// and the total may not exceed the result's defect quantity.
func ValidateSubmission(result production.ProductionResult, records []production.DefectRecord) error {
	if len(records) == 0 {
		return ErrEmptySubmission
	}
	for i, r := range records {
		if !(r.DefectQty > 0) || r.DefectCause == "" {
			return &RecordError{Index: i, Record: r}
		}
		if production.RemainingCapacity(result, records[:i])+production.Tolerance < r.DefectQty {
			return ErrOverAllocated
		}
	}
	return nil
}

// Normalize returns a copy of records with their state set to NEW.
func Normalize(records []production.DefectRecord) []production.DefectRecord {
	out := make([]production.DefectRecord, len(records))
	for i, r := range records {
		r.State = production.DefectStateNew
		out[i] = r
	}
	return out
}

// RecordError points at the offending record of a submission.
type RecordError struct {
	Index  int
	Record production.DefectRecord
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%v at position %d: quantity must be positive and cause is required", ErrInvalidRecord, e.Index+1)
}

// Unwrap lets errors.Is match ErrInvalidRecord.
func (e *RecordError) Unwrap() error {
	return ErrInvalidRecord
}
