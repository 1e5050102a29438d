package workflow

import (
	"errors"
	"fmt"

	"mes-result-backend/internal/production"
)

// ErrBusy is returned when a commit for the same key is already in flight.
var ErrBusy = errors.New("operation in progress")

// Disposition is the final answer of a commit attempt.
type Disposition string

const (
	Committed Disposition = "committed"
	Rejected  Disposition = "rejected"
	Cancelled Disposition = "cancelled"
	// Busy means the attempt never started because the guard was held.
	Busy Disposition = "busy"
)

// RejectKind classifies why an attempt was rejected.
type RejectKind string

const (
	KindPrecondition RejectKind = "precondition"
	KindMismatch     RejectKind = "mismatch"
	KindInput        RejectKind = "input"
	KindBusinessRule RejectKind = "business_rule"
	KindTransport    RejectKind = "transport"
)

// Outcome is everything a caller learns about a commit attempt.
type Outcome struct {
	Disposition Disposition
	Kind        RejectKind
	// Reason is meant for display.
	Reason string
	// Result is the server-confirmed result on success and the attempted
	// result otherwise.
	Result production.ProductionResult
	// Records are the defect records of the attempt. After a mismatch they are
	// handed back so the caller can reopen the collector with them.
	Records []production.DefectRecord
	Err     error
	// Trace lists the states the attempt went through.
	Trace []string
}

// PreconditionError is a field-level rule violated before anything was sent.
type PreconditionError struct {
	Field   string
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MismatchError reports defect records that do not add up to the declared quantity.
type MismatchError struct {
	Actual   float64
	Expected float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("defect quantity mismatch: %s/%s", production.FormatQty(e.Actual), production.FormatQty(e.Expected))
}

func checkPreconditions(r production.ProductionResult) error {
	switch {
	case r.ProductID == "":
		return &PreconditionError{Field: "productId", Message: "product is required"}
	case r.WarehouseID == "":
		return &PreconditionError{Field: "warehouseId", Message: "warehouse is required"}
	case !(r.GoodQty >= 0) || !(r.DefectQty >= 0):
		return &PreconditionError{Field: "quantity", Message: "good and defect quantities cannot be negative"}
	case !r.IsNew():
		return &PreconditionError{Field: "resultId", Message: "committed results cannot be modified; delete and recreate instead"}
	}
	return nil
}

func checkRecords(records []production.DefectRecord) error {
	for i, rec := range records {
		if !(rec.DefectQty > 0) || rec.DefectCause == "" {
			return &PreconditionError{
				Field:   fmt.Sprintf("defects[%d]", i),
				Message: "defect quantity must be positive and a cause is required",
			}
		}
	}
	return nil
}
