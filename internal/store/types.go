package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// ProductionResultInput is the result half of a save call.
type ProductionResultInput struct {
	WorkOrderID string
	ProductID   string
	WarehouseID string
	EquipmentID string
	GoodQty     float64
	DefectQty   float64
	StartTime   *time.Time
	EndTime     *time.Time
	Note        string
}

// DefectRecordInput is one defect line of a save call.
type DefectRecordInput struct {
	DefectQty   float64
	DefectCause string
	DefectType  string
	Detail      string
}

// SaveReceipt is returned by a successful save.
type SaveReceipt struct {
	ResultID string
}

// UpstreamWorkOrder represents a single work order record from the upstream ERP API.
type UpstreamWorkOrder struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	ProductID   string  `json:"productId"`
	EquipmentID string  `json:"equipmentId"`
	WarehouseID string  `json:"warehouseId"`
	PlannedQty  float64 `json:"plannedQty"`
	Status      string  `json:"status"`
}

// Business rule codes reported by the persistence layer.
const (
	CodeQuantityLimit     = "QUANTITY_LIMIT"
	CodeWorkOrderNotFound = "WORK_ORDER_NOT_FOUND"
	CodeWorkOrderClosed   = "WORK_ORDER_CLOSED"
	CodeDefectMismatch    = "DEFECT_MISMATCH"
	CodeResultNotFound    = "RESULT_NOT_FOUND"
)

// BusinessRuleError is a rejection the caller can act on. Its message is meant
// to be shown to the user as is.
type BusinessRuleError struct {
	Code    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsBusinessRule reports whether err carries a business rule rejection.
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}
