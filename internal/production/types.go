package production

import "time"

// DefectState is the lifecycle marker of a defect record.
type DefectState string

// DefectStateNew is the only state a record can have before it is persisted.
const DefectStateNew DefectState = "NEW"

// ProductionResult is one record of actual output against a product.
// A nil ResultID means the result has never been saved.
type ProductionResult struct {
	ID          string     `json:"id"`
	ResultID    *string    `json:"resultId,omitempty"`
	WorkOrderID string     `json:"workOrderId,omitempty"`
	ProductID   string     `json:"productId"`
	WarehouseID string     `json:"warehouseId"`
	EquipmentID string     `json:"equipmentId,omitempty"`
	GoodQty     float64    `json:"goodQty"`
	DefectQty   float64    `json:"defectQty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// IsNew reports whether the result still lacks a server-assigned id.
func (r ProductionResult) IsNew() bool {
	return r.ResultID == nil || *r.ResultID == ""
}

// RequiresDefectInput reports whether the result needs a defect breakdown
// before it can be persisted. It is evaluated from the current state only.
func (r ProductionResult) RequiresDefectInput() bool {
	return r.DefectQty > 0
}

// DefectRecord explains part of a result's defect quantity.
type DefectRecord struct {
	DefectQty   float64     `json:"defectQty"`
	DefectCause string      `json:"defectCause"`
	DefectType  string      `json:"defectType,omitempty"`
	Detail      string      `json:"detail,omitempty"`
	State       DefectState `json:"state"`
}

// WorkOrderContext supplies default values for results created under a work order.
type WorkOrderContext struct {
	WorkOrderID string  `json:"workOrderId"`
	ProductID   string  `json:"productId"`
	EquipmentID string  `json:"equipmentId,omitempty"`
	WarehouseID string  `json:"warehouseId,omitempty"`
	PlannedQty  float64 `json:"plannedQty"`
	Status      string  `json:"status"`
}
