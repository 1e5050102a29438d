package model

import "time"

// Work order statuses as delivered by the upstream ERP.
const (
	WorkOrderStatusReleased   = "RELEASED"
	WorkOrderStatusInProgress = "IN_PROGRESS"
	WorkOrderStatusClosed     = "CLOSED"
)

// WorkOrder is a production order results can be booked against.
type WorkOrder struct {
	ID           string  `gorm:"primaryKey;size:64"` // Upstream ID
	Code         string  `gorm:"size:64;index"`
	ProductID    string  `gorm:"size:64;not null"`
	EquipmentID  string  `gorm:"size:64"`
	WarehouseID  string  `gorm:"size:64"`
	PlannedQty   float64 `gorm:"not null"`
	CompletedQty float64 `gorm:"not null;default:0"`
	ScrapQty     float64 `gorm:"not null;default:0"`
	Status       string  `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
