package model

import "time"

// ProductionResult is a persisted production result (hot table).
type ProductionResult struct {
	ResultID    string  `gorm:"primaryKey;size:36"`
	WorkOrderID *string `gorm:"size:64;index"`
	ProductID   string  `gorm:"size:64;not null"`
	WarehouseID string  `gorm:"size:64;not null"`
	EquipmentID string  `gorm:"size:64"`
	GoodQty     float64 `gorm:"not null"`
	DefectQty   float64 `gorm:"not null"`
	StartTime   *time.Time
	EndTime     *time.Time
	Note        string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Associations
	Defects []DefectRecord `gorm:"foreignKey:ResultID;constraint:OnDelete:CASCADE"`
}

// DefectRecord is one line of a result's defect breakdown.
type DefectRecord struct {
	ID          string  `gorm:"primaryKey;size:36"`
	ResultID    string  `gorm:"size:36;not null;index"`
	DefectQty   float64 `gorm:"not null"`
	DefectCause string  `gorm:"size:64;not null"`
	DefectType  string  `gorm:"size:64"`
	Detail      string  `gorm:"type:text"`
	State       string  `gorm:"size:16;not null"`
	CreatedAt   time.Time
}
