package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mes-result-backend/internal/model"
	"mes-result-backend/internal/production"
)

// Store defines the interface for all database operations.
type Store interface {
	SaveProductionResult(ctx context.Context, in ProductionResultInput, defects []DefectRecordInput) (SaveReceipt, error)
	DeleteProductionResult(ctx context.Context, resultID string) error
	ListResults(ctx context.Context, workOrderID string) ([]production.ProductionResult, error)
	GetWorkOrder(ctx context.Context, id string) (production.WorkOrderContext, error)
	ListWorkOrders(ctx context.Context) ([]production.WorkOrderContext, error)
	UpsertWorkOrders(ctx context.Context, items []UpstreamWorkOrder) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	newID func() string
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, newID: uuid.NewString}
}

// DB exposes the underlying connection for handlers that query directly.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// SaveProductionResult stores the result and its defect breakdown in one
// transaction and books the quantities against the work order, if any.
func (s *gormStore) SaveProductionResult(ctx context.Context, in ProductionResultInput, defects []DefectRecordInput) (SaveReceipt, error) {
	if err := checkBreakdown(in, defects); err != nil {
		return SaveReceipt{}, err
	}

	resultID := s.newID()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.WorkOrderID != "" {
			if err := checkOrderLimit(tx, in); err != nil {
				return err
			}
		}

		row := model.ProductionResult{
			ResultID:    resultID,
			WorkOrderID: optional(in.WorkOrderID),
			ProductID:   in.ProductID,
			WarehouseID: in.WarehouseID,
			EquipmentID: in.EquipmentID,
			GoodQty:     in.GoodQty,
			DefectQty:   in.DefectQty,
			StartTime:   in.StartTime,
			EndTime:     in.EndTime,
			Note:        in.Note,
		}
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create production result: %w", err)
		}

		if len(defects) > 0 {
			rows := make([]model.DefectRecord, 0, len(defects))
			for _, d := range defects {
				rows = append(rows, model.DefectRecord{
					ID:          s.newID(),
					ResultID:    resultID,
					DefectQty:   d.DefectQty,
					DefectCause: d.DefectCause,
					DefectType:  d.DefectType,
					Detail:      d.Detail,
					State:       string(production.DefectStateNew),
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to create defect records for result %s: %w", resultID, err)
			}
		}

		if in.WorkOrderID != "" {
			return bookQuantities(tx, in.WorkOrderID, in.GoodQty, in.DefectQty)
		}
		return nil
	})
	if err != nil {
		return SaveReceipt{}, err
	}
	return SaveReceipt{ResultID: resultID}, nil
}

// DeleteProductionResult removes a persisted result with its defect records and
// takes its quantities back off the work order.
func (s *gormStore) DeleteProductionResult(ctx context.Context, resultID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.ProductionResult
		if err := tx.First(&row, "result_id = ?", resultID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &BusinessRuleError{Code: CodeResultNotFound, Message: fmt.Sprintf("production result %s does not exist", resultID)}
			}
			return fmt.Errorf("failed to load production result %s: %w", resultID, err)
		}

		if err := tx.Where("result_id = ?", resultID).Delete(&model.DefectRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete defect records of result %s: %w", resultID, err)
		}
		if err := tx.Delete(&model.ProductionResult{}, "result_id = ?", resultID).Error; err != nil {
			return fmt.Errorf("failed to delete production result %s: %w", resultID, err)
		}

		if row.WorkOrderID != nil && *row.WorkOrderID != "" {
			return bookQuantities(tx, *row.WorkOrderID, -row.GoodQty, -row.DefectQty)
		}
		return nil
	})
}

// ListResults returns the persisted results of a work order, or the
// independent results when workOrderID is empty.
func (s *gormStore) ListResults(ctx context.Context, workOrderID string) ([]production.ProductionResult, error) {
	query := s.db.WithContext(ctx).Order("created_at")
	if workOrderID == "" {
		query = query.Where("work_order_id IS NULL")
	} else {
		query = query.Where("work_order_id = ?", workOrderID)
	}

	var rows []model.ProductionResult
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list production results: %w", err)
	}

	out := make([]production.ProductionResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, toResult(row))
	}
	return out, nil
}

// GetWorkOrder returns the defaults a new result inherits from a work order.
func (s *gormStore) GetWorkOrder(ctx context.Context, id string) (production.WorkOrderContext, error) {
	var wo model.WorkOrder
	if err := s.db.WithContext(ctx).First(&wo, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return production.WorkOrderContext{}, ErrNotFound
		}
		return production.WorkOrderContext{}, fmt.Errorf("failed to load work order %s: %w", id, err)
	}
	return toWorkOrderContext(wo), nil
}

// ListWorkOrders returns every work order that is not closed.
func (s *gormStore) ListWorkOrders(ctx context.Context) ([]production.WorkOrderContext, error) {
	var rows []model.WorkOrder
	if err := s.db.WithContext(ctx).
		Where("status <> ?", model.WorkOrderStatusClosed).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list work orders: %w", err)
	}

	out := make([]production.WorkOrderContext, 0, len(rows))
	for _, wo := range rows {
		out = append(out, toWorkOrderContext(wo))
	}
	return out, nil
}

// UpsertWorkOrders writes the upstream work order metadata. Booked quantities
// are owned locally and never overwritten.
func (s *gormStore) UpsertWorkOrders(ctx context.Context, items []UpstreamWorkOrder) error {
	if len(items) == 0 {
		return nil
	}

	rows := make([]model.WorkOrder, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		rows = append(rows, model.WorkOrder{
			ID:          item.ID,
			Code:        item.Code,
			ProductID:   item.ProductID,
			EquipmentID: item.EquipmentID,
			WarehouseID: item.WarehouseID,
			PlannedQty:  item.PlannedQty,
			Status:      item.Status,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"code", "product_id", "equipment_id", "warehouse_id", "planned_qty", "status", "updated_at"}),
		}).Create(&rows).Error
	})
}

// --- Helpers ---

func checkBreakdown(in ProductionResultInput, defects []DefectRecordInput) error {
	records := make([]production.DefectRecord, 0, len(defects))
	for _, d := range defects {
		if d.DefectQty <= 0 || d.DefectCause == "" {
			return &BusinessRuleError{Code: CodeDefectMismatch, Message: "every defect record needs a positive quantity and a cause"}
		}
		records = append(records, production.DefectRecord{DefectQty: d.DefectQty})
	}
	result := production.ProductionResult{DefectQty: in.DefectQty}
	if !production.IsReconciled(result, records) {
		return &BusinessRuleError{
			Code:    CodeDefectMismatch,
			Message: fmt.Sprintf("defect records total %g but the result declares %g", production.DefectSum(records), in.DefectQty),
		}
	}
	return nil
}

// checkOrderLimit locks the work order row until the transaction ends, so
// concurrent saves against the same order are checked one after another.
// SQLite has no row locks; it serialises writers on its own.
func checkOrderLimit(tx *gorm.DB, in ProductionResultInput) error {
	query := tx
	if tx.Dialector.Name() != "sqlite" {
		query = tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var wo model.WorkOrder
	if err := query.First(&wo, "id = ?", in.WorkOrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &BusinessRuleError{Code: CodeWorkOrderNotFound, Message: fmt.Sprintf("work order %s does not exist", in.WorkOrderID)}
		}
		return fmt.Errorf("failed to load work order %s: %w", in.WorkOrderID, err)
	}

	if wo.Status == model.WorkOrderStatusClosed {
		return &BusinessRuleError{Code: CodeWorkOrderClosed, Message: fmt.Sprintf("work order %s is closed", wo.ID)}
	}

	open := wo.PlannedQty - wo.CompletedQty - wo.ScrapQty
	if in.GoodQty+in.DefectQty > open+production.Tolerance {
		return &BusinessRuleError{
			Code:    CodeQuantityLimit,
			Message: fmt.Sprintf("quantity %g exceeds the open quantity %g of work order %s", in.GoodQty+in.DefectQty, open, wo.ID),
		}
	}
	return nil
}

func bookQuantities(tx *gorm.DB, workOrderID string, good, defect float64) error {
	if err := tx.Model(&model.WorkOrder{}).
		Where("id = ?", workOrderID).
		Updates(map[string]any{
			"completed_qty": gorm.Expr("completed_qty + ?", good),
			"scrap_qty":     gorm.Expr("scrap_qty + ?", defect),
		}).Error; err != nil {
		return fmt.Errorf("failed to book quantities on work order %s: %w", workOrderID, err)
	}
	return nil
}

func toResult(row model.ProductionResult) production.ProductionResult {
	resultID := row.ResultID
	r := production.ProductionResult{
		ID:          row.ResultID,
		ResultID:    &resultID,
		ProductID:   row.ProductID,
		WarehouseID: row.WarehouseID,
		EquipmentID: row.EquipmentID,
		GoodQty:     row.GoodQty,
		DefectQty:   row.DefectQty,
		StartTime:   row.StartTime,
		EndTime:     row.EndTime,
		Note:        row.Note,
	}
	if row.WorkOrderID != nil {
		r.WorkOrderID = *row.WorkOrderID
	}
	return r
}

func toWorkOrderContext(wo model.WorkOrder) production.WorkOrderContext {
	return production.WorkOrderContext{
		WorkOrderID: wo.ID,
		ProductID:   wo.ProductID,
		EquipmentID: wo.EquipmentID,
		WarehouseID: wo.WarehouseID,
		PlannedQty:  wo.PlannedQty,
		Status:      wo.Status,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
