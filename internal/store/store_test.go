package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

var workOrderColumns = []string{"id", "code", "product_id", "planned_qty", "completed_qty", "scrap_qty", "status"}

func TestGormStore_SaveProductionResultRejections(t *testing.T) {
	testCases := []struct {
		name             string
		input            ProductionResultInput
		defects          []DefectRecordInput
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedCode     string
	}{
		{
			name:             "Defect records do not add up, rejected before any SQL",
			input:            ProductionResultInput{WorkOrderID: "WO-1", ProductID: "P1", WarehouseID: "W1", GoodQty: 8, DefectQty: 2},
			defects:          []DefectRecordInput{{DefectQty: 1, DefectCause: "APPEARANCE"}},
			mockExpectations: func(mock sqlmock.Sqlmock) {},
			expectedCode:     CodeDefectMismatch,
		},
		{
			name:             "Records without a defect quantity, rejected before any SQL",
			input:            ProductionResultInput{ProductID: "P1", WarehouseID: "W1", GoodQty: 8},
			defects:          []DefectRecordInput{{DefectQty: 1, DefectCause: "APPEARANCE"}},
			mockExpectations: func(mock sqlmock.Sqlmock) {},
			expectedCode:     CodeDefectMismatch,
		},
		{
			name:  "Unknown work order",
			input: ProductionResultInput{WorkOrderID: "WO-404", ProductID: "P1", WarehouseID: "W1", GoodQty: 10},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT \* FROM "work_orders" WHERE id = \$1`).
					WithArgs("WO-404", 1).
					WillReturnRows(sqlmock.NewRows(workOrderColumns))
				mock.ExpectRollback()
			},
			expectedCode: CodeWorkOrderNotFound,
		},
		{
			name:  "Closed work order",
			input: ProductionResultInput{WorkOrderID: "WO-1", ProductID: "P1", WarehouseID: "W1", GoodQty: 1},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT \* FROM "work_orders" WHERE id = \$1`).
					WithArgs("WO-1", 1).
					WillReturnRows(sqlmock.NewRows(workOrderColumns).AddRow("WO-1", "C1", "P1", 100, 0, 0, "CLOSED"))
				mock.ExpectRollback()
			},
			expectedCode: CodeWorkOrderClosed,
		},
		{
			name:    "Quantity exceeds the open order quantity",
			input:   ProductionResultInput{WorkOrderID: "WO-1", ProductID: "P1", WarehouseID: "W1", GoodQty: 5, DefectQty: 1},
			defects: []DefectRecordInput{{DefectQty: 1, DefectCause: "APPEARANCE"}},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT \* FROM "work_orders" WHERE id = \$1`).
					WithArgs("WO-1", 1).
					WillReturnRows(sqlmock.NewRows(workOrderColumns).AddRow("WO-1", "C1", "P1", 10, 4, 1, "RELEASED"))
				mock.ExpectRollback()
			},
			expectedCode: CodeQuantityLimit,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			store := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			receipt, err := store.SaveProductionResult(context.Background(), tc.input, tc.defects)

			var bre *BusinessRuleError
			require.True(t, errors.As(err, &bre), "expected a business rule error, got %v", err)
			assert.Equal(t, tc.expectedCode, bre.Code)
			assert.Empty(t, receipt.ResultID)
			assert.True(t, IsBusinessRule(err))

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_SaveProductionResultLocksWorkOrder(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "work_orders" WHERE id = \$1 ORDER BY "work_orders"."id" LIMIT \$2 FOR UPDATE`).
		WithArgs("WO-1", 1).
		WillReturnRows(sqlmock.NewRows(workOrderColumns).AddRow("WO-1", "C1", "P1", 5, 0, 0, "RELEASED"))
	mock.ExpectRollback()

	_, err := store.SaveProductionResult(context.Background(), ProductionResultInput{WorkOrderID: "WO-1", ProductID: "P1", WarehouseID: "W1", GoodQty: 6}, nil)

	var bre *BusinessRuleError
	require.True(t, errors.As(err, &bre), "expected a business rule error, got %v", err)
	assert.Equal(t, CodeQuantityLimit, bre.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SaveProductionResultTransportError(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "work_orders" WHERE id = \$1`).
		WithArgs("WO-1", 1).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err := store.SaveProductionResult(context.Background(), ProductionResultInput{WorkOrderID: "WO-1", ProductID: "P1", WarehouseID: "W1", GoodQty: 1}, nil)

	require.Error(t, err)
	assert.False(t, IsBusinessRule(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeleteUnknownResult(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "production_results" WHERE result_id = \$1`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"result_id"}))
	mock.ExpectRollback()

	err := store.DeleteProductionResult(context.Background(), "missing")

	var bre *BusinessRuleError
	require.True(t, errors.As(err, &bre))
	assert.Equal(t, CodeResultNotFound, bre.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpsertWorkOrdersSkipsEmptyBatch(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	require.NoError(t, store.UpsertWorkOrders(context.Background(), nil))
	require.NoError(t, store.UpsertWorkOrders(context.Background(), []UpstreamWorkOrder{{Code: "no id"}}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetWorkOrderNotFound(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "work_orders" WHERE id = \$1`).
		WithArgs("WO-9", 1).
		WillReturnRows(sqlmock.NewRows(workOrderColumns))

	_, err := store.GetWorkOrder(context.Background(), "WO-9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
