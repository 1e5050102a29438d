package results

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mes-result-backend/internal/production"
)

// mockLoader is a mock implementation of the Loader interface.
type mockLoader struct {
	ListResultsFunc  func(ctx context.Context, workOrderID string) ([]production.ProductionResult, error)
	GetWorkOrderFunc func(ctx context.Context, id string) (production.WorkOrderContext, error)
	listCalls        int
}

func (m *mockLoader) ListResults(ctx context.Context, workOrderID string) ([]production.ProductionResult, error) {
	m.listCalls++
	return m.ListResultsFunc(ctx, workOrderID)
}

func (m *mockLoader) GetWorkOrder(ctx context.Context, id string) (production.WorkOrderContext, error) {
	return m.GetWorkOrderFunc(ctx, id)
}

func committed(id string) production.ProductionResult {
	rid := id
	return production.ProductionResult{ID: id, ResultID: &rid, WorkOrderID: "WO-1", ProductID: "P1", WarehouseID: "W1", GoodQty: 5}
}

func newLoader() *mockLoader {
	return &mockLoader{
		ListResultsFunc: func(ctx context.Context, workOrderID string) ([]production.ProductionResult, error) {
			if workOrderID == "WO-1" {
				return []production.ProductionResult{committed("R-1")}, nil
			}
			return nil, nil
		},
		GetWorkOrderFunc: func(ctx context.Context, id string) (production.WorkOrderContext, error) {
			return production.WorkOrderContext{WorkOrderID: id, ProductID: "P1", EquipmentID: "EQ-1", WarehouseID: "W1"}, nil
		},
	}
}

func TestStore_SelectUsesCache(t *testing.T) {
	loader := newLoader()
	s := NewStore(loader, NewContextCache(time.Minute))

	require.NoError(t, s.Select(context.Background(), "WO-1"))
	require.NoError(t, s.Select(context.Background(), ""))
	require.NoError(t, s.Select(context.Background(), "WO-1"))

	assert.Equal(t, 2, loader.listCalls, "second selection of WO-1 is served from the cache")
	assert.Len(t, s.List(), 1)

	woID, wo := s.Context()
	assert.Equal(t, "WO-1", woID)
	require.NotNil(t, wo)
	assert.Equal(t, "EQ-1", wo.EquipmentID)
}

func TestStore_SelectFailureKeepsList(t *testing.T) {
	loader := newLoader()
	s := NewStore(loader, NewContextCache(time.Minute))
	require.NoError(t, s.Select(context.Background(), "WO-1"))

	loader.GetWorkOrderFunc = func(ctx context.Context, id string) (production.WorkOrderContext, error) {
		return production.WorkOrderContext{}, errors.New("boom")
	}
	assert.Error(t, s.Select(context.Background(), "WO-2"))

	woID, _ := s.Context()
	assert.Equal(t, "WO-1", woID)
	assert.Len(t, s.List(), 1)
}

func TestStore_AddPrefillsFromContext(t *testing.T) {
	s := NewStore(newLoader(), NewContextCache(time.Minute))
	require.NoError(t, s.Select(context.Background(), "WO-1"))

	r := s.Add()

	assert.NotEmpty(t, r.ID)
	assert.True(t, r.IsNew())
	assert.Equal(t, "WO-1", r.WorkOrderID)
	assert.Equal(t, "P1", r.ProductID)
	assert.Equal(t, "EQ-1", r.EquipmentID)
	assert.Equal(t, "W1", r.WarehouseID)
	assert.Len(t, s.List(), 2)
}

func TestStore_UpdateAndDiscard(t *testing.T) {
	s := NewStore(newLoader(), NewContextCache(time.Minute))
	require.NoError(t, s.Select(context.Background(), "WO-1"))
	r := s.Add()

	good, defect := 8.0, 2.0
	updated, err := s.Update(r.ID, Patch{GoodQty: &good, DefectQty: &defect})
	require.NoError(t, err)
	assert.Equal(t, 8.0, updated.GoodQty)
	assert.Equal(t, 2.0, updated.DefectQty)

	_, err = s.Update("R-1", Patch{GoodQty: &good})
	assert.ErrorIs(t, err, ErrCommittedImmutable)
	assert.ErrorIs(t, s.Discard("R-1"), ErrCommittedImmutable)
	_, err = s.Update("nope", Patch{})
	assert.ErrorIs(t, err, ErrResultNotFound)

	require.NoError(t, s.Discard(r.ID))
	_, ok := s.Get(r.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Discard(r.ID), ErrResultNotFound)
}

func TestStore_ListReturnsCopy(t *testing.T) {
	s := NewStore(newLoader(), NewContextCache(time.Minute))
	require.NoError(t, s.Select(context.Background(), "WO-1"))

	list := s.List()
	list[0].GoodQty = 999

	got, ok := s.Get("R-1")
	require.True(t, ok)
	assert.Equal(t, 5.0, got.GoodQty)
}

func TestStore_ConfirmInvalidatesCache(t *testing.T) {
	loader := newLoader()
	cache := NewContextCache(time.Minute)
	s := NewStore(loader, cache)
	require.NoError(t, s.Select(context.Background(), "WO-1"))
	r := s.Add()

	rid := "R-2"
	confirmed := r
	confirmed.ResultID = &rid
	s.Confirm(r.ID, confirmed)

	got, ok := s.Get(r.ID)
	require.True(t, ok)
	assert.False(t, got.IsNew())
	_, cached := cache.Get("WO-1")
	assert.False(t, cached)

	// A confirmed result from another context is not shown here.
	other := committed("R-3")
	other.WorkOrderID = "WO-2"
	s.Confirm("unknown-local-id", other)
	assert.Len(t, s.List(), 2)

	s.Remove("R-1")
	assert.Len(t, s.List(), 1)
}
