// Package results holds the in-memory list of production results of the
// currently selected work context.
package results

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mes-result-backend/internal/production"
)

var (
	// ErrResultNotFound is returned for ids that are not in the current list.
	ErrResultNotFound = errors.New("production result not found")
	// ErrCommittedImmutable is returned when editing or discarding a committed result.
	ErrCommittedImmutable = errors.New("committed production results cannot be changed; delete and recreate instead")
)

// Loader fetches what a work context needs from the persistence layer.
type Loader interface {
	ListResults(ctx context.Context, workOrderID string) ([]production.ProductionResult, error)
	GetWorkOrder(ctx context.Context, id string) (production.WorkOrderContext, error)
}

// Patch lists the fields of an uncommitted result to change. Nil fields are kept.
type Patch struct {
	ProductID   *string    `json:"productId"`
	WarehouseID *string    `json:"warehouseId"`
	EquipmentID *string    `json:"equipmentId"`
	GoodQty     *float64   `json:"goodQty"`
	DefectQty   *float64   `json:"defectQty"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Note        *string    `json:"note"`
}

// Store is the result list of one work context. An empty work order id is the
// context of independent results. The commit workflow is the only writer.
type Store struct {
	loader Loader
	cache  *ContextCache
	newID  func() string

	mu          sync.RWMutex
	workOrderID string
	workOrder   *production.WorkOrderContext
	items       []production.ProductionResult
}

// NewStore creates an empty store for the independent context.
func NewStore(loader Loader, cache *ContextCache) *Store {
	return &Store{
		loader: loader,
		cache:  cache,
		newID:  uuid.NewString,
	}
}

// Select switches to the context of workOrderID, loading its persisted results.
// The current list is kept if loading fails.
func (s *Store) Select(ctx context.Context, workOrderID string) error {
	var wo *production.WorkOrderContext
	if workOrderID != "" {
		loaded, err := s.loader.GetWorkOrder(ctx, workOrderID)
		if err != nil {
			return fmt.Errorf("failed to load work order %s: %w", workOrderID, err)
		}
		wo = &loaded
	}

	list, found := s.cache.Get(workOrderID)
	if !found {
		loaded, err := s.loader.ListResults(ctx, workOrderID)
		if err != nil {
			return err
		}
		s.cache.Set(workOrderID, loaded)
		list = loaded
	}

	s.mu.Lock()
	s.workOrderID = workOrderID
	s.workOrder = wo
	s.items = list
	s.mu.Unlock()
	return nil
}

// Context returns the selected work order id and its defaults, if any.
func (s *Store) Context() (string, *production.WorkOrderContext) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.workOrder == nil {
		return s.workOrderID, nil
	}
	wo := *s.workOrder
	return s.workOrderID, &wo
}

// List returns a copy of the current results in display order.
func (s *Store) List() []production.ProductionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

// Get returns the result with the given local id.
func (s *Store) Get(id string) (production.ProductionResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return production.ProductionResult{}, false
	}
	return s.items[i], true
}

// Add appends a new, uncommitted result prefilled from the work context.
func (s *Store) Add() production.ProductionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := production.ProductionResult{ID: s.newID(), WorkOrderID: s.workOrderID}
	if s.workOrder != nil {
		r.ProductID = s.workOrder.ProductID
		r.EquipmentID = s.workOrder.EquipmentID
		r.WarehouseID = s.workOrder.WarehouseID
	}
	s.items = append(s.items, r)
	return r
}

// Update applies p to an uncommitted result.
func (s *Store) Update(id string, p Patch) (production.ProductionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return production.ProductionResult{}, ErrResultNotFound
	}
	r := s.items[i]
	if !r.IsNew() {
		return production.ProductionResult{}, ErrCommittedImmutable
	}

	if p.ProductID != nil {
		r.ProductID = *p.ProductID
	}
	if p.WarehouseID != nil {
		r.WarehouseID = *p.WarehouseID
	}
	if p.EquipmentID != nil {
		r.EquipmentID = *p.EquipmentID
	}
	if p.GoodQty != nil {
		r.GoodQty = *p.GoodQty
	}
	if p.DefectQty != nil {
		r.DefectQty = *p.DefectQty
	}
	if p.StartTime != nil {
		t := *p.StartTime
		r.StartTime = &t
	}
	if p.EndTime != nil {
		t := *p.EndTime
		r.EndTime = &t
	}
	if p.Note != nil {
		r.Note = *p.Note
	}
	s.items[i] = r
	return r, nil
}

// Discard drops an uncommitted result. Nothing is sent anywhere.
func (s *Store) Discard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrResultNotFound
	}
	if !s.items[i].IsNew() {
		return ErrCommittedImmutable
	}
	s.removeAt(i)
	return nil
}

// Confirm replaces the local result localID with its server-confirmed version.
// A confirmed result that was never in the list is appended when it belongs to
// the selected context. The context's cache entry is invalidated either way.
func (s *Store) Confirm(localID string, confirmed production.ProductionResult) {
	s.cache.Invalidate(confirmed.WorkOrderID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(localID); i >= 0 {
		s.items[i] = confirmed
		return
	}
	if confirmed.WorkOrderID == s.workOrderID {
		s.items = append(s.items, confirmed)
	}
}

// Remove drops a result after it was deleted remotely.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.cache.Invalidate(s.items[i].WorkOrderID)
	s.removeAt(i)
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(i int) {
	s.items = append(s.items[:i:i], s.items[i+1:]...)
}
