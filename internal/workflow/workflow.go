// Package workflow commits production results: it validates them, collects a
// defect breakdown when one is required, and persists both as one unit.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mes-result-backend/internal/defect"
	"mes-result-backend/internal/guard"
	"mes-result-backend/internal/metrics"
	"mes-result-backend/internal/production"
	"mes-result-backend/internal/results"
	"mes-result-backend/internal/store"
)

// Backend is the remote persistence boundary.
type Backend interface {
	SaveProductionResult(ctx context.Context, in store.ProductionResultInput, defects []store.DefectRecordInput) (store.SaveReceipt, error)
	DeleteProductionResult(ctx context.Context, resultID string) error
}

// DefectAlerter is told about results committed with defects.
type DefectAlerter interface {
	DefectsCommitted(result production.ProductionResult, records []production.DefectRecord)
}

// Workflow owns every write to the result store.
type Workflow struct {
	results   *results.Store
	guard     *guard.Guard
	collector defect.Collector
	backend   Backend

	logger         *zap.SugaredLogger
	metrics        *metrics.Commit
	alerter        DefectAlerter
	persistTimeout time.Duration
	newID          func() string

	mu       sync.Mutex
	sessions map[string]*session

	// switching is held exclusively while the result store changes context.
	switching sync.RWMutex
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger. The global zap logger is used otherwise.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithMetrics records commit outcomes.
func WithMetrics(m *metrics.Commit) Option {
	return func(w *Workflow) { w.metrics = m }
}

// WithDefectAlerter reports committed defects to a.
func WithDefectAlerter(a DefectAlerter) Option {
	return func(w *Workflow) { w.alerter = a }
}

// WithPersistTimeout bounds the remote save call.
func WithPersistTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.persistTimeout = d }
}

// New creates a workflow writing to rs and persisting through b.
func New(rs *results.Store, g *guard.Guard, c defect.Collector, b Backend, opts ...Option) *Workflow {
	w := &Workflow{
		results:   rs,
		guard:     g,
		collector: c,
		backend:   b,
		logger:    zap.S(),
		newID:     uuid.NewString,
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CommitOption tunes a single commit attempt.
type CommitOption func(*commitOptions)

type commitOptions struct {
	draft []production.DefectRecord
}

// WithDraft reopens defect input with records from an earlier attempt.
func WithDraft(records []production.DefectRecord) CommitOption {
	return func(o *commitOptions) { o.draft = records }
}

// Commit validates and persists the result localID of the result store. The
// result is read at call time, so whether defect input is needed depends only
// on its current quantities. Commit blocks while defect input is awaited.
func (w *Workflow) Commit(ctx context.Context, localID string, opts ...CommitOption) (out Outcome) {
	key := guard.ResultKey(localID)
	s, ok := w.open(key)
	if !ok {
		return w.busy(key)
	}
	defer w.finish(s, time.Now(), &out)

	s.fire(eventValidate)
	result, found := w.results.Get(localID)
	if !found {
		return w.reject(s, KindPrecondition, &PreconditionError{Field: "id", Message: results.ErrResultNotFound.Error()}, nil)
	}

	return w.run(ctx, s, result, buildOptions(opts), func(confirmed production.ProductionResult) {
		w.results.Confirm(localID, confirmed)
	})
}

// CreateIndependent validates and persists a result that was never added to
// the result store. Only one independent creation may run at a time. The
// draft always gets a fresh local id; a caller-supplied ID is ignored so the
// confirmed result cannot replace an existing entry.
func (w *Workflow) CreateIndependent(ctx context.Context, draft production.ProductionResult, opts ...CommitOption) (out Outcome) {
	s, ok := w.open(guard.IndependentKey)
	if !ok {
		return w.busy(guard.IndependentKey)
	}
	defer w.finish(s, time.Now(), &out)

	draft.ID = w.newID()
	s.fire(eventValidate)
	return w.run(ctx, s, draft, buildOptions(opts), func(confirmed production.ProductionResult) {
		w.results.Confirm(confirmed.ID, confirmed)
	})
}

// NewResult adds an uncommitted result prefilled from the selected work context.
func (w *Workflow) NewResult() production.ProductionResult {
	return w.results.Add()
}

// Edit changes an uncommitted result. It fails with ErrBusy while the result
// is being committed.
func (w *Workflow) Edit(localID string, p results.Patch) (production.ProductionResult, error) {
	key := guard.ResultKey(localID)
	if !w.acquire(key) {
		return production.ProductionResult{}, ErrBusy
	}
	defer w.guard.Release(key)
	return w.results.Update(localID, p)
}

// Delete removes a result. Uncommitted results are dropped locally; committed
// ones are deleted remotely first.
func (w *Workflow) Delete(ctx context.Context, localID string) error {
	key := guard.ResultKey(localID)
	if !w.acquire(key) {
		return ErrBusy
	}
	defer w.guard.Release(key)

	r, ok := w.results.Get(localID)
	if !ok {
		return results.ErrResultNotFound
	}
	if r.IsNew() {
		return w.results.Discard(localID)
	}

	if err := w.backend.DeleteProductionResult(ctx, *r.ResultID); err != nil {
		return fmt.Errorf("failed to delete production result %s: %w", *r.ResultID, err)
	}
	w.results.Remove(localID)
	w.logger.Infof("production result %s deleted", *r.ResultID)
	return nil
}

// SelectContext switches the result store to another work order. It is
// refused while any commit is in flight, and no commit can start until the
// switch is done.
func (w *Workflow) SelectContext(ctx context.Context, workOrderID string) error {
	w.switching.Lock()
	defer w.switching.Unlock()
	if w.guard.Len() > 0 {
		return ErrBusy
	}
	return w.results.Select(ctx, workOrderID)
}

// State returns the current state of the commit session for localID.
func (w *Workflow) State(localID string) string {
	w.mu.Lock()
	s, ok := w.sessions[guard.ResultKey(localID)]
	w.mu.Unlock()
	if !ok {
		return StateIdle
	}
	return s.state()
}

// InFlight returns the results currently being committed and whether each is
// waiting for defect input.
func (w *Workflow) InFlight() map[string]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]bool, len(w.sessions))
	for _, s := range w.sessions {
		r, pending := s.snapshot()
		if r.ID != "" {
			out[r.ID] = pending
		}
	}
	return out
}

func (w *Workflow) run(ctx context.Context, s *session, result production.ProductionResult, o commitOptions, confirm func(production.ProductionResult)) Outcome {
	s.setResult(result)
	if err := checkPreconditions(result); err != nil {
		return w.reject(s, KindPrecondition, err, nil)
	}

	var records []production.DefectRecord
	if result.RequiresDefectInput() {
		s.fire(eventAwaitDefects)
		s.setPending(true)
		resp, err := w.collector.Request(ctx, defect.Prompt{Result: result, Draft: o.draft})
		s.setPending(false)

		switch {
		case err != nil && ctx.Err() != nil:
			return w.cancel(s)
		case err != nil:
			return w.reject(s, KindInput, fmt.Errorf("defect input failed: %w", err), nil)
		case resp.Cancelled:
			return w.cancel(s)
		}

		records = defect.Normalize(resp.Records)
		if err := checkRecords(records); err != nil {
			return w.reject(s, KindPrecondition, err, records)
		}
		if !production.IsReconciled(result, records) {
			return w.reject(s, KindMismatch, &MismatchError{Actual: production.DefectSum(records), Expected: result.DefectQty}, records)
		}
	}

	s.fire(eventPersist)
	persistCtx := ctx
	if w.persistTimeout > 0 {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(ctx, w.persistTimeout)
		defer cancel()
	}
	receipt, err := w.backend.SaveProductionResult(persistCtx, toInput(result), toDefectInputs(records))
	if err == nil && receipt.ResultID == "" {
		err = errors.New("save returned no result id")
	}
	if err != nil {
		if store.IsBusinessRule(err) {
			return w.reject(s, KindBusinessRule, err, records)
		}
		return w.reject(s, KindTransport, err, records)
	}

	confirmed := result
	confirmed.ResultID = &receipt.ResultID
	s.fire(eventSucceed)
	confirm(confirmed)

	if w.alerter != nil && confirmed.DefectQty > 0 {
		w.alerter.DefectsCommitted(confirmed, records)
	}

	return Outcome{
		Disposition: Committed,
		Reason:      fmt.Sprintf("production result saved as %s", receipt.ResultID),
		Result:      confirmed,
		Records:     records,
	}
}

// open acquires key and registers a fresh session under it.
// acquire takes the guard for key. It fails while a context switch runs.
func (w *Workflow) acquire(key string) bool {
	if !w.switching.TryRLock() {
		return false
	}
	defer w.switching.RUnlock()
	return w.guard.TryAcquire(key)
}

func (w *Workflow) open(key string) (*session, bool) {
	if !w.acquire(key) {
		return nil, false
	}
	s := newSession(key, w.logger)
	w.mu.Lock()
	w.sessions[key] = s
	w.mu.Unlock()
	w.metrics.SetGuardHeld(w.guard.Len())
	return s, true
}

// finish releases the guard of a finished session and returns it to idle.
func (w *Workflow) finish(s *session, started time.Time, out *Outcome) {
	w.mu.Lock()
	delete(w.sessions, s.key)
	w.mu.Unlock()

	if !w.guard.Release(s.key) {
		w.logger.Errorf("commit %s: guard was not held at release", s.key)
	}
	w.metrics.SetGuardHeld(w.guard.Len())

	s.fire(eventReset)
	out.Trace = s.history()
	w.metrics.ObserveOutcome(string(out.Disposition), string(out.Kind), time.Since(started))
	w.logger.Infof("commit %s finished: %s %s", s.key, out.Disposition, out.Reason)
}

func (w *Workflow) busy(key string) Outcome {
	w.logger.Infof("commit %s refused: %v", key, ErrBusy)
	w.metrics.ObserveOutcome(string(Busy), "", 0)
	return Outcome{Disposition: Busy, Reason: ErrBusy.Error(), Err: ErrBusy}
}

func (w *Workflow) cancel(s *session) Outcome {
	s.fire(eventCancel)
	result, _ := s.snapshot()
	return Outcome{Disposition: Cancelled, Reason: "defect input was cancelled", Result: result}
}

func (w *Workflow) reject(s *session, kind RejectKind, err error, records []production.DefectRecord) Outcome {
	s.fire(eventReject)
	result, _ := s.snapshot()
	return Outcome{
		Disposition: Rejected,
		Kind:        kind,
		Reason:      reasonFor(kind, err),
		Result:      result,
		Records:     records,
		Err:         err,
	}
}

func reasonFor(kind RejectKind, err error) string {
	var bre *store.BusinessRuleError
	switch {
	case kind == KindBusinessRule && errors.As(err, &bre):
		return bre.Message
	case kind == KindTransport:
		return "the production result could not be saved, please try again"
	default:
		return err.Error()
	}
}

func buildOptions(opts []CommitOption) commitOptions {
	var o commitOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func toInput(r production.ProductionResult) store.ProductionResultInput {
	return store.ProductionResultInput{
		WorkOrderID: r.WorkOrderID,
		ProductID:   r.ProductID,
		WarehouseID: r.WarehouseID,
		EquipmentID: r.EquipmentID,
		GoodQty:     r.GoodQty,
		DefectQty:   r.DefectQty,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Note:        r.Note,
	}
}

func toDefectInputs(records []production.DefectRecord) []store.DefectRecordInput {
	out := make([]store.DefectRecordInput, 0, len(records))
	for _, r := range records {
		out = append(out, store.DefectRecordInput{
			DefectQty:   r.DefectQty,
			DefectCause: r.DefectCause,
			DefectType:  r.DefectType,
			Detail:      r.Detail,
		})
	}
	return out
}
