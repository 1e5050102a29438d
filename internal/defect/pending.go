package defect

import (
	"context"
	"sort"
	"sync"
	"time"

	"mes-result-backend/internal/production"
)

// PendingRequest is the read-only view of an unresolved request, as shown to
// whoever fills in the breakdown.
type PendingRequest struct {
	Result      production.ProductionResult `json:"result"`
	Draft       []production.DefectRecord   `json:"draft"`
	Remaining   float64                     `json:"remaining"`
	RequestedAt time.Time                   `json:"requestedAt"`
}

type pendingEntry struct {
	view  PendingRequest
	reply chan Response
}

// Pending is a Collector whose requests are answered from the outside, one
// call to Submit or Cancel per request. It replaces the modal dialog of an
// interactive client: the commit call parks here until the HTTP layer
// resolves the request for that result.
type Pending struct {
	mu      sync.Mutex
	waiting map[string]*pendingEntry
	closed  bool
	now     func() time.Time
}

// NewPending creates an empty Pending collector.
func NewPending() *Pending {
	return &Pending{
		waiting: make(map[string]*pendingEntry),
		now:     time.Now,
	}
}

// Request registers a request for prompt.Result and waits for its resolution.
// A done context resolves the request as cancelled, and so does a closed
// collector.
func (p *Pending) Request(ctx context.Context, prompt Prompt) (Response, error) {
	id := prompt.Result.ID

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Cancelled(), nil
	}
	if _, exists := p.waiting[id]; exists {
		p.mu.Unlock()
		return Response{}, ErrAlreadyPending
	}
	entry := &pendingEntry{
		view: PendingRequest{
			Result:      prompt.Result,
			Draft:       Normalize(prompt.Draft),
			Remaining:   production.RemainingCapacity(prompt.Result, prompt.Draft),
			RequestedAt: p.now(),
		},
		reply: make(chan Response, 1),
	}
	p.waiting[id] = entry
	p.mu.Unlock()

	select {
	case resp := <-entry.reply:
		return resp, nil
	case <-ctx.Done():
		p.mu.Lock()
		if p.waiting[id] == entry {
			delete(p.waiting, id)
		}
		p.mu.Unlock()
		// A resolution may have raced with the context; it wins if present.
		select {
		case resp := <-entry.reply:
			return resp, nil
		default:
			return Cancelled(), nil
		}
	}
}

// Get returns the pending request for a result.
func (p *Pending) Get(resultID string) (PendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.waiting[resultID]
	if !ok {
		return PendingRequest{}, false
	}
	return entry.view, true
}

// List returns every pending request, oldest first.
func (p *Pending) List() []PendingRequest {
	p.mu.Lock()
	out := make([]PendingRequest, 0, len(p.waiting))
	for _, entry := range p.waiting {
		out = append(out, entry.view)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// Submit resolves the request for resultID with records. Submissions that
// fail ValidateSubmission are refused and the request stays open so the
// records can be corrected.
func (p *Pending) Submit(resultID string, records []production.DefectRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.waiting[resultID]
	if !ok {
		return ErrNoPendingRequest
	}
	if err := ValidateSubmission(entry.view.Result, records); err != nil {
		return err
	}
	delete(p.waiting, resultID)
	entry.reply <- Submitted(Normalize(records))
	return nil
}

// Cancel resolves the request for resultID as cancelled.
func (p *Pending) Cancel(resultID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.waiting[resultID]
	if !ok {
		return ErrNoPendingRequest
	}
	delete(p.waiting, resultID)
	entry.reply <- Cancelled()
	return nil
}

// Close cancels every open request and makes later requests resolve as
// cancelled immediately. It returns the ids of the requests it cancelled.
func (p *Pending) Close() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	ids := make([]string, 0, len(p.waiting))
	for id, entry := range p.waiting {
		delete(p.waiting, id)
		entry.reply <- Cancelled()
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
