package workflow

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"mes-result-backend/internal/production"
)

// States of a commit session.
const (
	StateIdle                = "idle"
	StateValidating          = "validating"
	StateAwaitingDefectInput = "awaiting_defect_input"
	StatePersisting          = "persisting"
	StateCommitted           = "committed"
	StateRejected            = "rejected"
	StateCancelled           = "cancelled"
)

const (
	eventValidate     = "validate"
	eventAwaitDefects = "await_defects"
	eventPersist      = "persist"
	eventSucceed      = "succeed"
	eventReject       = "reject"
	eventCancel       = "cancel"
	eventReset        = "reset"
)

var sessionEvents = fsm.Events{
	{Name: eventValidate, Src: []string{StateIdle}, Dst: StateValidating},
	{Name: eventAwaitDefects, Src: []string{StateValidating}, Dst: StateAwaitingDefectInput},
	{Name: eventPersist, Src: []string{StateValidating, StateAwaitingDefectInput}, Dst: StatePersisting},
	{Name: eventSucceed, Src: []string{StatePersisting}, Dst: StateCommitted},
	{Name: eventReject, Src: []string{StateValidating, StateAwaitingDefectInput, StatePersisting}, Dst: StateRejected},
	{Name: eventCancel, Src: []string{StateAwaitingDefectInput}, Dst: StateCancelled},
	{Name: eventReset, Src: []string{StateCommitted, StateRejected, StateCancelled}, Dst: StateIdle},
}

// session is one commit attempt. It lives from guard acquisition to release.
type session struct {
	key    string
	logger *zap.SugaredLogger
	fsm    *fsm.FSM

	mu      sync.Mutex
	result  production.ProductionResult
	trace   []string
	pending bool // collector request outstanding
}

func newSession(key string, logger *zap.SugaredLogger) *session {
	s := &session{key: key, logger: logger, trace: []string{StateIdle}}
	s.fsm = fsm.NewFSM(
		StateIdle,
		sessionEvents,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.mu.Lock()
				s.trace = append(s.trace, e.Dst)
				s.mu.Unlock()
				s.logger.Debugf("commit %s: %s -> %s", s.key, e.Src, e.Dst)
			},
		},
	)
	return s
}

// fire moves the session along. Transitions run on a background context so a
// caller that went away still drives the session to a terminal state.
func (s *session) fire(event string) {
	if err := s.fsm.Event(context.Background(), event); err != nil {
		s.logger.Errorf("commit %s: event %q rejected in state %s: %v", s.key, event, s.fsm.Current(), err)
	}
}

func (s *session) state() string {
	return s.fsm.Current()
}

func (s *session) setResult(r production.ProductionResult) {
	s.mu.Lock()
	s.result = r
	s.mu.Unlock()
}

func (s *session) setPending(p bool) {
	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
}

func (s *session) snapshot() (production.ProductionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.pending
}

func (s *session) history() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.trace))
	copy(out, s.trace)
	return out
}
