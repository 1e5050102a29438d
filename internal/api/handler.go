package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"mes-result-backend/internal/defect"
	"mes-result-backend/internal/mw"
	"mes-result-backend/internal/results"
	"mes-result-backend/internal/store"
	"mes-result-backend/internal/workflow"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	Store    store.Store
	Results  *results.Store
	Workflow *workflow.Workflow
	Pending  *defect.Pending
	Webpush  *webpush.Options
	// Responses is flushed after writes that change cached work orders. Optional.
	Responses *mw.ResponseCache
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	results   *results.Store
	workflow  *workflow.Workflow
	pending   *defect.Pending
	webpush   *webpush.Options
	responses *mw.ResponseCache
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:     d.Store,
		results:   d.Results,
		workflow:  d.Workflow,
		pending:   d.Pending,
		webpush:   d.Webpush,
		responses: d.Responses,
	}
}

func (h *Handler) flushResponses() {
	if h.responses != nil {
		h.responses.Flush()
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var precondition *workflow.PreconditionError
	var mismatch *workflow.MismatchError
	var rule *store.BusinessRuleError

	switch {
	case errors.Is(err, workflow.ErrBusy),
		errors.Is(err, results.ErrCommittedImmutable),
		errors.Is(err, defect.ErrAlreadyPending):
		return http.StatusConflict
	case errors.Is(err, results.ErrResultNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, defect.ErrNoPendingRequest):
		return http.StatusNotFound
	case errors.As(err, &rule):
		if rule.Code == store.CodeResultNotFound || rule.Code == store.CodeWorkOrderNotFound {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case errors.As(err, &precondition):
		return http.StatusBadRequest
	case errors.As(err, &mismatch),
		errors.Is(err, defect.ErrEmptySubmission),
		errors.Is(err, defect.ErrInvalidRecord),
		errors.Is(err, defect.ErrOverAllocated):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
