package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"mes-result-backend/internal/production"
	"mes-result-backend/internal/results"
	"mes-result-backend/internal/workflow"
)

// contextResponse describes the selected work context and its results.
type contextResponse struct {
	WorkOrderID string                        `json:"workOrderId"`
	WorkOrder   *production.WorkOrderContext  `json:"workOrder,omitempty"`
	Results     []production.ProductionResult `json:"results"`

	// InFlight maps results being committed to whether they wait for defect input.
	InFlight map[string]bool `json:"inFlight"`
}

func (h *Handler) currentContext() contextResponse {
	id, wo := h.results.Context()
	return contextResponse{
		WorkOrderID: id,
		WorkOrder:   wo,
		Results:     h.results.List(),
		InFlight:    h.workflow.InFlight(),
	}
}

type putContextRequest struct {
	WorkOrderID string `json:"workOrderId"`
}

// PutContext handles PUT /api/context. An empty work order id selects the
// independent context.
func (h *Handler) PutContext(c *gin.Context) {
	var req putContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.workflow.SelectContext(c.Request.Context(), req.WorkOrderID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.currentContext())
}

// GetResults handles GET /api/results.
func (h *Handler) GetResults(c *gin.Context) {
	c.JSON(http.StatusOK, h.currentContext())
}

// PostResult handles POST /api/results. The new result is prefilled from the
// selected work order and is not persisted until committed.
func (h *Handler) PostResult(c *gin.Context) {
	c.JSON(http.StatusCreated, h.workflow.NewResult())
}

// PatchResult handles PATCH /api/results/:id.
func (h *Handler) PatchResult(c *gin.Context) {
	var patch results.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.workflow.Edit(c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteResult handles DELETE /api/results/:id.
func (h *Handler) DeleteResult(c *gin.Context) {
	if err := h.workflow.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	h.flushResponses()
	c.Status(http.StatusNoContent)
}

type commitRequest struct {
	// Draft reopens defect input with the records of an earlier attempt.
	Draft []production.DefectRecord `json:"draft"`
}

// outcomeResponse is the JSON form of a workflow outcome.
type outcomeResponse struct {
	Disposition workflow.Disposition        `json:"disposition"`
	Kind        workflow.RejectKind         `json:"kind,omitempty"`
	Reason      string                      `json:"reason"`
	Field       string                      `json:"field,omitempty"`
	Result      production.ProductionResult `json:"result"`
	Records     []production.DefectRecord   `json:"records,omitempty"`
	Trace       []string                    `json:"trace,omitempty"`
}

// CommitResult handles POST /api/results/:id/commit. The request stays open
// while defect input is awaited; dropping it cancels the attempt.
func (h *Handler) CommitResult(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var opts []workflow.CommitOption
	if len(req.Draft) > 0 {
		opts = append(opts, workflow.WithDraft(req.Draft))
	}
	h.writeOutcome(c, h.workflow.Commit(c.Request.Context(), c.Param("id"), opts...))
}

type independentResultRequest struct {
	Result production.ProductionResult `json:"result"`
	Draft  []production.DefectRecord   `json:"draft"`
}

// PostIndependentResult handles POST /api/independent-results.
func (h *Handler) PostIndependentResult(c *gin.Context) {
	var req independentResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var opts []workflow.CommitOption
	if len(req.Draft) > 0 {
		opts = append(opts, workflow.WithDraft(req.Draft))
	}
	h.writeOutcome(c, h.workflow.CreateIndependent(c.Request.Context(), req.Result, opts...))
}

func (h *Handler) writeOutcome(c *gin.Context, out workflow.Outcome) {
	if out.Disposition == workflow.Committed {
		h.flushResponses()
	}

	resp := outcomeResponse{
		Disposition: out.Disposition,
		Kind:        out.Kind,
		Reason:      out.Reason,
		Result:      out.Result,
		Records:     out.Records,
		Trace:       out.Trace,
	}
	var precondition *workflow.PreconditionError
	if errors.As(out.Err, &precondition) {
		resp.Field = precondition.Field
	}
	c.JSON(outcomeStatus(out), resp)
}

func outcomeStatus(out workflow.Outcome) int {
	switch out.Disposition {
	case workflow.Committed:
		return http.StatusCreated
	case workflow.Cancelled:
		return http.StatusOK
	case workflow.Busy:
		return http.StatusConflict
	}

	switch out.Kind {
	case workflow.KindPrecondition:
		return http.StatusBadRequest
	case workflow.KindMismatch, workflow.KindBusinessRule:
		return http.StatusUnprocessableEntity
	case workflow.KindInput:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
