package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mes-result-backend/internal/production"
)

// ListDefectRequests handles GET /api/defect-requests.
func (h *Handler) ListDefectRequests(c *gin.Context) {
	c.JSON(http.StatusOK, h.pending.List())
}

// GetDefectRequest handles GET /api/defect-requests/:id.
func (h *Handler) GetDefectRequest(c *gin.Context) {
	req, ok := h.pending.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending defect input request"})
		return
	}
	c.JSON(http.StatusOK, req)
}

type submitDefectsRequest struct {
	Records []production.DefectRecord `json:"records"`
}

// SubmitDefectRecords handles POST /api/defect-requests/:id/records. A refused
// submission leaves the request open for correction.
func (h *Handler) SubmitDefectRecords(c *gin.Context) {
	var req submitDefectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.pending.Submit(c.Param("id"), req.Records); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// CancelDefectRequest handles POST /api/defect-requests/:id/cancel.
func (h *Handler) CancelDefectRequest(c *gin.Context) {
	if err := h.pending.Cancel(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
