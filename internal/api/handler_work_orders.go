package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListWorkOrders handles GET /api/work-orders.
func (h *Handler) ListWorkOrders(c *gin.Context) {
	orders, err := h.store.ListWorkOrders(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve work orders"})
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetWorkOrder handles GET /api/work-orders/:id.
func (h *Handler) GetWorkOrder(c *gin.Context) {
	order, err := h.store.GetWorkOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListWorkOrderResults handles GET /api/work-orders/:id/results. It reads the
// persisted results and ignores the operator's uncommitted ones.
func (h *Handler) ListWorkOrderResults(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.store.GetWorkOrder(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	list, err := h.store.ListResults(ctx, id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve production results"})
		return
	}
	c.JSON(http.StatusOK, list)
}
