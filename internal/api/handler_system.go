package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PostReconcile handles POST /api/reconcile: recompute and re-submit every
// active schedule's jobs, returning the plan.
func (h *Handler) PostReconcile(c *gin.Context) {
	results, err := h.recon.ReconcileAll(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetConnection handles GET /api/connection: the channel's connection state.
// This is a pure read and never touches the serial link.
func (h *Handler) GetConnection(c *gin.Context) {
	state := h.dev.ConnectionState()
	c.JSON(http.StatusOK, gin.H{
		"isOpen":            state.IsOpen,
		"lastMessage":       state.LastMessage,
		"reconnectAttempts": state.ReconnectAttempts,
	})
}

// GetStatus handles GET /api/status: a live device status probe. Responses
// are cached by middleware so dashboards do not saturate the command queue.
func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.dev.RequestStatus(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"levels": status.Levels})
}
