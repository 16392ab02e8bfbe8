package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bakery-storefront-edge/internal/checkout"
	"bakery-storefront-edge/internal/model"
	"bakery-storefront-edge/internal/queue"
)

// PostOrder submits an order. 201 means the bakery stored it, 202 means it
// is queued locally and will be synced.
func (h *Handler) PostOrder(c *gin.Context) {
	var order model.OrderPayload
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	h.submit(c, order)
}

// submit runs order through the facade and writes the outcome. It reports
// whether the order was confirmed or queued.
func (h *Handler) submit(c *gin.Context, order model.OrderPayload) bool {
	res, err := h.checkout.Submit(c.Request.Context(), order)
	switch {
	case errors.Is(err, model.ErrInvalidOrder):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	case errors.Is(err, queue.ErrStorageFull):
		h.log.Errorf("order could not be stored: %v", err)
		c.JSON(http.StatusInsufficientStorage, gin.H{"error": "order could not be saved on this device"})
		return false
	case err != nil:
		h.log.Errorf("order submission failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return false
	}

	status := http.StatusCreated
	if res.Outcome == checkout.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
	return true
}

// GetPendingOrders lists the locally queued orders.
func (h *Handler) GetPendingOrders(c *gin.Context) {
	orders, err := h.queue.List(c.Request.Context())
	if err != nil {
		h.log.Errorf("listing pending orders failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

// PostSync runs a drain pass and returns its report.
func (h *Handler) PostSync(c *gin.Context) {
	report, err := h.sync.Drain(c.Request.Context())
	if err != nil {
		h.log.Errorf("manual sync failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetStatus reports connectivity and queue state for the offline banner.
func (h *Handler) GetStatus(c *gin.Context) {
	orders, err := h.queue.List(c.Request.Context())
	if err != nil {
		h.log.Errorf("listing pending orders failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"online":         h.conn.Online(),
		"pending":        len(orders),
		"draining":       h.sync.Draining(),
		"sync_requested": h.sync.SyncRequested(),
		"sync_failures":  h.sync.Failures(),
	})
}
