package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/processor"
)

// ProcessorWebhook receives settlement events from the payment
// processor. Besides a missing signature header, it always acks with
// 200 so the processor does not retry events we already recorded a
// terminal outcome for.
func (h *Handler) ProcessorWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	sig := c.GetHeader(processor.SignatureHeader)
	if sig == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing signature"})
		return
	}

	evt, err := processor.ParseEvent(body, sig, h.WebhookSecret)
	if err != nil {
		h.Log.Warn("webhook rejected", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "invalid signature"})
		return
	}

	if err := h.Settlement.HandleEvent(c.Request.Context(), evt); err != nil {
		h.Log.Error("webhook handling failed",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Reconcile re-patches activity rows for completed payments. Loopback
// only.
func (h *Handler) Reconcile(c *gin.Context) {
	patched, err := h.Settlement.ReconcileActivity(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patched": patched})
}
