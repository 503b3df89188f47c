package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// healthCheckTimeout caps the chain check. The resilient client would
// otherwise spend its full retry schedule when the node is down, which
// is exactly when a liveness check needs to answer fast.
const healthCheckTimeout = 2 * time.Second

// Health checks the database and one upstream node. Either failing
// reports the service as degraded with a 503.
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"
	if err := h.Store.Ping(); err != nil {
		dbStatus = err.Error()
		status = http.StatusServiceUnavailable
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	chainStatus := "ok"
	var head uint64
	if n, err := h.Ledger.HeadBlock(ctx); err != nil {
		chainStatus = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		head = n
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    overall,
		"database":  dbStatus,
		"chain":     chainStatus,
		"headBlock": head,
	})
}
