package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/models"
	"github.com/ToanBm/cross-flow/internal/services"
)

// GetActivity returns the unified wallet feed. A fresh chain sync runs
// first unless sync=false; sync failures degrade to stored data.
func (h *Handler) GetActivity(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}
	sync := c.DefaultQuery("sync", "true") != "false"

	head, items, err := h.Activity.GetActivityForAddress(c.Request.Context(), address, limit, sync)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
			return
		}
		h.Log.Error("activity query failed", zap.String("address", address), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activity"})
		return
	}

	resp := gin.H{
		"address":  strings.ToLower(address),
		"activity": items,
		"count":    len(items),
	}
	if head != nil {
		resp["syncedToBlock"] = *head
	} else {
		resp["degraded"] = true
	}
	c.JSON(http.StatusOK, resp)
}

// LogActivity records a client-side action before settlement confirms it.
func (h *Handler) LogActivity(c *gin.Context) {
	var req models.LogActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := req.Status
	if status == "" {
		status = models.ActivityStatusPending
	}
	row := models.ActivityHistory{
		WalletAddress:   strings.ToLower(req.WalletAddress),
		ActivityType:    req.ActivityType,
		TokenAddress:    strings.ToLower(req.TokenAddress),
		TokenSymbol:     req.TokenSymbol,
		Amount:          req.Amount,
		AmountFiat:      req.AmountFiat,
		Currency:        req.Currency,
		ToAddress:       strings.ToLower(req.ToAddress),
		FromAddress:     strings.ToLower(req.FromAddress),
		TxHash:          req.TxHash,
		PaymentIntentID: req.PaymentIntentID,
		PayoutID:        req.PayoutID,
		Status:          status,
		Memo:            req.Memo,
	}
	if err := h.Store.SaveActivity(&row); err != nil {
		h.Log.Error("activity log failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save activity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": row.ID, "status": row.Status})
}

// GetActivityHistory lists the client-written activity rows for a wallet.
func (h *Handler) GetActivityHistory(c *gin.Context) {
	address := c.Query("wallet_address")
	if address == "" {
		address = c.Query("address")
	}
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet_address is required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, total, err := h.Store.ActivityForWallet(address, limit, offset)
	if err != nil {
		h.Log.Error("activity history query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activity history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"activity": rows, "total": total})
}
