package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/models"
	"github.com/ToanBm/cross-flow/internal/services"
)

// RequestCashout verifies the backing on-chain transfer and opens a
// payout with the processor.
func (h *Handler) RequestCashout(c *gin.Context) {
	var req models.CashoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cashout, err := h.Cashouts.Request(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAddress),
			errors.Is(err, services.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrCashoutExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrTxNotSettled),
			errors.Is(err, services.ErrTransferNotFound):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.Log.Error("cashout request failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to request cashout"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payoutId":      cashout.PayoutID,
		"status":        cashout.Status,
		"fiatAmount":    cashout.FiatAmount,
		"currency":      cashout.FiatCurrency,
		"txHash":        cashout.TxHashOnchain,
		"bankAccountId": cashout.BankAccountID,
	})
}

// CashoutHistory lists payouts for an employee wallet.
func (h *Handler) CashoutHistory(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	rows, err := h.Cashouts.History(address, limit)
	if err != nil {
		h.Log.Error("cashout history query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cashouts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cashouts": rows, "count": len(rows)})
}
