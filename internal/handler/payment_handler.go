package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/models"
	"github.com/ToanBm/cross-flow/internal/services"
)

// CreatePaymentIntent opens an on-ramp payment with the processor and
// records it locally as pending.
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	var req models.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.Payments.CreateIntent(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAddress),
			errors.Is(err, services.ErrInvalidAmount),
			errors.Is(err, services.ErrInvalidCurrency):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case strings.Contains(err.Error(), "insufficient"):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.Log.Error("create intent failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create payment intent"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PaymentStatus returns the local record for a processor intent id.
func (h *Handler) PaymentStatus(c *gin.Context) {
	intentID := c.Param("paymentIntentId")

	p, err := h.Payments.Status(intentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		h.Log.Error("payment status query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentIntentId":  p.PaymentIntentID,
		"status":           p.Status,
		"walletAddress":    p.WalletAddress,
		"amountFiat":       p.AmountFiat,
		"currency":         p.FiatCurrency,
		"amountStablecoin": p.AmountUSDT,
		"tokenSymbol":      p.TokenSymbol,
		"txHash":           p.TxHash,
		"blockNumber":      p.BlockNumber,
		"errorMessage":     p.ErrorMessage,
		"completedAt":      p.CompletedAt,
	})
}

// ExchangeRate returns the stablecoin rate for a fiat currency.
func (h *Handler) ExchangeRate(c *gin.Context) {
	currency := c.DefaultQuery("currency", "usd")
	rate := services.RateForCurrency(currency)
	c.JSON(http.StatusOK, gin.H{
		"currency": strings.ToLower(currency),
		"rate":     rate.String(),
	})
}

// OfframpBalance reports the custodial wallet balance for a token.
func (h *Handler) OfframpBalance(c *gin.Context) {
	balance, err := h.Payments.OfframpBalance(c.Request.Context(), c.Query("token_address"))
	if err != nil {
		h.Log.Error("off-ramp balance query failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to read balance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}
