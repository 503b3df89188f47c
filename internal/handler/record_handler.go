package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/models"
)

// ListRecipients returns the saved send targets for a wallet.
func (h *Handler) ListRecipients(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}

	rows, err := h.Store.RecipientsForOwner(owner)
	if err != nil {
		h.Log.Error("recipient list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load recipients"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipients": rows})
}

type recipientRequest struct {
	OwnerAddress string `json:"ownerAddress" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Address      string `json:"address"`
	Email        string `json:"email"`
}

func (h *Handler) CreateRecipient(c *gin.Context) {
	var req recipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row := models.Recipient{
		OwnerAddress: strings.ToLower(req.OwnerAddress),
		Name:         req.Name,
		Address:      strings.ToLower(req.Address),
		Email:        req.Email,
	}
	if err := h.Store.CreateRecipient(&row); err != nil {
		h.Log.Error("recipient create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save recipient"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": row.ID})
}

func (h *Handler) UpdateRecipient(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req recipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{
		"name":    req.Name,
		"address": strings.ToLower(req.Address),
		"email":   req.Email,
	}
	if err := h.Store.UpdateRecipient(uint(id), req.OwnerAddress, updates); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
			return
		}
		h.Log.Error("recipient update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update recipient"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (h *Handler) DeleteRecipient(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}

	if err := h.Store.DeleteRecipient(uint(id), owner); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
			return
		}
		h.Log.Error("recipient delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete recipient"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ListBankAccounts returns the processor bank references saved for an
// email.
func (h *Handler) ListBankAccounts(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	rows, err := h.Store.BankAccountsForEmail(email)
	if err != nil {
		h.Log.Error("bank account list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bank accounts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bankAccounts": rows})
}

type bankAccountRequest struct {
	UserEmail     string `json:"userEmail" binding:"required"`
	BankAccountID string `json:"bankAccountId" binding:"required"`
	BankName      string `json:"bankName"`
	Last4         string `json:"last4"`
	Currency      string `json:"currency"`
}

// SaveBankAccount upserts on the processor's bank-account id, so
// re-linking the same account is harmless.
func (h *Handler) SaveBankAccount(c *gin.Context) {
	var req bankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row := models.BankAccount{
		UserEmail:     strings.ToLower(req.UserEmail),
		BankAccountID: req.BankAccountID,
		BankName:      req.BankName,
		Last4:         req.Last4,
		Currency:      strings.ToLower(req.Currency),
	}
	if err := h.Store.UpsertBankAccount(&row); err != nil {
		h.Log.Error("bank account save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save bank account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

type feedbackRequest struct {
	WalletAddress string `json:"walletAddress"`
	Email         string `json:"email"`
	Message       string `json:"message" binding:"required"`
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row := models.Feedback{
		WalletAddress: strings.ToLower(req.WalletAddress),
		Email:         req.Email,
		Message:       req.Message,
	}
	if err := h.Store.CreateFeedback(&row); err != nil {
		h.Log.Error("feedback save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save feedback"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
