package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type requestCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestCode issues a login code and hands it to the configured sender.
func (h *Handler) RequestCode(c *gin.Context) {
	var req requestCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := h.Codes.Issue(req.Email)
	if err != nil {
		h.Log.Error("code generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue code"})
		return
	}
	if err := h.Sender.Send(c.Request.Context(), req.Email, code); err != nil {
		h.Log.Error("code delivery failed", zap.String("email", req.Email), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type verifyCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// VerifyCode consumes a pending login code.
func (h *Handler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.Codes.Verify(req.Email, req.Code) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": true, "email": strings.ToLower(req.Email)})
}
