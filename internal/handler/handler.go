package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/middleware"
	"github.com/ToanBm/cross-flow/internal/otp"
	"github.com/ToanBm/cross-flow/internal/services"
)

// Handler bundles the wired services for the HTTP layer.
type Handler struct {
	Store      *db.Store
	Activity   *services.ActivityService
	Settlement *services.SettlementService
	Payments   *services.PaymentService
	Cashouts   *services.CashoutService
	Ledger     services.LedgerReader
	Codes      *otp.Store
	Sender     otp.CodeSender

	WebhookSecret string
	Log           *zap.Logger
}

// RegisterRoutes mounts the API on a gin engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.GET("/activity", h.GetActivity)
		api.POST("/activity-history/log", h.LogActivity)
		api.GET("/activity-history", h.GetActivityHistory)

		api.POST("/webhooks/processor", h.ProcessorWebhook)

		payment := api.Group("/payment")
		{
			payment.POST("/create-intent", h.CreatePaymentIntent)
			payment.GET("/status/:paymentIntentId", h.PaymentStatus)
			payment.GET("/exchange-rate", h.ExchangeRate)
			payment.GET("/offramp-balance", h.OfframpBalance)
		}

		cashout := api.Group("/cashout")
		{
			cashout.POST("/request", h.RequestCashout)
			cashout.GET("/history", h.CashoutHistory)
		}

		api.POST("/auth/start", h.RequestCode)
		api.POST("/auth/verify", h.VerifyCode)

		api.GET("/recipients", h.ListRecipients)
		api.POST("/recipients", h.CreateRecipient)
		api.PUT("/recipients/:id", h.UpdateRecipient)
		api.DELETE("/recipients/:id", h.DeleteRecipient)

		api.GET("/bank-accounts", h.ListBankAccounts)
		api.POST("/bank-accounts", h.SaveBankAccount)

		api.POST("/feedback", h.SubmitFeedback)
	}

	admin := r.Group("/admin", middleware.LocalOnly())
	{
		admin.POST("/reconcile", h.Reconcile)
	}
}
