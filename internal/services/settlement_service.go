package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/chain"
	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/models"
	"github.com/ToanBm/cross-flow/internal/processor"
)

// TokenMover is the slice of the chain client the settlement path needs.
type TokenMover interface {
	TokenDecimals(ctx context.Context, token common.Address) uint8
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error)
	CustodialAddress() common.Address
}

// SettlementService drives payments and cashouts from processor webhook
// events.
type SettlementService struct {
	store  *db.Store
	ledger TokenMover
	tokens chain.Registry
	log    *zap.Logger
}

func NewSettlementService(store *db.Store, ledger TokenMover, tokens chain.Registry, log *zap.Logger) *SettlementService {
	return &SettlementService{store: store, ledger: ledger, tokens: tokens, log: log}
}

// HandleEvent dispatches one verified webhook event. Unknown types are
// ignored. A returned error is recorded by the caller; the webhook
// response is a success acknowledgment either way.
func (s *SettlementService) HandleEvent(ctx context.Context, evt *processor.Event) error {
	switch evt.Type {
	case processor.EventPaymentSucceeded:
		var pi processor.PaymentIntent
		if err := json.Unmarshal(evt.Data.Object, &pi); err != nil {
			return fmt.Errorf("malformed payment intent: %w", err)
		}
		return s.handlePaymentSucceeded(ctx, &pi)
	case processor.EventPaymentFailed:
		var pi processor.PaymentIntent
		if err := json.Unmarshal(evt.Data.Object, &pi); err != nil {
			return fmt.Errorf("malformed payment intent: %w", err)
		}
		return s.handlePaymentFailed(ctx, &pi)
	case processor.EventPaymentCanceled:
		var pi processor.PaymentIntent
		if err := json.Unmarshal(evt.Data.Object, &pi); err != nil {
			return fmt.Errorf("malformed payment intent: %w", err)
		}
		return s.handlePaymentCanceled(&pi)
	case processor.EventPayoutPaid, processor.EventPayoutFailed, processor.EventPayoutCanceled:
		var po processor.Payout
		if err := json.Unmarshal(evt.Data.Object, &po); err != nil {
			return fmt.Errorf("malformed payout: %w", err)
		}
		return s.handlePayoutEvent(evt.Type, &po)
	default:
		s.log.Debug("ignoring webhook event", zap.String("type", evt.Type))
		return nil
	}
}

// handlePaymentSucceeded moves a pending payment through processing to
// completed: custodial balance check, on-chain transfer, receipt
// confirmation, then the best-effort activity patch.
func (s *SettlementService) handlePaymentSucceeded(ctx context.Context, pi *processor.PaymentIntent) error {
	payment, err := s.store.GetPaymentByIntentID(pi.ID)
	if errors.Is(err, db.ErrNotFound) {
		// webhook for a record we never created; logged, not an error
		s.log.Warn("payment not found for intent", zap.String("intent_id", pi.ID))
		return nil
	}
	if err != nil {
		return err
	}

	// Idempotency guard: a settled payment is terminal. Re-delivered
	// events must not submit a second transfer.
	if payment.Status == models.PaymentStatusCompleted || payment.TxHash != "" {
		s.log.Info("payment already processed",
			zap.String("intent_id", pi.ID), zap.String("status", payment.Status))
		return nil
	}

	if err := s.store.UpdatePayment(payment.ID, map[string]interface{}{
		"status": models.PaymentStatusProcessing,
	}); err != nil {
		return err
	}

	wallet := pi.Metadata["wallet_address"]
	if wallet == "" {
		wallet = payment.WalletAddress
	}
	if wallet == "" || !common.IsHexAddress(wallet) {
		return s.failPayment(payment, "wallet address not found in payment intent metadata")
	}

	tokenAddr := pi.Metadata["token_address"]
	if tokenAddr == "" {
		symbol := pi.Metadata["token_symbol"]
		if symbol == "" {
			symbol = payment.TokenSymbol
		}
		tokenAddr = s.tokens.AddressFor(symbol).Hex()
	}
	token := common.HexToAddress(tokenAddr)

	decimals := s.ledger.TokenDecimals(ctx, token)
	required, err := chain.ParseUnits(payment.AmountUSDT, decimals)
	if err != nil {
		return s.failPayment(payment, fmt.Sprintf("invalid stablecoin amount %q: %v", payment.AmountUSDT, err))
	}
	requiredRaw := required.BigInt()

	balance, err := s.ledger.BalanceOf(ctx, token, s.ledger.CustodialAddress())
	if err != nil {
		return s.failPayment(payment, fmt.Sprintf("balance check failed: %v", err))
	}
	if balance.Cmp(requiredRaw) < 0 {
		// non-retryable: no submission attempt is made
		return s.failPayment(payment, fmt.Sprintf(
			"insufficient balance in off-ramp wallet. required: %s, available: %s",
			chain.FormatUnits(requiredRaw.String(), decimals),
			chain.FormatUnits(balance.String(), decimals)))
	}

	hash, err := s.ledger.TransferToken(ctx, token, common.HexToAddress(wallet), requiredRaw)
	if err != nil {
		return s.failPayment(payment, fmt.Sprintf("failed to create token transfer: %v", err))
	}

	receipt, err := s.ledger.WaitForReceipt(ctx, hash)
	if err != nil {
		return s.failPayment(payment, fmt.Sprintf("failed to confirm transaction: %v", err))
	}
	if receipt.Status != 1 {
		return s.failPayment(payment, fmt.Sprintf("transaction failed on-chain. status: %d", receipt.Status))
	}

	now := time.Now()
	txHash := strings.ToLower(receipt.TxHash.Hex())
	if err := s.store.UpdatePayment(payment.ID, map[string]interface{}{
		"status":       models.PaymentStatusCompleted,
		"tx_hash":      txHash,
		"block_number": receipt.BlockNumber,
		"completed_at": &now,
	}); err != nil {
		return err
	}

	// Best-effort side write; a failure here never rolls back the
	// completed payment. The operator reconcile sweep covers the gap.
	if err := s.store.PatchActivityByIntentID(pi.ID, txHash, models.ActivityStatusSuccess); err != nil {
		s.log.Error("failed to patch activity history",
			zap.String("intent_id", pi.ID), zap.String("tx_hash", txHash), zap.Error(err))
	}

	s.log.Info("payment settled",
		zap.String("intent_id", pi.ID), zap.String("tx_hash", txHash), zap.Uint64("block", receipt.BlockNumber))
	return nil
}

func (s *SettlementService) failPayment(payment *models.Payment, msg string) error {
	if err := s.store.UpdatePayment(payment.ID, map[string]interface{}{
		"status":        models.PaymentStatusFailed,
		"error_message": msg,
	}); err != nil {
		s.log.Error("failed to mark payment failed", zap.Uint("payment_id", payment.ID), zap.Error(err))
	}
	return fmt.Errorf("payment %s failed: %s", payment.PaymentIntentID, msg)
}

func (s *SettlementService) handlePaymentFailed(_ context.Context, pi *processor.PaymentIntent) error {
	payment, err := s.store.GetPaymentByIntentID(pi.ID)
	if errors.Is(err, db.ErrNotFound) {
		s.log.Warn("payment not found for intent", zap.String("intent_id", pi.ID))
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Status == models.PaymentStatusCompleted {
		return nil
	}
	msg := "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
		msg = pi.LastPaymentError.Message
	}
	return s.store.UpdatePayment(payment.ID, map[string]interface{}{
		"status":        models.PaymentStatusFailed,
		"error_message": "processor payment failed: " + msg,
	})
}

func (s *SettlementService) handlePaymentCanceled(pi *processor.PaymentIntent) error {
	payment, err := s.store.GetPaymentByIntentID(pi.ID)
	if errors.Is(err, db.ErrNotFound) {
		s.log.Warn("payment not found for intent", zap.String("intent_id", pi.ID))
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Status == models.PaymentStatusCompleted {
		return nil
	}
	return s.store.UpdatePayment(payment.ID, map[string]interface{}{
		"status":        models.PaymentStatusCanceled,
		"error_message": "payment intent was canceled",
	})
}

// handlePayoutEvent reconciles a cashout from a payout-lifecycle event.
// The on-chain leg already happened before the payout was requested, so
// these transitions touch only the local record.
func (s *SettlementService) handlePayoutEvent(eventType string, po *processor.Payout) error {
	cashout, err := s.store.GetCashoutByPayoutID(po.ID)
	if errors.Is(err, db.ErrNotFound) {
		s.log.Warn("cashout not found for payout", zap.String("payout_id", po.ID))
		return nil
	}
	if err != nil {
		return err
	}
	if cashout.Status == models.CashoutStatusPaid {
		// completed_at is fixed once paid
		return nil
	}

	switch eventType {
	case processor.EventPayoutPaid:
		now := time.Now()
		return s.store.UpdateCashout(cashout.ID, map[string]interface{}{
			"status":       models.CashoutStatusPaid,
			"completed_at": &now,
		})
	case processor.EventPayoutFailed:
		code := po.FailureCode
		if code == "" {
			code = "unknown"
		}
		msg := po.FailureMessage
		if msg == "" {
			msg = "payout failed"
		}
		return s.store.UpdateCashout(cashout.ID, map[string]interface{}{
			"status":        models.CashoutStatusFailed,
			"error_message": fmt.Sprintf("processor payout failed: %s - %s", code, msg),
		})
	case processor.EventPayoutCanceled:
		return s.store.UpdateCashout(cashout.ID, map[string]interface{}{
			"status":        models.CashoutStatusCanceled,
			"error_message": "processor payout was canceled",
		})
	}
	return nil
}

// ReconcileActivity re-patches activity rows for completed payments
// whose feed entry still lacks the settled tx hash. Returns how many
// payments were patched.
func (s *SettlementService) ReconcileActivity(_ context.Context) (int, error) {
	payments, err := s.store.CompletedPaymentsWithUnpatchedActivity()
	if err != nil {
		return 0, err
	}
	patched := 0
	for _, p := range payments {
		if err := s.store.PatchActivityByIntentID(p.PaymentIntentID, p.TxHash, models.ActivityStatusSuccess); err != nil {
			s.log.Error("reconcile patch failed", zap.String("intent_id", p.PaymentIntentID), zap.Error(err))
			continue
		}
		patched++
	}
	return patched, nil
}
