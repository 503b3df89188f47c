package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/chain"
	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/models"
	"github.com/ToanBm/cross-flow/internal/processor"
)

const settlementWallet = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func paymentEvent(eventType, intentID string, metadata map[string]string) *processor.Event {
	object, _ := json.Marshal(processor.PaymentIntent{ID: intentID, Metadata: metadata})
	evt := &processor.Event{ID: "evt_" + intentID, Type: eventType}
	evt.Data.Object = object
	return evt
}

func payoutEvent(eventType, payoutID, failureCode, failureMessage string) *processor.Event {
	object, _ := json.Marshal(processor.Payout{ID: payoutID, FailureCode: failureCode, FailureMessage: failureMessage})
	evt := &processor.Event{ID: "evt_" + payoutID, Type: eventType}
	evt.Data.Object = object
	return evt
}

func seedPayment(t *testing.T, store *db.Store, intentID, amount string) *models.Payment {
	t.Helper()
	p := &models.Payment{
		PaymentIntentID: intentID,
		WalletAddress:   settlementWallet,
		AmountUSDT:      amount,
		AmountFiat:      amount,
		FiatCurrency:    "usd",
		TokenSymbol:     "AlphaUSD",
		Status:          models.PaymentStatusPending,
	}
	require.NoError(t, store.CreatePayment(p))
	return p
}

func micro(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1_000_000))
}

func TestPaymentSucceededSettles(t *testing.T) {
	store := newTestStore(t)
	mover := &fakeMover{balance: micro(100)}
	svc := NewSettlementService(store, mover, chain.NewRegistry(nil), zap.NewNop())

	seedPayment(t, store, "pi_ok", "10.5")
	require.NoError(t, store.SaveActivity(&models.ActivityHistory{
		WalletAddress:   settlementWallet,
		PaymentIntentID: "pi_ok",
		Status:          models.ActivityStatusPending,
	}))

	evt := paymentEvent(processor.EventPaymentSucceeded, "pi_ok", map[string]string{"wallet_address": settlementWallet})
	require.NoError(t, svc.HandleEvent(context.Background(), evt))

	// exactly one transfer of the raw token amount
	require.Len(t, mover.transfers, 1)
	assert.Equal(t, "10500000", mover.transfers[0].String())
	assert.Equal(t, common.HexToAddress(settlementWallet), mover.transferDest[0])

	p, err := store.GetPaymentByIntentID("pi_ok")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.NotEmpty(t, p.TxHash)
	assert.Equal(t, uint64(4242), p.BlockNumber)
	require.NotNil(t, p.CompletedAt)

	// the feed row picked up the settled hash
	rows, _, err := store.ActivityForWallet(settlementWallet, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, p.TxHash, rows[0].TxHash)
	assert.Equal(t, models.ActivityStatusSuccess, rows[0].Status)
}

func TestPaymentSucceededInsufficientBalance(t *testing.T) {
	store := newTestStore(t)
	mover := &fakeMover{balance: micro(5)}
	svc := NewSettlementService(store, mover, chain.NewRegistry(nil), zap.NewNop())

	seedPayment(t, store, "pi_poor", "10.5")
	evt := paymentEvent(processor.EventPaymentSucceeded, "pi_poor", map[string]string{"wallet_address": settlementWallet})

	err := svc.HandleEvent(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance in off-ramp wallet")
	assert.Contains(t, err.Error(), "required: 10.500000")
	assert.Contains(t, err.Error(), "available: 5.000000")

	// no submission was attempted
	assert.Empty(t, mover.transfers)

	p, err := store.GetPaymentByIntentID("pi_poor")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Contains(t, p.ErrorMessage, "insufficient balance")
	assert.Empty(t, p.TxHash)
}

func TestPaymentSucceededIdempotent(t *testing.T) {
	store := newTestStore(t)
	mover := &fakeMover{balance: micro(100)}
	svc := NewSettlementService(store, mover, chain.NewRegistry(nil), zap.NewNop())

	seedPayment(t, store, "pi_dup", "10.5")
	evt := paymentEvent(processor.EventPaymentSucceeded, "pi_dup", map[string]string{"wallet_address": settlementWallet})

	require.NoError(t, svc.HandleEvent(context.Background(), evt))
	// redelivered event must not move tokens again
	require.NoError(t, svc.HandleEvent(context.Background(), evt))
	assert.Len(t, mover.transfers, 1)
}

func TestPaymentSucceededOnchainFailure(t *testing.T) {
	store := newTestStore(t)
	mover := &fakeMover{
		balance: micro(100),
		receipt: &chain.Receipt{TxHash: common.HexToHash("0xdead"), Status: 0, BlockNumber: 4243},
	}
	svc := NewSettlementService(store, mover, chain.NewRegistry(nil), zap.NewNop())

	seedPayment(t, store, "pi_revert", "10.5")
	evt := paymentEvent(processor.EventPaymentSucceeded, "pi_revert", map[string]string{"wallet_address": settlementWallet})

	err := svc.HandleEvent(context.Background(), evt)
	require.Error(t, err)

	p, err := store.GetPaymentByIntentID("pi_revert")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Contains(t, p.ErrorMessage, "transaction failed on-chain")
}

func TestPaymentSucceededUnknownIntent(t *testing.T) {
	store := newTestStore(t)
	mover := &fakeMover{balance: micro(100)}
	svc := NewSettlementService(store, mover, chain.NewRegistry(nil), zap.NewNop())

	evt := paymentEvent(processor.EventPaymentSucceeded, "pi_ghost", nil)
	// acknowledged without error, nothing moves
	require.NoError(t, svc.HandleEvent(context.Background(), evt))
	assert.Empty(t, mover.transfers)
}

func TestPaymentFailedIsTerminalAfterCompletion(t *testing.T) {
	store := newTestStore(t)
	mover := &fakeMover{balance: micro(100)}
	svc := NewSettlementService(store, mover, chain.NewRegistry(nil), zap.NewNop())

	seedPayment(t, store, "pi_race", "1")
	succeeded := paymentEvent(processor.EventPaymentSucceeded, "pi_race", map[string]string{"wallet_address": settlementWallet})
	require.NoError(t, svc.HandleEvent(context.Background(), succeeded))

	// a late failure event cannot demote a completed payment
	failed := paymentEvent(processor.EventPaymentFailed, "pi_race", nil)
	require.NoError(t, svc.HandleEvent(context.Background(), failed))

	p, err := store.GetPaymentByIntentID("pi_race")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
}

func TestPaymentFailedRecordsProcessorMessage(t *testing.T) {
	store := newTestStore(t)
	svc := NewSettlementService(store, &fakeMover{}, chain.NewRegistry(nil), zap.NewNop())

	seedPayment(t, store, "pi_declined", "1")

	pi := processor.PaymentIntent{ID: "pi_declined"}
	pi.LastPaymentError = &struct {
		Message string `json:"message"`
	}{Message: "card declined"}
	object, _ := json.Marshal(pi)
	evt := &processor.Event{ID: "evt_declined", Type: processor.EventPaymentFailed}
	evt.Data.Object = object

	require.NoError(t, svc.HandleEvent(context.Background(), evt))

	p, err := store.GetPaymentByIntentID("pi_declined")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, "processor payment failed: card declined", p.ErrorMessage)
}

func TestUnknownEventIgnored(t *testing.T) {
	store := newTestStore(t)
	svc := NewSettlementService(store, &fakeMover{}, chain.NewRegistry(nil), zap.NewNop())

	evt := &processor.Event{ID: "evt_x", Type: "charge.refunded"}
	evt.Data.Object = json.RawMessage(`{}`)
	require.NoError(t, svc.HandleEvent(context.Background(), evt))
}

func seedCashout(t *testing.T, store *db.Store, payoutID string) *models.Cashout {
	t.Helper()
	c := &models.Cashout{
		EmployeeAddress: settlementWallet,
		AmountUSDT:      "20.000000",
		FiatCurrency:    "usd",
		FiatAmount:      "20.00",
		TxHashOnchain:   fmt.Sprintf("0x%s", payoutID),
		PayoutID:        payoutID,
		Status:          models.CashoutStatusPending,
	}
	require.NoError(t, store.CreateCashout(c))
	return c
}

func TestPayoutPaid(t *testing.T) {
	store := newTestStore(t)
	svc := NewSettlementService(store, &fakeMover{}, chain.NewRegistry(nil), zap.NewNop())

	seedCashout(t, store, "po_paid")
	require.NoError(t, svc.HandleEvent(context.Background(), payoutEvent(processor.EventPayoutPaid, "po_paid", "", "")))

	c, err := store.GetCashoutByPayoutID("po_paid")
	require.NoError(t, err)
	assert.Equal(t, models.CashoutStatusPaid, c.Status)
	require.NotNil(t, c.CompletedAt)

	// re-delivery keeps completed_at fixed
	first := *c.CompletedAt
	require.NoError(t, svc.HandleEvent(context.Background(), payoutEvent(processor.EventPayoutPaid, "po_paid", "", "")))
	c, err = store.GetCashoutByPayoutID("po_paid")
	require.NoError(t, err)
	assert.Equal(t, first, *c.CompletedAt)
}

func TestPayoutFailed(t *testing.T) {
	store := newTestStore(t)
	svc := NewSettlementService(store, &fakeMover{}, chain.NewRegistry(nil), zap.NewNop())

	seedCashout(t, store, "po_fail")
	evt := payoutEvent(processor.EventPayoutFailed, "po_fail", "account_closed", "bank account closed")
	require.NoError(t, svc.HandleEvent(context.Background(), evt))

	c, err := store.GetCashoutByPayoutID("po_fail")
	require.NoError(t, err)
	assert.Equal(t, models.CashoutStatusFailed, c.Status)
	assert.Equal(t, "processor payout failed: account_closed - bank account closed", c.ErrorMessage)
}

func TestPayoutCanceled(t *testing.T) {
	store := newTestStore(t)
	svc := NewSettlementService(store, &fakeMover{}, chain.NewRegistry(nil), zap.NewNop())

	seedCashout(t, store, "po_cancel")
	require.NoError(t, svc.HandleEvent(context.Background(), payoutEvent(processor.EventPayoutCanceled, "po_cancel", "", "")))

	c, err := store.GetCashoutByPayoutID("po_cancel")
	require.NoError(t, err)
	assert.Equal(t, models.CashoutStatusCanceled, c.Status)
}

func TestReconcileActivity(t *testing.T) {
	store := newTestStore(t)
	svc := NewSettlementService(store, &fakeMover{}, chain.NewRegistry(nil), zap.NewNop())

	require.NoError(t, store.CreatePayment(&models.Payment{
		PaymentIntentID: "pi_gap",
		WalletAddress:   settlementWallet,
		Status:          models.PaymentStatusCompleted,
		TxHash:          "0xsettled",
	}))
	require.NoError(t, store.SaveActivity(&models.ActivityHistory{
		WalletAddress:   settlementWallet,
		PaymentIntentID: "pi_gap",
		Status:          models.ActivityStatusPending,
	}))

	patched, err := svc.ReconcileActivity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, patched)

	rows, _, err := store.ActivityForWallet(settlementWallet, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0xsettled", rows[0].TxHash)

	// second sweep finds nothing
	patched, err = svc.ReconcileActivity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, patched)
}
