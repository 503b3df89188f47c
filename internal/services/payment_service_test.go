package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/chain"
	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/models"
)

func intentRequest() models.CreateIntentRequest {
	return models.CreateIntentRequest{
		Amount:        "25",
		Currency:      "usd",
		WalletAddress: settlementWallet,
		TokenSymbol:   "AlphaUSD",
	}
}

func TestCreateIntent(t *testing.T) {
	store := newTestStore(t)
	svc := NewPaymentService(store, &fakeMover{balance: micro(1000)}, chain.NewRegistry(nil), zap.NewNop())

	resp, err := svc.CreateIntent(context.Background(), intentRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.PaymentIntentID, "pi_"))
	assert.Contains(t, resp.ClientSecret, resp.PaymentIntentID)
	assert.Equal(t, "25.00", resp.Amount)
	assert.Equal(t, "25.000000", resp.AmountStablecoin)
	assert.Equal(t, "1", resp.ExchangeRate)
	assert.Equal(t, models.PaymentStatusPending, resp.Status)

	p, err := svc.Status(resp.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, settlementWallet, p.WalletAddress)
}

func TestCreateIntentEurRate(t *testing.T) {
	svc := NewPaymentService(newTestStore(t), &fakeMover{balance: micro(1000)}, chain.NewRegistry(nil), zap.NewNop())

	req := intentRequest()
	req.Currency = "EUR"
	resp, err := svc.CreateIntent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "0.92", resp.ExchangeRate)
	assert.Equal(t, "23.00", resp.Amount) // 25 * 0.92
}

func TestCreateIntentValidation(t *testing.T) {
	svc := NewPaymentService(newTestStore(t), &fakeMover{balance: micro(1000)}, chain.NewRegistry(nil), zap.NewNop())

	req := intentRequest()
	req.WalletAddress = "bogus"
	_, err := svc.CreateIntent(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	req = intentRequest()
	req.Amount = "0"
	_, err = svc.CreateIntent(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	req = intentRequest()
	req.Currency = "gbp"
	_, err = svc.CreateIntent(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestCreateIntentInsufficientCustodialBalance(t *testing.T) {
	svc := NewPaymentService(newTestStore(t), &fakeMover{balance: micro(10)}, chain.NewRegistry(nil), zap.NewNop())

	_, err := svc.CreateIntent(context.Background(), intentRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient")
}

func TestCreateIntentContinuesOnBalanceCheckError(t *testing.T) {
	// an RPC outage must not block intent creation; settlement re-checks
	mover := &fakeMover{balanceErr: errors.New("bad gateway")}
	svc := NewPaymentService(newTestStore(t), mover, chain.NewRegistry(nil), zap.NewNop())

	resp, err := svc.CreateIntent(context.Background(), intentRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.PaymentIntentID)
}

func TestStatusUnknownIntent(t *testing.T) {
	svc := NewPaymentService(newTestStore(t), &fakeMover{}, chain.NewRegistry(nil), zap.NewNop())
	_, err := svc.Status("pi_missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestOfframpBalance(t *testing.T) {
	svc := NewPaymentService(newTestStore(t), &fakeMover{balance: micro(42)}, chain.NewRegistry(nil), zap.NewNop())

	got, err := svc.OfframpBalance(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "42.000000", got)
}

func TestRateForCurrency(t *testing.T) {
	assert.Equal(t, "1", RateForCurrency("usd").String())
	assert.Equal(t, "0.92", RateForCurrency("EUR").String())
	assert.Equal(t, "1", RateForCurrency("xyz").String())
}
