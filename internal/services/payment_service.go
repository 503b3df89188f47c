package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/chain"
	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/models"
	"github.com/ToanBm/cross-flow/internal/processor"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCurrency = errors.New("invalid currency. supported: usd, eur")
)

// tokenToFiat is the exchange-rate snapshot source: 1 token = rate fiat.
// Kept behind RateForCurrency so a live quote client can replace it.
var tokenToFiat = map[string]decimal.Decimal{
	"usd": decimal.NewFromInt(1),
	"eur": decimal.RequireFromString("0.92"),
}

// RateForCurrency returns the fiat value of one stablecoin unit,
// defaulting to 1:1 for unknown currencies.
func RateForCurrency(currency string) decimal.Decimal {
	if rate, ok := tokenToFiat[strings.ToLower(currency)]; ok {
		return rate
	}
	return decimal.NewFromInt(1)
}

// PaymentService creates on-ramp intents and reads payment state.
type PaymentService struct {
	store  *db.Store
	ledger TokenMover
	tokens chain.Registry
	log    *zap.Logger
}

func NewPaymentService(store *db.Store, ledger TokenMover, tokens chain.Registry, log *zap.Logger) *PaymentService {
	return &PaymentService{store: store, ledger: ledger, tokens: tokens, log: log}
}

// CreateIntent creates a processor payment intent and the matching
// pending Payment row.
func (s *PaymentService) CreateIntent(ctx context.Context, req models.CreateIntentRequest) (*models.CreateIntentResponse, error) {
	if !common.IsHexAddress(req.WalletAddress) {
		return nil, ErrInvalidAddress
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToLower(req.Currency)
	if currency != "usd" && currency != "eur" {
		return nil, ErrInvalidCurrency
	}

	tokenAddr := req.TokenAddress
	if tokenAddr == "" {
		tokenAddr = s.tokens.AddressFor(req.TokenSymbol).Hex()
	}
	token := common.HexToAddress(tokenAddr)

	rate := RateForCurrency(currency)
	fiatAmount := amount.Mul(rate)
	if req.FiatAmount != "" {
		if v, err := decimal.NewFromString(req.FiatAmount); err == nil && v.IsPositive() {
			fiatAmount = v
		}
	}

	// Best-effort custodial balance check; settlement re-checks before
	// the transfer either way.
	decimals := s.ledger.TokenDecimals(ctx, token)
	required, _ := chain.ParseUnits(amount.String(), decimals)
	if balance, err := s.ledger.BalanceOf(ctx, token, s.ledger.CustodialAddress()); err != nil {
		s.log.Warn("off-ramp balance check failed, continuing", zap.Error(err))
	} else if balance.Cmp(required.BigInt()) < 0 {
		return nil, fmt.Errorf("insufficient %s balance in off-ramp wallet. required: %s, available: %s",
			req.TokenSymbol,
			chain.FormatUnits(required.String(), decimals),
			chain.FormatUnits(balance.String(), decimals))
	}

	intentID := processor.NewIntentID()
	payment := &models.Payment{
		PaymentIntentID: intentID,
		WalletAddress:   req.WalletAddress,
		AmountFiat:      fiatAmount.StringFixed(2),
		FiatCurrency:    currency,
		AmountUSDT:      amount.StringFixed(6),
		ExchangeRate:    rate.String(),
		TokenSymbol:     req.TokenSymbol,
		TokenAddress:    strings.ToLower(token.Hex()),
		Status:          models.PaymentStatusPending,
	}
	if err := s.store.CreatePayment(payment); err != nil {
		return nil, err
	}

	return &models.CreateIntentResponse{
		PaymentIntentID:  intentID,
		ClientSecret:     processor.NewClientSecret(intentID),
		Amount:           fiatAmount.StringFixed(2),
		Currency:         currency,
		AmountStablecoin: amount.StringFixed(6),
		TokenSymbol:      req.TokenSymbol,
		ExchangeRate:     rate.String(),
		WalletAddress:    strings.ToLower(req.WalletAddress),
		Status:           models.PaymentStatusPending,
	}, nil
}

// Status returns the stored payment for an intent id.
func (s *PaymentService) Status(intentID string) (*models.Payment, error) {
	return s.store.GetPaymentByIntentID(intentID)
}

// OfframpBalance reads the custodial wallet balance for a token, in
// display units.
func (s *PaymentService) OfframpBalance(ctx context.Context, tokenAddress string) (string, error) {
	token := common.HexToAddress(tokenAddress)
	if tokenAddress == "" {
		token = s.tokens.AddressFor("")
	}
	balance, err := s.ledger.BalanceOf(ctx, token, s.ledger.CustodialAddress())
	if err != nil {
		return "", err
	}
	return chain.FormatUnits(balance.String(), s.ledger.TokenDecimals(ctx, token)), nil
}
