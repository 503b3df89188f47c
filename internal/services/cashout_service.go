package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/chain"
	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/models"
	"github.com/ToanBm/cross-flow/internal/processor"
)

var (
	ErrTxNotSettled     = errors.New("on-chain transfer has not settled successfully")
	ErrTransferNotFound = errors.New("expected token transfer not found in transaction logs")
	ErrCashoutExists    = errors.New("cashout already requested for this transaction")
)

// CashoutLedger verifies the user's outbound transfer for a payout.
type CashoutLedger interface {
	ReceiptLogs(ctx context.Context, hash common.Hash) ([]types.Log, uint64, error)
	TokenDecimals(ctx context.Context, token common.Address) uint8
	CustodialAddress() common.Address
}

// CashoutService records off-ramp payouts. The on-chain leg is the
// user's own transfer to the custodial wallet, verified here before any
// payout is created.
type CashoutService struct {
	store  *db.Store
	ledger CashoutLedger
	tokens chain.Registry
	log    *zap.Logger
}

func NewCashoutService(store *db.Store, ledger CashoutLedger, tokens chain.Registry, log *zap.Logger) *CashoutService {
	return &CashoutService{store: store, ledger: ledger, tokens: tokens, log: log}
}

// Request verifies the settled transfer and creates a pending Cashout
// with a fresh payout id.
func (s *CashoutService) Request(ctx context.Context, req models.CashoutRequest) (*models.Cashout, error) {
	employee := strings.ToLower(req.EmployeeAddress)
	if !common.IsHexAddress(employee) {
		return nil, ErrInvalidAddress
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if _, err := s.store.GetCashoutByTxHash(req.TxHash); err == nil {
		return nil, ErrCashoutExists
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	token := s.tokens.AddressFor("")
	if req.TokenAddress != "" {
		token = common.HexToAddress(req.TokenAddress)
	}

	if err := s.verifyTransfer(ctx, common.HexToHash(req.TxHash), token, common.HexToAddress(employee)); err != nil {
		return nil, err
	}

	rate := RateForCurrency(req.Currency)
	cashout := &models.Cashout{
		EmployeeAddress: employee,
		AmountUSDT:      amount.StringFixed(6),
		FiatCurrency:    strings.ToLower(req.Currency),
		FiatAmount:      amount.Mul(rate).StringFixed(2),
		ExchangeRate:    rate.String(),
		TxHashOnchain:   strings.ToLower(req.TxHash),
		PayoutID:        processor.NewPayoutID(),
		BankAccountID:   req.BankAccountID,
		Status:          models.CashoutStatusPending,
	}
	if err := s.store.CreateCashout(cashout); err != nil {
		return nil, err
	}

	s.log.Info("cashout requested",
		zap.String("employee", employee), zap.String("payout_id", cashout.PayoutID),
		zap.String("tx_hash", cashout.TxHashOnchain))
	return cashout, nil
}

// verifyTransfer checks the receipt succeeded and contains a transfer of
// the expected token sent by the employee. Smart-wallet transactions
// emit extra logs, so every log is tried, not just the first.
func (s *CashoutService) verifyTransfer(ctx context.Context, hash common.Hash, token, employee common.Address) error {
	logs, status, err := s.ledger.ReceiptLogs(ctx, hash)
	if err != nil {
		return err
	}
	if status != 1 {
		return ErrTxNotSettled
	}

	custodial := s.ledger.CustodialAddress()
	for _, lg := range logs {
		if lg.Address != token {
			continue
		}
		decoded, err := chain.DecodeTransferLog(lg)
		if err != nil {
			continue
		}
		if decoded.From != employee {
			continue
		}
		if custodial != (common.Address{}) && decoded.To != custodial {
			continue
		}
		return nil
	}
	return ErrTransferNotFound
}

// History lists cashouts for an address, newest first.
func (s *CashoutService) History(address string, limit int) ([]models.Cashout, error) {
	if limit < 1 {
		limit = 50
	}
	return s.store.CashoutsForAddress(address, limit)
}
