package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/chain"
	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/models"
)

// ErrInvalidAddress rejects anything that is not a hex ledger address.
var ErrInvalidAddress = errors.New("invalid address")

// LedgerReader is the slice of the chain client the synchronizer needs.
type LedgerReader interface {
	HeadBlock(ctx context.Context) (uint64, error)
	TransferLogs(ctx context.Context, token common.Address, from, to uint64, event common.Hash, sender, recipient *common.Address) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (int64, error)
	TokenDecimals(ctx context.Context, token common.Address) uint8
}

// ActivityConfig tunes the incremental scan.
type ActivityConfig struct {
	Tokens          []string
	InitialLookback uint64 // 0 = full history from block 1
	MaxBlockRange   uint64 // max blocks per log query chunk
}

// ActivityService ingests ledger transfer logs into local storage and
// serves the merged activity feed.
type ActivityService struct {
	store  *db.Store
	ledger LedgerReader
	cfg    ActivityConfig
	log    *zap.Logger
}

func NewActivityService(store *db.Store, ledger LedgerReader, cfg ActivityConfig, log *zap.Logger) *ActivityService {
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 100_000
	}
	return &ActivityService{store: store, ledger: ledger, cfg: cfg, log: log}
}

// SyncTransfersForUser scans ledger logs for every configured token
// since the stored watermark, upserts decoded transfers and advances the
// watermark chunk by chunk. Returns the head block reached.
func (s *ActivityService) SyncTransfersForUser(ctx context.Context, address string) (uint64, error) {
	user := strings.ToLower(address)
	if !common.IsHexAddress(user) {
		return 0, ErrInvalidAddress
	}
	userAddr := common.HexToAddress(user)

	head, err := s.ledger.HeadBlock(ctx)
	if err != nil {
		return 0, err
	}

	for _, token := range s.cfg.Tokens {
		tokenLower := strings.ToLower(token)
		tokenAddr := common.HexToAddress(tokenLower)
		decimals := s.ledger.TokenDecimals(ctx, tokenAddr)

		last, err := s.store.GetWatermark(user, tokenLower)
		if err != nil {
			return 0, err
		}
		if last == 0 && s.cfg.InitialLookback > 0 {
			if head > s.cfg.InitialLookback {
				last = head - s.cfg.InitialLookback
			}
		}
		start := last + 1
		if start > head {
			continue
		}

		// Chunks strictly in increasing order; the watermark advances
		// only after a chunk's rows are persisted, so a crash mid-sync
		// re-scans rather than skips.
		for chunkFrom := start; chunkFrom <= head; chunkFrom += s.cfg.MaxBlockRange {
			chunkTo := chunkFrom + s.cfg.MaxBlockRange - 1
			if chunkTo > head {
				chunkTo = head
			}
			if err := s.syncChunk(ctx, userAddr, tokenAddr, chunkFrom, chunkTo, decimals); err != nil {
				return 0, err
			}
			if err := s.store.SetWatermark(user, tokenLower, chunkTo); err != nil {
				return 0, err
			}
		}
	}

	return head, nil
}

func (s *ActivityService) syncChunk(ctx context.Context, user, token common.Address, from, to uint64, decimals uint8) error {
	// Four targeted queries instead of one broad one: {plain, memo}
	// x {user as recipient, user as sender} keeps result sets below
	// provider limits.
	queries := []struct {
		event             common.Hash
		sender, recipient *common.Address
	}{
		{chain.TransferTopic, nil, &user},
		{chain.TransferTopic, &user, nil},
		{chain.TransferWithMemoTopic, nil, &user},
		{chain.TransferWithMemoTopic, &user, nil},
	}

	var logs []types.Log
	for _, q := range queries {
		part, err := s.ledger.TransferLogs(ctx, token, from, to, q.event, q.sender, q.recipient)
		if err != nil {
			return err
		}
		logs = append(logs, part...)
	}
	// A self-transfer matches both the sender-pinned and the
	// recipient-pinned query. Postgres rejects a multi-row upsert that
	// hits the same (tx_hash, log_index) twice, so dedupe before storing.
	logs = dedupeLogs(logs)
	if len(logs) == 0 {
		return nil
	}

	// One timestamp lookup per distinct block, not per log.
	blockTs := make(map[uint64]int64)
	for _, lg := range logs {
		if _, ok := blockTs[lg.BlockNumber]; ok {
			continue
		}
		ts, err := s.ledger.BlockTimestamp(ctx, lg.BlockNumber)
		if err != nil {
			return err
		}
		blockTs[lg.BlockNumber] = ts
	}

	rows := make([]models.Transfer, 0, len(logs))
	for _, lg := range logs {
		decoded, err := chain.DecodeTransferLog(lg)
		if err != nil {
			// foreign event on the same contract
			continue
		}
		row := models.Transfer{
			TokenAddress: strings.ToLower(token.Hex()),
			FromAddress:  strings.ToLower(decoded.From.Hex()),
			ToAddress:    strings.ToLower(decoded.To.Hex()),
			AmountRaw:    decoded.Value.String(),
			Decimals:     decimals,
			Memo:         decoded.Memo,
			TxHash:       strings.ToLower(decoded.TxHash.Hex()),
			LogIndex:     decoded.LogIndex,
			BlockNumber:  decoded.BlockNumber,
			EventName:    decoded.EventName,
		}
		if ts, ok := blockTs[decoded.BlockNumber]; ok {
			row.BlockTimestamp = &ts
		}
		rows = append(rows, row)
	}

	return s.store.UpsertTransfers(rows)
}

func dedupeLogs(logs []types.Log) []types.Log {
	type logKey struct {
		tx    common.Hash
		index uint
	}
	seen := make(map[logKey]struct{}, len(logs))
	out := logs[:0]
	for _, lg := range logs {
		k := logKey{lg.TxHash, lg.Index}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, lg)
	}
	return out
}

// GetActivityForAddress returns the merged, time-ordered feed for an
// address. When sync is requested and fails, previously-ingested data is
// served instead (degraded mode) and syncedToBlock stays nil.
func (s *ActivityService) GetActivityForAddress(ctx context.Context, address string, limit int, sync bool) (*uint64, []models.ActivityItem, error) {
	user := strings.ToLower(address)
	if !common.IsHexAddress(user) {
		return nil, nil, ErrInvalidAddress
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var syncedTo *uint64
	if sync {
		head, err := s.SyncTransfersForUser(ctx, user)
		if err != nil {
			s.log.Warn("sync failed, serving cached activity", zap.String("address", user), zap.Error(err))
		} else {
			syncedTo = &head
		}
	}

	transfers, err := s.store.TransfersForAddress(user, limit)
	if err != nil {
		return syncedTo, nil, err
	}
	payments, err := s.store.PaymentsForAddress(user, limit)
	if err != nil {
		return syncedTo, nil, err
	}
	cashouts, err := s.store.CashoutsForAddress(user, limit)
	if err != nil {
		return syncedTo, nil, err
	}

	items := make([]models.ActivityItem, 0, len(transfers)+len(payments)+len(cashouts))

	for _, t := range transfers {
		direction := models.ActivityTypeSend
		counterparty := t.ToAddress
		if t.ToAddress == user {
			direction = "receive"
			counterparty = t.FromAddress
		}
		items = append(items, models.ActivityItem{
			Kind:         "transfer",
			Direction:    direction,
			TokenAddress: t.TokenAddress,
			AmountRaw:    t.AmountRaw,
			Amount:       chain.FormatUnits(t.AmountRaw, t.Decimals),
			Decimals:     t.Decimals,
			Counterparty: counterparty,
			TxHash:       t.TxHash,
			BlockNumber:  t.BlockNumber,
			Timestamp:    t.BlockTimestamp,
			Memo:         t.Memo,
			EventName:    t.EventName,
		})
	}

	for _, p := range payments {
		ts := p.CreatedAt.Unix()
		items = append(items, models.ActivityItem{
			Kind:          "payment",
			Direction:     models.ActivityTypeDeposit,
			Amount:        p.AmountUSDT,
			AmountFiat:    p.AmountFiat,
			Currency:      strings.ToUpper(p.FiatCurrency),
			TxHash:        p.TxHash,
			Timestamp:     &ts,
			Status:        p.Status,
			PaymentIntent: p.PaymentIntentID,
		})
	}

	for _, c := range cashouts {
		ts := c.CreatedAt.Unix()
		items = append(items, models.ActivityItem{
			Kind:          "cashout",
			Direction:     models.ActivityTypeWithdraw,
			Amount:        c.AmountUSDT,
			AmountFiat:    c.FiatAmount,
			Currency:      strings.ToUpper(c.FiatCurrency),
			TxHash:        c.TxHashOnchain,
			Timestamp:     &ts,
			Status:        c.Status,
			BankAccountID: c.BankAccountID,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := int64(0), int64(0)
		if items[i].Timestamp != nil {
			ti = *items[i].Timestamp
		}
		if items[j].Timestamp != nil {
			tj = *items[j].Timestamp
		}
		if ti != tj {
			return ti > tj
		}
		return items[i].BlockNumber > items[j].BlockNumber
	})
	if len(items) > limit {
		items = items[:limit]
	}

	return syncedTo, items, nil
}
