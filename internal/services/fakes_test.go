package services

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ToanBm/cross-flow/internal/chain"
	"github.com/ToanBm/cross-flow/internal/db"
)

// fakeLedger serves canned logs for the synchronizer tests, filtering
// the way a real node would.
type fakeLedger struct {
	head       uint64
	headErr    error
	logs       []types.Log
	timestamps map[uint64]int64
	decimals   uint8
	logQueries int
}

func (f *fakeLedger) HeadBlock(context.Context) (uint64, error) {
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeLedger) TransferLogs(_ context.Context, token common.Address, from, to uint64, event common.Hash, sender, recipient *common.Address) ([]types.Log, error) {
	f.logQueries++
	var out []types.Log
	for _, lg := range f.logs {
		if lg.Address != token || lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if len(lg.Topics) != 3 || lg.Topics[0] != event {
			continue
		}
		if sender != nil && lg.Topics[1] != chain.AddressTopic(*sender) {
			continue
		}
		if recipient != nil && lg.Topics[2] != chain.AddressTopic(*recipient) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeLedger) BlockTimestamp(_ context.Context, number uint64) (int64, error) {
	if ts, ok := f.timestamps[number]; ok {
		return ts, nil
	}
	return 0, errors.New("unknown block")
}

func (f *fakeLedger) TokenDecimals(context.Context, common.Address) uint8 {
	if f.decimals == 0 {
		return 6
	}
	return f.decimals
}

// fakeMover records custodial transfers for the settlement tests.
type fakeMover struct {
	decimals    uint8
	balance     *big.Int
	balanceErr  error
	transferErr error
	receipt     *chain.Receipt
	receiptErr  error
	custodial   common.Address

	transfers    []*big.Int
	transferDest []common.Address
}

func (f *fakeMover) TokenDecimals(context.Context, common.Address) uint8 {
	if f.decimals == 0 {
		return 6
	}
	return f.decimals
}

func (f *fakeMover) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeMover) TransferToken(_ context.Context, _ common.Address, to common.Address, amount *big.Int) (common.Hash, error) {
	if f.transferErr != nil {
		return common.Hash{}, f.transferErr
	}
	f.transfers = append(f.transfers, new(big.Int).Set(amount))
	f.transferDest = append(f.transferDest, to)
	return common.HexToHash("0xfeedface"), nil
}

func (f *fakeMover) WaitForReceipt(context.Context, common.Hash) (*chain.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &chain.Receipt{TxHash: common.HexToHash("0xfeedface"), Status: 1, BlockNumber: 4242}, nil
}

func (f *fakeMover) CustodialAddress() common.Address { return f.custodial }

// fakeReceiptLedger serves one receipt's logs for the cashout tests.
type fakeReceiptLedger struct {
	logs      []types.Log
	status    uint64
	custodial common.Address
}

func (f *fakeReceiptLedger) ReceiptLogs(context.Context, common.Hash) ([]types.Log, uint64, error) {
	return f.logs, f.status, nil
}

func (f *fakeReceiptLedger) TokenDecimals(context.Context, common.Address) uint8 { return 6 }

func (f *fakeReceiptLedger) CustodialAddress() common.Address { return f.custodial }

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
