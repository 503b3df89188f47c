package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signatures the synchronizer understands. The ledger's stablecoins
// emit the plain ERC-20 Transfer plus a memo-tagged variant.
var (
	TransferTopic         = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	TransferWithMemoTopic = crypto.Keccak256Hash([]byte("TransferWithMemo(address,address,uint256,bytes32)"))
)

// ErrNotTransfer marks a log that does not decode against the known event
// shapes. Callers skip these silently; a foreign event on the same
// contract must not abort a chunk.
var ErrNotTransfer = errors.New("log is not a recognized transfer event")

// DecodedTransfer is one transfer event lifted out of a ledger log.
type DecodedTransfer struct {
	EventName   string
	From        common.Address
	To          common.Address
	Value       *big.Int
	Memo        *string // 0x-hex of the bytes32 memo, nil for plain transfers
	TxHash      common.Hash
	LogIndex    uint
	BlockNumber uint64
}

// AddressTopic left-pads an address into its indexed-topic form.
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

// DecodeTransferLog decodes a raw log against the Transfer and
// TransferWithMemo shapes, returning ErrNotTransfer for anything else.
func DecodeTransferLog(lg types.Log) (DecodedTransfer, error) {
	if len(lg.Topics) != 3 {
		return DecodedTransfer{}, ErrNotTransfer
	}

	out := DecodedTransfer{
		From:        common.BytesToAddress(lg.Topics[1].Bytes()[12:]),
		To:          common.BytesToAddress(lg.Topics[2].Bytes()[12:]),
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
		BlockNumber: lg.BlockNumber,
	}

	switch lg.Topics[0] {
	case TransferTopic:
		if len(lg.Data) != 32 {
			return DecodedTransfer{}, ErrNotTransfer
		}
		out.EventName = "Transfer"
		out.Value = new(big.Int).SetBytes(lg.Data[:32])
	case TransferWithMemoTopic:
		if len(lg.Data) != 64 {
			return DecodedTransfer{}, ErrNotTransfer
		}
		out.EventName = "TransferWithMemo"
		out.Value = new(big.Int).SetBytes(lg.Data[:32])
		memo := hexutil.Encode(lg.Data[32:64])
		out.Memo = &memo
	default:
		return DecodedTransfer{}, ErrNotTransfer
	}

	return out, nil
}
