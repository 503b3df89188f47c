package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// DefaultTokenDecimals is assumed when the decimals() call fails.
const DefaultTokenDecimals uint8 = 6

const transferGasLimit = 100_000

var (
	selTransfer  = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	selBalanceOf = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selDecimals  = crypto.Keccak256([]byte("decimals()"))[:4]
)

var (
	ErrNoEndpoints     = errors.New("no rpc endpoints configured")
	ErrNoCustodialKey  = errors.New("custodial wallet not configured")
	ErrReceiptTimeout  = errors.New("timed out waiting for transaction receipt")
	ErrBadCustodialKey = errors.New("invalid custodial private key")
	ErrShortCallReturn = errors.New("short return data from contract call")
	ErrTransferExhaust = errors.New("transfer submission attempts exhausted")
)

// Config wires the ledger adapter.
type Config struct {
	Endpoints        []string
	ChainID          int64
	Retry            RetryConfig
	CallTimeout      time.Duration
	CustodialKeyHex  string
	TransferAttempts int
	TransferDelay    time.Duration
	ReceiptPoll      time.Duration
	ReceiptTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.TransferAttempts <= 0 {
		c.TransferAttempts = 3
	}
	if c.TransferDelay <= 0 {
		c.TransferDelay = 2 * time.Second
	}
	if c.ReceiptPoll <= 0 {
		c.ReceiptPoll = 2 * time.Second
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 90 * time.Second
	}
	return c
}

// Receipt is the slice of a ledger receipt settlement cares about.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
}

// Client talks to the ledger JSON-RPC endpoints. Endpoints are
// equally-weighted and tried in order; only one is queried per call.
type Client struct {
	cfg     Config
	clients []*ethclient.Client
	log     *zap.Logger

	key       *ecdsa.PrivateKey
	custodial common.Address
	signer    types.Signer

	mu       sync.Mutex
	decimals map[common.Address]uint8
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	clients := make([]*ethclient.Client, 0, len(cfg.Endpoints))
	for _, url := range cfg.Endpoints {
		ec, err := ethclient.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		clients = append(clients, ec)
	}

	c := &Client{
		cfg:      cfg,
		clients:  clients,
		log:      log,
		signer:   types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		decimals: make(map[common.Address]uint8),
	}

	if secret := strings.TrimPrefix(cfg.CustodialKeyHex, "0x"); secret != "" {
		key, err := crypto.HexToECDSA(secret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCustodialKey, err)
		}
		c.key = key
		c.custodial = crypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// CustodialAddress returns the custodial (off-ramp) wallet address, or
// the zero address when no key is configured.
func (c *Client) CustodialAddress() common.Address { return c.custodial }

// call tries each endpoint in order within a single attempt. A permanent
// error returns immediately; transient errors fall through to the next
// endpoint and, once all are exhausted, to the retry policy above.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context, *ethclient.Client) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for _, ec := range c.clients {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		v, err := fn(cctx, ec)
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = classify(op, err)
		if !IsTransient(lastErr) {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func resilient[T any](ctx context.Context, c *Client, op string, fn func(context.Context, *ethclient.Client) (T, error)) (T, error) {
	return WithRetry(ctx, c.cfg.Retry, func() (T, error) {
		return call(ctx, c, op, fn)
	})
}

// HeadBlock returns the current chain head block number.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	return resilient(ctx, c, "eth_blockNumber", func(ctx context.Context, ec *ethclient.Client) (uint64, error) {
		return ec.BlockNumber(ctx)
	})
}

// TransferLogs fetches logs for one event signature on one token
// contract over [from, to], optionally pinned to an indexed sender
// and/or recipient.
func (c *Client) TransferLogs(ctx context.Context, token common.Address, from, to uint64, event common.Hash, sender, recipient *common.Address) ([]types.Log, error) {
	topics := [][]common.Hash{{event}, nil, nil}
	if sender != nil {
		topics[1] = []common.Hash{AddressTopic(*sender)}
	}
	if recipient != nil {
		topics[2] = []common.Hash{AddressTopic(*recipient)}
	}
	q := ethereum.FilterQuery{
		Addresses: []common.Address{token},
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics:    topics,
	}
	return resilient(ctx, c, "eth_getLogs", func(ctx context.Context, ec *ethclient.Client) ([]types.Log, error) {
		return ec.FilterLogs(ctx, q)
	})
}

// BlockTimestamp resolves the unix timestamp of a block.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (int64, error) {
	ts, err := resilient(ctx, c, "eth_getBlockByNumber", func(ctx context.Context, ec *ethclient.Client) (uint64, error) {
		header, err := ec.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return 0, err
		}
		return header.Time, nil
	})
	return int64(ts), err
}

// TokenDecimals returns the token's decimal precision, cached per
// process, falling back to DefaultTokenDecimals when the call fails.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) uint8 {
	c.mu.Lock()
	if d, ok := c.decimals[token]; ok {
		c.mu.Unlock()
		return d
	}
	c.mu.Unlock()

	ret, err := resilient(ctx, c, "decimals", func(ctx context.Context, ec *ethclient.Client) ([]byte, error) {
		return ec.CallContract(ctx, ethereum.CallMsg{To: &token, Data: selDecimals}, nil)
	})
	if err != nil || len(ret) == 0 {
		c.log.Warn("decimals call failed, assuming default",
			zap.String("token", token.Hex()), zap.Uint8("default", DefaultTokenDecimals), zap.Error(err))
		return DefaultTokenDecimals
	}

	d := uint8(new(big.Int).SetBytes(ret).Uint64())
	c.mu.Lock()
	c.decimals[token] = d
	c.mu.Unlock()
	return d
}

// BalanceOf reads the token balance of owner.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := append(append([]byte{}, selBalanceOf...), common.LeftPadBytes(owner.Bytes(), 32)...)
	ret, err := resilient(ctx, c, "balanceOf", func(ctx context.Context, ec *ethclient.Client) ([]byte, error) {
		return ec.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	})
	if err != nil {
		return nil, err
	}
	if len(ret) < 32 {
		return nil, classify("balanceOf", ErrShortCallReturn)
	}
	return new(big.Int).SetBytes(ret), nil
}

// TransferToken submits a custodial token transfer. The submission loop
// retries only transient transport failures, with linear backoff
// (delay, 2*delay, 3*delay); balance and validation failures abort
// immediately.
func (c *Client) TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrNoCustodialKey
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.TransferAttempts; attempt++ {
		hash, err := c.submitTransfer(ctx, token, to, amount)
		if err == nil {
			return hash, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return common.Hash{}, err
		}
		if attempt < c.cfg.TransferAttempts {
			wait := time.Duration(attempt) * c.cfg.TransferDelay
			c.log.Warn("transfer submission failed, retrying",
				zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return common.Hash{}, classify("sendTransaction", ctx.Err())
			}
		}
	}
	return common.Hash{}, fmt.Errorf("%w after %d attempts: %v", ErrTransferExhaust, c.cfg.TransferAttempts, lastErr)
}

func (c *Client) submitTransfer(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	data := append(append([]byte{}, selTransfer...), common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)

	return call(ctx, c, "sendTransaction", func(ctx context.Context, ec *ethclient.Client) (common.Hash, error) {
		nonce, err := ec.PendingNonceAt(ctx, c.custodial)
		if err != nil {
			return common.Hash{}, err
		}
		gasPrice, err := ec.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		tx := types.NewTransaction(nonce, token, common.Big0, transferGasLimit, gasPrice, data)
		signed, err := types.SignTx(tx, c.signer, c.key)
		if err != nil {
			return common.Hash{}, err
		}
		if err := ec.SendTransaction(ctx, signed); err != nil {
			return common.Hash{}, err
		}
		return signed.Hash(), nil
	})
}

// WaitForReceipt polls for a transaction receipt until found or the
// configured timeout elapses. The target ledger has instant finality, so
// a couple of polls normally suffice.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	deadline := time.Now().Add(c.cfg.ReceiptTimeout)
	for {
		r, err := call(ctx, c, "eth_getTransactionReceipt", func(ctx context.Context, ec *ethclient.Client) (*types.Receipt, error) {
			return ec.TransactionReceipt(ctx, hash)
		})
		switch {
		case err == nil:
			return &Receipt{TxHash: r.TxHash, Status: r.Status, BlockNumber: r.BlockNumber.Uint64()}, nil
		case errors.Is(err, ethereum.NotFound):
			// pending, keep polling
		case !IsTransient(err):
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		}
		select {
		case <-time.After(c.cfg.ReceiptPoll):
		case <-ctx.Done():
			return nil, classify("eth_getTransactionReceipt", ctx.Err())
		}
	}
}

// TransactionReceipt fetches a receipt once, without waiting.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	r, err := resilient(ctx, c, "eth_getTransactionReceipt", func(ctx context.Context, ec *ethclient.Client) (*types.Receipt, error) {
		return ec.TransactionReceipt(ctx, hash)
	})
	if err != nil {
		return nil, err
	}
	return &Receipt{TxHash: r.TxHash, Status: r.Status, BlockNumber: r.BlockNumber.Uint64()}, nil
}

// ReceiptLogs fetches the raw logs of a mined transaction, used to
// verify the on-chain leg of a cashout.
func (c *Client) ReceiptLogs(ctx context.Context, hash common.Hash) ([]types.Log, uint64, error) {
	r, err := resilient(ctx, c, "eth_getTransactionReceipt", func(ctx context.Context, ec *ethclient.Client) (*types.Receipt, error) {
		return ec.TransactionReceipt(ctx, hash)
	})
	if err != nil {
		return nil, 0, err
	}
	logs := make([]types.Log, 0, len(r.Logs))
	for _, lg := range r.Logs {
		logs = append(logs, *lg)
	}
	return logs, r.Status, nil
}
