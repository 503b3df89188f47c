package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"deadline", context.DeadlineExceeded},
		{"http 502", rpc.HTTPError{StatusCode: 502, Status: "502 Bad Gateway"}},
		{"http 503", rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}},
		{"http 429", rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}},
		{"gateway text", errors.New("bad gateway")},
		{"timeout text", errors.New("request timed out")},
		{"reset text", errors.New("read: connection reset by peer")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("eth_getLogs", tc.err)
			assert.True(t, IsTransient(err), "expected transient: %v", err)
		})
	}
}

func TestClassifyPermanent(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"revert", errors.New("execution reverted")},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value")},
		{"http 400", rpc.HTTPError{StatusCode: 400, Status: "400 Bad Request"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("eth_sendRawTransaction", tc.err)
			assert.False(t, IsTransient(err), "expected permanent: %v", err)
		})
	}
}

func TestClassifyPreservesExistingClassification(t *testing.T) {
	inner := &RPCError{Op: "eth_call", Transient: true, Err: errors.New("timeout")}
	wrapped := fmt.Errorf("chunk 100-200: %w", inner)

	err := classify("eth_getLogs", wrapped)
	assert.True(t, IsTransient(err))

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "eth_call", rpcErr.Op)
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classify("eth_blockNumber", nil))
}

func TestIsTransientPlainError(t *testing.T) {
	assert.False(t, IsTransient(errors.New("bad gateway")))
}
