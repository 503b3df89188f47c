package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCError wraps a ledger RPC failure with a transient/permanent
// classification decided once, here at the adapter boundary. Callers
// check IsTransient instead of re-parsing error text.
type RPCError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *RPCError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("rpc %s (%s): %v", e.Op, kind, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a transient-transport
// classification and is therefore worth retrying.
func IsTransient(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Transient
}

// classify wraps err as an RPCError, marking gateway/timeout-class
// transport failures transient. Everything else (malformed call,
// insufficient funds, execution reverts) is permanent.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return err
	}
	return &RPCError{Op: op, Transient: isTransportError(err), Err: err}
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 502, 503, 504, 429:
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{
		"502", "bad gateway",
		"503", "service unavailable",
		"timeout", "timed out",
		"connection reset", "connection refused",
		"server error",
	} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
