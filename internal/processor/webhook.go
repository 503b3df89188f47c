// Package processor models the payment processor's outward surface: the
// signed webhook envelope it delivers and the identifiers it mints.
package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event types dispatched by the settlement state machine. Anything else
// is acknowledged and ignored.
const (
	EventPayoutPaid       = "payout.paid"
	EventPayoutFailed     = "payout.failed"
	EventPayoutCanceled   = "payout.canceled"
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

// SignatureHeader carries the webhook signature, computed over the
// literal raw request body.
const SignatureHeader = "X-Processor-Signature"

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrBadSignature     = errors.New("webhook signature verification failed")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
)

// signatureTolerance bounds how old a signed timestamp may be.
const signatureTolerance = 5 * time.Minute

// Event is the webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// PaymentIntent is the object carried by payment_intent.* events.
type PaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"` // smallest fiat unit
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Payout is the object carried by payout.* events.
type Payout struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
}

// ParseEvent verifies the signature against the raw body and unmarshals
// the envelope. The raw bytes must be passed through untouched:
// re-serializing parsed JSON breaks verification.
func ParseEvent(rawBody []byte, header, secret string) (*Event, error) {
	if err := VerifySignature(rawBody, header, secret, time.Now()); err != nil {
		return nil, err
	}
	var evt Event
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	return &evt, nil
}

// VerifySignature checks a "t=<unix>,v1=<hex>" header where v1 is
// HMAC-SHA256(secret, "<t>.<rawBody>").
func VerifySignature(rawBody []byte, header, secret string, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrBadSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrStaleTimestamp
	}

	expected := computeSignature(rawBody, ts, secret)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrBadSignature
}

// Sign produces a valid signature header for a payload. Used by the
// sandbox processor and by tests.
func Sign(rawBody []byte, secret string, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, computeSignature(rawBody, ts, secret))
}

func computeSignature(rawBody []byte, ts, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
