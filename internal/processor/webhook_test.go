package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestSignAndParseEvent(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	header := Sign(body, testSecret, time.Now())

	evt, err := ParseEvent(body, header, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, EventPaymentSucceeded, evt.Type)
	assert.JSONEq(t, `{"id":"pi_123"}`, string(evt.Data.Object))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	header := Sign(body, testSecret, time.Now())

	// even whitespace changes break verification
	tampered := []byte(`{"id": "evt_1"}`)
	err := VerifySignature(tampered, header, testSecret, time.Now())
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	header := Sign(body, "whsec_other", time.Now())
	err := VerifySignature(body, header, testSecret, time.Now())
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyMissingHeader(t *testing.T) {
	err := VerifySignature([]byte(`{}`), "", testSecret, time.Now())
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestVerifyStaleTimestamp(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	signedAt := time.Now().Add(-10 * time.Minute)
	header := Sign(body, testSecret, signedAt)

	err := VerifySignature(body, header, testSecret, time.Now())
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestVerifyMalformedHeader(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	for _, header := range []string{"t=abc,v1=00", "v1=00", "t=123", "garbage"} {
		err := VerifySignature(body, header, testSecret, time.Now())
		assert.ErrorIs(t, err, ErrBadSignature, "header %q", header)
	}
}

func TestNewIntentIDPrefixes(t *testing.T) {
	assert.Contains(t, NewIntentID(), "pi_")
	assert.Contains(t, NewPayoutID(), "po_")
	assert.NotEqual(t, NewIntentID(), NewIntentID())
}
