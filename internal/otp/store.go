// Package otp holds the one-time login codes. The store is a
// process-lifetime keyed map with an explicit expiry sweep, owned by
// main rather than living as ambient global state.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CodeSender delivers a code to the user. Real deployments plug an
// email gateway in; development logs the code.
type CodeSender interface {
	Send(ctx context.Context, email, code string) error
}

// LogSender writes codes to the process log instead of sending them.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, email, code string) error {
	s.Log.Info("login code issued", zap.String("email", email), zap.String("code", code))
	return nil
}

type entry struct {
	code    string
	expires time.Time
}

// Store keeps pending codes keyed by email.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	codes map[string]entry
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{ttl: ttl, codes: make(map[string]entry)}
}

// Issue generates a six-digit code for an email, replacing any pending
// one.
func (s *Store) Issue(email string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%06d", n.Int64())

	s.mu.Lock()
	s.codes[strings.ToLower(email)] = entry{code: code, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return code, nil
}

// Verify consumes the pending code for an email. Expired or mismatched
// codes fail and a matched code can be used only once.
func (s *Store) Verify(email, code string) bool {
	key := strings.ToLower(email)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[key]
	if !ok || time.Now().After(e.expires) || e.code != code {
		return false
	}
	delete(s.codes, key)
	return true
}

// Sweep drops expired entries.
func (s *Store) Sweep() {
	now := time.Now()
	s.mu.Lock()
	for key, e := range s.codes {
		if now.After(e.expires) {
			delete(s.codes, key)
		}
	}
	s.mu.Unlock()
}

// StartSweep runs Sweep periodically until ctx is done.
func (s *Store) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
