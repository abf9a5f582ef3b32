// Package fake implements a simulated Chain: it stands in for the
// blockchain submission and confirmation client, sleeping to emulate RPC
// latency and confirming almost every transaction it is handed.
package fake

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coachpo/swapexec/internal/domain/chain"
)

// Config tunes the simulated latency and failure rate.
type Config struct {
	SubmitDelay  time.Duration
	ConfirmDelay time.Duration
	RejectRate   float64
}

// DefaultConfig picks 1.2s of submit and confirmation delay; together with
// the fake router's 2s of quote and build delay, a default
// routing+building+submitting+confirming round trip takes about 3.2s.
func DefaultConfig() Config {
	return Config{
		SubmitDelay:  300 * time.Millisecond,
		ConfirmDelay: 900 * time.Millisecond,
		RejectRate:   0.02,
	}
}

// Chain is a simulated chain.Chain. It never broadcasts anything; it
// sleeps and then reports a mostly-successful outcome.
type Chain struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a fake Chain. Zero-value fields in cfg fall back to
// DefaultConfig's corresponding value.
func New(cfg Config) *Chain {
	defaults := DefaultConfig()
	if cfg.SubmitDelay <= 0 {
		cfg.SubmitDelay = defaults.SubmitDelay
	}
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = defaults.ConfirmDelay
	}
	if cfg.RejectRate <= 0 {
		cfg.RejectRate = defaults.RejectRate
	}
	return &Chain{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))} //nolint:gosec // simulated outcome, not cryptographic
}

// Submit assigns a synthetic transaction hash after a simulated broadcast
// delay. txBlob is opaque to the fake; it is never inspected.
func (c *Chain) Submit(ctx context.Context, txBlob []byte) (string, error) {
	_ = txBlob
	if err := sleep(ctx, c.cfg.SubmitDelay); err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%s", uuid.NewString()), nil
}

// AwaitConfirmation blocks for the simulated confirmation delay and then
// reports success, unless the caller's context expires first (surfaced as
// a timeout by the caller) or the simulated reject roll fires.
func (c *Chain) AwaitConfirmation(ctx context.Context, txHash string) (chain.ConfirmationResult, error) {
	_ = txHash
	if err := sleep(ctx, c.cfg.ConfirmDelay); err != nil {
		return chain.ConfirmationResult{}, err
	}

	if c.roll() < c.cfg.RejectRate {
		return chain.ConfirmationResult{Confirmed: false, Reason: "simulated rejection"}, nil
	}
	return chain.ConfirmationResult{Confirmed: true}, nil
}

func (c *Chain) roll() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
