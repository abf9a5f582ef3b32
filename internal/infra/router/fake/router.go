// Package fake implements a simulated Router: it stands in for the DEX
// quoting and transaction-building adapters the core treats as external
// collaborators, picking a venue and a price at random within a plausible
// spread.
package fake

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/domain/router"
)

// venues lists the DEXes the fake router quotes across.
var venues = []order.DexType{order.DexRaydium, order.DexMeteora}

// Config tunes the simulated latency and price behavior.
type Config struct {
	// QuoteDelay and BuildDelay simulate RPC round trips to a venue.
	QuoteDelay time.Duration
	BuildDelay time.Duration
	// BasePrice seeds the quoted price when the order carries no other
	// signal (the core never inspects real market data).
	BasePrice float64
	// SpreadBps is the maximum basis-point spread between quotePrice and
	// effectivePrice.
	SpreadBps float64
}

// DefaultConfig matches the §5 "2-3s simulated execution delay" budget,
// split across the routing and building RPCs.
func DefaultConfig() Config {
	return Config{
		QuoteDelay: 1200 * time.Millisecond,
		BuildDelay: 800 * time.Millisecond,
		BasePrice:  1.0,
		SpreadBps:  25,
	}
}

// Router is a simulated router.Router. It never contacts a real DEX; it
// sleeps to emulate latency and derives a price/venue pseudo-randomly.
type Router struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a fake Router. Zero-value fields in cfg fall back to
// DefaultConfig's corresponding value.
func New(cfg Config) *Router {
	defaults := DefaultConfig()
	if cfg.QuoteDelay <= 0 {
		cfg.QuoteDelay = defaults.QuoteDelay
	}
	if cfg.BuildDelay <= 0 {
		cfg.BuildDelay = defaults.BuildDelay
	}
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = defaults.BasePrice
	}
	if cfg.SpreadBps <= 0 {
		cfg.SpreadBps = defaults.SpreadBps
	}
	return &Router{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))} //nolint:gosec // simulated venue selection, not cryptographic
}

// BestQuote picks a venue at random and derives an effective price within
// cfg.SpreadBps of cfg.BasePrice and a quote price within the same spread
// of that effective price.
func (r *Router) BestQuote(ctx context.Context, o order.Order) (router.Quote, error) {
	if err := sleep(ctx, r.cfg.QuoteDelay); err != nil {
		return router.Quote{}, err
	}

	dex, effective, quoted := r.sample()
	_ = o
	return router.Quote{
		Dex:            dex,
		EffectivePrice: formatPrice(effective),
		QuotePrice:     formatPrice(quoted),
	}, nil
}

// BuildTx assembles an opaque transaction blob referencing the quoted
// venue. The blob has no meaning beyond being handed back to Chain.Submit.
func (r *Router) BuildTx(ctx context.Context, o order.Order, quote router.Quote) (router.BuildResult, error) {
	if err := sleep(ctx, r.cfg.BuildDelay); err != nil {
		return router.BuildResult{}, err
	}

	blob := []byte(fmt.Sprintf("tx:%s:%s:%s:%s", quote.Dex, o.OrderID, o.TokenIn, o.TokenOut))
	return router.BuildResult{Dex: quote.Dex, TxBlob: blob}, nil
}

func (r *Router) sample() (order.DexType, float64, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dex := venues[r.rng.Intn(len(venues))]
	spread := r.cfg.BasePrice * (r.cfg.SpreadBps / 10000)
	effective := r.cfg.BasePrice + (r.rng.Float64()*2-1)*spread
	quoted := effective + (r.rng.Float64()*2-1)*spread
	return dex, effective, quoted
}

func formatPrice(v float64) string {
	return fmt.Sprintf("%.8f", v)
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
