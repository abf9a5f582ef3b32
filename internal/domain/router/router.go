// Package router defines the Router capability: the DEX quoting and
// transaction-building collaborator that OrderLifecycle treats as an
// external, opaque dependency.
package router

import (
	"context"

	"github.com/coachpo/swapexec/internal/domain/order"
)

// Quote is a price/fee/latency record returned by a router for a given
// order.
type Quote struct {
	Dex            order.DexType
	EffectivePrice string
	QuotePrice     string
}

// BuildResult is the opaque transaction blob produced for a previously
// quoted order, along with the dex the transaction targets.
type BuildResult struct {
	Dex   order.DexType
	TxBlob []byte
}

// Router is implemented by a concrete DEX adapter (fake, or a real
// raydium/meteora client). OrderLifecycle never names a concrete
// implementation; it is injected at construction.
type Router interface {
	// BestQuote returns the best available quote for swapping
	// o.AmountIn of o.TokenIn into o.TokenOut.
	BestQuote(ctx context.Context, o order.Order) (Quote, error)
	// BuildTx builds an opaque, submittable transaction for the
	// previously returned quote.
	BuildTx(ctx context.Context, o order.Order, quote Quote) (BuildResult, error)
}
