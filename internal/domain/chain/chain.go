// Package chain defines the Chain capability: the blockchain submission
// and confirmation collaborator that OrderLifecycle treats as an
// external, opaque dependency.
package chain

import "context"

// ConfirmationResult carries the outcome of awaiting a submitted
// transaction's confirmation.
type ConfirmationResult struct {
	Confirmed bool
	Reason    string
}

// Chain is implemented by a concrete blockchain client (fake, or a real
// RPC-backed submitter). OrderLifecycle never names a concrete
// implementation; it is injected at construction.
type Chain interface {
	// Submit broadcasts the built transaction and returns its hash.
	Submit(ctx context.Context, txBlob []byte) (txHash string, err error)
	// AwaitConfirmation blocks until txHash is confirmed, fails, or ctx's
	// deadline (the caller is responsible for bounding it to the 60s
	// confirmation timeout) elapses.
	AwaitConfirmation(ctx context.Context, txHash string) (ConfirmationResult, error)
}
