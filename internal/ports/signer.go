package ports

import (
	"context"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

// CloseIntent is everything the external signer needs to close a position:
// the order's immutable identity, the per-attempt idempotency key, and the
// optional post-close swap. Key custody and calldata encoding live on the
// signer side; this engine only delegates.
type CloseIntent struct {
	OrderID        string
	IdentityHash   string
	IdempotencyKey string
	PositionID     string
	Swap           *domain.SwapIntent
}

// BroadcastResult is a successful hand-off to the chain.
type BroadcastResult struct {
	TxHash string
}

// Signer signs and broadcasts close transactions. Treated as fallible and
// slow: every call must carry a deadline, and any failure (RPC error, failed
// simulation, signer rejection) surfaces as an error the state machine
// classifies.
type Signer interface {
	SignAndBroadcast(ctx context.Context, intent CloseIntent) (BroadcastResult, error)
}
