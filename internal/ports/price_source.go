package ports

import (
	"context"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

// PoolPriceSource observes AMM pool state from chain. Implemented by an RPC
// adapter elsewhere; the engine only reads through it.
type PoolPriceSource interface {
	// Latest returns the pool state at the chain head.
	Latest(ctx context.Context, chainID uint64, poolAddress string) (domain.PoolState, error)

	// AtBlock returns the pool state at a specific block, for event-time
	// valuations.
	AtBlock(ctx context.Context, chainID uint64, poolAddress string, block uint64) (domain.PoolState, error)
}

// PositionSource reads the on-chain state of a position (liquidity, fee
// snapshots, tokens owed).
type PositionSource interface {
	// State returns the live on-chain position state. Implementations return
	// domain.ErrNotFound for burned/unknown NFTs.
	State(ctx context.Context, cfg domain.PositionConfig) (domain.PositionState, error)
}

// OrderStatusSource mirrors the on-chain close-order registry. It is the
// ground truth the state machine reconciles against: if the chain says
// EXECUTED, local state is stale regardless of what the DB believes.
type OrderStatusSource interface {
	Status(ctx context.Context, identityHash string) (domain.OnChainOrderStatus, error)
}
