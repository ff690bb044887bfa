package ports

import (
	"context"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

// RawEventSource yields the on-chain events of a position from an upstream
// indexer. The stream is expected ordered and deduplicated; the ledger still
// re-sorts and re-dedupes defensively before accounting.
type RawEventSource interface {
	// PositionEvents returns every INCREASE/DECREASE/COLLECT event for the
	// position since genesis, each carrying the pool price at its block.
	// Returns domain.ErrUpstreamRateLimited when throttled; the caller must
	// treat that as "keep the previous ledger".
	PositionEvents(ctx context.Context, cfg domain.PositionConfig) ([]domain.RawEvent, error)
}
