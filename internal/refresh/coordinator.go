// Package refresh serializes per-position refreshes and throttles bulk ones.
//
// Two independent guards:
//   - single flight: at most one refresh runs per position, claimed through an
//     atomic conditional update on the position row;
//   - bulk cooldown: "refresh all" is rejected with a computed retryAfter while
//     the owner's least-recently-refreshed position is younger than the
//     cooldown.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ports"
	"github.com/alejandrodnm/lpkeeper/internal/position"
)

const (
	// DefaultCooldown gates bulk refresh per owner.
	DefaultCooldown = 60 * time.Second

	// Upstream pacing for bulk fan-out, kept well under public RPC limits.
	refreshRatePerSec = 5
	refreshBurst      = 2
)

// Coordinator owns refresh scheduling. Safe for concurrent use.
type Coordinator struct {
	positions ports.PositionStore
	prices    ports.PoolPriceSource
	onchain   ports.PositionSource

	cooldown time.Duration
	limiter  *rate.Limiter
	now      func() time.Time
}

// New creates a Coordinator with the default cooldown and pacing.
func New(positions ports.PositionStore, prices ports.PoolPriceSource, onchain ports.PositionSource) *Coordinator {
	return &Coordinator{
		positions: positions,
		prices:    prices,
		onchain:   onchain,
		cooldown:  DefaultCooldown,
		limiter:   rate.NewLimiter(refreshRatePerSec, refreshBurst),
		now:       time.Now,
	}
}

// WithCooldown overrides the bulk cooldown. Non-positive values keep the
// current one.
func (c *Coordinator) WithCooldown(d time.Duration) *Coordinator {
	if d > 0 {
		c.cooldown = d
	}
	return c
}

// Refresh re-reads one position from chain, recomputes its metrics and
// persists the updated state. At most one refresh is in flight per position:
// a second concurrent caller is told to come back shortly.
func (c *Coordinator) Refresh(ctx context.Context, positionID string) (ports.PositionRow, error) {
	cfg, err := c.positions.GetConfig(ctx, positionID)
	if err != nil {
		return ports.PositionRow{}, fmt.Errorf("refresh.Refresh: %s: %w", positionID, err)
	}

	claimed, err := c.positions.TryBeginRefresh(ctx, positionID)
	if err != nil {
		return ports.PositionRow{}, fmt.Errorf("refresh.Refresh: claim %s: %w", positionID, err)
	}
	if !claimed {
		return ports.PositionRow{}, &domain.RateLimitedError{RetryAfter: time.Second}
	}
	defer func() {
		if err := c.positions.EndRefresh(context.WithoutCancel(ctx), positionID); err != nil {
			slog.Error("refresh: release claim", "position", positionID, "err", err)
		}
	}()

	return c.refreshClaimed(ctx, cfg)
}

// refreshClaimed does the actual work once the single-flight slot is held.
func (c *Coordinator) refreshClaimed(ctx context.Context, cfg domain.PositionConfig) (ports.PositionRow, error) {
	pool, err := c.prices.Latest(ctx, cfg.ChainID, cfg.PoolAddress)
	if err != nil {
		return ports.PositionRow{}, fmt.Errorf("refresh: pool %s: %w", cfg.PoolAddress, err)
	}
	fresh, err := c.onchain.State(ctx, cfg)
	if err != nil {
		return ports.PositionRow{}, fmt.Errorf("refresh: position %s: %w", cfg.PositionID, err)
	}

	// Cost basis is owned by the ledger; carry it over from the stored state.
	if prev, err := c.positions.GetState(ctx, cfg.PositionID); err == nil && prev.CostBasis != nil {
		fresh.CostBasis = new(big.Int).Set(prev.CostBasis)
	}

	metrics, err := position.Compute(pool, cfg, fresh)
	if err != nil {
		return ports.PositionRow{}, err
	}

	fresh.PositionID = cfg.PositionID
	fresh.UnclaimedFees0 = metrics.UnclaimedFees0
	fresh.UnclaimedFees1 = metrics.UnclaimedFees1
	fresh.LastRefreshedAt = c.now().UTC()
	if err := c.positions.SaveState(ctx, fresh); err != nil {
		return ports.PositionRow{}, fmt.Errorf("refresh: save %s: %w", cfg.PositionID, err)
	}

	return ports.PositionRow{Config: cfg, Metrics: metrics}, nil
}

// RefreshAll refreshes every position of an owner, oldest first. Rejected with
// a RateLimitedError carrying the remaining cooldown when the owner's stalest
// position was refreshed less than the cooldown ago.
func (c *Coordinator) RefreshAll(ctx context.Context, ownerID string) ([]ports.PositionRow, error) {
	oldest, err := c.positions.OldestRefreshByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("refresh.RefreshAll: %s: %w", ownerID, err)
	}
	if elapsed := c.now().Sub(oldest); !oldest.IsZero() && elapsed < c.cooldown {
		return nil, &domain.RateLimitedError{RetryAfter: (c.cooldown - elapsed).Round(time.Second)}
	}

	cfgs, err := c.positions.ListConfigsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("refresh.RefreshAll: list %s: %w", ownerID, err)
	}

	rows := make([]ports.PositionRow, 0, len(cfgs))
	for _, cfg := range cfgs {
		if err := c.limiter.Wait(ctx); err != nil {
			return rows, err
		}
		row, err := c.Refresh(ctx, cfg.PositionID)
		if err != nil {
			slog.Warn("refresh: bulk item failed", "position", cfg.PositionID, "err", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
