package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

// PositionStore persists position configs and refreshed state.
type PositionStore interface {
	SaveConfig(ctx context.Context, cfg domain.PositionConfig) error
	GetConfig(ctx context.Context, positionID string) (domain.PositionConfig, error)
	ListConfigsByOwner(ctx context.Context, ownerID string) ([]domain.PositionConfig, error)

	GetState(ctx context.Context, positionID string) (domain.PositionState, error)
	SaveState(ctx context.Context, state domain.PositionState) error

	// TryBeginRefresh atomically claims the per-position refresh slot. It
	// returns false when another refresh is already in flight; the claim is a
	// conditional single-row update, so two concurrent callers can never both
	// win.
	TryBeginRefresh(ctx context.Context, positionID string) (bool, error)
	EndRefresh(ctx context.Context, positionID string) error

	// ReleaseRefreshClaims clears every persisted refresh claim. Called once
	// at startup so a crash mid-refresh cannot leave a position claimed
	// forever.
	ReleaseRefreshClaims(ctx context.Context) error

	// OldestRefreshByOwner returns the lastRefreshedAt of the owner's
	// least-recently-refreshed active position, for the bulk cooldown check.
	OldestRefreshByOwner(ctx context.Context, ownerID string) (time.Time, error)
}

// LedgerStore persists accounted ledger rows and APR periods. Rows are
// append-only; ReplaceLedger is the single destructive operation and must be
// atomic.
type LedgerStore interface {
	AppendEvent(ctx context.Context, ev domain.LedgerEvent) error

	// ListEvents returns the position's ledger in ascending chain order.
	ListEvents(ctx context.Context, positionID string) ([]domain.LedgerEvent, error)

	ListPeriods(ctx context.Context, positionID string) ([]domain.AprPeriod, error)

	// ReplaceLedger atomically swaps the whole event sequence and its derived
	// APR periods inside one transaction. Either everything commits or the
	// previous ledger survives untouched.
	ReplaceLedger(ctx context.Context, positionID string, events []domain.LedgerEvent, periods []domain.AprPeriod) error
}

// OrderStore persists live close orders. Only non-terminal orders live here;
// the (positionID, orderType) slot is unique while an order is active, and
// executed/cancelled orders are purged.
type OrderStore interface {
	// CreateOrder inserts a new order; returns domain.ErrDuplicateActiveSlot
	// if the slot is taken.
	CreateOrder(ctx context.Context, o domain.CloseOrder) error

	GetOrder(ctx context.Context, orderID string) (domain.CloseOrder, error)
	ListOpenOrders(ctx context.Context) ([]domain.CloseOrder, error)
	UpdateOrder(ctx context.Context, o domain.CloseOrder) error

	// RequestCancel flags the order so the executor observes the cancellation
	// before its next broadcast.
	RequestCancel(ctx context.Context, orderID string) error

	// PurgeOrder removes a terminal order from live storage.
	PurgeOrder(ctx context.Context, orderID string) error

	// PruneFailedBefore removes failed-order tombstones older than the
	// retention cutoff. Called on startup.
	PruneFailedBefore(ctx context.Context, cutoff time.Time) error
}
