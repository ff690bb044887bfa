// Package keeper is the application facade: it owns the poll cycle and exposes
// the operations the outer surfaces call (refresh, ledger rebuild, order
// registration/cancellation, order evaluation). All collaborators are injected.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/lpkeeper/internal/closeout"
	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ledger"
	"github.com/alejandrodnm/lpkeeper/internal/ports"
	"github.com/alejandrodnm/lpkeeper/internal/refresh"
)

// Keeper wires the subsystems into the exposed service surface.
type Keeper struct {
	refresher *refresh.Coordinator
	ledger    *ledger.Service
	orders    *closeout.Runner

	positions ports.PositionStore
	ledgerSt  ports.LedgerStore
	orderSt   ports.OrderStore
	notifier  ports.Notifier
	retention time.Duration
}

// New creates the keeper.
func New(
	refresher *refresh.Coordinator,
	ledgerSvc *ledger.Service,
	orders *closeout.Runner,
	positions ports.PositionStore,
	ledgerSt ports.LedgerStore,
	orderSt ports.OrderStore,
	notifier ports.Notifier,
	failedRetention time.Duration,
) *Keeper {
	return &Keeper{
		refresher: refresher,
		ledger:    ledgerSvc,
		orders:    orders,
		positions: positions,
		ledgerSt:  ledgerSt,
		orderSt:   orderSt,
		notifier:  notifier,
		retention: failedRetention,
	}
}

// Startup releases refresh claims orphaned by a crash, reconciles stale
// executing orders against chain truth and prunes old failed tombstones.
// Called once before the first cycle.
func (k *Keeper) Startup(ctx context.Context) error {
	if err := k.positions.ReleaseRefreshClaims(ctx); err != nil {
		return fmt.Errorf("keeper.Startup: %w", err)
	}
	if err := k.orders.RecoverStale(ctx); err != nil {
		return fmt.Errorf("keeper.Startup: %w", err)
	}
	if k.retention > 0 {
		cutoff := time.Now().Add(-k.retention)
		if err := k.orderSt.PruneFailedBefore(ctx, cutoff); err != nil {
			return fmt.Errorf("keeper.Startup: prune: %w", err)
		}
	}
	return nil
}

// Refresh re-reads one position from chain and returns its updated state plus
// derived metrics. Fails with ErrNotFound for unknown positions,
// ErrChainUnavailable for transient upstream trouble and ErrDataCorrupt for
// inconsistent on-chain values.
func (k *Keeper) Refresh(ctx context.Context, positionID string) (ports.PositionRow, error) {
	row, err := k.refresher.Refresh(ctx, positionID)
	if err != nil {
		return ports.PositionRow{}, err
	}
	row.Orders = k.openOrdersFor(ctx, positionID)
	return row, nil
}

// RefreshAll refreshes every position of an owner, subject to the bulk
// cooldown; a premature call fails with a RateLimitedError carrying the
// computed retryAfter.
func (k *Keeper) RefreshAll(ctx context.Context, ownerID string) ([]ports.PositionRow, error) {
	return k.refresher.RefreshAll(ctx, ownerID)
}

// RebuildLedger refetches the position's raw events and regenerates the whole
// ledger and its APR periods atomically.
func (k *Keeper) RebuildLedger(ctx context.Context, positionID string) (domain.LedgerSummary, error) {
	cfg, err := k.positions.GetConfig(ctx, positionID)
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("keeper.RebuildLedger: %s: %w", positionID, err)
	}
	return k.ledger.Rebuild(ctx, cfg)
}

// AppendEvent accounts one freshly observed chain event onto the stored ledger.
func (k *Keeper) AppendEvent(ctx context.Context, positionID string, raw domain.RawEvent) error {
	cfg, err := k.positions.GetConfig(ctx, positionID)
	if err != nil {
		return fmt.Errorf("keeper.AppendEvent: %s: %w", positionID, err)
	}
	return k.ledger.Append(ctx, cfg, raw)
}

// RegisterOrder validates and stores a close order for the position.
func (k *Keeper) RegisterOrder(ctx context.Context, positionID string, orderType domain.OrderType, triggerTick int32, mode domain.TriggerMode, swap *domain.SwapIntent) (domain.CloseOrder, error) {
	cfg, err := k.positions.GetConfig(ctx, positionID)
	if err != nil {
		return domain.CloseOrder{}, fmt.Errorf("keeper.RegisterOrder: %s: %w", positionID, err)
	}
	return k.orders.Register(ctx, cfg, orderType, triggerTick, mode, swap)
}

// CancelOrder flags an order for cancellation; the flag beats any in-flight
// attempt that has not broadcast yet.
func (k *Keeper) CancelOrder(ctx context.Context, orderID string) error {
	return k.orders.Cancel(ctx, orderID)
}

// EvaluateOrders runs every open order against the given tick and returns the
// applied transitions, for observability.
func (k *Keeper) EvaluateOrders(ctx context.Context, tick int32) ([]domain.Transition, error) {
	return k.orders.EvaluateAt(ctx, tick)
}

// RunCycle executes one poll cycle for an owner: bulk refresh (cooldown
// permitting), close-order evaluation against live ticks, then reporting.
func (k *Keeper) RunCycle(ctx context.Context, ownerID string) error {
	rows, err := k.refresher.RefreshAll(ctx, ownerID)
	if err != nil {
		var rl *domain.RateLimitedError
		if errors.As(err, &rl) {
			slog.Debug("keeper: bulk refresh on cooldown", "retry_after", rl.RetryAfter)
		} else {
			slog.Warn("keeper: bulk refresh failed", "owner", ownerID, "err", err)
		}
	}

	for i := range rows {
		rows[i].Orders = k.openOrdersFor(ctx, rows[i].Config.PositionID)
	}

	transitions, err := k.orders.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("keeper.RunCycle: orders: %w", err)
	}

	if err := k.notifier.Notify(ctx, rows, transitions); err != nil {
		slog.Warn("keeper: notify failed", "err", err)
	}
	return nil
}

func (k *Keeper) openOrdersFor(ctx context.Context, positionID string) []domain.CloseOrder {
	open, err := k.orderSt.ListOpenOrders(ctx)
	if err != nil {
		slog.Warn("keeper: list orders", "err", err)
		return nil
	}
	var out []domain.CloseOrder
	for _, o := range open {
		if o.PositionID == positionID {
			out = append(out, o)
		}
	}
	return out
}

// LedgerView returns the stored ledger rows (ascending chain order) and APR
// periods without touching upstream.
func (k *Keeper) LedgerView(ctx context.Context, positionID string) ([]domain.LedgerEvent, []domain.AprPeriod, error) {
	events, err := k.ledgerSt.ListEvents(ctx, positionID)
	if err != nil {
		return nil, nil, fmt.Errorf("keeper.LedgerView: %w", err)
	}
	periods, err := k.ledgerSt.ListPeriods(ctx, positionID)
	if err != nil {
		return nil, nil, fmt.Errorf("keeper.LedgerView: %w", err)
	}
	return events, periods, nil
}
