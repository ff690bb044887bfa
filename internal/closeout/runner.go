package closeout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ports"
)

// Runner evaluates every open close order against live pool ticks and executes
// the ones whose triggers fire. It is the only component that converts a
// failure into a lifecycle transition, and it always records attempt count and
// reason.
type Runner struct {
	orders    ports.OrderStore
	positions ports.PositionStore
	prices    ports.PoolPriceSource
	chain     ports.OrderStatusSource
	signer    ports.Signer
	intents   ports.IntentStore
	cfg       Config

	now func() time.Time
}

// NewRunner wires the executor. All collaborators are required.
func NewRunner(
	orders ports.OrderStore,
	positions ports.PositionStore,
	prices ports.PoolPriceSource,
	chain ports.OrderStatusSource,
	signer ports.Signer,
	intents ports.IntentStore,
	cfg Config,
) *Runner {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = DefaultConfig().ExecTimeout
	}
	return &Runner{
		orders:    orders,
		positions: positions,
		prices:    prices,
		chain:     chain,
		signer:    signer,
		intents:   intents,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Register validates and stores a new close order in monitoring state.
// Fails with a ValidationError for a bad trigger and ErrDuplicateActiveSlot
// when an active order already occupies (positionID, orderType).
func (r *Runner) Register(ctx context.Context, cfg domain.PositionConfig, orderType domain.OrderType, triggerTick int32, mode domain.TriggerMode, swap *domain.SwapIntent) (domain.CloseOrder, error) {
	if triggerTick < -887272 || triggerTick > 887272 {
		return domain.CloseOrder{}, &domain.ValidationError{
			Field:  "triggerTick",
			Reason: fmt.Sprintf("%d outside usable tick domain", triggerTick),
		}
	}
	if mode != domain.TriggerLower && mode != domain.TriggerUpper {
		return domain.CloseOrder{}, &domain.ValidationError{Field: "mode", Reason: string(mode)}
	}
	if orderType != domain.OrderStopLoss && orderType != domain.OrderTakeProfit {
		return domain.CloseOrder{}, &domain.ValidationError{Field: "orderType", Reason: string(orderType)}
	}

	o := domain.NewCloseOrder(cfg.PositionID, orderType, triggerTick, mode, swap, r.now().UTC())
	if err := r.orders.CreateOrder(ctx, o); err != nil {
		return domain.CloseOrder{}, fmt.Errorf("closeout.Register: %w", err)
	}
	slog.Info("closeout: order registered",
		"order", o.ID, "position", o.PositionID, "type", o.OrderType,
		"trigger", o.TriggerTick, "mode", o.Mode)
	return o, nil
}

// Cancel flags an order for cancellation. The flag is re-checked immediately
// before any broadcast, so a cancellation always wins against an in-flight
// transition; an already-broadcast transaction can only be observed.
func (r *Runner) Cancel(ctx context.Context, orderID string) error {
	if err := r.orders.RequestCancel(ctx, orderID); err != nil {
		return fmt.Errorf("closeout.Cancel: %w", err)
	}
	return nil
}

// RunOnce evaluates all open orders, fetching each position's live tick, and
// returns the transitions applied. Pool reads are batched per pool so N
// orders on one pool cost one observation.
func (r *Runner) RunOnce(ctx context.Context) ([]domain.Transition, error) {
	open, err := r.orders.ListOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("closeout.RunOnce: list orders: %w", err)
	}
	if len(open) == 0 {
		return nil, nil
	}

	ticks := make(map[string]int32) // pool key -> tick
	var transitions []domain.Transition
	for _, o := range open {
		cfg, err := r.positions.GetConfig(ctx, o.PositionID)
		if err != nil {
			slog.Warn("closeout: skipping order, no position config", "order", o.ID, "err", err)
			continue
		}
		key := fmt.Sprintf("%d/%s", cfg.ChainID, cfg.PoolAddress)
		tick, ok := ticks[key]
		if !ok {
			pool, err := r.prices.Latest(ctx, cfg.ChainID, cfg.PoolAddress)
			if err != nil {
				slog.Warn("closeout: pool unavailable, deferring orders", "pool", key, "err", err)
				continue
			}
			tick = pool.CurrentTick
			ticks[key] = tick
		}
		if tr, ok := r.evaluate(ctx, o, cfg, tick); ok {
			transitions = append(transitions, tr)
		}
	}
	return transitions, nil
}

// EvaluateAt runs every open order against a caller-supplied tick. Exposed for
// observability: it reports exactly which transitions a given tick would and
// did apply.
func (r *Runner) EvaluateAt(ctx context.Context, tick int32) ([]domain.Transition, error) {
	open, err := r.orders.ListOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("closeout.EvaluateAt: list orders: %w", err)
	}
	var transitions []domain.Transition
	for _, o := range open {
		cfg, err := r.positions.GetConfig(ctx, o.PositionID)
		if err != nil {
			continue
		}
		if tr, ok := r.evaluate(ctx, o, cfg, tick); ok {
			transitions = append(transitions, tr)
		}
	}
	return transitions, nil
}

// evaluate runs one order through one cycle: reconcile chain truth, honor
// cancellation, then decide and (maybe) execute.
func (r *Runner) evaluate(ctx context.Context, o domain.CloseOrder, cfg domain.PositionConfig, tick int32) (domain.Transition, bool) {
	now := r.now().UTC()

	// On-chain truth first: local state is advisory.
	status, err := r.chain.Status(ctx, o.IdentityHash)
	if err != nil {
		slog.Warn("closeout: chain status unavailable", "order", o.ID, "err", err)
		return domain.Transition{}, false // transient; re-evaluate next cycle
	}
	switch status {
	case domain.ChainStatusExecuted:
		return r.finish(ctx, o, domain.StateExecuted, "observed executed on chain", now)
	case domain.ChainStatusCancelled, domain.ChainStatusNone:
		return r.finish(ctx, o, domain.StateCancelled, "observed "+string(status)+" on chain", now)
	}

	if o.CancelRequested {
		return r.finish(ctx, o, domain.StateCancelled, "user cancellation", now)
	}

	switch decide(o, tick, now) {
	case actionExecute:
		return r.execute(ctx, o, cfg, tick, now)
	case actionDemote:
		from := o.State
		o.State = domain.StateMonitoring
		o.UpdatedAt = now
		if err := r.orders.UpdateOrder(ctx, o); err != nil {
			slog.Error("closeout: demote failed", "order", o.ID, "err", err)
			return domain.Transition{}, false
		}
		return transitionOf(o, from, domain.StateMonitoring, "trigger no longer holds", now), true
	}
	return domain.Transition{}, false
}

// execute performs a single signing attempt. The executing state is persisted
// before the signer is called, so a crash mid-attempt leaves a record that the
// next cycle reconciles against chain truth instead of re-trusting it.
func (r *Runner) execute(ctx context.Context, o domain.CloseOrder, cfg domain.PositionConfig, tick int32, now time.Time) (domain.Transition, bool) {
	from := o.State

	if o.SwapIntent != nil {
		if err := r.checkCompliance(ctx, cfg, o); err != nil {
			o.State = domain.StateFailed
			o.LastFailure = err.Error()
			o.UpdatedAt = now
			if uerr := r.orders.UpdateOrder(ctx, o); uerr != nil {
				slog.Error("closeout: persist failed state", "order", o.ID, "err", uerr)
			}
			slog.Warn("closeout: compliance rejection, no signing attempted",
				"order", o.ID, "reason", err)
			return transitionOf(o, from, domain.StateFailed, err.Error(), now), true
		}
	}

	attempt := o.Attempts + 1
	o.State = domain.StateExecuting
	o.Attempts = attempt
	o.UpdatedAt = now
	if err := r.orders.UpdateOrder(ctx, o); err != nil {
		slog.Error("closeout: persist executing state", "order", o.ID, "err", err)
		return domain.Transition{}, false
	}

	// Cancellation wins any race: re-read immediately before broadcast.
	fresh, err := r.orders.GetOrder(ctx, o.ID)
	if err == nil && fresh.CancelRequested {
		return r.finish(ctx, o, domain.StateCancelled, "cancelled before broadcast", now)
	}

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.ExecTimeout)
	defer cancel()
	res, err := r.signer.SignAndBroadcast(execCtx, ports.CloseIntent{
		OrderID:        o.ID,
		IdentityHash:   o.IdentityHash,
		IdempotencyKey: o.IdempotencyKey(attempt),
		PositionID:     o.PositionID,
		Swap:           o.SwapIntent,
	})
	if err != nil {
		reason := fmt.Sprintf("attempt %d: %v", attempt, err)
		next := nextOnFailure(attempt, r.cfg.MaxAttempts)
		o.State = next
		o.LastFailure = reason
		o.NextAttemptAt = now.Add(r.cfg.RetryBackoff)
		o.UpdatedAt = now
		if uerr := r.orders.UpdateOrder(ctx, o); uerr != nil {
			slog.Error("closeout: persist retry state", "order", o.ID, "err", uerr)
			return domain.Transition{}, false
		}
		slog.Warn("closeout: execution failed",
			"order", o.ID, "attempt", attempt, "next", next, "err", err)
		return transitionOf(o, domain.StateExecuting, next, reason, now), true
	}

	slog.Info("closeout: order executed",
		"order", o.ID, "position", o.PositionID, "tx", res.TxHash, "attempt", attempt)
	return r.finish(ctx, o, domain.StateExecuted, "broadcast "+res.TxHash, now)
}

// checkCompliance verifies the swap intent against the owner's signed
// strategy. A miss is terminal: no signing is attempted for a non-compliant
// order.
func (r *Runner) checkCompliance(ctx context.Context, cfg domain.PositionConfig, o domain.CloseOrder) error {
	intent, err := r.intents.CurrentIntent(ctx, cfg.OwnerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return fmt.Errorf("no signed strategy on file: %w", domain.ErrComplianceViolation)
		}
		return fmt.Errorf("closeout: intent lookup: %w", err)
	}
	if !intent.Valid(r.now()) {
		return fmt.Errorf("signed strategy expired %s: %w", intent.ExpiresAt.Format(time.RFC3339), domain.ErrComplianceViolation)
	}
	if !intent.AllowsEffect("swap") {
		return fmt.Errorf("swap effect not allow-listed: %w", domain.ErrComplianceViolation)
	}
	if !intent.AllowsCurrency(o.SwapIntent.TargetCurrency) {
		return fmt.Errorf("currency %s not allow-listed: %w", o.SwapIntent.TargetCurrency, domain.ErrComplianceViolation)
	}
	return nil
}

// finish applies a terminal transition. Executed and cancelled orders leave
// live storage entirely; failed orders stay as tombstones until pruned.
func (r *Runner) finish(ctx context.Context, o domain.CloseOrder, to domain.AutomationState, reason string, now time.Time) (domain.Transition, bool) {
	from := o.State
	switch to {
	case domain.StateExecuted, domain.StateCancelled:
		if err := r.orders.PurgeOrder(ctx, o.ID); err != nil {
			slog.Error("closeout: purge terminal order", "order", o.ID, "err", err)
			return domain.Transition{}, false
		}
	case domain.StateFailed:
		o.State = domain.StateFailed
		o.LastFailure = reason
		o.UpdatedAt = now
		if err := r.orders.UpdateOrder(ctx, o); err != nil {
			slog.Error("closeout: persist failed order", "order", o.ID, "err", err)
			return domain.Transition{}, false
		}
	}
	return transitionOf(o, from, to, reason, now), true
}

// RecoverStale reconciles orders persisted as executing/retrying against chain
// truth. Called once at startup before the first cycle.
func (r *Runner) RecoverStale(ctx context.Context) error {
	open, err := r.orders.ListOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("closeout.RecoverStale: %w", err)
	}
	now := r.now().UTC()
	for _, o := range open {
		if o.State != domain.StateExecuting {
			continue
		}
		status, err := r.chain.Status(ctx, o.IdentityHash)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Warn("closeout: recovery deferred, chain unavailable", "order", o.ID, "err", err)
			}
			continue
		}
		switch status {
		case domain.ChainStatusExecuted:
			r.finish(ctx, o, domain.StateExecuted, "recovered: executed on chain", now)
		case domain.ChainStatusCancelled, domain.ChainStatusNone:
			r.finish(ctx, o, domain.StateCancelled, "recovered: gone on chain", now)
		default:
			// Still active: drop back to monitoring, the next cycle re-decides.
			o.State = domain.StateMonitoring
			o.UpdatedAt = now
			if err := r.orders.UpdateOrder(ctx, o); err != nil {
				slog.Error("closeout: recovery update", "order", o.ID, "err", err)
			}
		}
	}
	return nil
}

func transitionOf(o domain.CloseOrder, from, to domain.AutomationState, reason string, at time.Time) domain.Transition {
	return domain.Transition{
		OrderID:    o.ID,
		PositionID: o.PositionID,
		OrderType:  o.OrderType,
		From:       from,
		To:         to,
		Reason:     reason,
		Attempt:    o.Attempts,
		At:         at,
	}
}
