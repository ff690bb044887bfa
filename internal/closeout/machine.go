// Package closeout drives registered close orders through their lifecycle:
// monitoring -> executing -> executed | retrying -> executing | failed, with
// cancellation winning over any non-terminal state. Decisions are made from
// current on-chain truth every cycle, never from trusted local state alone.
package closeout

import (
	"time"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

// Config bounds the execution cycle. The retry ceiling is mandatory: an order
// that fails MaxAttempts times is failed terminally and needs manual
// re-registration.
type Config struct {
	MaxAttempts     int           // retry ceiling
	RetryBackoff    time.Duration // fixed delay between attempts
	ExecTimeout     time.Duration // deadline per signer attempt
	FailedRetention time.Duration // failed tombstones pruned after this
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		RetryBackoff:    30 * time.Second,
		ExecTimeout:     20 * time.Second,
		FailedRetention: 7 * 24 * time.Hour,
	}
}

// action is what the evaluator decided to do with an order this cycle.
type action int

const (
	actionNone action = iota
	actionExecute
	actionDemote // stale executing whose trigger no longer holds
	actionCancel
)

// decide maps one order plus the live tick onto this cycle's action. Pure;
// chain reconciliation and cancel flags are handled before it runs.
func decide(o domain.CloseOrder, tick int32, now time.Time) action {
	switch o.State {
	case domain.StateMonitoring:
		if o.Triggered(tick) {
			return actionExecute
		}
	case domain.StateRetrying:
		if !now.Before(o.NextAttemptAt) {
			return actionExecute
		}
	case domain.StateExecuting:
		// Crash recovery: a persisted "executing" with no outcome is re-run
		// only if the trigger still holds against the current tick.
		if o.Triggered(tick) {
			return actionExecute
		}
		return actionDemote
	}
	return actionNone
}

// nextOnFailure applies the retry ceiling: the attempt that reaches
// MaxAttempts is the last one.
func nextOnFailure(attempts, maxAttempts int) domain.AutomationState {
	if attempts >= maxAttempts {
		return domain.StateFailed
	}
	return domain.StateRetrying
}
