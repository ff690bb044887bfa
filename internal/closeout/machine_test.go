package closeout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

func TestDecide(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sl := domain.CloseOrder{
		State:       domain.StateMonitoring,
		TriggerTick: 200000,
		Mode:        domain.TriggerLower,
	}

	t.Run("monitoring fires at or below a LOWER trigger", func(t *testing.T) {
		assert.Equal(t, actionExecute, decide(sl, 199999, now))
		assert.Equal(t, actionExecute, decide(sl, 200000, now))
		assert.Equal(t, actionNone, decide(sl, 200001, now))
	})

	t.Run("monitoring fires at or above an UPPER trigger", func(t *testing.T) {
		tp := sl
		tp.Mode = domain.TriggerUpper
		assert.Equal(t, actionExecute, decide(tp, 200001, now))
		assert.Equal(t, actionExecute, decide(tp, 200000, now))
		assert.Equal(t, actionNone, decide(tp, 199999, now))
	})

	t.Run("retrying waits for the backoff", func(t *testing.T) {
		o := sl
		o.State = domain.StateRetrying
		o.NextAttemptAt = now.Add(time.Minute)
		assert.Equal(t, actionNone, decide(o, 199000, now))
		assert.Equal(t, actionExecute, decide(o, 199000, now.Add(time.Minute)))
	})

	t.Run("stale executing re-runs only while the trigger holds", func(t *testing.T) {
		o := sl
		o.State = domain.StateExecuting
		assert.Equal(t, actionExecute, decide(o, 199000, now))
		assert.Equal(t, actionDemote, decide(o, 201000, now))
	})
}

func TestNextOnFailure(t *testing.T) {
	assert.Equal(t, domain.StateRetrying, nextOnFailure(1, 5))
	assert.Equal(t, domain.StateRetrying, nextOnFailure(4, 5))
	assert.Equal(t, domain.StateFailed, nextOnFailure(5, 5))
	assert.Equal(t, domain.StateFailed, nextOnFailure(6, 5))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.RetryBackoff)
	assert.Equal(t, 7*24*time.Hour, cfg.FailedRetention)
}
