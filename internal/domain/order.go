package domain

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// OrderType is the close-order slot: stop loss or take profit. At most one
// ACTIVE order may exist per (positionID, orderType).
type OrderType string

const (
	OrderStopLoss   OrderType = "SL"
	OrderTakeProfit OrderType = "TP"
)

// TriggerMode selects the crossing direction that fires the order.
type TriggerMode string

const (
	// TriggerLower fires when the live tick moves at or below the trigger.
	TriggerLower TriggerMode = "LOWER"
	// TriggerUpper fires when the live tick moves at or above the trigger.
	TriggerUpper TriggerMode = "UPPER"
)

// AutomationState is the off-chain lifecycle of an order while its on-chain
// status is ACTIVE. Executed and cancelled orders are purged from live
// storage; failed ones remain as tombstones until pruned.
type AutomationState string

const (
	StateMonitoring AutomationState = "monitoring"
	StateExecuting  AutomationState = "executing"
	StateRetrying   AutomationState = "retrying"
	StateExecuted   AutomationState = "executed"
	StateCancelled  AutomationState = "cancelled"
	StateFailed     AutomationState = "failed"
)

// Terminal reports whether the state ends the order's lifecycle.
func (s AutomationState) Terminal() bool {
	return s == StateExecuted || s == StateCancelled || s == StateFailed
}

// OnChainOrderStatus mirrors the order registry contract; it is observed,
// never decided locally.
type OnChainOrderStatus string

const (
	ChainStatusNone      OnChainOrderStatus = "NONE"
	ChainStatusActive    OnChainOrderStatus = "ACTIVE"
	ChainStatusExecuted  OnChainOrderStatus = "EXECUTED"
	ChainStatusCancelled OnChainOrderStatus = "CANCELLED"
)

// SwapIntent optionally asks the executor to swap the withdrawn legs into a
// single currency after closing. It must pass the compliance gate against the
// signed strategy intent before any signing is attempted.
type SwapIntent struct {
	TargetCurrency string // canonical currency ID the proceeds swap into
	MaxSlippageBps uint32
}

// CloseOrder is a user-registered automatic close of a position at a trigger
// tick.
type CloseOrder struct {
	ID         string // ULID, sortable by creation time
	PositionID string
	OrderType  OrderType

	// IdentityHash commits to the immutable order parameters; it feeds the
	// per-attempt idempotency key.
	IdentityHash string

	TriggerTick int32
	Mode        TriggerMode
	SwapIntent  *SwapIntent

	State       AutomationState
	ChainStatus OnChainOrderStatus

	Attempts        int
	NextAttemptAt   time.Time
	LastFailure     string
	CancelRequested bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCloseOrder builds an order in monitoring state with a fresh ULID and a
// deterministic identity hash.
func NewCloseOrder(positionID string, orderType OrderType, triggerTick int32, mode TriggerMode, swap *SwapIntent, now time.Time) CloseOrder {
	o := CloseOrder{
		ID:          ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		PositionID:  positionID,
		OrderType:   orderType,
		TriggerTick: triggerTick,
		Mode:        mode,
		SwapIntent:  swap,
		State:       StateMonitoring,
		ChainStatus: ChainStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.IdentityHash = orderIdentity(o)
	return o
}

// orderNamespace scopes idempotency keys to the close-order executor.
var orderNamespace = uuid.MustParse("8a9e7c52-1f6b-4f3e-9d4a-2b8c5e0f71d3")

func orderIdentity(o CloseOrder) string {
	seed := fmt.Sprintf("%s|%s|%d|%s", o.PositionID, o.OrderType, o.TriggerTick, o.Mode)
	return uuid.NewSHA1(orderNamespace, []byte(seed)).String()
}

// IdempotencyKey derives the stable key for one execution attempt. A retried
// broadcast of the same attempt reuses the same key, so the signer side can
// never double-execute it.
func (o CloseOrder) IdempotencyKey(attempt int) string {
	seed := fmt.Sprintf("%s|attempt:%d", o.IdentityHash, attempt)
	return uuid.NewSHA1(orderNamespace, []byte(seed)).String()
}

// Triggered reports whether the live tick crosses the order's trigger.
func (o CloseOrder) Triggered(tick int32) bool {
	switch o.Mode {
	case TriggerLower:
		return tick <= o.TriggerTick
	case TriggerUpper:
		return tick >= o.TriggerTick
	}
	return false
}

// Transition is an applied state change, returned by the evaluator for
// observability.
type Transition struct {
	OrderID    string
	PositionID string
	OrderType  OrderType
	From       AutomationState
	To         AutomationState
	Reason     string
	Attempt    int
	At         time.Time
}
