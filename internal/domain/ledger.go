package domain

import (
	"math/big"
	"time"
)

// LedgerEventType classifies the three on-chain events that move a position's
// accounting state.
type LedgerEventType string

const (
	EventIncrease LedgerEventType = "INCREASE" // liquidity added
	EventDecrease LedgerEventType = "DECREASE" // liquidity withdrawn
	EventCollect  LedgerEventType = "COLLECT"  // fees (and owed tokens) claimed
)

// RawEvent is an on-chain position event as delivered by the upstream source,
// before accounting. Amounts are raw token units; SqrtPriceX96 is the pool
// price at the event's block.
type RawEvent struct {
	PositionID   string
	Type         LedgerEventType
	BlockNumber  uint64
	TxIndex      uint32
	LogIndex     uint32
	TxHash       string
	Timestamp    time.Time
	Amount0      *big.Int
	Amount1      *big.Int
	Liquidity    *big.Int // liquidity delta for INCREASE/DECREASE, nil for COLLECT
	SqrtPriceX96 *big.Int // pool price at the event block
}

// LedgerEvent is one accounted row of a position's ledger. Rows are append-only;
// the only mutation the system ever performs is a full rebuild that atomically
// replaces the whole sequence.
type LedgerEvent struct {
	RawEvent

	// DeltaCostBasis is the signed change to cost basis in quote units:
	// positive on INCREASE, negative on DECREASE, zero on COLLECT.
	DeltaCostBasis *big.Int
	CostBasisAfter *big.Int

	// DeltaPnl is the realized profit/loss this event locked in, in quote units.
	DeltaPnl *big.Int
	PnlAfter *big.Int
}

// Before reports whether e is strictly older than other in the canonical
// (blockNumber, txIndex, logIndex) chain order.
func (e RawEvent) Before(other RawEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	if e.TxIndex != other.TxIndex {
		return e.TxIndex < other.TxIndex
	}
	return e.LogIndex < other.LogIndex
}

// Key returns the unique persistence key of the event within its position.
type EventKey struct {
	BlockNumber uint64
	TxIndex     uint32
	LogIndex    uint32
}

func (e RawEvent) Key() EventKey {
	return EventKey{BlockNumber: e.BlockNumber, TxIndex: e.TxIndex, LogIndex: e.LogIndex}
}

// AprPeriod is one contiguous window of a position's lifetime. The full set of
// periods for a position partitions [firstEvent, rebuildTime] with no gaps or
// overlaps.
type AprPeriod struct {
	PositionID string
	StartAt    time.Time
	EndAt      time.Time

	// WeightedCostBasis is the time-weighted average of costBasisAfter over
	// the window, in quote units. Between two consecutive events the basis is
	// constant, so this equals the basis set by the event opening the window.
	WeightedCostBasis *big.Int

	// YieldAccrued is the sum of COLLECT deltaPnl landing in the window.
	YieldAccrued *big.Int
}

// Duration returns the window length.
func (p AprPeriod) Duration() time.Duration {
	return p.EndAt.Sub(p.StartAt)
}

// LedgerSummary is the outcome of a full replay, returned by rebuilds.
type LedgerSummary struct {
	PositionID       string
	Events           []LedgerEvent
	Periods          []AprPeriod
	CurrentCostBasis *big.Int
	RealizedPnl      *big.Int
	CollectedFees    *big.Int
	RebuiltAt        time.Time
}
