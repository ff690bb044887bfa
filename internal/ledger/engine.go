// Package ledger replays ordered on-chain position events into cost basis,
// realized PnL and APR periods, and owns the rebuild lifecycle.
//
// Accounting rules:
//   - INCREASE adds the quote-token value of the deposited legs to cost basis.
//   - DECREASE uses the weighted-average method: the withdrawn fraction of
//     liquidity releases the same fraction of cost basis, and the difference
//     between the withdrawal's market value and the released basis is realized
//     PnL.
//   - COLLECT leaves basis untouched and realizes the full quote value of the
//     collected amounts as income.
package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/univ3"
)

// Replay accounts the raw events of one position from genesis. Input order
// does not matter: events are sorted into canonical chain order and deduped by
// (block, txIndex, logIndex) before processing. The same input always yields
// the same output.
func Replay(cfg domain.PositionConfig, raw []domain.RawEvent) ([]domain.LedgerEvent, error) {
	events := normalize(raw)

	costBasis := new(big.Int)
	pnl := new(big.Int)
	liquidity := new(big.Int)

	out := make([]domain.LedgerEvent, 0, len(events))
	for _, ev := range events {
		acct, err := account(cfg, ev, costBasis, liquidity)
		if err != nil {
			return nil, err
		}

		costBasis.Add(costBasis, acct.DeltaCostBasis)
		pnl.Add(pnl, acct.DeltaPnl)
		acct.CostBasisAfter = new(big.Int).Set(costBasis)
		acct.PnlAfter = new(big.Int).Set(pnl)

		switch ev.Type {
		case domain.EventIncrease:
			liquidity.Add(liquidity, ev.Liquidity)
		case domain.EventDecrease:
			liquidity.Sub(liquidity, ev.Liquidity)
		}

		out = append(out, acct)
	}
	return out, nil
}

// account computes the deltas for a single event against the running state.
func account(cfg domain.PositionConfig, ev domain.RawEvent, costBasis, liquidity *big.Int) (domain.LedgerEvent, error) {
	if ev.SqrtPriceX96 == nil || ev.SqrtPriceX96.Sign() <= 0 {
		return domain.LedgerEvent{}, fmt.Errorf("ledger.Replay: %s event at block %d has no price: %w",
			ev.Type, ev.BlockNumber, domain.ErrDataCorrupt)
	}

	value := univ3.QuoteValue(ev.Amount0, ev.Amount1, ev.SqrtPriceX96, cfg.BaseIsToken0)
	acct := domain.LedgerEvent{RawEvent: ev}

	switch ev.Type {
	case domain.EventIncrease:
		acct.DeltaCostBasis = value
		acct.DeltaPnl = new(big.Int)

	case domain.EventDecrease:
		if liquidity.Sign() <= 0 {
			return domain.LedgerEvent{}, fmt.Errorf("ledger.Replay: DECREASE at block %d with no recorded liquidity: %w",
				ev.BlockNumber, domain.ErrDataCorrupt)
		}
		if ev.Liquidity == nil || ev.Liquidity.Sign() <= 0 || ev.Liquidity.Cmp(liquidity) > 0 {
			return domain.LedgerEvent{}, fmt.Errorf("ledger.Replay: DECREASE at block %d withdraws %s of %s liquidity: %w",
				ev.BlockNumber, bigStr(ev.Liquidity), liquidity, domain.ErrDataCorrupt)
		}
		// Weighted average: the withdrawn fraction of liquidity releases the
		// same fraction of cost basis. Floor division keeps replays bit-stable.
		released := new(big.Int).Mul(costBasis, ev.Liquidity)
		released.Div(released, liquidity)
		acct.DeltaCostBasis = new(big.Int).Neg(released)
		acct.DeltaPnl = new(big.Int).Sub(value, released)

	case domain.EventCollect:
		acct.DeltaCostBasis = new(big.Int)
		acct.DeltaPnl = value

	default:
		return domain.LedgerEvent{}, fmt.Errorf("ledger.Replay: unknown event type %q: %w",
			ev.Type, domain.ErrDataCorrupt)
	}
	return acct, nil
}

// Totals sums the deltas of an accounted ledger. By construction they equal
// the final running values; callers use this to assert the invariant after a
// rebuild.
func Totals(events []domain.LedgerEvent) (costBasis, realizedPnl, collectedFees *big.Int) {
	costBasis = new(big.Int)
	realizedPnl = new(big.Int)
	collectedFees = new(big.Int)
	for _, ev := range events {
		costBasis.Add(costBasis, ev.DeltaCostBasis)
		realizedPnl.Add(realizedPnl, ev.DeltaPnl)
		if ev.Type == domain.EventCollect {
			collectedFees.Add(collectedFees, ev.DeltaPnl)
		}
	}
	return costBasis, realizedPnl, collectedFees
}

// normalize sorts into ascending chain order and drops duplicate keys,
// keeping the first occurrence.
func normalize(raw []domain.RawEvent) []domain.RawEvent {
	events := make([]domain.RawEvent, len(raw))
	copy(events, raw)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })

	seen := make(map[domain.EventKey]bool, len(events))
	out := events[:0]
	for _, ev := range events {
		if seen[ev.Key()] {
			continue
		}
		seen[ev.Key()] = true
		out = append(out, ev)
	}
	return out
}

func bigStr(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
