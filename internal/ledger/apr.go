package ledger

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

const hoursPerYear = 365 * 24

// BuildPeriods derives the APR windows from an accounted ledger. Consecutive
// event timestamps bound the windows, with the final window closed at `until`
// (the rebuild instant), so the set partitions [firstEvent, until] with no
// gaps or overlaps. Each window carries the cost basis that was in force
// through it and the COLLECT income realized at its closing boundary; income
// realized at the very first boundary stays in the first window.
func BuildPeriods(positionID string, events []domain.LedgerEvent, until time.Time) []domain.AprPeriod {
	if len(events) == 0 {
		return nil
	}

	// Group events by timestamp: same-block events form one boundary, which
	// keeps every period's duration strictly positive.
	type boundary struct {
		at    time.Time
		basis *big.Int // costBasisAfter of the last event at this instant
		yield *big.Int // COLLECT deltaPnl landing at this instant
	}
	var bounds []boundary
	for _, ev := range events {
		y := new(big.Int)
		if ev.Type == domain.EventCollect {
			y.Set(ev.DeltaPnl)
		}
		if n := len(bounds); n > 0 && bounds[n-1].at.Equal(ev.Timestamp) {
			bounds[n-1].basis = ev.CostBasisAfter
			bounds[n-1].yield.Add(bounds[n-1].yield, y)
			continue
		}
		bounds = append(bounds, boundary{at: ev.Timestamp, basis: ev.CostBasisAfter, yield: y})
	}

	var periods []domain.AprPeriod
	for i, b := range bounds {
		end := until
		yield := new(big.Int)
		if i == 0 {
			// Income realized at the opening boundary has no earlier window
			// to close, so it stays in the first one.
			yield.Set(b.yield)
		}
		if i+1 < len(bounds) {
			end = bounds[i+1].at
			yield.Add(yield, bounds[i+1].yield)
		}
		if !end.After(b.at) {
			continue
		}
		periods = append(periods, domain.AprPeriod{
			PositionID:        positionID,
			StartAt:           b.at,
			EndAt:             end,
			WeightedCostBasis: new(big.Int).Set(b.basis),
			YieldAccrued:      yield,
		})
	}
	return periods
}

// AnnualizedAPR annualizes yield/weightedCostBasis over the window length and
// returns a display percentage. Decimal here is presentation only; no
// accounting value ever flows back from it.
func AnnualizedAPR(yield, weightedCostBasis *big.Int, window time.Duration) decimal.Decimal {
	if weightedCostBasis == nil || weightedCostBasis.Sign() <= 0 || window <= 0 {
		return decimal.Zero
	}
	rate := decimal.NewFromBigInt(yield, 0).
		DivRound(decimal.NewFromBigInt(weightedCostBasis, 0), 12)
	scale := decimal.NewFromInt(hoursPerYear).
		DivRound(decimal.NewFromFloat(window.Hours()), 12)
	return rate.Mul(scale).Mul(decimal.NewFromInt(100))
}

// LifetimeAPR aggregates all periods into one annualized figure, weighting
// each window's basis by its duration.
func LifetimeAPR(periods []domain.AprPeriod) decimal.Decimal {
	if len(periods) == 0 {
		return decimal.Zero
	}
	totalYield := new(big.Int)
	weighted := new(big.Int) // sum of basis*seconds
	var seconds int64
	for _, p := range periods {
		s := int64(p.Duration() / time.Second)
		if s <= 0 {
			continue
		}
		totalYield.Add(totalYield, p.YieldAccrued)
		weighted.Add(weighted, new(big.Int).Mul(p.WeightedCostBasis, big.NewInt(s)))
		seconds += s
	}
	if seconds == 0 || weighted.Sign() <= 0 {
		return decimal.Zero
	}
	avgBasis := new(big.Int).Div(weighted, big.NewInt(seconds))
	return AnnualizedAPR(totalYield, avgBasis, time.Duration(seconds)*time.Second)
}
