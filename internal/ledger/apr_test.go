package ledger_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ledger"
)

func replayed(t *testing.T, raw []domain.RawEvent) []domain.LedgerEvent {
	t.Helper()
	events, err := ledger.Replay(ledgerConfig(), raw)
	require.NoError(t, err)
	return events
}

func TestBuildPeriods_PartitionsLifetime(t *testing.T) {
	events := replayed(t, []domain.RawEvent{
		rawEvent(domain.EventIncrease, 1, 1000, 1000),
		rawEvent(domain.EventCollect, 2, 50, 0),
		rawEvent(domain.EventDecrease, 3, 600, 500),
	})
	until := baseTime.Add(10 * time.Hour)

	periods := ledger.BuildPeriods("pos-1", events, until)
	require.Len(t, periods, 3)

	// Consecutive windows chain exactly: no gaps, no overlaps.
	assert.Equal(t, events[0].Timestamp, periods[0].StartAt)
	for i := 1; i < len(periods); i++ {
		assert.Equal(t, periods[i-1].EndAt, periods[i].StartAt, "window %d must start where %d ends", i, i-1)
	}
	assert.Equal(t, until, periods[len(periods)-1].EndAt)

	// The collect's income lands in the window that ends at its boundary.
	assert.Equal(t, "50", periods[0].YieldAccrued.String())
	assert.Equal(t, "1000", periods[0].WeightedCostBasis.String())
	assert.Zero(t, periods[1].YieldAccrued.Sign())
	assert.Equal(t, "1000", periods[1].WeightedCostBasis.String())
	assert.Equal(t, "500", periods[2].WeightedCostBasis.String(), "final window carries the post-decrease basis")
}

func TestBuildPeriods_SameTimestampEventsShareBoundary(t *testing.T) {
	inc := rawEvent(domain.EventIncrease, 1, 1000, 1000)
	col := rawEvent(domain.EventCollect, 1, 50, 0)
	col.LogIndex = 1
	col.Timestamp = inc.Timestamp // same block, same instant

	events := replayed(t, []domain.RawEvent{inc, col})
	periods := ledger.BuildPeriods("pos-1", events, baseTime.Add(5*time.Hour))

	require.Len(t, periods, 1, "one boundary, one window")
	assert.True(t, periods[0].Duration() > 0)
}

func TestBuildPeriods_CollectAtFirstBoundaryCounts(t *testing.T) {
	inc := rawEvent(domain.EventIncrease, 1, 1000, 1000)
	col := rawEvent(domain.EventCollect, 1, 50, 0)
	col.LogIndex = 1
	col.Timestamp = inc.Timestamp

	events := replayed(t, []domain.RawEvent{inc, col})
	periods := ledger.BuildPeriods("pos-1", events, baseTime.Add(5*time.Hour))

	require.Len(t, periods, 1)
	assert.Equal(t, "50", periods[0].YieldAccrued.String(),
		"income at the opening boundary belongs to the first window")
}

func TestBuildPeriods_Empty(t *testing.T) {
	assert.Nil(t, ledger.BuildPeriods("pos-1", nil, time.Now()))
}

func TestAnnualizedAPR(t *testing.T) {
	year := 365 * 24 * time.Hour

	// 100 yield on 10_000 basis over a full year = 1%.
	apr := ledger.AnnualizedAPR(big.NewInt(100), big.NewInt(10_000), year)
	assert.Equal(t, "1", apr.Round(6).String())

	// Same yield over half a year annualizes to 2%.
	apr = ledger.AnnualizedAPR(big.NewInt(100), big.NewInt(10_000), year/2)
	assert.Equal(t, "2", apr.Round(6).String())

	assert.True(t, ledger.AnnualizedAPR(big.NewInt(100), big.NewInt(0), year).IsZero())
	assert.True(t, ledger.AnnualizedAPR(big.NewInt(100), big.NewInt(10_000), 0).IsZero())
}

func TestLifetimeAPR_WeightsByDuration(t *testing.T) {
	year := 365 * 24 * time.Hour
	start := baseTime

	periods := []domain.AprPeriod{
		{
			PositionID:        "pos-1",
			StartAt:           start,
			EndAt:             start.Add(year),
			WeightedCostBasis: big.NewInt(10_000),
			YieldAccrued:      big.NewInt(100),
		},
	}
	assert.Equal(t, "1", ledger.LifetimeAPR(periods).Round(6).String())

	assert.True(t, ledger.LifetimeAPR(nil).IsZero())
}
