package ledger_test

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ledger"
	"github.com/alejandrodnm/lpkeeper/internal/univ3"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// ledgerConfig values everything in token0 units (base is token1), so an event
// with amount1 = 0 has a quote value of exactly amount0. That keeps the
// worked examples integer-exact.
func ledgerConfig() domain.PositionConfig {
	return domain.PositionConfig{
		PositionID:   "pos-1",
		Protocol:     domain.ProtocolUniswapV3,
		ChainID:      1,
		PoolAddress:  "0xpool",
		Token0:       domain.Erc20{ChainID: 1, Address: "0xaaaa", Dec: 6, Ticker: "USDC"},
		Token1:       domain.Erc20{ChainID: 1, Address: "0xbbbb", Dec: 18, Ticker: "WETH"},
		BaseIsToken0: false,
		TickLower:    -600,
		TickUpper:    600,
		OwnerID:      "owner-1",
	}
}

func rawEvent(typ domain.LedgerEventType, block uint64, amount0, liquidity int64) domain.RawEvent {
	ev := domain.RawEvent{
		PositionID:   "pos-1",
		Type:         typ,
		BlockNumber:  block,
		TxHash:       fmt.Sprintf("0xtx%d", block),
		Timestamp:    baseTime.Add(time.Duration(block) * time.Hour),
		Amount0:      big.NewInt(amount0),
		Amount1:      big.NewInt(0),
		SqrtPriceX96: new(big.Int).Set(univ3.Q96),
	}
	if typ != domain.EventCollect {
		ev.Liquidity = big.NewInt(liquidity)
	}
	return ev
}

func TestReplay_WeightedAverageAccounting(t *testing.T) {
	cfg := ledgerConfig()
	raw := []domain.RawEvent{
		rawEvent(domain.EventIncrease, 1, 1000, 1000),
		rawEvent(domain.EventDecrease, 2, 600, 500), // withdraw half, worth 600
		rawEvent(domain.EventCollect, 3, 50, 0),
	}

	events, err := ledger.Replay(cfg, raw)
	require.NoError(t, err)
	require.Len(t, events, 3)

	inc := events[0]
	assert.Equal(t, "1000", inc.DeltaCostBasis.String())
	assert.Zero(t, inc.DeltaPnl.Sign(), "deposits never realize pnl")
	assert.Equal(t, "1000", inc.CostBasisAfter.String())

	// Half the liquidity releases half the basis (500); the 600 received
	// against it realizes +100.
	dec := events[1]
	assert.Equal(t, "-500", dec.DeltaCostBasis.String())
	assert.Equal(t, "100", dec.DeltaPnl.String())
	assert.Equal(t, "500", dec.CostBasisAfter.String())
	assert.Equal(t, "100", dec.PnlAfter.String())

	col := events[2]
	assert.Zero(t, col.DeltaCostBasis.Sign(), "collects leave basis untouched")
	assert.Equal(t, "50", col.DeltaPnl.String())
	assert.Equal(t, "500", col.CostBasisAfter.String())
	assert.Equal(t, "150", col.PnlAfter.String())

	costBasis, realized, collected := ledger.Totals(events)
	assert.Equal(t, "500", costBasis.String())
	assert.Equal(t, "150", realized.String())
	assert.Equal(t, "50", collected.String())
}

func TestReplay_OrderIndependentAndDeduped(t *testing.T) {
	cfg := ledgerConfig()
	ordered := []domain.RawEvent{
		rawEvent(domain.EventIncrease, 1, 1000, 1000),
		rawEvent(domain.EventDecrease, 2, 600, 500),
		rawEvent(domain.EventCollect, 3, 50, 0),
	}
	shuffled := []domain.RawEvent{ordered[2], ordered[0], ordered[1], ordered[0]} // plus a redelivery

	want, err := ledger.Replay(cfg, ordered)
	require.NoError(t, err)
	got, err := ledger.Replay(cfg, shuffled)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Key(), got[i].Key())
		assert.Zero(t, want[i].CostBasisAfter.Cmp(got[i].CostBasisAfter), "row %d basis", i)
		assert.Zero(t, want[i].PnlAfter.Cmp(got[i].PnlAfter), "row %d pnl", i)
	}
}

func TestReplay_RejectsOverdraw(t *testing.T) {
	cfg := ledgerConfig()
	raw := []domain.RawEvent{
		rawEvent(domain.EventIncrease, 1, 1000, 1000),
		rawEvent(domain.EventDecrease, 2, 600, 1500), // more than deposited
	}
	_, err := ledger.Replay(cfg, raw)
	require.ErrorIs(t, err, domain.ErrDataCorrupt)
}

func TestReplay_RejectsDecreaseBeforeIncrease(t *testing.T) {
	cfg := ledgerConfig()
	_, err := ledger.Replay(cfg, []domain.RawEvent{rawEvent(domain.EventDecrease, 1, 600, 500)})
	require.ErrorIs(t, err, domain.ErrDataCorrupt)
}

func TestReplay_RejectsMissingPrice(t *testing.T) {
	cfg := ledgerConfig()
	ev := rawEvent(domain.EventIncrease, 1, 1000, 1000)
	ev.SqrtPriceX96 = nil
	_, err := ledger.Replay(cfg, []domain.RawEvent{ev})
	require.ErrorIs(t, err, domain.ErrDataCorrupt)
}

func TestReplay_Empty(t *testing.T) {
	events, err := ledger.Replay(ledgerConfig(), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}
