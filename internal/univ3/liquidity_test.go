package univ3_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/univ3"
)

func TestLiquidityFromAmounts_Regions(t *testing.T) {
	const lower, upper = -600, 600
	amount0 := big.NewInt(1_000_000_000_000_000_000)
	amount1 := big.NewInt(1_000_000_000_000_000_000)

	below, err := univ3.TickToSqrtPrice(-1200)
	require.NoError(t, err)
	mid, err := univ3.TickToSqrtPrice(0)
	require.NoError(t, err)
	above, err := univ3.TickToSqrtPrice(1200)
	require.NoError(t, err)

	// Below the range only token0 matters: zeroing token1 changes nothing.
	lBelow, err := univ3.LiquidityFromAmounts(below, lower, upper, amount0, amount1)
	require.NoError(t, err)
	lBelow0, err := univ3.LiquidityFromAmounts(below, lower, upper, amount0, big.NewInt(0))
	require.NoError(t, err)
	assert.Zero(t, lBelow.Cmp(lBelow0))
	assert.Positive(t, lBelow.Sign())

	// Above the range only token1 matters.
	lAbove, err := univ3.LiquidityFromAmounts(above, lower, upper, amount0, amount1)
	require.NoError(t, err)
	lAbove1, err := univ3.LiquidityFromAmounts(above, lower, upper, big.NewInt(0), amount1)
	require.NoError(t, err)
	assert.Zero(t, lAbove.Cmp(lAbove1))
	assert.Positive(t, lAbove.Sign())

	// In range the binding side wins: starving either leg lowers the result.
	lMid, err := univ3.LiquidityFromAmounts(mid, lower, upper, amount0, amount1)
	require.NoError(t, err)
	lStarved, err := univ3.LiquidityFromAmounts(mid, lower, upper, amount0, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, lStarved.Cmp(lMid) < 0)
}

func TestAmountsFromLiquidity_RoundTripNeverExceeds(t *testing.T) {
	const lower, upper = 199120, 201120
	amount0 := big.NewInt(3_000_000_000)
	amount1 := big.NewInt(2_000_000_000_000_000_000)

	for _, tick := range []int32{198000, 199120, 200120, 201119, 202000} {
		sqrtP, err := univ3.TickToSqrtPrice(tick)
		require.NoError(t, err)

		l, err := univ3.LiquidityFromAmounts(sqrtP, lower, upper, amount0, amount1)
		require.NoError(t, err)

		got0, got1, err := univ3.AmountsFromLiquidity(l, sqrtP, lower, upper)
		require.NoError(t, err)
		assert.True(t, got0.Cmp(amount0) <= 0, "tick %d: amount0 %s exceeds deposit", tick, got0)
		assert.True(t, got1.Cmp(amount1) <= 0, "tick %d: amount1 %s exceeds deposit", tick, got1)
	}
}

func TestAmountsFromLiquidity_Regions(t *testing.T) {
	const lower, upper = -600, 600
	liquidity := big.NewInt(1_000_000_000_000)

	below, _ := univ3.TickToSqrtPrice(-1200)
	a0, a1, err := univ3.AmountsFromLiquidity(liquidity, below, lower, upper)
	require.NoError(t, err)
	assert.Positive(t, a0.Sign(), "below range the position is all token0")
	assert.Zero(t, a1.Sign())

	above, _ := univ3.TickToSqrtPrice(1200)
	a0, a1, err = univ3.AmountsFromLiquidity(liquidity, above, lower, upper)
	require.NoError(t, err)
	assert.Zero(t, a0.Sign(), "above range the position is all token1")
	assert.Positive(t, a1.Sign())

	mid, _ := univ3.TickToSqrtPrice(0)
	a0, a1, err = univ3.AmountsFromLiquidity(liquidity, mid, lower, upper)
	require.NoError(t, err)
	assert.Positive(t, a0.Sign())
	assert.Positive(t, a1.Sign())
}

func TestLiquidityMath_BadInputs(t *testing.T) {
	sqrtP, _ := univ3.TickToSqrtPrice(0)

	var re *domain.RangeError
	_, err := univ3.LiquidityFromAmounts(sqrtP, 600, -600, big.NewInt(1), big.NewInt(1))
	require.ErrorAs(t, err, &re)

	_, err = univ3.LiquidityFromAmounts(nil, -600, 600, big.NewInt(1), big.NewInt(1))
	require.ErrorAs(t, err, &re)

	_, _, err = univ3.AmountsFromLiquidity(big.NewInt(-1), sqrtP, -600, 600)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "liquidity", re.What)
}
