package univ3_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/univ3"
)

// sqrtP = 2*2^96 encodes a raw token1/token0 price of 4.
func doubleQ96() *big.Int {
	return new(big.Int).Lsh(big.NewInt(2), 96)
}

func TestTokenValueConversions(t *testing.T) {
	sqrtP := doubleQ96()

	assert.Equal(t, int64(400), univ3.Token0ValueInToken1(big.NewInt(100), sqrtP).Int64())
	assert.Equal(t, int64(100), univ3.Token1ValueInToken0(big.NewInt(400), sqrtP).Int64())

	assert.Zero(t, univ3.Token0ValueInToken1(nil, sqrtP).Sign())
	assert.Zero(t, univ3.Token1ValueInToken0(big.NewInt(0), sqrtP).Sign())
}

func TestQuoteValue_Orientation(t *testing.T) {
	sqrtP := doubleQ96()
	amount0 := big.NewInt(100)
	amount1 := big.NewInt(40)

	// Base is token0: quote in token1 units. 100*4 + 40 = 440.
	assert.Equal(t, int64(440), univ3.QuoteValue(amount0, amount1, sqrtP, true).Int64())

	// Base is token1: quote in token0 units. 40/4 + 100 = 110.
	assert.Equal(t, int64(110), univ3.QuoteValue(amount0, amount1, sqrtP, false).Int64())
}

func TestPositionValue_MatchesAmounts(t *testing.T) {
	const lower, upper = -600, 600
	liquidity := big.NewInt(1_000_000_000_000)
	sqrtP, err := univ3.TickToSqrtPrice(0)
	require.NoError(t, err)

	a0, a1, err := univ3.AmountsFromLiquidity(liquidity, sqrtP, lower, upper)
	require.NoError(t, err)
	want := univ3.QuoteValue(a0, a1, sqrtP, true)

	got, err := univ3.PositionValue(liquidity, sqrtP, lower, upper, true)
	require.NoError(t, err)
	assert.Zero(t, got.Cmp(want))
}

func TestExpectedSwapOutput(t *testing.T) {
	sqrtP := doubleQ96()

	// 0.30% fee tier: 1_000_000 in, 997_000 after fee, *4 out.
	out, err := univ3.ExpectedSwapOutput(big.NewInt(1_000_000), sqrtP, 3000, univ3.ZeroForOne)
	require.NoError(t, err)
	assert.Equal(t, int64(3_988_000), out.Int64())

	out, err = univ3.ExpectedSwapOutput(big.NewInt(1_000_000), sqrtP, 3000, univ3.OneForZero)
	require.NoError(t, err)
	assert.Equal(t, int64(249_250), out.Int64())

	var re *domain.RangeError
	_, err = univ3.ExpectedSwapOutput(big.NewInt(-1), sqrtP, 3000, univ3.ZeroForOne)
	require.ErrorAs(t, err, &re)

	_, err = univ3.ExpectedSwapOutput(big.NewInt(1), sqrtP, 1_000_000, univ3.ZeroForOne)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "feeMillionths", re.What)
}
