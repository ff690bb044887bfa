package univ3_test

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/univ3"
)

var (
	usdc = domain.Erc20{ChainID: 1, Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Dec: 6, Ticker: "USDC"}
	weth = domain.Erc20{ChainID: 1, Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Dec: 18, Ticker: "WETH"}
)

func TestPriceToSqrtPrice_UnitPriceEqualDecimals(t *testing.T) {
	a := domain.Erc20{ChainID: 1, Address: "0xaaaa", Dec: 18, Ticker: "A"}
	b := domain.Erc20{ChainID: 1, Address: "0xbbbb", Dec: 18, Ticker: "B"}

	// Price 1 with matching decimals is the identity ratio: exactly 2^96.
	got, err := univ3.PriceToSqrtPrice(a, b, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Zero(t, got.Cmp(univ3.Q96))
}

func TestPriceRoundTrip_UsdcWeth(t *testing.T) {
	// 2000 USDC per WETH. USDC sorts before WETH, so the base (WETH) is token1.
	price := decimal.NewFromInt(2000)
	sqrtP, err := univ3.PriceToSqrtPrice(weth, usdc, price)
	require.NoError(t, err)
	require.Positive(t, sqrtP.Sign())

	back := univ3.PriceFromSqrtPrice(weth, usdc, sqrtP)
	diff := back.Sub(price).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(0.01)),
		"round trip drifted: got %s", back)
}

func TestPriceRoundTrip_BaseIsToken0(t *testing.T) {
	// Same pair, opposite orientation: price of one USDC in WETH.
	price := decimal.RequireFromString("0.0005")
	sqrtP, err := univ3.PriceToSqrtPrice(usdc, weth, price)
	require.NoError(t, err)

	back := univ3.PriceFromSqrtPrice(usdc, weth, sqrtP)
	diff := back.Sub(price).Abs()
	assert.True(t, diff.LessThan(decimal.RequireFromString("0.0000001")),
		"round trip drifted: got %s", back)
}

func TestPriceToSqrtPrice_RejectsNonPositive(t *testing.T) {
	var re *domain.RangeError
	_, err := univ3.PriceToSqrtPrice(weth, usdc, decimal.Zero)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "price", re.What)

	_, err = univ3.PriceToSqrtPrice(weth, usdc, decimal.NewFromInt(-5))
	require.ErrorAs(t, err, &re)
}

func TestPriceFromSqrtPrice_ZeroPrice(t *testing.T) {
	assert.True(t, univ3.PriceFromSqrtPrice(weth, usdc, nil).IsZero())
	assert.True(t, univ3.PriceFromSqrtPrice(weth, usdc, big.NewInt(0)).IsZero())
}
