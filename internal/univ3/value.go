package univ3

import "math/big"

// Token0ValueInToken1 converts a raw token0 amount into token1 units at the
// given pool price: amount0 * sqrtP^2 / 2^192. Floors.
func Token0ValueInToken1(amount0, sqrtPriceX96 *big.Int) *big.Int {
	if amount0 == nil || amount0.Sign() == 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	v.Mul(v, amount0)
	return v.Div(v, Q192)
}

// Token1ValueInToken0 converts a raw token1 amount into token0 units at the
// given pool price: amount1 * 2^192 / sqrtP^2. Floors.
func Token1ValueInToken0(amount1, sqrtPriceX96 *big.Int) *big.Int {
	if amount1 == nil || amount1.Sign() == 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amount1, Q192)
	return v.Div(v, new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96))
}

// QuoteValue converts both legs of a holding into quote-token units at the
// current price and sums them. baseIsToken0 selects the orientation: when the
// base asset is token0 the quote is token1 and vice versa.
func QuoteValue(amount0, amount1, sqrtPriceX96 *big.Int, baseIsToken0 bool) *big.Int {
	if baseIsToken0 {
		v := Token0ValueInToken1(amount0, sqrtPriceX96)
		return v.Add(v, zeroIfNil(amount1))
	}
	v := Token1ValueInToken0(amount1, sqrtPriceX96)
	return v.Add(v, zeroIfNil(amount0))
}

// PositionValue returns the quote-token value of a position: both entitlement
// legs at the current price, summed in quote units.
func PositionValue(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int32, baseIsToken0 bool) (*big.Int, error) {
	amount0, amount1, err := AmountsFromLiquidity(liquidity, sqrtPriceX96, tickLower, tickUpper)
	if err != nil {
		return nil, err
	}
	return QuoteValue(amount0, amount1, sqrtPriceX96, baseIsToken0), nil
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
