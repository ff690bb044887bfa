package univ3

import (
	"fmt"
	"math/big"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

// LiquidityFromAmounts returns the maximum pool liquidity mintable for the
// range [tickLower, tickUpper] without exceeding either token amount, using
// the three-region formula: below the range only token0 counts, above it only
// token1, inside it the binding side wins.
func LiquidityFromAmounts(sqrtPriceX96 *big.Int, tickLower, tickUpper int32, amount0, amount1 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB, err := rangeRatios(tickLower, tickUpper)
	if err != nil {
		return nil, err
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, &domain.RangeError{What: "sqrtPriceX96", Value: bigStr(sqrtPriceX96)}
	}

	switch {
	case sqrtPriceX96.Cmp(sqrtA) <= 0:
		return liquidityForAmount0(sqrtA, sqrtB, amount0), nil
	case sqrtPriceX96.Cmp(sqrtB) < 0:
		l0 := liquidityForAmount0(sqrtPriceX96, sqrtB, amount0)
		l1 := liquidityForAmount1(sqrtA, sqrtPriceX96, amount1)
		if l0.Cmp(l1) < 0 {
			return l0, nil
		}
		return l1, nil
	default:
		return liquidityForAmount1(sqrtA, sqrtB, amount1), nil
	}
}

// AmountsFromLiquidity is the inverse: the token amounts a position of the
// given liquidity is entitled to at the current price. All divisions floor,
// so the result never over-reports the entitlement.
func AmountsFromLiquidity(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int32) (amount0, amount1 *big.Int, err error) {
	sqrtA, sqrtB, err := rangeRatios(tickLower, tickUpper)
	if err != nil {
		return nil, nil, err
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, nil, &domain.RangeError{What: "sqrtPriceX96", Value: bigStr(sqrtPriceX96)}
	}
	if liquidity == nil || liquidity.Sign() < 0 {
		return nil, nil, &domain.RangeError{What: "liquidity", Value: bigStr(liquidity)}
	}

	switch {
	case sqrtPriceX96.Cmp(sqrtA) <= 0:
		return amount0ForLiquidity(liquidity, sqrtA, sqrtB), new(big.Int), nil
	case sqrtPriceX96.Cmp(sqrtB) < 0:
		return amount0ForLiquidity(liquidity, sqrtPriceX96, sqrtB),
			amount1ForLiquidity(liquidity, sqrtA, sqrtPriceX96), nil
	default:
		return new(big.Int), amount1ForLiquidity(liquidity, sqrtA, sqrtB), nil
	}
}

// liquidityForAmount0 = amount0 * (sqrtA*sqrtB / Q96) / (sqrtB - sqrtA)
func liquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	if amount0 == nil || amount0.Sign() <= 0 {
		return new(big.Int)
	}
	intermediate := new(big.Int).Mul(sqrtA, sqrtB)
	intermediate.Div(intermediate, Q96)
	l := new(big.Int).Mul(amount0, intermediate)
	return l.Div(l, new(big.Int).Sub(sqrtB, sqrtA))
}

// liquidityForAmount1 = amount1 * Q96 / (sqrtB - sqrtA)
func liquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	if amount1 == nil || amount1.Sign() <= 0 {
		return new(big.Int)
	}
	l := new(big.Int).Mul(amount1, Q96)
	return l.Div(l, new(big.Int).Sub(sqrtB, sqrtA))
}

// amount0ForLiquidity = floor(L*Q96*(sqrtB - sqrtA) / sqrtB / sqrtA)
func amount0ForLiquidity(liquidity, sqrtA, sqrtB *big.Int) *big.Int {
	a := new(big.Int).Lsh(liquidity, 96)
	a.Mul(a, new(big.Int).Sub(sqrtB, sqrtA))
	a.Div(a, sqrtB)
	return a.Div(a, sqrtA)
}

// amount1ForLiquidity = floor(L*(sqrtB - sqrtA) / Q96)
func amount1ForLiquidity(liquidity, sqrtA, sqrtB *big.Int) *big.Int {
	a := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtB, sqrtA))
	return a.Div(a, Q96)
}

func rangeRatios(tickLower, tickUpper int32) (sqrtA, sqrtB *big.Int, err error) {
	if tickLower >= tickUpper {
		return nil, nil, &domain.RangeError{
			What:  "tick range",
			Value: fmt.Sprintf("[%d, %d)", tickLower, tickUpper),
		}
	}
	if sqrtA, err = TickToSqrtPrice(tickLower); err != nil {
		return nil, nil, err
	}
	if sqrtB, err = TickToSqrtPrice(tickUpper); err != nil {
		return nil, nil, err
	}
	return sqrtA, sqrtB, nil
}

func bigStr(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
