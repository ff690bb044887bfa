package univ3

import (
	"fmt"
	"math/big"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

const feeDenominator = 1_000_000

// SwapDirection selects which token goes in.
type SwapDirection bool

const (
	// ZeroForOne swaps token0 in, token1 out.
	ZeroForOne SwapDirection = true
	// OneForZero swaps token1 in, token0 out.
	OneForZero SwapDirection = false
)

// ExpectedSwapOutput estimates the output of a swap at the current spot price
// with zero price impact, net of the pool fee (in millionths).
//
// This is a ranking heuristic only: it ignores slippage and tick crossings and
// must never be used to parameterize an actual trade.
func ExpectedSwapOutput(amountIn, sqrtPriceX96 *big.Int, feeMillionths uint32, direction SwapDirection) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, &domain.RangeError{What: "amountIn", Value: bigStr(amountIn)}
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, &domain.RangeError{What: "sqrtPriceX96", Value: bigStr(sqrtPriceX96)}
	}
	if feeMillionths >= feeDenominator {
		return nil, &domain.RangeError{What: "feeMillionths", Value: fmt.Sprintf("%d", feeMillionths)}
	}

	afterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(feeDenominator-feeMillionths)))
	afterFee.Div(afterFee, big.NewInt(feeDenominator))

	if direction == ZeroForOne {
		return Token0ValueInToken1(afterFee, sqrtPriceX96), nil
	}
	return Token1ValueInToken0(afterFee, sqrtPriceX96), nil
}
