// Package univ3 implements the fixed-point math of Uniswap-v3-style
// concentrated liquidity pools: tick/price conversion, liquidity/amount
// conversion, position valuation and spot swap estimation.
//
// Every function is pure and deterministic and works on arbitrary-precision
// integers. Prices are Q64.96 sqrt ratios (sqrtPriceX96) exactly as the pool
// contracts encode them; nothing in this package touches floating point.
package univ3

import (
	"fmt"
	"math/big"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

const (
	// MinTick and MaxTick bound the usable tick domain; sqrt(1.0001^tick)
	// stays representable in 160 bits inside these bounds.
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// Q96 is the fixed-point scale of sqrtPriceX96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Q128 scales the fee growth accumulators.
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)
	// Q192 = Q96^2, the scale of sqrtPriceX96^2 (i.e. the raw token1/token0 price).
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	mask32     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 32), big.NewInt(1))
)

// tickRatios[i] is floor(2^256 / sqrt(1.0001)^(2^i)) in Q128.128, the constant
// ladder from the reference TickMath contract. Multiplying together the rungs
// selected by the bits of |tick| yields sqrt(1.0001)^-|tick| exactly as the
// pool computes it.
var tickRatios = mustHexInts(
	"fff97272373d413259a46990580e213a", // 2^1
	"fff2e50f5f656932ef12357cf3c7fdcc", // 2^2
	"ffe5caca7e10e4e61c3624eaa0941cd0", // 2^3
	"ffcb9843d60f6159c9db58835c926644", // 2^4
	"ff973b41fa98c081472e6896dfb254c0", // 2^5
	"ff2ea16466c96a3843ec78b326b52861", // 2^6
	"fe5dee046a99a2a811c461f1969c3053", // 2^7
	"fcbe86c7900a88aedcffc83b479aa3a4", // 2^8
	"f987a7253ac413176f2b074cf7815e54", // 2^9
	"f3392b0822b70005940c7a398e4b70f3", // 2^10
	"e7159475a2c29b7443b29c7fa6e889d9", // 2^11
	"d097f3bdfd2022b8845ad8f792aa5825", // 2^12
	"a9f746462d870fdf8a65dc1f90e061e5", // 2^13
	"70d869a156d2a1b890bb3df62baf32f7", // 2^14
	"31be135f97d08fd981231505542fcfa6", // 2^15
	"9aa508b5b7a84e1c677de54f3e99bc9",  // 2^16
	"5d6af8dedb81196699c329225ee604",   // 2^17
	"2216e584f5fa1ea926041bedfe98",     // 2^18
	"48a170391f7dc42444e8fa2",          // 2^19
)

var tickRatioBit0 = mustHexInt("fffcb933bd6fad37aa2d162d1a594001")

// TickToSqrtPrice returns the Q64.96 sqrt price for 1.0001^tick, bit-exact
// with the on-chain TickMath. Returns a RangeError outside [MinTick, MaxTick].
func TickToSqrtPrice(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, &domain.RangeError{What: "tick", Value: fmt.Sprintf("%d", tick)}
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-int64(tick))
	}

	ratio := new(big.Int)
	if absTick&1 != 0 {
		ratio.Set(tickRatioBit0)
	} else {
		ratio.Lsh(big.NewInt(1), 128)
	}
	for i, rung := range tickRatios {
		if absTick&(1<<(uint(i)+1)) != 0 {
			ratio.Mul(ratio, rung)
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so the result round-trips with the
	// contract's getTickAtSqrtRatio.
	rem := new(big.Int).And(ratio, mask32)
	ratio.Rsh(ratio, 32)
	if rem.Sign() != 0 {
		ratio.Add(ratio, big.NewInt(1))
	}
	return ratio, nil
}

func mustHexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("univ3: bad hex constant " + s)
	}
	return v
}

func mustHexInts(ss ...string) []*big.Int {
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		out[i] = mustHexInt(s)
	}
	return out
}
