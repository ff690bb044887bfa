package univ3

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

// PriceToSqrtPrice converts a human-readable price ("quote tokens per one base
// token") into the pool's Q64.96 sqrt ratio. The pool always quotes token1 in
// terms of token0, with token0 the lexicographically smaller address, so the
// conversion accounts for both token ordering and decimal rescaling.
//
// The computation is exact: the decimal price is decomposed into an integer
// ratio and the result is floor(sqrt(ratio * 2^192)).
func PriceToSqrtPrice(base, quote domain.Currency, price decimal.Decimal) (*big.Int, error) {
	if price.Sign() <= 0 {
		return nil, &domain.RangeError{What: "price", Value: price.String()}
	}

	// price = coeff * 10^exp, exactly.
	num := new(big.Int).Set(price.Coefficient())
	den := big.NewInt(1)
	if exp := price.Exponent(); exp >= 0 {
		num.Mul(num, pow10(int(exp)))
	} else {
		den = pow10(int(-exp))
	}

	baseIsToken0 := domain.SortsBefore(base, quote)
	if baseIsToken0 {
		// ratio = price * 10^quoteDec / 10^baseDec (token1 per token0, raw units)
		num.Mul(num, pow10(int(quote.Decimals())))
		den = new(big.Int).Mul(den, pow10(int(base.Decimals())))
	} else {
		// base is token1: invert, ratio = 10^baseDec / (price * 10^quoteDec)
		num, den = new(big.Int).Mul(den, pow10(int(base.Decimals()))),
			new(big.Int).Mul(num, pow10(int(quote.Decimals())))
	}

	// sqrtPriceX96 = floor(sqrt(num*2^192 / den))
	v := new(big.Int).Mul(num, Q192)
	v.Div(v, den)
	return v.Sqrt(v), nil
}

// PriceFromSqrtPrice is the display-only inverse: the human price of one base
// token in quote tokens. Used in reports, never in accounting.
func PriceFromSqrtPrice(base, quote domain.Currency, sqrtPriceX96 *big.Int) decimal.Decimal {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero
	}
	// raw token1/token0 ratio with extra precision, then rescale decimals.
	const prec = 18
	scaled := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	scaled.Mul(scaled, pow10(prec))
	scaled.Div(scaled, Q192)
	ratio := decimal.NewFromBigInt(scaled, -prec)

	baseIsToken0 := domain.SortsBefore(base, quote)
	if !baseIsToken0 {
		if ratio.Sign() == 0 {
			return decimal.Zero
		}
		ratio = decimal.NewFromInt(1).DivRound(ratio, prec)
	}
	shift := int32(base.Decimals()) - int32(quote.Decimals())
	return ratio.Shift(shift)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
