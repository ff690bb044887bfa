// Package position derives live metrics for a concentrated-liquidity position
// from a pool observation plus the position's config and on-chain state. Pure
// computation: nothing here mutates state or performs I/O, so it is safe from
// any number of concurrent callers.
package position

import (
	"fmt"
	"math/big"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/univ3"
)

// Metrics is the derived view of a position at one price observation.
// Values are raw quote-token units unless suffixed otherwise.
type Metrics struct {
	CurrentValue  *big.Int
	CostBasis     *big.Int
	UnrealizedPnl *big.Int // CurrentValue - CostBasis

	UnclaimedFees0 *big.Int // raw token0 units
	UnclaimedFees1 *big.Int // raw token1 units
	UnclaimedFees  *big.Int // both legs in quote units

	Phase domain.Phase
	Tick  int32
}

// Compute derives the metrics for one observation. It validates the pool
// matches the position and that the on-chain state is sane; a position whose
// on-chain fields are all zero is corrupt (burned NFT or bad upstream read).
func Compute(pool domain.PoolState, cfg domain.PositionConfig, state domain.PositionState) (Metrics, error) {
	if !cfg.Valid() {
		return Metrics{}, &domain.ValidationError{
			Field:  "tickRange",
			Reason: fmt.Sprintf("tickLower %d must be below tickUpper %d", cfg.TickLower, cfg.TickUpper),
		}
	}
	if pool.ChainID != cfg.ChainID || pool.PoolAddress != cfg.PoolAddress {
		return Metrics{}, &domain.ValidationError{Field: "pool", Reason: "pool does not match position config"}
	}
	if state.Zeroed() {
		return Metrics{}, fmt.Errorf("position.Compute: %s: all on-chain fields zero: %w",
			cfg.PositionID, domain.ErrDataCorrupt)
	}
	if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 {
		return Metrics{}, fmt.Errorf("position.Compute: %s: bad pool price: %w",
			cfg.PositionID, domain.ErrDataCorrupt)
	}

	value, err := univ3.PositionValue(state.Liquidity, pool.SqrtPriceX96, cfg.TickLower, cfg.TickUpper, cfg.BaseIsToken0)
	if err != nil {
		return Metrics{}, fmt.Errorf("position.Compute: %s: value: %w", cfg.PositionID, err)
	}

	fees0, fees1 := unclaimedFees(pool, cfg, state)

	basis := new(big.Int)
	if state.CostBasis != nil {
		basis.Set(state.CostBasis)
	}

	return Metrics{
		CurrentValue:   value,
		CostBasis:      basis,
		UnrealizedPnl:  new(big.Int).Sub(value, basis),
		UnclaimedFees0: fees0,
		UnclaimedFees1: fees1,
		UnclaimedFees:  univ3.QuoteValue(fees0, fees1, pool.SqrtPriceX96, cfg.BaseIsToken0),
		Phase:          PhaseAt(cfg, pool.CurrentTick),
		Tick:           pool.CurrentTick,
	}, nil
}

// PhaseAt classifies the tick against the position's range.
func PhaseAt(cfg domain.PositionConfig, tick int32) domain.Phase {
	switch {
	case tick < cfg.TickLower:
		return domain.PhaseBelow
	case tick >= cfg.TickUpper:
		return domain.PhaseAbove
	default:
		return domain.PhaseInRange
	}
}

// unclaimedFees is tokensOwed plus the growth accrued since the position's
// last snapshot. PoolState carries the global accumulators only, so growth is
// attributed while the position is in range and clamped to zero otherwise;
// out-of-range liquidity earns nothing, and the next on-chain poke trues up
// the snapshot.
func unclaimedFees(pool domain.PoolState, cfg domain.PositionConfig, state domain.PositionState) (fees0, fees1 *big.Int) {
	fees0 = new(big.Int)
	fees1 = new(big.Int)
	if state.TokensOwed0 != nil {
		fees0.Set(state.TokensOwed0)
	}
	if state.TokensOwed1 != nil {
		fees1.Set(state.TokensOwed1)
	}

	if PhaseAt(cfg, pool.CurrentTick) != domain.PhaseInRange {
		return fees0, fees1
	}
	if state.Liquidity == nil || state.Liquidity.Sign() == 0 {
		return fees0, fees1
	}

	fees0.Add(fees0, growthToTokens(pool.FeeGrowthGlobal0, state.FeeGrowthInside0LastX128, state.Liquidity))
	fees1.Add(fees1, growthToTokens(pool.FeeGrowthGlobal1, state.FeeGrowthInside1LastX128, state.Liquidity))
	return fees0, fees1
}

// growthToTokens = liquidity * (global - snapshot) / 2^128, clamped at zero.
func growthToTokens(global, snapshot, liquidity *big.Int) *big.Int {
	if global == nil {
		return new(big.Int)
	}
	delta := new(big.Int).Set(global)
	if snapshot != nil {
		delta.Sub(delta, snapshot)
	}
	if delta.Sign() <= 0 {
		return new(big.Int)
	}
	delta.Mul(delta, liquidity)
	return delta.Div(delta, univ3.Q128)
}
