package domain

import (
	"math/big"
	"time"
)

// Protocol identifies the concentrated-liquidity implementation a position
// lives on. New protocols get a new constant plus a factory branch, variants
// not inheritance.
type Protocol string

const (
	ProtocolUniswapV3 Protocol = "uniswapv3"
)

// Phase is the position range relative to the current pool price.
type Phase string

const (
	PhaseBelow   Phase = "below"    // price under tickLower: position is 100% token0
	PhaseInRange Phase = "in-range" // price inside the range: both legs, earning fees
	PhaseAbove   Phase = "above"    // price over tickUpper: position is 100% token1
)

// PoolState is a point-in-time observation of an AMM pool. It is read from
// chain and never written by this engine.
type PoolState struct {
	ChainID          uint64
	PoolAddress      string
	SqrtPriceX96     *big.Int // Q64.96, 0 < v < 2^160
	CurrentTick      int32    // int24 on chain
	Liquidity        *big.Int // uint128
	FeeGrowthGlobal0 *big.Int // uint256, monotonic
	FeeGrowthGlobal1 *big.Int // uint256, monotonic
	ObservedAt       time.Time
	BlockNumber      uint64
}

// PositionConfig is the immutable identity of a position: where it lives and
// the tick range it was opened with. Created once, never mutated.
type PositionConfig struct {
	PositionID  string
	Protocol    Protocol
	ChainID     uint64
	PoolAddress string
	NFTTokenID  *big.Int
	Token0      Currency
	Token1      Currency
	// BaseIsToken0 records which side is the quote/base orientation chosen by
	// the user: true means token0 is the base asset and token1 quotes it.
	BaseIsToken0  bool
	FeeMillionths uint32 // pool fee tier, e.g. 3000 = 0.30%
	TickLower     int32
	TickUpper     int32
	OwnerID       string
	CreatedAt     time.Time
}

// Valid reports whether the range is well formed.
func (c PositionConfig) Valid() bool {
	return c.TickLower < c.TickUpper
}

// QuoteDecimals returns the decimals of the quote token (the unit every
// valuation in the ledger is expressed in).
func (c PositionConfig) QuoteDecimals() uint8 {
	if c.BaseIsToken0 {
		return c.Token1.Decimals()
	}
	return c.Token0.Decimals()
}

// PositionState is the mutable on-chain state of a position, refreshed from
// chain and recomputed on ledger replay.
type PositionState struct {
	PositionID string

	Liquidity                *big.Int // uint128
	FeeGrowthInside0LastX128 *big.Int // snapshot at last poke
	FeeGrowthInside1LastX128 *big.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int

	// Derived on refresh, in raw token units.
	UnclaimedFees0 *big.Int
	UnclaimedFees1 *big.Int

	// CostBasis is the cumulative quote-token value paid for the currently
	// held assets, maintained by the ledger engine.
	CostBasis *big.Int

	LastRefreshedAt time.Time

	// Refreshing guards the per-position single-flight; flipped inside an
	// atomic storage update, never directly.
	Refreshing bool
}

// Zeroed reports whether every on-chain field is zero, which for a live
// position means the upstream returned garbage (or the NFT was burned).
func (s PositionState) Zeroed() bool {
	return isZero(s.Liquidity) &&
		isZero(s.FeeGrowthInside0LastX128) && isZero(s.FeeGrowthInside1LastX128) &&
		isZero(s.TokensOwed0) && isZero(s.TokensOwed1)
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
