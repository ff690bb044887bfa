package domain

import "strings"

// Currency is the minimal capability set the engine needs from a token:
// identity for pool ordering and decimals for amount rescaling.
// Concrete variants below; no subclassing.
type Currency interface {
	// ID returns the canonical identifier used for token0/token1 ordering.
	// For ERC-20 tokens this is the lowercased contract address.
	ID() string

	// Decimals returns the token's display exponent (e.g. 6 for USDC).
	Decimals() uint8

	// Symbol returns the human ticker, display only.
	Symbol() string
}

// Erc20 is a standard ERC-20 token on a specific chain.
type Erc20 struct {
	ChainID uint64
	Address string
	Dec     uint8
	Ticker  string
}

func (e Erc20) ID() string      { return strings.ToLower(e.Address) }
func (e Erc20) Decimals() uint8 { return e.Dec }
func (e Erc20) Symbol() string  { return e.Ticker }

// Native is a chain's native currency (ETH, MATIC...). It never appears inside
// a pool directly (pools hold the wrapped ERC-20) but ledger valuations may
// be reported against it.
type Native struct {
	ChainID uint64
	Dec     uint8
	Ticker  string
}

func (n Native) ID() string      { return "native:" + n.Ticker }
func (n Native) Decimals() uint8 { return n.Dec }
func (n Native) Symbol() string  { return n.Ticker }

// SortsBefore reports whether a is token0 when paired with b.
// Pools order tokens by ascending address.
func SortsBefore(a, b Currency) bool {
	return a.ID() < b.ID()
}
