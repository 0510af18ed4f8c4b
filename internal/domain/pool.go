package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is a constant-product liquidity pool snapshot.
// Refreshed on every polling cycle; no history is retained.
type Pool struct {
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// Contains reports whether token is one side of the pool.
func (p Pool) Contains(token common.Address) bool {
	return p.Token0 == token || p.Token1 == token
}

// FactoryKind identifies the pair-lookup ABI shape of a factory contract.
type FactoryKind string

const (
	// FactoryUniswapV2 exposes getPair(address,address) returns (address).
	FactoryUniswapV2 FactoryKind = "uniswap_v2"
)

// IsValid checks if the kind is supported.
func (k FactoryKind) IsValid() bool {
	return k == FactoryUniswapV2
}

// Factory is a candidate pair factory used during pool resolution.
type Factory struct {
	Name    string
	Address common.Address
	Kind    FactoryKind
}
