// Package pricing derives spot prices from pool reserves.
package pricing

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolwatch/internal/domain"
)

// DivisionPrecision is the number of fractional digits kept by Price.
const DivisionPrecision = 18

// DefaultDecimals is the ERC-20 decimals assumed when a token does not say otherwise.
const DefaultDecimals = 18

// Price returns the price of target in units of the other pool token.
// The second result is false (Undefined) when target is not in the pool
// or a relevant reserve is zero or missing.
func Price(pool domain.Pool, target common.Address) (decimal.Decimal, bool) {
	var num, den *big.Int
	switch target {
	case pool.Token0:
		num, den = pool.Reserve1, pool.Reserve0
	case pool.Token1:
		num, den = pool.Reserve0, pool.Reserve1
	default:
		return decimal.Zero, false
	}
	if num == nil || den == nil || num.Sign() <= 0 || den.Sign() <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), DivisionPrecision), true
}

// ScaleUnits converts base units into whole tokens.
func ScaleUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
