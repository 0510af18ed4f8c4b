// Package classify labels transfers as Buy or Sell relative to a pool.
package classify

import (
	"github.com/ethereum/go-ethereum/common"

	"poolwatch/internal/domain"
)

// Classify labels t relative to pool.
// A transfer into the pool is a Sell and one out of the pool is a Buy.
// The destination is checked first, so a pool-to-pool transfer is a Sell.
func Classify(t domain.TransferEvent, pool *common.Address) domain.ClassifiedTransfer {
	dir := domain.DirectionUnknown
	switch {
	case pool == nil:
	case t.To == *pool:
		dir = domain.DirectionSell
	case t.From == *pool:
		dir = domain.DirectionBuy
	}
	return domain.ClassifiedTransfer{TransferEvent: t, Direction: dir}
}

// ClassifyAll labels every event, preserving order.
func ClassifyAll(events []domain.TransferEvent, pool *common.Address) []domain.ClassifiedTransfer {
	out := make([]domain.ClassifiedTransfer, len(events))
	for i, e := range events {
		out[i] = Classify(e, pool)
	}
	return out
}
