package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransferEvent is a decoded ERC-20 Transfer log.
// Produced by the event source and never modified afterwards.
type TransferEvent struct {
	From        common.Address
	To          common.Address
	Value       *big.Int // token base units
	BlockNumber uint64
	LogIndex    uint
	TxHash      common.Hash
	ObservedAt  time.Time // block time, or poll time when the node does not report one
}

// Direction is the pool-relative side of a transfer.
type Direction string

const (
	DirectionBuy     Direction = "Buy"
	DirectionSell    Direction = "Sell"
	DirectionUnknown Direction = "Unknown"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is one of the known values.
func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell || d == DirectionUnknown
}

// ClassifiedTransfer is a transfer labelled relative to a pool address.
// Direction is always derived from the embedded event and the pool it was
// classified against; it is recomputed when the pool changes.
type ClassifiedTransfer struct {
	TransferEvent
	Direction Direction
}
