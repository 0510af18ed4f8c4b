// Package evm talks to EVM-compatible nodes over JSON-RPC.
package evm

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RPCClient defines the node calls the dashboard needs.
type RPCClient interface {
	// BlockNumber returns the current head block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// GetLogs returns logs matching the filter, in node order.
	// A nil FromBlock is block 0 and a nil ToBlock is the latest block.
	GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	// Call executes a read-only contract call against the latest block.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// BlockTime returns the Unix timestamp (seconds) of a block.
	BlockTime(ctx context.Context, number uint64) (uint64, error)
}
