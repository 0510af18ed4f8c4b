// Package stub provides an in-memory evm.RPCClient for tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolwatch/internal/domain"
	"poolwatch/internal/evm"
)

// CallFunc answers an eth_call for a single contract.
type CallFunc func(data []byte) ([]byte, error)

// RPCClient implements evm.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Head       uint64
	HeadErr    error
	Logs       []types.Log
	LogsErr    error
	BlockTimes map[uint64]uint64
	Contracts  map[common.Address]CallFunc

	// Filters records every GetLogs request.
	Filters []ethereum.FilterQuery
	// Calls counts eth_call requests per contract.
	Calls map[common.Address]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		BlockTimes: make(map[uint64]uint64),
		Contracts:  make(map[common.Address]CallFunc),
		Calls:      make(map[common.Address]int),
	}
}

// Compile-time interface check.
var _ evm.RPCClient = (*RPCClient)(nil)

// BlockNumber returns the configured head.
func (c *RPCClient) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Head, c.HeadErr
}

// GetLogs returns stored logs within the filter's block range and addresses.
func (c *RPCClient) GetLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Filters = append(c.Filters, q)
	if c.LogsErr != nil {
		return nil, c.LogsErr
	}

	var out []types.Log
	for _, l := range c.Logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// Call dispatches to the registered contract handler.
func (c *RPCClient) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	fn, ok := c.Contracts[to]
	c.Calls[to]++
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: no contract at %s", domain.ErrNetwork, to.Hex())
	}
	return fn(data)
}

// BlockTime returns the stored timestamp for a block.
func (c *RPCClient) BlockTime(_ context.Context, number uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.BlockTimes[number]
	if !ok {
		return 0, fmt.Errorf("block %d: %w", number, domain.ErrNotFound)
	}
	return ts, nil
}

// AddLogs appends logs to the stub store.
func (c *RPCClient) AddLogs(logs ...types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logs = append(c.Logs, logs...)
}

// SetHead sets the head block number.
func (c *RPCClient) SetHead(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Head = n
}

// SetContract registers a call handler for a contract address.
func (c *RPCClient) SetContract(addr common.Address, fn CallFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Contracts[addr] = fn
}

// CallCount returns how many eth_call requests hit addr.
func (c *RPCClient) CallCount(addr common.Address) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[addr]
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
