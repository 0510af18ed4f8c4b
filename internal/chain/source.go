// Package chain turns node JSON-RPC responses into domain values:
// transfer events, pair lookups, pool state and price history.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"poolwatch/internal/domain"
	"poolwatch/internal/evm"
)

// EventSource is the node-facing surface the poller and resolver depend on.
type EventSource interface {
	// HeadBlock returns the latest block number.
	HeadBlock(ctx context.Context) (uint64, error)

	// TransferLogs returns Transfer events emitted by contract in blocks [from, to],
	// ordered by (block, log index).
	TransferLogs(ctx context.Context, contract common.Address, from, to uint64) ([]domain.TransferEvent, error)

	// GetPair asks factory for the pair of tokens a and b.
	// The zero address means the factory has no such pair.
	GetPair(ctx context.Context, factory domain.Factory, a, b common.Address) (common.Address, error)

	// PoolState reads token0, token1 and reserves of a pair contract.
	PoolState(ctx context.Context, pool common.Address) (domain.Pool, error)

	// PriceHistory reads getHistoricalData() from a price-history contract.
	PriceHistory(ctx context.Context, contract common.Address) ([]domain.PricePoint, error)
}

const maxCachedBlockTimes = 4096

// Source implements EventSource over an evm.RPCClient.
type Source struct {
	rpc    evm.RPCClient
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	blockTimes map[uint64]time.Time
}

// Option configures Source.
type Option func(*Source)

// WithLogger sets the logger used for skipped logs and block time fallbacks.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Source) {
		s.logger = l
	}
}

// WithClock overrides the wall clock used when a block time is unavailable.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

// NewSource creates a new EventSource.
func NewSource(rpc evm.RPCClient, opts ...Option) *Source {
	s := &Source{
		rpc:        rpc,
		logger:     zerolog.Nop(),
		now:        time.Now,
		blockTimes: make(map[uint64]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile-time interface check.
var _ EventSource = (*Source)(nil)

// HeadBlock returns the latest block number.
func (s *Source) HeadBlock(ctx context.Context) (uint64, error) {
	head, err := s.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("head block: %w", err)
	}
	return head, nil
}

// TransferLogs fetches and decodes Transfer logs of contract in [from, to].
// Logs that share the Transfer topic but not its layout (e.g. ERC-721) are skipped.
func (s *Source) TransferLogs(ctx context.Context, contract common.Address, from, to uint64) ([]domain.TransferEvent, error) {
	if from > to {
		return nil, fmt.Errorf("%w: block range %d > %d", domain.ErrInvalidInput, from, to)
	}

	logs, err := s.rpc.GetLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{evm.TransferEventID}},
	})
	if err != nil {
		return nil, fmt.Errorf("get transfer logs %d-%d: %w", from, to, err)
	}

	pollTime := s.now().UTC()
	events := make([]domain.TransferEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		decoded, err := evm.DecodeTransfer(l)
		if err != nil {
			s.logger.Debug().Err(err).Str("tx", l.TxHash.Hex()).Msg("skip log")
			continue
		}
		events = append(events, domain.TransferEvent{
			From:        decoded.From,
			To:          decoded.To,
			Value:       decoded.Value,
			BlockNumber: l.BlockNumber,
			LogIndex:    l.Index,
			TxHash:      l.TxHash,
			ObservedAt:  s.blockTime(ctx, l.BlockNumber, pollTime),
		})
	}

	SortTransfers(events)
	return events, nil
}

// blockTime returns the cached block timestamp, falling back to the poll time.
func (s *Source) blockTime(ctx context.Context, number uint64, fallback time.Time) time.Time {
	s.mu.Lock()
	ts, ok := s.blockTimes[number]
	s.mu.Unlock()
	if ok {
		return ts
	}

	sec, err := s.rpc.BlockTime(ctx, number)
	if err != nil {
		s.logger.Debug().Err(err).Uint64("block", number).Msg("block time unavailable, using poll time")
		return fallback
	}
	ts = time.Unix(int64(sec), 0).UTC()

	s.mu.Lock()
	if len(s.blockTimes) >= maxCachedBlockTimes {
		s.blockTimes = make(map[uint64]time.Time)
	}
	s.blockTimes[number] = ts
	s.mu.Unlock()
	return ts
}

// GetPair calls getPair(a, b) on the factory.
func (s *Source) GetPair(ctx context.Context, factory domain.Factory, a, b common.Address) (common.Address, error) {
	if factory.Kind != "" && !factory.Kind.IsValid() {
		return common.Address{}, fmt.Errorf("%w: factory %s has unsupported kind %q", domain.ErrInvalidInput, factory.Name, factory.Kind)
	}

	data, err := evm.FactoryABI.Pack("getPair", a, b)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPair: %w", err)
	}
	out, err := s.rpc.Call(ctx, factory.Address, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("getPair on %s: %w", factory.Address.Hex(), err)
	}
	return unpackAddress(evm.FactoryABI, "getPair", out)
}

// PoolState reads the pair's tokens and reserves.
func (s *Source) PoolState(ctx context.Context, pool common.Address) (domain.Pool, error) {
	token0, err := s.callAddress(ctx, pool, "token0")
	if err != nil {
		return domain.Pool{}, err
	}
	token1, err := s.callAddress(ctx, pool, "token1")
	if err != nil {
		return domain.Pool{}, err
	}

	data, err := evm.PairABI.Pack("getReserves")
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pack getReserves: %w", err)
	}
	out, err := s.rpc.Call(ctx, pool, data)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("getReserves on %s: %w", pool.Hex(), err)
	}
	values, err := evm.Unpack(evm.PairABI, "getReserves", out)
	if err != nil {
		return domain.Pool{}, err
	}
	if len(values) < 2 {
		return domain.Pool{}, fmt.Errorf("%w: getReserves returned %d values", domain.ErrDecode, len(values))
	}
	r0, ok0 := values[0].(*big.Int)
	r1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return domain.Pool{}, fmt.Errorf("%w: getReserves returned %T, %T", domain.ErrDecode, values[0], values[1])
	}

	return domain.Pool{
		Address:  pool,
		Token0:   token0,
		Token1:   token1,
		Reserve0: r0,
		Reserve1: r1,
	}, nil
}

func (s *Source) callAddress(ctx context.Context, contract common.Address, method string) (common.Address, error) {
	data, err := evm.PairABI.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := s.rpc.Call(ctx, contract, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s on %s: %w", method, contract.Hex(), err)
	}
	return unpackAddress(evm.PairABI, method, out)
}

// PriceHistory reads the (timestamps, prices) series and scales prices by 1e18.
func (s *Source) PriceHistory(ctx context.Context, contract common.Address) ([]domain.PricePoint, error) {
	data, err := evm.HistoryABI.Pack("getHistoricalData")
	if err != nil {
		return nil, fmt.Errorf("pack getHistoricalData: %w", err)
	}
	out, err := s.rpc.Call(ctx, contract, data)
	if err != nil {
		return nil, fmt.Errorf("getHistoricalData on %s: %w", contract.Hex(), err)
	}
	values, err := evm.Unpack(evm.HistoryABI, "getHistoricalData", out)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("%w: getHistoricalData returned %d values", domain.ErrDecode, len(values))
	}
	timestamps, ok0 := values[0].([]*big.Int)
	prices, ok1 := values[1].([]*big.Int)
	if !ok0 || !ok1 {
		return nil, fmt.Errorf("%w: getHistoricalData returned %T, %T", domain.ErrDecode, values[0], values[1])
	}
	if len(timestamps) != len(prices) {
		return nil, fmt.Errorf("%w: getHistoricalData length mismatch %d != %d", domain.ErrDecode, len(timestamps), len(prices))
	}

	points := make([]domain.PricePoint, len(prices))
	for i := range prices {
		if !timestamps[i].IsInt64() {
			return nil, fmt.Errorf("%w: getHistoricalData timestamp %s out of range", domain.ErrDecode, timestamps[i])
		}
		points[i] = domain.PricePoint{
			At:    time.Unix(timestamps[i].Int64(), 0).UTC(),
			Price: decimal.NewFromBigInt(prices[i], -18),
		}
	}
	return points, nil
}

func unpackAddress(contract abi.ABI, method string, out []byte) (common.Address, error) {
	values, err := evm.Unpack(contract, method, out)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("%w: %s returned %d values", domain.ErrDecode, method, len(values))
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s returned %T", domain.ErrDecode, method, values[0])
	}
	return addr, nil
}

// SortTransfers sorts events by (block, log index) in place.
func SortTransfers(events []domain.TransferEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}
