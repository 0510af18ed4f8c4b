package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolwatch/internal/domain"
	"poolwatch/internal/evm/stub"
)

var (
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	wethAddr  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	pairAddr  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

func TestSource_TransferLogs(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddLogs(
		stub.TransferLog(tokenAddr, pairAddr, alice, big.NewInt(7), 11, 0, common.HexToHash("0x02")),
		stub.TransferLog(tokenAddr, alice, pairAddr, big.NewInt(5), 10, 3, common.HexToHash("0x01")),
		stub.TransferLog(wethAddr, alice, pairAddr, big.NewInt(9), 10, 4, common.HexToHash("0x03")),
	)
	rpc.BlockTimes[10] = 1700000000

	pollTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := NewSource(rpc, WithClock(func() time.Time { return pollTime }))

	events, err := src.TransferLogs(context.Background(), tokenAddr, 10, 20)
	if err != nil {
		t.Fatalf("TransferLogs: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	// Sorted by block then log index.
	if events[0].BlockNumber != 10 || events[1].BlockNumber != 11 {
		t.Errorf("unexpected order: %d, %d", events[0].BlockNumber, events[1].BlockNumber)
	}
	if events[0].From != alice || events[0].To != pairAddr || events[0].Value.Int64() != 5 {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if !events[0].ObservedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("expected block time, got %v", events[0].ObservedAt)
	}
	// Block 11 has no timestamp: poll time is used.
	if !events[1].ObservedAt.Equal(pollTime) {
		t.Errorf("expected poll time fallback, got %v", events[1].ObservedAt)
	}

	f := rpc.Filters[0]
	if f.FromBlock.Uint64() != 10 || f.ToBlock.Uint64() != 20 {
		t.Errorf("unexpected filter range %s-%s", f.FromBlock, f.ToBlock)
	}
}

func TestSource_TransferLogs_SkipsNonStandardLogs(t *testing.T) {
	rpc := stub.NewRPCClient()
	nft := stub.TransferLog(tokenAddr, alice, pairAddr, big.NewInt(1), 5, 0, common.HexToHash("0x01"))
	nft.Topics = append(nft.Topics, common.HexToHash("0x2a"))
	nft.Data = nil
	rpc.AddLogs(nft, stub.TransferLog(tokenAddr, alice, pairAddr, big.NewInt(2), 5, 1, common.HexToHash("0x02")))

	events, err := NewSource(rpc).TransferLogs(context.Background(), tokenAddr, 0, 10)
	if err != nil {
		t.Fatalf("TransferLogs: %v", err)
	}
	if len(events) != 1 || events[0].Value.Int64() != 2 {
		t.Errorf("expected only the ERC-20 transfer, got %+v", events)
	}
}

func TestSource_TransferLogs_Errors(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.LogsErr = domain.ErrNetwork
	src := NewSource(rpc)

	if _, err := src.TransferLogs(context.Background(), tokenAddr, 0, 10); !errors.Is(err, domain.ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
	if _, err := src.TransferLogs(context.Background(), tokenAddr, 10, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for inverted range, got %v", err)
	}
}

func TestSource_BlockTimeCached(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddLogs(stub.TransferLog(tokenAddr, alice, pairAddr, big.NewInt(1), 10, 0, common.HexToHash("0x01")))
	rpc.BlockTimes[10] = 1700000000
	src := NewSource(rpc)

	if _, err := src.TransferLogs(context.Background(), tokenAddr, 0, 10); err != nil {
		t.Fatalf("TransferLogs: %v", err)
	}
	delete(rpc.BlockTimes, 10)

	events, err := src.TransferLogs(context.Background(), tokenAddr, 0, 10)
	if err != nil {
		t.Fatalf("TransferLogs: %v", err)
	}
	if !events[0].ObservedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("expected cached block time, got %v", events[0].ObservedAt)
	}
}

func TestSource_GetPair(t *testing.T) {
	factory := domain.Factory{Name: "uni", Address: common.HexToAddress("0xf0"), Kind: domain.FactoryUniswapV2}
	rpc := stub.NewRPCClient()
	rpc.SetContract(factory.Address, stub.FactoryContract(map[stub.PairKey]common.Address{
		{tokenAddr, wethAddr}: pairAddr,
	}))
	src := NewSource(rpc)

	pair, err := src.GetPair(context.Background(), factory, wethAddr, tokenAddr)
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if pair != pairAddr {
		t.Errorf("expected %s, got %s", pairAddr.Hex(), pair.Hex())
	}

	missing, err := src.GetPair(context.Background(), factory, tokenAddr, alice)
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if !domain.IsZeroAddress(missing) {
		t.Errorf("expected zero address, got %s", missing.Hex())
	}

	bad := factory
	bad.Kind = "curve"
	if _, err := src.GetPair(context.Background(), bad, tokenAddr, wethAddr); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unsupported kind, got %v", err)
	}
}

func TestSource_PoolState(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetContract(pairAddr, stub.PairContract(tokenAddr, wethAddr, big.NewInt(100), big.NewInt(50)))

	pool, err := NewSource(rpc).PoolState(context.Background(), pairAddr)
	if err != nil {
		t.Fatalf("PoolState: %v", err)
	}
	if pool.Address != pairAddr || pool.Token0 != tokenAddr || pool.Token1 != wethAddr {
		t.Errorf("unexpected pool: %+v", pool)
	}
	if pool.Reserve0.Int64() != 100 || pool.Reserve1.Int64() != 50 {
		t.Errorf("unexpected reserves %s/%s", pool.Reserve0, pool.Reserve1)
	}
}

func TestSource_PoolState_Undecodable(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetContract(pairAddr, func([]byte) ([]byte, error) { return []byte{0x01}, nil })

	if _, err := NewSource(rpc).PoolState(context.Background(), pairAddr); !errors.Is(err, domain.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestSource_PriceHistory(t *testing.T) {
	history := common.HexToAddress("0xdd")
	oneAndHalf, _ := new(big.Int).SetString("1500000000000000000", 10)

	rpc := stub.NewRPCClient()
	rpc.SetContract(history, stub.HistoryContract(
		[]*big.Int{big.NewInt(1700000000), big.NewInt(1700000060)},
		[]*big.Int{oneAndHalf, big.NewInt(0)},
	))

	points, err := NewSource(rpc).PriceHistory(context.Background(), history)
	if err != nil {
		t.Fatalf("PriceHistory: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Price.String() != "1.5" {
		t.Errorf("expected price 1.5, got %s", points[0].Price)
	}
	if !points[1].At.Equal(time.Unix(1700000060, 0)) {
		t.Errorf("unexpected timestamp %v", points[1].At)
	}
}

func TestSource_PriceHistory_TimestampOverflow(t *testing.T) {
	history := common.HexToAddress("0xdd")
	huge := new(big.Int).Lsh(big.NewInt(1), 64)

	rpc := stub.NewRPCClient()
	rpc.SetContract(history, stub.HistoryContract(
		[]*big.Int{big.NewInt(1700000000), huge},
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
	))

	if _, err := NewSource(rpc).PriceHistory(context.Background(), history); !errors.Is(err, domain.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestSource_PriceHistory_LengthMismatch(t *testing.T) {
	history := common.HexToAddress("0xdd")
	rpc := stub.NewRPCClient()
	rpc.SetContract(history, stub.HistoryContract(
		[]*big.Int{big.NewInt(1)},
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
	))

	if _, err := NewSource(rpc).PriceHistory(context.Background(), history); !errors.Is(err, domain.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}
