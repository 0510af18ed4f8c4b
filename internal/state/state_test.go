package state

import (
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolwatch/internal/domain"
)

var target = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestApply_DoesNotMutatePrev(t *testing.T) {
	prev := New(target, domain.ModeToken)
	prev.Log = []LogEntry{{Message: "first"}}

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	next := Apply(prev, CycleResult{
		At:      at,
		Entries: []LogEntry{{Level: LevelError, Kind: domain.KindNetwork, Message: "boom"}},
	})

	if len(prev.Log) != 1 || prev.Cycle != 0 {
		t.Errorf("prev was modified: %+v", prev)
	}
	if len(next.Log) != 2 {
		t.Errorf("expected 2 log entries, got %d", len(next.Log))
	}
	if next.LastError != "boom" {
		t.Errorf("expected last error boom, got %q", next.LastError)
	}
	if next.Cycle != 1 || !next.UpdatedAt.Equal(at) {
		t.Errorf("unexpected cycle/time %d %v", next.Cycle, next.UpdatedAt)
	}
	if next.Target != target || next.Mode != domain.ModeToken {
		t.Errorf("target not carried over")
	}
}

func TestApply_ClearsLastError(t *testing.T) {
	prev := Apply(New(target, domain.ModeToken), CycleResult{Entries: []LogEntry{{Level: LevelError, Message: "x"}}})
	next := Apply(prev, CycleResult{Entries: []LogEntry{{Level: LevelInfo, Message: "ok"}}})

	if next.LastError != "" {
		t.Errorf("expected cleared error, got %q", next.LastError)
	}
}

func TestApply_LogBounded(t *testing.T) {
	snap := New(target, domain.ModeToken)
	for i := 0; i < 150; i++ {
		snap = Apply(snap, CycleResult{Entries: []LogEntry{
			{Message: fmt.Sprintf("a%d", i)},
			{Message: fmt.Sprintf("b%d", i)},
		}})
	}

	if len(snap.Log) != MaxLogEntries {
		t.Fatalf("expected %d entries, got %d", MaxLogEntries, len(snap.Log))
	}
	if snap.Log[len(snap.Log)-1].Message != "b149" {
		t.Errorf("expected newest entry last, got %q", snap.Log[len(snap.Log)-1].Message)
	}
	if snap.Log[0].Message != "a50" {
		t.Errorf("expected oldest retained a50, got %q", snap.Log[0].Message)
	}
}

func TestRetarget_KeepsLog(t *testing.T) {
	prev := Apply(New(target, domain.ModeToken), CycleResult{
		Transfers: []domain.ClassifiedTransfer{{}},
		Entries:   []LogEntry{{Message: "old"}},
	})

	other := common.HexToAddress("0xbb")
	next := Retarget(prev, other, domain.ModePool, time.Now())

	if next.Target != other || next.Mode != domain.ModePool {
		t.Errorf("unexpected target %s/%s", next.Target.Hex(), next.Mode)
	}
	if len(next.Transfers) != 0 || next.Cycle != 0 {
		t.Errorf("expected empty state, got %d transfers, cycle %d", len(next.Transfers), next.Cycle)
	}
	if len(next.Log) != 2 {
		t.Errorf("expected log to be kept, got %d entries", len(next.Log))
	}
}

func TestSummarize(t *testing.T) {
	pool := common.HexToAddress("0xcc")
	price := decimal.RequireFromString("0.5")
	snap := Apply(New(target, domain.ModeToken), CycleResult{
		PoolAddress: &pool,
		Pool:        &domain.Pool{Address: pool, Token0: target, Reserve0: big.NewInt(100), Reserve1: big.NewInt(50)},
		Price:       &price,
		Candles:     []domain.Candle{{}, {}},
	})

	sum := Summarize(snap)
	if sum.Pool != pool.Hex() || sum.Reserve0 != "100" || sum.Reserve1 != "50" {
		t.Errorf("unexpected pool fields: %+v", sum)
	}
	if sum.Price == nil || *sum.Price != "0.5" {
		t.Errorf("unexpected price %v", sum.Price)
	}
	if sum.Candles != 2 || sum.Cycle != 1 {
		t.Errorf("unexpected counts: %+v", sum)
	}

	if Summarize(New(target, domain.ModeToken)).Price != nil {
		t.Error("expected nil price for undefined price")
	}
}

func TestStore_ConcurrentReaders(t *testing.T) {
	store := NewStore(New(target, domain.ModeToken))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.Load().Cycle
			}
		}()
	}
	snap := store.Load()
	for i := 0; i < 100; i++ {
		snap = Apply(snap, CycleResult{})
		store.Publish(snap)
	}
	wg.Wait()

	if store.Load().Cycle != 100 {
		t.Errorf("expected cycle 100, got %d", store.Load().Cycle)
	}
}
