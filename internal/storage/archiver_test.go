package storage_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolwatch/internal/domain"
	"poolwatch/internal/state"
	"poolwatch/internal/storage"
	"poolwatch/internal/storage/memory"
)

var target = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func fresh(at time.Time, index uint) domain.ClassifiedTransfer {
	return domain.ClassifiedTransfer{
		TransferEvent: domain.TransferEvent{
			Value:       big.NewInt(1),
			BlockNumber: 1,
			LogIndex:    index,
			TxHash:      common.BytesToHash([]byte{byte(index + 1)}),
			ObservedAt:  at,
		},
		Direction: domain.DirectionSell,
	}
}

type failingCandles struct{}

func (failingCandles) Upsert(context.Context, storage.SeriesKey, []domain.Candle) error {
	return errors.New("down")
}

func (failingCandles) GetBySeries(context.Context, storage.SeriesKey) ([]domain.Candle, error) {
	return nil, nil
}

func TestTouchedCandles(t *testing.T) {
	base := time.Unix(1700000040, 0).UTC()
	candles := []domain.Candle{
		{BucketStart: base},
		{BucketStart: base.Add(time.Minute)},
		{BucketStart: base.Add(2 * time.Minute)},
	}

	got := storage.TouchedCandles(candles, []domain.ClassifiedTransfer{
		fresh(base.Add(2*time.Minute+5*time.Second), 0),
	}, time.Minute)

	require.Len(t, got, 1)
	assert.True(t, got[0].BucketStart.Equal(base.Add(2*time.Minute)))
}

func TestArchiver_OnSnapshot(t *testing.T) {
	transfers := memory.NewTransferArchive()
	candles := memory.NewCandleArchive()
	a := storage.NewArchiver(transfers, candles, time.Minute, zerolog.Nop())
	ctx := context.Background()

	base := time.Unix(1700000040, 0).UTC()
	snap := state.New(target, domain.ModeToken)
	snap.Candles = []domain.Candle{
		{BucketStart: base, Count: 3, Close: decimal.NewFromInt(1)},
		{BucketStart: base.Add(time.Minute), Count: 1, Close: decimal.NewFromInt(2)},
	}

	err := a.OnSnapshot(ctx, state.Update{
		Snapshot: snap,
		Fresh:    []domain.ClassifiedTransfer{fresh(base.Add(10*time.Second), 0)},
	})
	require.NoError(t, err)

	archived, err := transfers.GetByTarget(ctx, target)
	require.NoError(t, err)
	assert.Len(t, archived, 1)

	series, err := candles.GetBySeries(ctx, storage.SeriesKey{Target: target, Width: time.Minute})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 3, series[0].Count)
}

func TestArchiver_NoFreshTransfers(t *testing.T) {
	candles := memory.NewCandleArchive()
	a := storage.NewArchiver(nil, candles, time.Minute, zerolog.Nop())

	snap := state.New(target, domain.ModeToken)
	snap.Candles = []domain.Candle{{BucketStart: time.Unix(1700000040, 0).UTC()}}

	require.NoError(t, a.OnSnapshot(context.Background(), state.Update{Snapshot: snap}))
	assert.Equal(t, 0, candles.Len(storage.SeriesKey{Target: target, Width: time.Minute}))
}

func TestArchiver_ReportsErrors(t *testing.T) {
	a := storage.NewArchiver(memory.NewTransferArchive(), failingCandles{}, time.Minute, zerolog.Nop())

	at := time.Unix(1700000040, 0).UTC()
	snap := state.New(target, domain.ModeToken)
	snap.Candles = []domain.Candle{{BucketStart: at}}

	err := a.OnSnapshot(context.Background(), state.Update{
		Snapshot: snap,
		Fresh:    []domain.ClassifiedTransfer{fresh(at, 0)},
	})
	assert.ErrorContains(t, err, "archive candles")
	assert.Equal(t, "archive", a.Name())
}
