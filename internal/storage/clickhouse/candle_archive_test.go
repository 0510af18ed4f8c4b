package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolwatch/internal/domain"
	"poolwatch/internal/storage"
)

func candle(at time.Time, closing string, count int) domain.Candle {
	c := decimal.RequireFromString(closing)
	return domain.Candle{
		BucketStart: at,
		Open:        decimal.RequireFromString("1.5"),
		High:        c,
		Low:         decimal.RequireFromString("1.5"),
		Close:       c,
		Count:       count,
		BuyVolume:   decimal.RequireFromString("0.25"),
		SellVolume:  decimal.Zero,
	}
}

func TestCandleArchive_UpsertAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleArchive(conn)
	clock := time.Unix(1700000000, 0)
	store.now = func() time.Time { return clock }

	key := storage.SeriesKey{
		Target: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Width:  time.Minute,
	}
	t0 := time.Unix(1700000040, 0).UTC()
	t1 := t0.Add(time.Minute)

	require.NoError(t, store.Upsert(ctx, key, []domain.Candle{candle(t0, "2", 1), candle(t1, "3", 1)}))

	clock = clock.Add(time.Second)
	require.NoError(t, store.Upsert(ctx, key, []domain.Candle{candle(t1, "4.125", 2)}))

	result, err := store.GetBySeries(ctx, key)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.True(t, result[0].BucketStart.Equal(t0))
	assert.True(t, result[0].Close.Equal(decimal.NewFromInt(2)))
	assert.True(t, result[1].BucketStart.Equal(t1))
	assert.Equal(t, 2, result[1].Count)
	assert.True(t, result[1].Close.Equal(decimal.RequireFromString("4.125")))
	assert.True(t, result[1].BuyVolume.Equal(decimal.RequireFromString("0.25")))

	other, err := store.GetBySeries(ctx, storage.SeriesKey{Target: key.Target, Width: 5 * time.Minute})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCandleArchive_InvalidSeries(t *testing.T) {
	store := NewCandleArchive(nil)
	err := store.Upsert(context.Background(), storage.SeriesKey{}, []domain.Candle{{}})
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}
