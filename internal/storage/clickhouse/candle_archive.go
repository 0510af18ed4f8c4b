package clickhouse

import (
	"context"
	"fmt"
	"time"

	"poolwatch/internal/domain"
	"poolwatch/internal/storage"
)

// CandleArchive implements storage.CandleArchive using ClickHouse.
// Rows live in a ReplacingMergeTree keyed by (target, width_seconds, bucket_start);
// reads use FINAL so the newest version of a bucket wins.
type CandleArchive struct {
	conn *Conn
	now  func() time.Time
}

// NewCandleArchive creates a new CandleArchive.
func NewCandleArchive(conn *Conn) *CandleArchive {
	return &CandleArchive{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.CandleArchive = (*CandleArchive)(nil)

// Upsert appends a new version of each candle.
func (s *CandleArchive) Upsert(ctx context.Context, key storage.SeriesKey, candles []domain.Candle) error {
	if err := storage.ValidateSeries(key); err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			target, width_seconds, bucket_start, open, high, low, close,
			transfer_count, buy_volume, sell_volume, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := uint64(s.now().UnixNano())
	for _, c := range candles {
		err = batch.Append(
			key.Target.Hex(), uint32(key.Width/time.Second), c.BucketStart.UTC(),
			c.Open, c.High, c.Low, c.Close,
			uint32(c.Count), c.BuyVolume, c.SellVolume, version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySeries retrieves candles for key, ordered by bucket start ASC.
func (s *CandleArchive) GetBySeries(ctx context.Context, key storage.SeriesKey) ([]domain.Candle, error) {
	query := `
		SELECT bucket_start, open, high, low, close, transfer_count, buy_volume, sell_volume
		FROM candles FINAL
		WHERE target = ? AND width_seconds = ?
		ORDER BY bucket_start ASC
	`

	rows, err := s.conn.Query(ctx, query, key.Target.Hex(), uint32(key.Width/time.Second))
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var result []domain.Candle
	for rows.Next() {
		var c domain.Candle
		var count uint32
		err := rows.Scan(
			&c.BucketStart, &c.Open, &c.High, &c.Low, &c.Close,
			&count, &c.BuyVolume, &c.SellVolume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.BucketStart = c.BucketStart.UTC()
		c.Count = int(count)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return result, nil
}
