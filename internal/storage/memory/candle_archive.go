package memory

import (
	"context"
	"sort"
	"sync"

	"poolwatch/internal/domain"
	"poolwatch/internal/storage"
)

// CandleArchive is an in-memory implementation of storage.CandleArchive.
type CandleArchive struct {
	mu   sync.RWMutex
	data map[storage.SeriesKey]map[int64]domain.Candle // keyed by bucket start (unix nanos)
}

// NewCandleArchive creates a new in-memory candle archive.
func NewCandleArchive() *CandleArchive {
	return &CandleArchive{
		data: make(map[storage.SeriesKey]map[int64]domain.Candle),
	}
}

// Compile-time interface check.
var _ storage.CandleArchive = (*CandleArchive)(nil)

// Upsert stores candles, replacing any earlier candle of the same bucket.
func (s *CandleArchive) Upsert(_ context.Context, key storage.SeriesKey, candles []domain.Candle) error {
	if err := storage.ValidateSeries(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.data[key]
	if !ok {
		series = make(map[int64]domain.Candle)
		s.data[key] = series
	}
	for _, c := range candles {
		series[c.BucketStart.UnixNano()] = c
	}
	return nil
}

// GetBySeries retrieves candles for key, ordered by bucket start ASC.
func (s *CandleArchive) GetBySeries(_ context.Context, key storage.SeriesKey) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Candle, 0, len(s.data[key]))
	for _, c := range s.data[key] {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart.Before(result[j].BucketStart)
	})
	return result, nil
}

// Len returns the number of candles stored for key.
func (s *CandleArchive) Len(key storage.SeriesKey) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[key])
}

