// Package aggregate buckets classified transfers into OHLC candles.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"poolwatch/internal/domain"
	"poolwatch/internal/pricing"
)

type options struct {
	decimals      int32
	chronological bool
}

// Option configures Aggregate.
type Option func(*options)

// WithDecimals sets the token decimals used to scale transfer values.
func WithDecimals(n int32) Option {
	return func(o *options) {
		o.decimals = n
	}
}

// Chronological sorts the input by (ObservedAt, BlockNumber, LogIndex)
// before folding, so Open and Close follow chain order.
func Chronological() Option {
	return func(o *options) {
		o.chronological = true
	}
}

// Aggregate folds transfers into candles of the given width.
//
// Bucket key = ObservedAt truncated to a multiple of width (UTC, epoch aligned).
// Per bucket:
//   - Open = first value processed
//   - High/Low = max/min value
//   - Close = last value processed
//   - Count = number of transfers
//   - Buy/SellVolume = SUM(value) per direction
//
// Without Chronological, "processed" means input order.
// Output is ascending by BucketStart. A non-positive width yields nil.
func Aggregate(transfers []domain.ClassifiedTransfer, width time.Duration, opts ...Option) []domain.Candle {
	if width <= 0 || len(transfers) == 0 {
		return nil
	}

	o := options{decimals: pricing.DefaultDecimals}
	for _, opt := range opts {
		opt(&o)
	}

	input := transfers
	if o.chronological {
		input = make([]domain.ClassifiedTransfer, len(transfers))
		copy(input, transfers)
		SortChronological(input)
	}

	buckets := make(map[int64]*domain.Candle)
	for _, t := range input {
		start := BucketStart(t.ObservedAt, width)
		value := pricing.ScaleUnits(t.Value, o.decimals)

		c, ok := buckets[start.UnixNano()]
		if !ok {
			c = &domain.Candle{
				BucketStart: start,
				Open:        value,
				High:        value,
				Low:         value,
				Close:       value,
				BuyVolume:   decimal.Zero,
				SellVolume:  decimal.Zero,
			}
			buckets[start.UnixNano()] = c
		} else {
			if value.GreaterThan(c.High) {
				c.High = value
			}
			if value.LessThan(c.Low) {
				c.Low = value
			}
			c.Close = value
		}

		c.Count++
		switch t.Direction {
		case domain.DirectionBuy:
			c.BuyVolume = c.BuyVolume.Add(value)
		case domain.DirectionSell:
			c.SellVolume = c.SellVolume.Add(value)
		}
	}

	candles := make([]domain.Candle, 0, len(buckets))
	for _, c := range buckets {
		candles = append(candles, *c)
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].BucketStart.Before(candles[j].BucketStart)
	})
	return candles
}

// BucketStart truncates t to a multiple of width since the Unix epoch, in UTC.
func BucketStart(t time.Time, width time.Duration) time.Time {
	ns, w := t.UnixNano(), int64(width)
	rem := ns % w
	if rem < 0 {
		rem += w
	}
	return time.Unix(0, ns-rem).UTC()
}

// SortChronological sorts transfers by (ObservedAt, BlockNumber, LogIndex) in place.
func SortChronological(transfers []domain.ClassifiedTransfer) {
	sort.SliceStable(transfers, func(i, j int) bool {
		a, b := transfers[i], transfers[j]
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.Before(b.ObservedAt)
		}
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})
}
