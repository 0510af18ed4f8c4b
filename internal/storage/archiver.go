package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"poolwatch/internal/aggregate"
	"poolwatch/internal/domain"
	"poolwatch/internal/observability"
	"poolwatch/internal/state"
)

// Archiver writes each cycle's new transfers and the candles they touched.
// Either archive may be nil.
type Archiver struct {
	transfers TransferArchive
	candles   CandleArchive
	width     time.Duration
	log       zerolog.Logger
}

var _ state.Listener = (*Archiver)(nil)

// NewArchiver creates an archiver for candles of the given bucket width.
func NewArchiver(transfers TransferArchive, candles CandleArchive, width time.Duration, log zerolog.Logger) *Archiver {
	return &Archiver{
		transfers: transfers,
		candles:   candles,
		width:     width,
		log:       log.With().Str("component", "archiver").Logger(),
	}
}

// Name implements state.Listener.
func (a *Archiver) Name() string { return "archive" }

// OnSnapshot archives u.Fresh and the candles covering their buckets.
func (a *Archiver) OnSnapshot(ctx context.Context, u state.Update) error {
	if len(u.Fresh) == 0 {
		return nil
	}
	target := u.Snapshot.Target

	var errs []error
	if a.transfers != nil {
		n, err := a.transfers.InsertBulk(ctx, target, u.Fresh)
		observability.RecordArchiveWrite("transfers", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("archive transfers: %w", err))
		} else {
			a.log.Debug().Int("inserted", n).Int("fresh", len(u.Fresh)).Msg("transfers archived")
		}
	}

	if a.candles != nil && a.width > 0 {
		touched := TouchedCandles(u.Snapshot.Candles, u.Fresh, a.width)
		if len(touched) > 0 {
			err := a.candles.Upsert(ctx, SeriesKey{Target: target, Width: a.width}, touched)
			observability.RecordArchiveWrite("candles", err)
			if err != nil {
				errs = append(errs, fmt.Errorf("archive candles: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// TouchedCandles returns the candles whose bucket holds at least one of fresh.
func TouchedCandles(candles []domain.Candle, fresh []domain.ClassifiedTransfer, width time.Duration) []domain.Candle {
	buckets := make(map[int64]struct{}, len(fresh))
	for _, t := range fresh {
		buckets[aggregate.BucketStart(t.ObservedAt, width).UnixNano()] = struct{}{}
	}
	var out []domain.Candle
	for _, c := range candles {
		if _, ok := buckets[c.BucketStart.UnixNano()]; ok {
			out = append(out, c)
		}
	}
	return out
}
