package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolwatch/internal/domain"
)

// SeriesKey identifies one candle series.
type SeriesKey struct {
	Target common.Address
	Width  time.Duration
}

// TransferArchive provides append-only storage of classified transfers.
type TransferArchive interface {
	// InsertBulk stores transfers observed for target. Rows whose
	// (target, tx_hash, log_index) already exist are skipped.
	// Returns the number of rows inserted.
	InsertBulk(ctx context.Context, target common.Address, transfers []domain.ClassifiedTransfer) (int, error)

	// GetByTarget retrieves archived transfers for target, ordered by (block, log_index) ASC.
	GetByTarget(ctx context.Context, target common.Address) ([]domain.ClassifiedTransfer, error)
}

// CandleArchive provides storage of candle series.
type CandleArchive interface {
	// Upsert stores candles for key. A candle replaces any earlier one with the same bucket.
	Upsert(ctx context.Context, key SeriesKey, candles []domain.Candle) error

	// GetBySeries retrieves candles for key, ordered by bucket start ASC.
	GetBySeries(ctx context.Context, key SeriesKey) ([]domain.Candle, error)
}

// ValidateTransfers checks the invariants every archive enforces.
func ValidateTransfers(target common.Address, transfers []domain.ClassifiedTransfer) error {
	if domain.IsZeroAddress(target) {
		return ErrInvalidInput
	}
	for _, t := range transfers {
		if t.Value == nil || t.Value.Sign() < 0 || !t.Direction.IsValid() {
			return ErrInvalidInput
		}
	}
	return nil
}

// ValidateSeries checks a series key.
func ValidateSeries(key SeriesKey) error {
	if domain.IsZeroAddress(key.Target) || key.Width < time.Second {
		return ErrInvalidInput
	}
	return nil
}
