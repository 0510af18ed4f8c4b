package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"poolwatch/internal/domain"
	"poolwatch/internal/storage"
)

// TransferArchive implements storage.TransferArchive using PostgreSQL.
type TransferArchive struct {
	pool *Pool
}

// NewTransferArchive creates a new TransferArchive.
func NewTransferArchive(pool *Pool) *TransferArchive {
	return &TransferArchive{pool: pool}
}

// Compile-time interface check.
var _ storage.TransferArchive = (*TransferArchive)(nil)

const insertTransferSQL = `
	INSERT INTO transfers (
		target, tx_hash, log_index, block_number, from_address, to_address, value, direction, observed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
	ON CONFLICT (target, tx_hash, log_index) DO NOTHING
`

// InsertBulk adds transfers in one transaction, skipping archived rows.
func (s *TransferArchive) InsertBulk(ctx context.Context, target common.Address, transfers []domain.ClassifiedTransfer) (int, error) {
	if err := storage.ValidateTransfers(target, transfers); err != nil {
		return 0, err
	}
	if len(transfers) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range transfers {
		batch.Queue(insertTransferSQL,
			target.Hex(),
			t.TxHash.Hex(),
			int64(t.LogIndex),
			int64(t.BlockNumber),
			t.From.Hex(),
			t.To.Hex(),
			t.Value.String(),
			t.Direction.String(),
			t.ObservedAt.UTC(),
		)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range transfers {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert transfer: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// GetByTarget retrieves archived transfers for target, ordered by (block, log_index) ASC.
func (s *TransferArchive) GetByTarget(ctx context.Context, target common.Address) ([]domain.ClassifiedTransfer, error) {
	query := `
		SELECT tx_hash, log_index, block_number, from_address, to_address, value::text, direction, observed_at
		FROM transfers
		WHERE target = $1
		ORDER BY block_number ASC, log_index ASC
	`

	rows, err := s.pool.Query(ctx, query, target.Hex())
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var result []domain.ClassifiedTransfer
	for rows.Next() {
		var (
			txHash, from, to, value, direction string
			logIndex, block                    int64
			observedAt                         time.Time
		)
		if err := rows.Scan(&txHash, &logIndex, &block, &from, &to, &value, &direction, &observedAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}

		v, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("scan transfer: bad value %q", value)
		}
		result = append(result, domain.ClassifiedTransfer{
			TransferEvent: domain.TransferEvent{
				From:        common.HexToAddress(from),
				To:          common.HexToAddress(to),
				Value:       v,
				BlockNumber: uint64(block),
				LogIndex:    uint(logIndex),
				TxHash:      common.HexToHash(txHash),
				ObservedAt:  observedAt.UTC(),
			},
			Direction: domain.Direction(direction),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return result, nil
}
