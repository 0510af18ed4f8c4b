package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"poolwatch/internal/domain"
	"poolwatch/internal/storage"
)

// TransferArchive is an in-memory implementation of storage.TransferArchive.
type TransferArchive struct {
	mu   sync.RWMutex
	data map[common.Address]map[string]domain.ClassifiedTransfer
}

// NewTransferArchive creates a new in-memory transfer archive.
func NewTransferArchive() *TransferArchive {
	return &TransferArchive{
		data: make(map[common.Address]map[string]domain.ClassifiedTransfer),
	}
}

// Compile-time interface check.
var _ storage.TransferArchive = (*TransferArchive)(nil)

func transferKey(t domain.ClassifiedTransfer) string {
	return fmt.Sprintf("%s|%d", t.TxHash.Hex(), t.LogIndex)
}

// InsertBulk adds transfers, skipping ones already archived for target.
func (s *TransferArchive) InsertBulk(_ context.Context, target common.Address, transfers []domain.ClassifiedTransfer) (int, error) {
	if err := storage.ValidateTransfers(target, transfers); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.data[target]
	if !ok {
		rows = make(map[string]domain.ClassifiedTransfer)
		s.data[target] = rows
	}

	inserted := 0
	for _, t := range transfers {
		key := transferKey(t)
		if _, exists := rows[key]; exists {
			continue
		}
		t.Value = new(big.Int).Set(t.Value)
		rows[key] = t
		inserted++
	}
	return inserted, nil
}

// GetByTarget retrieves archived transfers for target, ordered by (block, log_index) ASC.
func (s *TransferArchive) GetByTarget(_ context.Context, target common.Address) ([]domain.ClassifiedTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ClassifiedTransfer, 0, len(s.data[target]))
	for _, t := range s.data[target] {
		t.Value = new(big.Int).Set(t.Value)
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber < result[j].BlockNumber
		}
		return result[i].LogIndex < result[j].LogIndex
	})
	return result, nil
}
