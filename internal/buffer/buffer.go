// Package buffer retains the most recent classified transfers.
package buffer

import (
	"github.com/ethereum/go-ethereum/common"

	"poolwatch/internal/classify"
	"poolwatch/internal/domain"
)

// DefaultCapacity is the number of transfers retained when none is configured.
const DefaultCapacity = 1000

// Buffer is a bounded FIFO of transfers, deduplicated by transaction hash.
// Not safe for concurrent use.
type Buffer struct {
	capacity int
	items    []domain.ClassifiedTransfer
	seen     map[common.Hash]struct{}
}

// New creates a buffer. A capacity below 1 uses DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		seen:     make(map[common.Hash]struct{}),
	}
}

// Add appends transfers whose tx hash is not already retained, then evicts
// the oldest until the buffer fits. Returns the transfers that were added.
func (b *Buffer) Add(items ...domain.ClassifiedTransfer) []domain.ClassifiedTransfer {
	var added []domain.ClassifiedTransfer
	for _, it := range items {
		if _, ok := b.seen[it.TxHash]; ok {
			continue
		}
		b.seen[it.TxHash] = struct{}{}
		b.items = append(b.items, it)
		added = append(added, it)
	}

	if over := len(b.items) - b.capacity; over > 0 {
		for _, ev := range b.items[:over] {
			delete(b.seen, ev.TxHash)
		}
		kept := make([]domain.ClassifiedTransfer, b.capacity)
		copy(kept, b.items[over:])
		b.items = kept
	}
	return added
}

// Len returns the number of retained transfers.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Contains reports whether a transfer with hash is retained.
func (b *Buffer) Contains(hash common.Hash) bool {
	_, ok := b.seen[hash]
	return ok
}

// Items returns a copy of the retained transfers, oldest first.
func (b *Buffer) Items() []domain.ClassifiedTransfer {
	out := make([]domain.ClassifiedTransfer, len(b.items))
	copy(out, b.items)
	return out
}

// Reclassify returns a new buffer with every direction recomputed against pool.
func (b *Buffer) Reclassify(pool *common.Address) *Buffer {
	next := New(b.capacity)
	for _, it := range b.items {
		next.items = append(next.items, classify.Classify(it.TransferEvent, pool))
		next.seen[it.TxHash] = struct{}{}
	}
	return next
}
