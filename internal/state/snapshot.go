// Package state holds the dashboard's immutable application snapshot.
package state

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolwatch/internal/domain"
)

// MaxLogEntries bounds the operator log carried by a snapshot.
const MaxLogEntries = 200

// Level is the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// LogEntry is one operator-visible message.
type LogEntry struct {
	At      time.Time        `json:"at"`
	Level   Level            `json:"level"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
	Message string           `json:"message"`
}

// Snapshot is the complete dashboard state after a polling cycle.
// A snapshot is never modified after it is built; slices are owned by it.
type Snapshot struct {
	Target      common.Address
	Mode        domain.WatchMode
	Pool        *domain.Pool
	PoolAddress *common.Address
	Price       *decimal.Decimal
	Transfers   []domain.ClassifiedTransfer
	Candles     []domain.Candle
	History     []domain.PricePoint
	Log         []LogEntry
	LastError   string
	Cycle       uint64
	UpdatedAt   time.Time
}

// CycleResult is everything one polling cycle produced.
type CycleResult struct {
	ID          string
	At          time.Time
	Pool        *domain.Pool
	PoolAddress *common.Address
	Price       *decimal.Decimal
	Transfers   []domain.ClassifiedTransfer
	Candles     []domain.Candle
	History     []domain.PricePoint
	Entries     []LogEntry
}

// Err returns the message of the last error entry, or "".
func (r CycleResult) Err() string {
	for i := len(r.Entries) - 1; i >= 0; i-- {
		if r.Entries[i].Level == LevelError {
			return r.Entries[i].Message
		}
	}
	return ""
}

// New returns the empty snapshot for a watch target.
func New(target common.Address, mode domain.WatchMode) Snapshot {
	return Snapshot{Target: target, Mode: mode}
}

// Apply builds the snapshot that follows prev after cycle r.
// prev is not modified.
func Apply(prev Snapshot, r CycleResult) Snapshot {
	return Snapshot{
		Target:      prev.Target,
		Mode:        prev.Mode,
		Pool:        r.Pool,
		PoolAddress: r.PoolAddress,
		Price:       r.Price,
		Transfers:   r.Transfers,
		Candles:     r.Candles,
		History:     r.History,
		Log:         appendLog(prev.Log, r.Entries...),
		LastError:   r.Err(),
		Cycle:       prev.Cycle + 1,
		UpdatedAt:   r.At,
	}
}

// Retarget returns an empty snapshot for a new target that keeps prev's log.
func Retarget(prev Snapshot, target common.Address, mode domain.WatchMode, at time.Time) Snapshot {
	next := New(target, mode)
	next.Log = appendLog(prev.Log, LogEntry{
		At:      at,
		Level:   LevelInfo,
		Message: "watching " + mode.String() + " " + target.Hex(),
	})
	next.UpdatedAt = at
	return next
}

// appendLog returns a new slice holding the newest MaxLogEntries of log+entries.
func appendLog(log []LogEntry, entries ...LogEntry) []LogEntry {
	total := len(log) + len(entries)
	start := 0
	if total > MaxLogEntries {
		start = total - MaxLogEntries
	}

	out := make([]LogEntry, 0, total-start)
	for i := start; i < total; i++ {
		if i < len(log) {
			out = append(out, log[i])
		} else {
			out = append(out, entries[i-len(log)])
		}
	}
	return out
}

// Ready reports whether at least one cycle has completed.
func (s Snapshot) Ready() bool {
	return s.Cycle > 0
}
