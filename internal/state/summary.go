package state

import (
	"time"
)

// Summary is the compact JSON view of a snapshot pushed to live clients,
// publishers and the snapshot endpoint.
type Summary struct {
	Target      string    `json:"target"`
	Mode        string    `json:"mode"`
	Pool        string    `json:"pool,omitempty"`
	Token0      string    `json:"token0,omitempty"`
	Token1      string    `json:"token1,omitempty"`
	Reserve0    string    `json:"reserve0,omitempty"`
	Reserve1    string    `json:"reserve1,omitempty"`
	Price       *string   `json:"price"`
	Transfers   int       `json:"transfers"`
	Candles     int       `json:"candles"`
	HistorySize int       `json:"history"`
	LastError   string    `json:"last_error,omitempty"`
	Cycle       uint64    `json:"cycle"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summarize builds the summary of s.
func Summarize(s Snapshot) Summary {
	sum := Summary{
		Target:      s.Target.Hex(),
		Mode:        s.Mode.String(),
		Transfers:   len(s.Transfers),
		Candles:     len(s.Candles),
		HistorySize: len(s.History),
		LastError:   s.LastError,
		Cycle:       s.Cycle,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.PoolAddress != nil {
		sum.Pool = s.PoolAddress.Hex()
	}
	if s.Pool != nil {
		sum.Token0 = s.Pool.Token0.Hex()
		sum.Token1 = s.Pool.Token1.Hex()
		if s.Pool.Reserve0 != nil {
			sum.Reserve0 = s.Pool.Reserve0.String()
		}
		if s.Pool.Reserve1 != nil {
			sum.Reserve1 = s.Pool.Reserve1.String()
		}
	}
	if s.Price != nil {
		p := s.Price.String()
		sum.Price = &p
	}
	return sum
}
