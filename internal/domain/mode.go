package domain

import "fmt"

// WatchMode selects how the watched address is interpreted.
type WatchMode string

const (
	// ModeToken watches an ERC-20 token and resolves its pool through factories.
	ModeToken WatchMode = "token"
	// ModePool watches a pair contract directly; its LP token transfers are tracked.
	ModePool WatchMode = "pool"
)

// String returns the string representation of WatchMode.
func (m WatchMode) String() string {
	return string(m)
}

// IsValid checks if the mode is known.
func (m WatchMode) IsValid() bool {
	return m == ModeToken || m == ModePool
}

// ParseWatchMode parses a mode, defaulting an empty string to ModeToken.
func ParseWatchMode(s string) (WatchMode, error) {
	if s == "" {
		return ModeToken, nil
	}
	m := WatchMode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, s)
	}
	return m, nil
}
