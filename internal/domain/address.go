package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress parses a 0x-prefixed hex address in any casing.
// Returns ErrInvalidInput for anything that is not exactly 20 bytes of hex.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, fmt.Errorf("%w: address %q must start with 0x", ErrInvalidInput, s)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: malformed address %q", ErrInvalidInput, s)
	}
	return common.HexToAddress(s), nil
}

// ParseAddresses parses every entry, failing on the first malformed one.
func ParseAddresses(list []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(list))
	for _, s := range list {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// IsZeroAddress reports whether addr is the all-zero address.
func IsZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}
