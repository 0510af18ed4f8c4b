// Package resolver finds the liquidity pool of a token by searching
// pair factories against a list of reference tokens.
package resolver

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"poolwatch/internal/domain"
)

// PairLookup asks a factory for the pair of two tokens.
type PairLookup interface {
	GetPair(ctx context.Context, factory domain.Factory, a, b common.Address) (common.Address, error)
}

// Attempt records one factory × reference lookup.
type Attempt struct {
	Factory   domain.Factory
	Reference common.Address
	Pair      common.Address // zero when the factory has no pair
	Err       error
}

// Resolution is the outcome of a pool search.
type Resolution struct {
	Pool     *common.Address
	Attempts []Attempt
}

// Err returns domain.ErrNotFound when no pool was found.
func (r Resolution) Err() error {
	if r.Pool == nil {
		return domain.ErrNotFound
	}
	return nil
}

// Failures returns the attempts that ended in an error.
func (r Resolution) Failures() []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Resolver searches factories in order, then reference tokens in order.
type Resolver struct {
	lookup PairLookup
	logger zerolog.Logger
}

// New creates a new Resolver.
func New(lookup PairLookup, logger zerolog.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the first non-zero pair for token. Failed lookups are
// recorded and logged, and the search continues with the next candidate.
// A zero token is rejected with domain.ErrInvalidInput before any lookup.
func (r *Resolver) Resolve(ctx context.Context, token common.Address, factories []domain.Factory, refs []common.Address) (Resolution, error) {
	var res Resolution
	if domain.IsZeroAddress(token) {
		return res, fmt.Errorf("%w: token is the zero address", domain.ErrInvalidInput)
	}

	for _, factory := range factories {
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			attempt := Attempt{Factory: factory, Reference: ref}
			if ref == token {
				attempt.Err = fmt.Errorf("%w: reference equals target token", domain.ErrInvalidInput)
				res.Attempts = append(res.Attempts, attempt)
				continue
			}

			pair, err := r.lookup.GetPair(ctx, factory, token, ref)
			attempt.Pair = pair
			attempt.Err = err
			res.Attempts = append(res.Attempts, attempt)

			if err != nil {
				r.logger.Warn().
					Err(err).
					Str("factory", factory.Name).
					Str("reference", ref.Hex()).
					Str("kind", string(domain.KindOf(err))).
					Msg("pair lookup failed")
				continue
			}
			if domain.IsZeroAddress(pair) {
				continue
			}

			found := pair
			res.Pool = &found
			r.logger.Debug().
				Str("factory", factory.Name).
				Str("reference", ref.Hex()).
				Str("pool", pair.Hex()).
				Msg("pool resolved")
			return res, nil
		}
	}

	return res, nil
}
