// Package variant implements the rules of each supported table game behind
// a single interface. The engine drives phases and timers; variants decide
// what a deal, a move and a settlement mean.
package variant

import (
	"math/rand"

	"github.com/greenfelt/dealerd/internal/game"
)

// Variant is one rule set keyed by room type. Implementations mutate the
// table they are handed; the caller owns locking and persistence.
type Variant interface {
	// Mode returns the room type this variant serves.
	Mode() string

	// DealInitial builds and shuffles a fresh deck and deals the opening
	// hand to every occupant with a wager down. Returns
	// game.ErrDeckExhausted if the deck cannot cover the deal.
	DealInitial(t *game.Table, rng *rand.Rand) error

	// ApplyMove applies one turn move for the occupant, validating it
	// against the current hand state.
	ApplyMove(t *game.Table, o *game.Occupant, move string, amount int64) error

	// LegalMoves lists the moves currently open to the occupant, for the
	// tick hints. Nil when the occupant has nothing to decide.
	LegalMoves(t *game.Table, o *game.Occupant) []string

	// TimeoutMove picks the move applied on the occupant's behalf when
	// their action clock expires.
	TimeoutMove(t *game.Table, o *game.Occupant) string

	// RevealDealer flips hidden house state when the dealer turn begins
	RevealDealer(t *game.Table)

	// ResolveDealer plays out the house: hits to the house total in
	// blackjack, runs out the board in hold'em.
	ResolveDealer(t *game.Table)

	// Settle scores every hand against the resolved house state. It
	// returns the evaluation for broadcast plus signed net amounts per
	// identity; only positive nets are ever credited.
	Settle(t *game.Table) (*game.Evaluation, map[string]int64)
}

// Registry resolves room types to variants
type Registry struct {
	variants map[string]Variant
}

// NewRegistry builds a registry over the given variants
func NewRegistry(variants ...Variant) *Registry {
	r := &Registry{variants: make(map[string]Variant, len(variants))}
	for _, v := range variants {
		r.variants[v.Mode()] = v
	}
	return r
}

// DefaultRegistry returns a registry with every built-in variant
func DefaultRegistry() *Registry {
	return NewRegistry(NewBlackjack(), NewHoldem())
}

// Lookup returns the variant for a room type
func (r *Registry) Lookup(roomType string) (Variant, bool) {
	v, ok := r.variants[roomType]
	return v, ok
}

// participants returns occupants with a wager down, in seat order. Only
// these receive cards when a hand deals.
func participants(t *game.Table) []*game.Occupant {
	var in []*game.Occupant
	for _, o := range game.SeatOrder(t) {
		if o.HasBet && !o.Skipped {
			in = append(in, o)
		}
	}
	return in
}
