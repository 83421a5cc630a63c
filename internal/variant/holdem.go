package variant

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/chehsunliu/poker"

	"github.com/greenfelt/dealerd/internal/cards"
	"github.com/greenfelt/dealerd/internal/game"
	"github.com/greenfelt/dealerd/internal/protocol"
)

// Hold'em outcome labels.
const (
	OutcomeFold = "fold"
)

// Holdem is the community-card variant: two hole cards each, one pricing
// lap, then the full board runs out and the best five of seven takes the
// pot.
type Holdem struct{}

// NewHoldem returns the hold'em rule set
func NewHoldem() *Holdem {
	return &Holdem{}
}

// Mode implements Variant
func (h *Holdem) Mode() string {
	return game.RoomTypeHoldem
}

// DealInitial deals two hole cards around the table. The opening wagers
// from the betting phase stand as each player's committed chips, and the
// highest of them sets the price to match.
func (h *Holdem) DealInitial(t *game.Table, rng *rand.Rand) error {
	deck := cards.NewDeck(rng)
	deck.Shuffle()
	t.Deck = deck.Cards()
	t.DealerHand = nil
	t.BoardCards = nil
	t.HoleRevealed = false
	t.CurrentBet = 0

	in := participants(t)
	for _, o := range in {
		o.Hands = []*game.Hand{{Bet: o.Bet}}
		o.ActiveHand = 0
		o.Folded = false
		if o.Bet > t.CurrentBet {
			t.CurrentBet = o.Bet
		}
	}

	for round := 0; round < 2; round++ {
		for _, o := range in {
			c, ok := t.DrawCard()
			if !ok {
				return game.ErrDeckExhausted
			}
			o.Hands[0].Cards = append(o.Hands[0].Cards, c)
		}
	}
	return nil
}

// ApplyMove implements Variant
func (h *Holdem) ApplyMove(t *game.Table, o *game.Occupant, move string, amount int64) error {
	hand := o.CurrentHand()
	if hand == nil || o.Folded || hand.Done() {
		return game.ErrMoveNotAllowed
	}
	owed := t.CurrentBet - hand.Bet

	switch move {
	case protocol.MoveCheck:
		if owed > 0 {
			return game.ErrMoveNotAllowed
		}
		hand.Standing = true
		hand.HasActed = true
		return nil
	case protocol.MoveCall:
		hand.Bet = t.CurrentBet
		o.Bet = hand.Bet
		hand.Standing = true
		hand.HasActed = true
		return nil
	case protocol.MoveRaise:
		if amount <= t.CurrentBet || amount > t.MaxBet {
			return game.ErrBetOutOfRange
		}
		hand.Bet = amount
		o.Bet = amount
		t.CurrentBet = amount
		hand.Standing = true
		hand.HasActed = true
		h.reopen(t, o)
		return nil
	case protocol.MoveFold:
		o.Folded = true
		hand.Standing = true
		hand.HasActed = true
		return nil
	case protocol.MoveBet:
		return game.ErrWrongPhase
	default:
		return game.ErrUnknownMove
	}
}

// reopen clears the standing mark on every other live hand after a raise,
// so each of them gets another look at the new price.
func (h *Holdem) reopen(t *game.Table, raiser *game.Occupant) {
	for _, o := range t.Occupants {
		if o.Identity == raiser.Identity || o.Folded {
			continue
		}
		for _, hand := range o.Hands {
			hand.Standing = false
		}
	}
}

// LegalMoves implements Variant
func (h *Holdem) LegalMoves(t *game.Table, o *game.Occupant) []string {
	hand := o.CurrentHand()
	if hand == nil || o.Folded || hand.Done() {
		return nil
	}
	var moves []string
	if t.CurrentBet > hand.Bet {
		moves = append(moves, protocol.MoveCall)
	} else {
		moves = append(moves, protocol.MoveCheck)
	}
	if t.CurrentBet < t.MaxBet {
		moves = append(moves, protocol.MoveRaise)
	}
	return append(moves, protocol.MoveFold)
}

// TimeoutMove checks when nothing is owed and folds otherwise
func (h *Holdem) TimeoutMove(t *game.Table, o *game.Occupant) string {
	if hand := o.CurrentHand(); hand != nil && t.CurrentBet <= hand.Bet {
		return protocol.MoveCheck
	}
	return protocol.MoveFold
}

// RevealDealer implements Variant. Hold'em has no house hand; the flag
// marks the runout as under way for clients.
func (h *Holdem) RevealDealer(t *game.Table) {
	t.HoleRevealed = true
}

// ResolveDealer burns and runs out the full board: flop, turn, river. A
// hand already decided by folds skips the runout entirely.
func (h *Holdem) ResolveDealer(t *game.Table) {
	if len(h.liveHands(t)) < 2 {
		return
	}
	for _, draw := range []int{3, 1, 1} {
		if _, ok := t.DrawCard(); !ok { // burn
			return
		}
		for i := 0; i < draw; i++ {
			c, ok := t.DrawCard()
			if !ok {
				return
			}
			t.BoardCards = append(t.BoardCards, c)
		}
	}
}

type liveHand struct {
	occupant *game.Occupant
	hand     *game.Hand
}

func (h *Holdem) liveHands(t *game.Table) []liveHand {
	var live []liveHand
	for _, o := range game.SeatOrder(t) {
		if o.Folded || len(o.Hands) == 0 {
			continue
		}
		live = append(live, liveHand{occupant: o, hand: o.Hands[0]})
	}
	return live
}

// Settle implements Variant. The pot is every chip committed, folded ones
// included. One live hand takes it uncontested; otherwise the verified
// evaluator ranks each five-of-seven and ties chop the pot, with any odd
// chip going to the earliest seat.
func (h *Holdem) Settle(t *game.Table) (*game.Evaluation, map[string]int64) {
	eval := &game.Evaluation{}
	nets := make(map[string]int64)

	var pot int64
	for _, o := range t.Occupants {
		for _, hand := range o.Hands {
			pot += hand.Bet
		}
	}

	live := h.liveHands(t)
	winners := make(map[string]bool)
	descs := make(map[string]string)

	if len(live) == 1 {
		winners[live[0].occupant.Identity] = true
		descs[live[0].occupant.Identity] = "uncontested"
	} else if len(live) > 1 {
		best := int32(-1)
		ranks := make(map[string]int32, len(live))
		for _, lh := range live {
			rank := evaluateSeven(lh.hand.Cards, t.BoardCards)
			ranks[lh.occupant.Identity] = rank
			descs[lh.occupant.Identity] = poker.RankString(rank)
			if best < 0 || rank < best {
				best = rank
			}
		}
		for id, rank := range ranks {
			if rank == best {
				winners[id] = true
			}
		}
	}

	share := int64(0)
	remainder := int64(0)
	if n := int64(len(winners)); n > 0 {
		share = pot / n
		remainder = pot % n
	}

	var winnerNames []string
	for _, o := range game.SeatOrder(t) {
		if len(o.Hands) == 0 {
			continue
		}
		hand := o.Hands[0]
		result := game.HandResult{
			Identity: o.Identity,
			Name:     o.Name,
			Amount:   -hand.Bet,
		}
		switch {
		case o.Folded:
			result.Outcome = OutcomeFold
		case winners[o.Identity]:
			won := share
			if remainder > 0 {
				won += remainder
				remainder = 0
			}
			result.Outcome = OutcomeWin
			result.Amount = won - hand.Bet
			result.HandDesc = descs[o.Identity]
			result.HoleCards = hand.Cards
			winnerNames = append(winnerNames, displayName(o))
		default:
			result.Outcome = OutcomeLose
			result.HandDesc = descs[o.Identity]
			result.HoleCards = hand.Cards
		}
		nets[o.Identity] += result.Amount
		eval.Results = append(eval.Results, result)
	}

	switch len(winnerNames) {
	case 0:
	case 1:
		eval.Summary = fmt.Sprintf("%s wins %d (%s)", winnerNames[0], pot, summaryDesc(descs, eval))
	default:
		eval.Summary = fmt.Sprintf("Split pot %d: %s", pot, strings.Join(winnerNames, ", "))
	}
	return eval, nets
}

func summaryDesc(descs map[string]string, eval *game.Evaluation) string {
	for _, r := range eval.Results {
		if r.Outcome == OutcomeWin {
			return descs[r.Identity]
		}
	}
	return ""
}

func displayName(o *game.Occupant) string {
	if o.Name != "" {
		return o.Name
	}
	return o.Identity
}

// evaluateSeven ranks the best five-card hand from two hole cards plus the
// board. Lower ranks are stronger.
func evaluateSeven(hole, board []cards.Card) int32 {
	all := make([]poker.Card, 0, len(hole)+len(board))
	for _, c := range hole {
		all = append(all, evalCard(c))
	}
	for _, c := range board {
		all = append(all, evalCard(c))
	}
	return poker.Evaluate(all)
}

// evalCard converts to the evaluator's card type. The evaluator spells
// ten as 'T' where the wire format uses '0'.
func evalCard(c cards.Card) poker.Card {
	rank := c.Rank.Code()
	if c.Rank == cards.Ten {
		rank = 'T'
	}
	return poker.NewCard(string([]byte{rank, c.Suit.Code()}))
}
