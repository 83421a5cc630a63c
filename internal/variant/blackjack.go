package variant

import (
	"fmt"
	"math/rand"

	"github.com/greenfelt/dealerd/internal/cards"
	"github.com/greenfelt/dealerd/internal/game"
	"github.com/greenfelt/dealerd/internal/protocol"
)

const (
	dealerStandsAt = 17
	maxSplitHands  = 4
)

// Blackjack outcome labels, recorded per hand in the evaluation.
const (
	OutcomeBlackjack = "blackjack"
	OutcomeWin       = "win"
	OutcomePush      = "push"
	OutcomeLose      = "lose"
	OutcomeLoseHalf  = "lose_half"
)

// HandValue computes the blackjack total for a pile of cards. Aces count
// eleven and downgrade one at a time while the total busts. The second
// return reports a soft total, meaning an ace still counted as eleven.
func HandValue(pile []cards.Card) (int, bool) {
	total := 0
	aces := 0
	for _, c := range pile {
		switch {
		case c.IsAce():
			total += 11
			aces++
		case c.Rank >= cards.Ten:
			total += 10
		default:
			total += int(c.Rank)
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total, aces > 0
}

// naturalPile reports a two-card twenty-one
func naturalPile(pile []cards.Card) bool {
	if len(pile) != 2 {
		return false
	}
	total, _ := HandValue(pile)
	return total == 21
}

// isNatural reports a natural blackjack. Hands assembled by a split can
// reach a two-card twenty-one but never count as naturals.
func isNatural(h *game.Hand) bool {
	return !h.FromSplit && naturalPile(h.Cards)
}

// Blackjack is the house-banked 21 variant.
type Blackjack struct{}

// NewBlackjack returns the blackjack rule set
func NewBlackjack() *Blackjack {
	return &Blackjack{}
}

// Mode implements Variant
func (b *Blackjack) Mode() string {
	return game.RoomTypeBlackjack
}

// DealInitial deals one card to each wagered occupant, the house up-card,
// a second card around, then the hole card. Naturals are marked standing
// immediately so rotation skips them.
func (b *Blackjack) DealInitial(t *game.Table, rng *rand.Rand) error {
	deck := cards.NewDeck(rng)
	deck.Shuffle()
	t.Deck = deck.Cards()
	t.DealerHand = nil
	t.BoardCards = nil
	t.HoleRevealed = false

	in := participants(t)
	for _, o := range in {
		o.Hands = []*game.Hand{{Bet: o.Bet}}
		o.ActiveHand = 0
		o.Folded = false
	}

	for _, o := range in {
		c, ok := t.DrawCard()
		if !ok {
			return game.ErrDeckExhausted
		}
		o.Hands[0].Cards = append(o.Hands[0].Cards, c)
	}
	up, ok := t.DrawCard()
	if !ok {
		return game.ErrDeckExhausted
	}
	t.DealerHand = append(t.DealerHand, up)
	for _, o := range in {
		c, ok := t.DrawCard()
		if !ok {
			return game.ErrDeckExhausted
		}
		o.Hands[0].Cards = append(o.Hands[0].Cards, c)
	}
	hole, ok := t.DrawCard()
	if !ok {
		return game.ErrDeckExhausted
	}
	t.DealerHand = append(t.DealerHand, hole)

	for _, o := range in {
		h := o.Hands[0]
		h.Total, h.Soft = HandValue(h.Cards)
		if isNatural(h) {
			h.Standing = true
			h.HasActed = true
		}
	}
	t.DealerTotal, _ = HandValue(t.DealerHand[:1])
	return nil
}

// ApplyMove implements Variant
func (b *Blackjack) ApplyMove(t *game.Table, o *game.Occupant, move string, amount int64) error {
	h := o.CurrentHand()
	if h == nil || h.Done() {
		return game.ErrMoveNotAllowed
	}

	switch move {
	case protocol.MoveHit:
		return b.hit(t, h)
	case protocol.MoveStand:
		h.Standing = true
		h.HasActed = true
		return nil
	case protocol.MoveDouble:
		return b.double(t, h)
	case protocol.MoveSplit:
		return b.split(t, o, h)
	case protocol.MoveSurrender:
		return b.surrender(h)
	case protocol.MoveInsurance:
		return b.insure(t, h)
	case protocol.MoveBet:
		return game.ErrWrongPhase
	default:
		return game.ErrUnknownMove
	}
}

func (b *Blackjack) hit(t *game.Table, h *game.Hand) error {
	c, ok := t.DrawCard()
	if !ok {
		return game.ErrDeckExhausted
	}
	h.Cards = append(h.Cards, c)
	h.Total, h.Soft = HandValue(h.Cards)
	h.HasActed = true
	if h.Total > 21 {
		h.Busted = true
	}
	return nil
}

func (b *Blackjack) double(t *game.Table, h *game.Hand) error {
	if h.HasActed || len(h.Cards) != 2 {
		return game.ErrMoveNotAllowed
	}
	c, ok := t.DrawCard()
	if !ok {
		return game.ErrDeckExhausted
	}
	h.Bet *= 2
	h.Doubled = true
	h.Cards = append(h.Cards, c)
	h.Total, h.Soft = HandValue(h.Cards)
	if h.Total > 21 {
		h.Busted = true
	}
	h.Standing = true
	h.HasActed = true
	return nil
}

func (b *Blackjack) split(t *game.Table, o *game.Occupant, h *game.Hand) error {
	if h.HasActed || len(h.Cards) != 2 || len(o.Hands) >= maxSplitHands {
		return game.ErrMoveNotAllowed
	}
	if h.Cards[0].Rank != h.Cards[1].Rank {
		return game.ErrMoveNotAllowed
	}
	if len(t.Deck) < 2 {
		return game.ErrDeckExhausted
	}

	splitAces := h.Cards[0].IsAce()
	second := &game.Hand{
		Cards:     []cards.Card{h.Cards[1]},
		Bet:       h.Bet,
		FromSplit: true,
	}
	h.Cards = h.Cards[:1]
	h.FromSplit = true

	c1, _ := t.DrawCard()
	h.Cards = append(h.Cards, c1)
	c2, _ := t.DrawCard()
	second.Cards = append(second.Cards, c2)

	h.Total, h.Soft = HandValue(h.Cards)
	second.Total, second.Soft = HandValue(second.Cards)

	// Split aces take one card apiece and stand.
	if splitAces {
		h.Standing = true
		second.Standing = true
	}
	h.HasActed = true
	second.HasActed = splitAces

	idx := o.ActiveHand + 1
	o.Hands = append(o.Hands, nil)
	copy(o.Hands[idx+1:], o.Hands[idx:])
	o.Hands[idx] = second
	return nil
}

func (b *Blackjack) surrender(h *game.Hand) error {
	if h.HasActed || len(h.Cards) != 2 || h.FromSplit {
		return game.ErrMoveNotAllowed
	}
	h.Surrendered = true
	h.Standing = true
	h.HasActed = true
	return nil
}

func (b *Blackjack) insure(t *game.Table, h *game.Hand) error {
	if len(t.DealerHand) == 0 || !t.DealerHand[0].IsAce() {
		return game.ErrMoveNotAllowed
	}
	if h.Insured || h.HasActed {
		return game.ErrMoveNotAllowed
	}
	h.Insured = true
	return nil
}

// LegalMoves implements Variant
func (b *Blackjack) LegalMoves(t *game.Table, o *game.Occupant) []string {
	h := o.CurrentHand()
	if h == nil || h.Done() {
		return nil
	}
	moves := []string{protocol.MoveHit, protocol.MoveStand}
	first := !h.HasActed && len(h.Cards) == 2
	if first {
		moves = append(moves, protocol.MoveDouble)
		if h.Cards[0].Rank == h.Cards[1].Rank && len(o.Hands) < maxSplitHands {
			moves = append(moves, protocol.MoveSplit)
		}
		if !h.FromSplit {
			moves = append(moves, protocol.MoveSurrender)
		}
	}
	if len(t.DealerHand) > 0 && t.DealerHand[0].IsAce() && !h.Insured && !h.HasActed {
		moves = append(moves, protocol.MoveInsurance)
	}
	return moves
}

// TimeoutMove implements Variant
func (b *Blackjack) TimeoutMove(t *game.Table, o *game.Occupant) string {
	return protocol.MoveStand
}

// RevealDealer implements Variant
func (b *Blackjack) RevealDealer(t *game.Table) {
	t.HoleRevealed = true
	t.DealerTotal, _ = HandValue(t.DealerHand)
}

// ResolveDealer draws to seventeen, standing on every seventeen including
// soft ones. An exhausted deck leaves the house standing where it is.
func (b *Blackjack) ResolveDealer(t *game.Table) {
	for {
		total, _ := HandValue(t.DealerHand)
		if total >= dealerStandsAt {
			break
		}
		c, ok := t.DrawCard()
		if !ok {
			break
		}
		t.DealerHand = append(t.DealerHand, c)
	}
	t.DealerTotal, _ = HandValue(t.DealerHand)
}

// Settle implements Variant. Surrender and bust are decided before any
// comparison with the house, so a dealer bust never rescues them.
func (b *Blackjack) Settle(t *game.Table) (*game.Evaluation, map[string]int64) {
	dealerTotal, _ := HandValue(t.DealerHand)
	dealerNatural := naturalPile(t.DealerHand)
	dealerBust := dealerTotal > 21

	eval := &game.Evaluation{}
	nets := make(map[string]int64)

	for _, o := range game.SeatOrder(t) {
		for _, h := range o.Hands {
			outcome, net := scoreHand(h, dealerTotal, dealerNatural, dealerBust)
			if h.Insured {
				if dealerNatural {
					net += h.Bet
				} else {
					net -= h.Bet / 2
				}
			}
			nets[o.Identity] += net
			eval.Results = append(eval.Results, game.HandResult{
				Identity:  o.Identity,
				Name:      o.Name,
				Outcome:   outcome,
				HandDesc:  handDesc(h),
				Amount:    net,
				HoleCards: h.Cards,
			})
		}
	}

	if dealerBust {
		eval.Summary = fmt.Sprintf("Dealer busts with %d", dealerTotal)
	} else {
		eval.Summary = fmt.Sprintf("Dealer stands on %d", dealerTotal)
	}
	return eval, nets
}

func scoreHand(h *game.Hand, dealerTotal int, dealerNatural, dealerBust bool) (string, int64) {
	if h.Surrendered {
		return OutcomeLoseHalf, -h.Bet / 2
	}
	if h.Busted {
		return OutcomeLose, -h.Bet
	}
	if isNatural(h) {
		if dealerNatural {
			return OutcomePush, 0
		}
		return OutcomeBlackjack, h.Bet * 3 / 2
	}
	if dealerBust {
		return OutcomeWin, h.Bet
	}
	total, _ := HandValue(h.Cards)
	switch {
	case total > dealerTotal:
		return OutcomeWin, h.Bet
	case total < dealerTotal:
		return OutcomeLose, -h.Bet
	default:
		return OutcomePush, 0
	}
}

func handDesc(h *game.Hand) string {
	total, soft := HandValue(h.Cards)
	if h.Busted {
		return fmt.Sprintf("bust %d", total)
	}
	if isNatural(h) {
		return "natural 21"
	}
	if soft {
		return fmt.Sprintf("soft %d", total)
	}
	return fmt.Sprintf("%d", total)
}
