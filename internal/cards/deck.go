package cards

import "math/rand"

// Deck represents an ordered pile of playing cards. A fresh deck is built
// for every hand; the table document persists the remaining cards between
// operations.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck creates a standard 52-card deck using the given random source
func NewDeck(rng *rand.Rand) *Deck {
	deck := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}

	for suit := Hearts; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			deck.cards = append(deck.cards, New(suit, rank))
		}
	}

	return deck
}

// Shuffle randomizes the order of cards in the deck
func (d *Deck) Shuffle() {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := d.rng.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Draw removes and returns the top card, or false when the deck is exhausted.
// The top of the pile is the end of the slice.
func (d *Deck) Draw() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}

	card := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return card, true
}

// Remaining returns the number of cards left in the deck
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Cards returns the remaining pile for persistence
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// DrawTop pops the top card from a persisted pile, mirroring Deck.Draw for
// state that has already been round-tripped through storage.
func DrawTop(pile []Card) (Card, []Card, bool) {
	if len(pile) == 0 {
		return Card{}, pile, false
	}
	return pile[len(pile)-1], pile[:len(pile)-1], true
}
