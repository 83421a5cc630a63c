package cards

import "fmt"

// Suit represents a card suit
type Suit int

const (
	Hearts Suit = iota
	Diamonds
	Clubs
	Spades
)

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	case Spades:
		return "♠"
	default:
		return "?"
	}
}

// Code returns the single-character wire code for a suit
func (s Suit) Code() byte {
	switch s {
	case Hearts:
		return 'h'
	case Diamonds:
		return 'd'
	case Clubs:
		return 'c'
	case Spades:
		return 's'
	default:
		return '?'
	}
}

// Rank represents a card rank
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// Code returns the single-character wire code for a rank.
// Ten encodes as '0' so every card code stays two characters.
func (r Rank) Code() byte {
	switch r {
	case Two, Three, Four, Five, Six, Seven, Eight, Nine:
		return byte('0' + int(r))
	case Ten:
		return '0'
	case Jack:
		return 'J'
	case Queen:
		return 'Q'
	case King:
		return 'K'
	case Ace:
		return 'A'
	default:
		return '?'
	}
}

// String returns the display form of a rank
func (r Rank) String() string {
	if r == Ten {
		return "10"
	}
	return string(r.Code())
}

// Card represents an immutable playing card
type Card struct {
	Suit Suit
	Rank Rank
}

// New creates a new card
func New(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank}
}

// Valid reports whether the card has a real rank and suit
func (c Card) Valid() bool {
	return c.Rank >= Two && c.Rank <= Ace && c.Suit >= Hearts && c.Suit <= Spades
}

// Code returns the two-character wire code (e.g. "Ah", "0s" for ten of spades)
func (c Card) Code() string {
	return string([]byte{c.Rank.Code(), c.Suit.Code()})
}

// String returns the display form of a card (e.g. "A♥")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// IsAce returns true if the card is an Ace
func (c Card) IsAce() bool {
	return c.Rank == Ace
}

// Parse decodes a two-character card code. Any code that does not name a
// real card is rejected, including placeholder and face-down markers.
func Parse(code string) (Card, error) {
	if len(code) != 2 {
		return Card{}, fmt.Errorf("card code %q: must be two characters", code)
	}

	var rank Rank
	switch code[0] {
	case '2', '3', '4', '5', '6', '7', '8', '9':
		rank = Rank(code[0] - '0')
	case '0':
		rank = Ten
	case 'J':
		rank = Jack
	case 'Q':
		rank = Queen
	case 'K':
		rank = King
	case 'A':
		rank = Ace
	default:
		return Card{}, fmt.Errorf("card code %q: unknown rank %q", code, code[0])
	}

	var suit Suit
	switch code[1] {
	case 'h':
		suit = Hearts
	case 'd':
		suit = Diamonds
	case 'c':
		suit = Clubs
	case 's':
		suit = Spades
	default:
		return Card{}, fmt.Errorf("card code %q: unknown suit %q", code, code[1])
	}

	return Card{Suit: suit, Rank: rank}, nil
}

// MarshalJSON encodes the card as its two-character code
func (c Card) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("cannot encode invalid card (rank=%d suit=%d)", c.Rank, c.Suit)
	}
	return []byte(`"` + c.Code() + `"`), nil
}

// UnmarshalJSON decodes a two-character code, rejecting anything that is
// not a real card
func (c *Card) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("card: expected string code, got %s", data)
	}
	card, err := Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*c = card
	return nil
}
