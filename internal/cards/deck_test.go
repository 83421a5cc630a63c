package cards

import (
	"math/rand"
	"testing"
)

func TestNewDeckHas52UniqueCards(t *testing.T) {
	d := NewDeck(rand.New(rand.NewSource(1)))
	if d.Remaining() != 52 {
		t.Fatalf("Remaining() = %d, want 52", d.Remaining())
	}

	seen := make(map[string]bool)
	for {
		card, ok := d.Draw()
		if !ok {
			break
		}
		code := card.Code()
		if seen[code] {
			t.Errorf("duplicate card %q", code)
		}
		seen[code] = true
	}
	if len(seen) != 52 {
		t.Errorf("drew %d unique cards, want 52", len(seen))
	}
}

func TestShuffleIsDeterministicForSeed(t *testing.T) {
	a := NewDeck(rand.New(rand.NewSource(42)))
	b := NewDeck(rand.New(rand.NewSource(42)))
	a.Shuffle()
	b.Shuffle()

	ca, cb := a.Cards(), b.Cards()
	for i := range ca {
		if ca[i] != cb[i] {
			t.Fatalf("decks diverge at %d: %v vs %v", i, ca[i], cb[i])
		}
	}
}

func TestDrawExhaustion(t *testing.T) {
	d := NewDeck(rand.New(rand.NewSource(7)))
	for i := 0; i < 52; i++ {
		if _, ok := d.Draw(); !ok {
			t.Fatalf("Draw() failed at card %d", i)
		}
	}
	if _, ok := d.Draw(); ok {
		t.Error("Draw() on empty deck should signal exhaustion")
	}
}

func TestDrawTopPopsEnd(t *testing.T) {
	pile := []Card{New(Hearts, Two), New(Spades, Ace)}

	card, rest, ok := DrawTop(pile)
	if !ok {
		t.Fatal("DrawTop() should succeed on a non-empty pile")
	}
	if card != New(Spades, Ace) {
		t.Errorf("DrawTop() = %v, want the end of the pile", card)
	}
	if len(rest) != 1 {
		t.Errorf("rest has %d cards, want 1", len(rest))
	}

	_, _, ok = DrawTop(nil)
	if ok {
		t.Error("DrawTop(nil) should report exhaustion")
	}
}
