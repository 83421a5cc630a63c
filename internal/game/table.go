package game

import (
	"github.com/greenfelt/dealerd/internal/cards"
)

// Phase is one state in the table lifecycle. Phases persist inside the
// table document, so they are stable strings rather than ints.
type Phase string

const (
	PhasePreGame    Phase = "pre_game"
	PhaseBetting    Phase = "betting"
	PhaseDealing    Phase = "dealing"
	PhasePlayerTurn Phase = "player_turn"
	PhaseDealerTurn Phase = "dealer_turn"
	PhaseShowdown   Phase = "showdown"
	PhasePostRound  Phase = "post_round"
)

// Room types select the game variant at creation time.
const (
	RoomTypeBlackjack = "blackjack"
	RoomTypeHoldem    = "holdem"
)

// Hand is one playable hand: its cards plus per-hand betting and action
// sub-state. An occupant usually has one, but a blackjack split adds more.
type Hand struct {
	Cards       []cards.Card `json:"cards"`
	Total       int          `json:"total,omitempty"`
	Soft        bool         `json:"soft,omitempty"`
	Busted      bool         `json:"busted,omitempty"`
	Standing    bool         `json:"standing,omitempty"`
	HasActed    bool         `json:"has_acted,omitempty"`
	Doubled     bool         `json:"doubled,omitempty"`
	Surrendered bool         `json:"surrendered,omitempty"`
	Insured     bool         `json:"insured,omitempty"`
	FromSplit   bool         `json:"from_split,omitempty"`
	Bet         int64        `json:"bet"`
}

// Done reports whether this hand can take no further action
func (h *Hand) Done() bool {
	return h.Busted || h.Standing || h.Surrendered
}

// Occupant is a seated participant.
type Occupant struct {
	Identity          string  `json:"identity"`
	Name              string  `json:"name,omitempty"`
	Seat              int     `json:"seat"`
	Connected         bool    `json:"connected"`
	DisconnectedSince int64   `json:"disconnected_since,omitempty"`
	Bet               int64   `json:"bet"`
	HasBet            bool    `json:"has_bet,omitempty"`
	Skipped           bool    `json:"skipped,omitempty"`
	Folded            bool    `json:"folded,omitempty"`
	Hands             []*Hand `json:"hands,omitempty"`
	ActiveHand        int     `json:"active_hand,omitempty"`
}

// CurrentHand returns the occupant's active hand, or nil
func (o *Occupant) CurrentHand() *Hand {
	if o.ActiveHand < 0 || o.ActiveHand >= len(o.Hands) {
		return nil
	}
	return o.Hands[o.ActiveHand]
}

// AdvanceHand moves the active-hand cursor to the next unfinished hand and
// reports whether one was found. Split hands queue up behind each other.
func (o *Occupant) AdvanceHand() bool {
	for i := o.ActiveHand + 1; i < len(o.Hands); i++ {
		if !o.Hands[i].Done() {
			o.ActiveHand = i
			return true
		}
	}
	return false
}

// HasLiveHand reports whether any of the occupant's hands can still act
func (o *Occupant) HasLiveHand() bool {
	if o.Folded {
		return false
	}
	for _, h := range o.Hands {
		if !h.Done() {
			return true
		}
	}
	return false
}

// PendingPayouts is the write-once settlement record for one hand. Credited
// flips false to true exactly once; a second settlement of the same hand is
// a no-op.
type PendingPayouts struct {
	Amounts  map[string]int64 `json:"amounts,omitempty"`
	Credited bool             `json:"credited"`
}

// HandResult describes one occupant's showdown outcome
type HandResult struct {
	Identity  string       `json:"identity"`
	Name      string       `json:"name,omitempty"`
	Outcome   string       `json:"outcome"`
	HandDesc  string       `json:"hand_desc,omitempty"`
	Amount    int64        `json:"amount"`
	HoleCards []cards.Card `json:"hole_cards,omitempty"`
}

// Evaluation is the most recent showdown result, retained until the next
// hand deals. Ledger credit failures surface here for operator follow-up.
type Evaluation struct {
	Results        []HandResult `json:"results,omitempty"`
	Summary        string       `json:"summary,omitempty"`
	CreditFailures []string     `json:"credit_failures,omitempty"`
}

// Table is the root aggregate, persisted as one JSON document per room id.
type Table struct {
	ID         string `json:"id"`
	GuildRef   string `json:"guild_ref,omitempty"`
	ChannelRef string `json:"channel_ref,omitempty"`
	RoomType   string `json:"room_type"`
	GameMode   string `json:"game_mode"`

	Phase     Phase       `json:"phase"`
	Occupants []*Occupant `json:"occupants"`

	DealerHand   []cards.Card `json:"dealer_hand,omitempty"`
	DealerTotal  int          `json:"dealer_total,omitempty"`
	HoleRevealed bool         `json:"hole_revealed,omitempty"`
	BoardCards   []cards.Card `json:"board_cards,omitempty"`
	CurrentBet   int64        `json:"current_bet,omitempty"`

	Deck []cards.Card `json:"deck,omitempty"`

	CurrentActor string `json:"current_actor,omitempty"`

	PhaseTimerStart    int64 `json:"phase_timer_start,omitempty"`
	PhaseTimerSeconds  int   `json:"phase_timer_seconds,omitempty"`
	ActionTimerStart   int64 `json:"action_timer_start,omitempty"`
	ActionTimerSeconds int   `json:"action_timer_seconds,omitempty"`
	ActionDeadline     int64 `json:"action_deadline,omitempty"`

	Revision int64 `json:"revision"`

	MinBet int64 `json:"min_bet"`
	MaxBet int64 `json:"max_bet"`

	LastEvaluation *Evaluation     `json:"last_evaluation,omitempty"`
	PendingPayouts *PendingPayouts `json:"pending_payouts,omitempty"`

	EmptySince int64 `json:"empty_since,omitempty"`
}

// NewTable creates a fresh table in pre_game. Routing identifiers are set
// once here and never cleared.
func NewTable(id, guildRef, channelRef, roomType, gameMode string, minBet, maxBet int64) *Table {
	return &Table{
		ID:         id,
		GuildRef:   guildRef,
		ChannelRef: channelRef,
		RoomType:   roomType,
		GameMode:   gameMode,
		Phase:      PhasePreGame,
		Occupants:  []*Occupant{},
		MinBet:     minBet,
		MaxBet:     maxBet,
	}
}

// Bump increments the revision. Every transition bumps exactly once before
// the document is written back.
func (t *Table) Bump() {
	t.Revision++
}

// Occupant returns the seated participant with the given identity, or nil
func (t *Table) Occupant(identity string) *Occupant {
	for _, o := range t.Occupants {
		if o.Identity == identity {
			return o
		}
	}
	return nil
}

// SeatTaken reports whether a seat id is already held
func (t *Table) SeatTaken(seat int) bool {
	for _, o := range t.Occupants {
		if o.Seat == seat {
			return true
		}
	}
	return false
}

// NextFreeSeat returns the lowest unheld seat id, starting from 1
func (t *Table) NextFreeSeat() int {
	seat := 1
	for t.SeatTaken(seat) {
		seat++
	}
	return seat
}

// RemoveOccupant frees the identity's seat and reports whether it was held
func (t *Table) RemoveOccupant(identity string) bool {
	for i, o := range t.Occupants {
		if o.Identity == identity {
			t.Occupants = append(t.Occupants[:i], t.Occupants[i+1:]...)
			return true
		}
	}
	return false
}

// DrawCard pops the top card from the persisted deck, signalling exhaustion
func (t *Table) DrawCard() (cards.Card, bool) {
	card, rest, ok := cards.DrawTop(t.Deck)
	if !ok {
		return cards.Card{}, false
	}
	t.Deck = rest
	return card, true
}

// ClearHands wipes all dealt cards and per-hand state while keeping seats,
// identities and limits. Used entering betting and on empty-table resets.
func (t *Table) ClearHands() {
	for _, o := range t.Occupants {
		o.Hands = nil
		o.ActiveHand = 0
		o.Folded = false
	}
	t.DealerHand = nil
	t.DealerTotal = 0
	t.HoleRevealed = false
	t.BoardCards = nil
	t.CurrentBet = 0
	t.Deck = nil
}

// ClearBets resets wagers and per-round betting marks
func (t *Table) ClearBets() {
	for _, o := range t.Occupants {
		o.Bet = 0
		o.HasBet = false
		o.Skipped = false
	}
}

// Normalize fills defaults for documents that predate newer fields and
// keeps derived values consistent after a reload.
func (t *Table) Normalize(minBet, maxBet int64) {
	if t.Phase == "" {
		t.Phase = PhasePreGame
	}
	if t.RoomType == "" {
		t.RoomType = RoomTypeBlackjack
	}
	if t.GameMode == "" {
		t.GameMode = "1"
	}
	if t.Occupants == nil {
		t.Occupants = []*Occupant{}
	}
	if t.MinBet <= 0 {
		t.MinBet = minBet
	}
	if t.MaxBet <= 0 {
		t.MaxBet = maxBet
	}
	if t.ActionTimerStart > 0 && t.ActionTimerSeconds > 0 && t.ActionDeadline == 0 {
		t.ActionDeadline = t.ActionTimerStart + int64(t.ActionTimerSeconds)
	}
	for _, o := range t.Occupants {
		if o.ActiveHand >= len(o.Hands) {
			o.ActiveHand = 0
		}
	}
}

// SetPhaseTimer arms the phase deadline from now
func (t *Table) SetPhaseTimer(now int64, seconds int) {
	t.PhaseTimerStart = now
	t.PhaseTimerSeconds = seconds
}

// ClearPhaseTimer disarms the phase deadline
func (t *Table) ClearPhaseTimer() {
	t.PhaseTimerStart = 0
	t.PhaseTimerSeconds = 0
}

// PhaseDeadline returns the epoch second the phase timer expires, or 0
func (t *Table) PhaseDeadline() int64 {
	if t.PhaseTimerStart == 0 || t.PhaseTimerSeconds <= 0 {
		return 0
	}
	return t.PhaseTimerStart + int64(t.PhaseTimerSeconds)
}

// SetActionTimer arms the per-actor deadline from now
func (t *Table) SetActionTimer(now int64, seconds int) {
	t.ActionTimerStart = now
	t.ActionTimerSeconds = seconds
	t.ActionDeadline = now + int64(seconds)
}

// ClearActionTimer disarms the per-actor deadline
func (t *Table) ClearActionTimer() {
	t.ActionTimerStart = 0
	t.ActionTimerSeconds = 0
	t.ActionDeadline = 0
}

// SanitizeCards drops any card that is not a real rank+suit from every card
// collection and returns how many were removed. Runs immediately before
// every write so placeholders can never persist or transmit.
func (t *Table) SanitizeCards() int {
	dropped := 0
	t.Deck, dropped = sanitizePile(t.Deck, dropped)
	t.DealerHand, dropped = sanitizePile(t.DealerHand, dropped)
	t.BoardCards, dropped = sanitizePile(t.BoardCards, dropped)
	for _, o := range t.Occupants {
		for _, h := range o.Hands {
			h.Cards, dropped = sanitizePile(h.Cards, dropped)
		}
	}
	if t.LastEvaluation != nil {
		for i := range t.LastEvaluation.Results {
			t.LastEvaluation.Results[i].HoleCards, dropped = sanitizePile(t.LastEvaluation.Results[i].HoleCards, dropped)
		}
	}
	return dropped
}

func sanitizePile(pile []cards.Card, dropped int) ([]cards.Card, int) {
	clean := pile[:0]
	for _, c := range pile {
		if c.Valid() {
			clean = append(clean, c)
		} else {
			dropped++
		}
	}
	return clean, dropped
}
