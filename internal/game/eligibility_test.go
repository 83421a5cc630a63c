package game

import "testing"

func TestWithinGrace(t *testing.T) {
	e := Eligibility{Now: 1000, Grace: 10}

	tests := []struct {
		name     string
		occupant Occupant
		want     bool
	}{
		{name: "connected", occupant: Occupant{Connected: true}, want: true},
		{name: "recently dropped", occupant: Occupant{DisconnectedSince: 995}, want: true},
		{name: "just inside the window", occupant: Occupant{DisconnectedSince: 991}, want: true},
		{name: "grace elapsed", occupant: Occupant{DisconnectedSince: 990}, want: false},
		{name: "long gone", occupant: Occupant{DisconnectedSince: 900}, want: false},
		{name: "never stamped", occupant: Occupant{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.WithinGrace(&tt.occupant); got != tt.want {
				t.Errorf("WithinGrace() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithinGraceProbe(t *testing.T) {
	live := Eligibility{Now: 1000, Grace: 10, Probe: func(string) bool { return true }}
	dead := Eligibility{Now: 1000, Grace: 10, Probe: func(string) bool { return false }}

	// a live socket keeps a long-disconnected occupant in the game until
	// the connect hook catches up
	gone := &Occupant{Identity: "alice", DisconnectedSince: 900}
	if !live.WithinGrace(gone) {
		t.Error("expected live socket to override the grace clock")
	}
	if dead.WithinGrace(gone) {
		t.Error("expected dead socket to leave the grace clock in charge")
	}
}

func TestBettingEligible(t *testing.T) {
	e := Eligibility{Now: 1000, Grace: 10}

	if !e.BettingEligible(&Occupant{Connected: true}) {
		t.Error("expected connected occupant betting-eligible")
	}
	if e.BettingEligible(&Occupant{Connected: true, HasBet: true}) {
		t.Error("expected occupant with a wager down excluded")
	}
	if e.BettingEligible(&Occupant{Connected: true, Skipped: true}) {
		t.Error("expected skipped occupant excluded")
	}
	if e.BettingEligible(&Occupant{DisconnectedSince: 900}) {
		t.Error("expected long-gone occupant excluded")
	}
}

func TestActionEligible(t *testing.T) {
	e := Eligibility{Now: 1000, Grace: 10}

	live := &Occupant{Connected: true, Hands: []*Hand{{}}}
	if !e.ActionEligible(live) {
		t.Error("expected occupant with open hand action-eligible")
	}

	// everyone in the turn rotation has a wager down already
	wagered := &Occupant{Connected: true, HasBet: true, Bet: 50, Hands: []*Hand{{}}}
	if !e.ActionEligible(wagered) {
		t.Error("expected occupant with wager down still action-eligible")
	}

	done := &Occupant{Connected: true, Hands: []*Hand{{Standing: true}}}
	if e.ActionEligible(done) {
		t.Error("expected occupant with finished hand excluded")
	}

	folded := &Occupant{Connected: true, Folded: true, Hands: []*Hand{{}}}
	if e.ActionEligible(folded) {
		t.Error("expected folded occupant excluded")
	}

	noHand := &Occupant{Connected: true}
	if e.ActionEligible(noHand) {
		t.Error("expected occupant without a hand excluded")
	}
}

func TestSeatOrder(t *testing.T) {
	table := NewTable("room-1", "", "", RoomTypeBlackjack, "1", 5, 500)
	table.Occupants = append(table.Occupants,
		&Occupant{Identity: "carol", Seat: 5},
		&Occupant{Identity: "alice", Seat: 1},
		&Occupant{Identity: "bob", Seat: 3},
	)

	order := SeatOrder(table)
	want := []string{"alice", "bob", "carol"}
	for i, id := range want {
		if order[i].Identity != id {
			t.Errorf("position %d: expected %s, got %s", i, id, order[i].Identity)
		}
	}

	if table.Occupants[0].Identity != "carol" {
		t.Error("expected SeatOrder to leave the table slice untouched")
	}
}

func TestNextEligible(t *testing.T) {
	order := []*Occupant{
		{Identity: "alice", Seat: 1, Connected: true},
		{Identity: "bob", Seat: 2},
		{Identity: "carol", Seat: 3, Connected: true},
	}
	connected := func(o *Occupant) bool { return o.Connected }

	tests := []struct {
		name    string
		current string
		wantID  string
		wantOK  bool
	}{
		{name: "from start", current: "", wantID: "alice", wantOK: true},
		{name: "skips ineligible", current: "alice", wantID: "carol", wantOK: true},
		{name: "wraps around", current: "carol", wantID: "alice", wantOK: true},
		{name: "unknown current scans from start", current: "mallory", wantID: "alice", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextEligible(order, tt.current, connected)
			if ok != tt.wantOK {
				t.Fatalf("NextEligible() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Identity != tt.wantID {
				t.Errorf("NextEligible() = %s, want %s", got.Identity, tt.wantID)
			}
		})
	}
}

func TestNextEligibleBounded(t *testing.T) {
	order := []*Occupant{
		{Identity: "alice", Seat: 1},
		{Identity: "bob", Seat: 2},
	}
	never := func(*Occupant) bool { return false }

	if _, ok := NextEligible(order, "alice", never); ok {
		t.Error("expected no eligible occupant")
	}
	if _, ok := NextEligible(nil, "", never); ok {
		t.Error("expected empty order to return false")
	}
}
