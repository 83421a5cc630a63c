package game

// DefaultGraceSeconds is how long a disconnected occupant keeps their turn
// rights before rotation passes over them.
const DefaultGraceSeconds = 10

// Eligibility evaluates who may bet or act at a given instant. Now is the
// current epoch second and Grace the disconnect allowance in seconds. Probe,
// when set, answers whether a live socket exists for an identity; it covers
// the window where a socket is back up but the connect hook has not landed.
type Eligibility struct {
	Now   int64
	Grace int64
	Probe func(identity string) bool
}

// WithinGrace reports whether the occupant is connected, has a live socket,
// or only recently disconnected. A zero DisconnectedSince on a disconnected
// occupant counts as expired rather than fresh.
func (e Eligibility) WithinGrace(o *Occupant) bool {
	if o.Connected {
		return true
	}
	if e.Probe != nil && e.Probe(o.Identity) {
		return true
	}
	if o.DisconnectedSince == 0 {
		return false
	}
	return e.Now < o.DisconnectedSince+e.Grace
}

// BettingEligible reports whether the occupant still owes a wager this round
func (e Eligibility) BettingEligible(o *Occupant) bool {
	return !o.HasBet && !o.Skipped && e.WithinGrace(o)
}

// ActionEligible reports whether the occupant may take a turn action:
// present and holding at least one hand that can still act.
func (e Eligibility) ActionEligible(o *Occupant) bool {
	return e.WithinGrace(o) && o.HasLiveHand()
}

// SeatOrder returns occupants sorted by ascending seat id. The slice holds
// the occupants themselves so callers can test eligibility without a second
// lookup.
func SeatOrder(t *Table) []*Occupant {
	order := make([]*Occupant, len(t.Occupants))
	copy(order, t.Occupants)
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j].Seat < order[j-1].Seat; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	return order
}

// NextEligible finds the next occupant after current in seat order that
// passes the eligible test. The scan is bounded to a single lap over the
// table, so a table with no eligible occupant terminates with ok=false
// instead of spinning. An empty current starts the scan from the first
// seat.
func NextEligible(order []*Occupant, current string, eligible func(*Occupant) bool) (*Occupant, bool) {
	if len(order) == 0 {
		return nil, false
	}
	start := 0
	if current != "" {
		for i, o := range order {
			if o.Identity == current {
				start = i + 1
				break
			}
		}
	}
	for i := 0; i < len(order); i++ {
		o := order[(start+i)%len(order)]
		if eligible(o) {
			return o, true
		}
	}
	return nil, false
}
