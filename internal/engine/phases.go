package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/greenfelt/dealerd/internal/game"
)

// startBetting opens a fresh wagering round. Cards and wagers from the
// previous round are gone by the time anyone sees this phase; the rotation
// starts at the lowest eligible seat, each bettor on the action clock.
func (e *Engine) startBetting(t *game.Table, now int64) {
	t.Phase = game.PhaseBetting
	t.ClearHands()
	t.ClearBets()
	t.ClearPhaseTimer()
	elig := e.eligibility(t, now)
	first, ok := game.NextEligible(game.SeatOrder(t), "", elig.BettingEligible)
	if !ok {
		t.CurrentActor = ""
		t.ClearActionTimer()
		return
	}
	e.setActor(t, first.Identity, now)
}

// startDealing closes the wagering window and deals the round. Occupants
// without a wager are marked skipped so rotation passes over them. A deal
// the deck cannot cover aborts the round back to betting with wagers
// cleared.
func (e *Engine) startDealing(t *game.Table, now int64) {
	v, ok := e.variants.Lookup(t.RoomType)
	if !ok {
		e.logger.Error().Str("room_id", t.ID).Str("room_type", t.RoomType).
			Msg("no variant registered for room type")
		e.startBetting(t, now)
		return
	}
	for _, o := range t.Occupants {
		o.Skipped = !o.HasBet
	}
	t.Phase = game.PhaseDealing
	t.ClearPhaseTimer()
	t.LastEvaluation = nil
	t.PendingPayouts = nil

	var dealErr error
	e.WithRNG(func(rng *rand.Rand) {
		dealErr = v.DealInitial(t, rng)
	})
	if dealErr != nil {
		e.logger.Warn().Err(dealErr).Str("room_id", t.ID).Msg("deal aborted")
		t.ClearHands()
		t.ClearBets()
		e.startBetting(t, now)
		return
	}
	e.beginPlayerTurn(t, now)
}

// beginPlayerTurn hands the action to the first eligible seat. A round
// where nobody can act, every hand a standing natural for instance, goes
// straight to the house.
func (e *Engine) beginPlayerTurn(t *game.Table, now int64) {
	t.Phase = game.PhasePlayerTurn
	t.ClearPhaseTimer()
	elig := e.eligibility(t, now)
	first, ok := game.NextEligible(game.SeatOrder(t), "", elig.ActionEligible)
	if !ok {
		e.enterDealerTurn(t, now)
		return
	}
	e.setActor(t, first.Identity, now)
}

func (e *Engine) setActor(t *game.Table, identity string, now int64) {
	t.CurrentActor = identity
	t.SetActionTimer(now, seconds(e.cfg.ActionTimeout))
}

// advanceAfterMove decides who acts next once a move lands: the same
// occupant while their hand stays open, their next split hand, the next
// eligible seat, or the house when the lap is complete.
func (e *Engine) advanceAfterMove(t *game.Table, o *game.Occupant, now int64) {
	if t.Phase != game.PhasePlayerTurn {
		return
	}
	if h := o.CurrentHand(); h != nil && !h.Done() && !o.Folded {
		e.setActor(t, o.Identity, now)
		return
	}
	if !o.Folded && o.AdvanceHand() {
		e.setActor(t, o.Identity, now)
		return
	}
	elig := e.eligibility(t, now)
	next, ok := game.NextEligible(game.SeatOrder(t), o.Identity, elig.ActionEligible)
	if !ok {
		e.enterDealerTurn(t, now)
		return
	}
	e.setActor(t, next.Identity, now)
}

// enterDealerTurn reveals the house state and arms the short dramatic
// pause before the house plays out.
func (e *Engine) enterDealerTurn(t *game.Table, now int64) {
	t.Phase = game.PhaseDealerTurn
	t.CurrentActor = ""
	t.ClearActionTimer()
	if v, ok := e.variants.Lookup(t.RoomType); ok {
		v.RevealDealer(t)
	}
	t.SetPhaseTimer(now, seconds(e.cfg.DealerDelay))
}

// resolveDealer plays the house out and moves to showdown
func (e *Engine) resolveDealer(t *game.Table, now int64) {
	if v, ok := e.variants.Lookup(t.RoomType); ok {
		v.ResolveDealer(t)
	}
	e.enterShowdown(t, now)
}

// enterShowdown settles the round. The evaluation and the write-once
// payout record are staged here; the credited flag flips in the persist
// path so it is durable before any ledger call.
func (e *Engine) enterShowdown(t *game.Table, now int64) {
	t.Phase = game.PhaseShowdown
	if v, ok := e.variants.Lookup(t.RoomType); ok {
		eval, nets := v.Settle(t)
		t.LastEvaluation = eval
		t.PendingPayouts = &game.PendingPayouts{Amounts: nets}
	}
	t.SetPhaseTimer(now, seconds(e.cfg.ShowdownWindow))
}

// enterPostRound clears the played round away and holds the table briefly
// before the next wagering window. The evaluation stays up for anyone who
// missed the showdown.
func (e *Engine) enterPostRound(t *game.Table, now int64) {
	t.Phase = game.PhasePostRound
	t.ClearHands()
	t.ClearBets()
	t.SetPhaseTimer(now, seconds(e.cfg.PostRoundPause))
}

// resetToPreGame wipes a deserted table back to its idle state
func (e *Engine) resetToPreGame(t *game.Table) {
	t.Phase = game.PhasePreGame
	t.ClearHands()
	t.ClearBets()
	t.ClearPhaseTimer()
	t.ClearActionTimer()
	t.CurrentActor = ""
	t.EmptySince = 0
	t.LastEvaluation = nil
	t.PendingPayouts = nil
}

// firePending runs the transition the current phase is waiting on, as if
// its deadline had just expired. Reports whether anything changed.
func (e *Engine) firePending(ctx context.Context, t *game.Table, now int64) bool {
	switch t.Phase {
	case game.PhasePreGame:
		if len(t.Occupants) == 0 {
			return false
		}
		e.startBetting(t, now)
	case game.PhaseBetting:
		if !anyBets(t) {
			return false
		}
		e.startDealing(t, now)
	case game.PhasePlayerTurn:
		return e.fireActorTimeout(t, now)
	case game.PhaseDealerTurn:
		e.resolveDealer(t, now)
	case game.PhaseShowdown:
		e.enterPostRound(t, now)
	case game.PhasePostRound:
		e.startBetting(t, now)
	default:
		return false
	}
	return true
}

// fireActorTimeout resolves the current actor's turn on their behalf: the
// variant picks the forced move. A vanished or rejected actor is closed
// out so the rotation can never stall on them.
func (e *Engine) fireActorTimeout(t *game.Table, now int64) bool {
	v, vok := e.variants.Lookup(t.RoomType)
	actor := t.Occupant(t.CurrentActor)
	if actor == nil || !vok {
		elig := e.eligibility(t, now)
		next, ok := game.NextEligible(game.SeatOrder(t), t.CurrentActor, elig.ActionEligible)
		if ok {
			e.setActor(t, next.Identity, now)
		} else {
			e.enterDealerTurn(t, now)
		}
		return true
	}

	move := v.TimeoutMove(t, actor)
	if err := v.ApplyMove(t, actor, move, 0); err != nil {
		if h := actor.CurrentHand(); h != nil {
			h.Standing = true
			h.HasActed = true
		}
		e.logger.Warn().Err(err).Str("room_id", t.ID).Str("identity", actor.Identity).
			Str("move", move).Msg("timeout move rejected, closing hand")
	} else {
		e.logger.Info().Str("room_id", t.ID).Str("identity", actor.Identity).
			Str("move", move).Msg("timeout move applied")
	}
	e.advanceAfterMove(t, actor, now)
	return true
}

func anyBets(t *game.Table) bool {
	for _, o := range t.Occupants {
		if o.HasBet {
			return true
		}
	}
	return false
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
