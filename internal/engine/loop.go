package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/greenfelt/dealerd/internal/game"
	"github.com/greenfelt/dealerd/internal/protocol"
)

// Run drives the shared one second loop until the context ends or Stop is
// called. The watch set is primed from every persisted room so deadlines
// keep firing across restarts.
func (e *Engine) Run(ctx context.Context) error {
	rooms, err := e.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("prime watch set: %w", err)
	}
	for _, r := range rooms {
		e.Watch(r.RoomID)
	}
	e.logger.Info().Int("rooms", len(rooms)).Msg("timer loop running")

	ticker := e.clock.NewTicker(time.Second, "engine_loop")
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick walks the watched rooms once.
func (e *Engine) tick(ctx context.Context) {
	now := e.now()
	for _, roomID := range e.watchedRooms() {
		e.tickRoom(ctx, roomID, now)
	}
}

// tickRoom applies whatever is overdue for one room and emits its
// heartbeat. A panic is contained to the room so one poisoned state cannot
// take the whole loop down. Loop writes are conditional on the revision
// observed at load; losing the race to an envelope discards the tick's
// work, credits included, and the next tick re-derives it.
func (e *Engine) tickRoom(ctx context.Context, roomID string, now int64) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("room_id", roomID).Interface("panic", r).
				Msg("tick panicked")
		}
	}()

	lock := e.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.store.Load(ctx, roomID)
	if err != nil {
		e.logger.Error().Err(err).Str("room_id", roomID).Msg("tick load failed")
		return
	}
	if t == nil {
		e.unwatch(roomID)
		return
	}
	stakes := e.cfg.stakesFor(t.GameMode)
	t.Normalize(stakes.Min, stakes.Max)

	// dormant rooms drop out of the working set
	if len(t.Occupants) == 0 && t.Phase == game.PhasePreGame {
		e.unwatch(roomID)
		return
	}

	expected := t.Revision
	mutated := e.reconcilePresence(t, now)
	if e.reapExpired(t, now) {
		mutated = true
	}
	if e.applyDue(ctx, t, now) {
		mutated = true
	}
	if !mutated {
		if msg := e.tickMessage(t, now); msg != nil {
			e.broadcaster.BroadcastToRoom(roomID, msg)
		}
		return
	}

	t.Bump()
	if dropped := t.SanitizeCards(); dropped > 0 {
		e.logger.Warn().Str("room_id", roomID).Int("dropped", dropped).
			Msg("dropped invalid cards before save")
	}
	settled := e.markSettled(t)
	saved, err := e.store.SaveIfRevision(ctx, t, expected)
	if err != nil {
		e.logger.Error().Err(err).Str("room_id", roomID).Msg("tick save failed")
		return
	}
	if !saved {
		e.logger.Debug().Str("room_id", roomID).Int64("expected", expected).
			Msg("room changed under the loop, discarding tick work")
		return
	}
	e.broadcaster.BroadcastToRoom(roomID, protocol.NewStateMessage(t, now))
	if settled {
		e.creditPending(ctx, t, now)
	}
}

// reconcilePresence starts the grace clock for occupants recorded as
// connected whose socket is gone. Covers sockets that died with a previous
// process, where no disconnect hook ever fired.
func (e *Engine) reconcilePresence(t *game.Table, now int64) bool {
	mutated := false
	for _, o := range t.Occupants {
		if o.Connected && !e.broadcaster.HasLiveSocket(t.ID, o.Identity) {
			o.Connected = false
			o.DisconnectedSince = now
			e.logger.Info().Str("room_id", t.ID).Str("identity", o.Identity).
				Msg("no live socket for connected occupant, grace running")
			mutated = true
		}
	}
	return mutated
}

// reapExpired unseats occupants whose grace ran out with no socket coming
// back. Removal repairs rotation the same way an explicit leave does.
func (e *Engine) reapExpired(t *game.Table, now int64) bool {
	elig := e.eligibility(t, now)
	var gone []string
	for _, o := range t.Occupants {
		if !o.Connected && !elig.WithinGrace(o) {
			gone = append(gone, o.Identity)
		}
	}
	for _, identity := range gone {
		e.removeOccupant(t, identity, now, "grace expired, unseating")
	}
	return len(gone) > 0
}

// applyDue runs any transition the wall clock says is overdue. Reports
// whether the table changed.
func (e *Engine) applyDue(ctx context.Context, t *game.Table, now int64) bool {
	if len(t.Occupants) == 0 {
		return e.applyEmptyDebounce(t, now)
	}
	mutated := false
	if t.EmptySince != 0 {
		t.EmptySince = 0
		mutated = true
	}

	switch t.Phase {
	case game.PhasePreGame:
		deadline := t.PhaseDeadline()
		if deadline == 0 {
			// seated occupants with no wait armed, an older document;
			// arm it now rather than starting the round abruptly
			t.SetPhaseTimer(now, seconds(e.cfg.PreGameWait))
			return true
		}
		if now < deadline {
			return mutated
		}
		e.startBetting(t, now)
		return true
	case game.PhaseBetting:
		return e.applyBettingTimeout(t, now) || mutated
	case game.PhasePlayerTurn:
		return e.applyTurnTimeout(t, now) || mutated
	case game.PhaseDealerTurn, game.PhaseShowdown, game.PhasePostRound:
		deadline := t.PhaseDeadline()
		if deadline == 0 || now < deadline {
			return mutated
		}
		return e.firePending(ctx, t, now) || mutated
	}
	return mutated
}

// applyBettingTimeout skips the current bettor once their window lapses. A
// rotation that stalled without an actor is reopened so betting never sits
// without a live deadline.
func (e *Engine) applyBettingTimeout(t *game.Table, now int64) bool {
	actor := t.Occupant(t.CurrentActor)
	elig := e.eligibility(t, now)
	if actor == nil {
		if next, ok := game.NextEligible(game.SeatOrder(t), "", elig.BettingEligible); ok {
			e.setActor(t, next.Identity, now)
			return true
		}
		if anyBets(t) {
			e.startDealing(t, now)
			return true
		}
		return false
	}
	if elig.WithinGrace(actor) && (t.ActionDeadline == 0 || now < t.ActionDeadline) {
		return false
	}
	actor.Skipped = true
	e.logger.Info().Str("room_id", t.ID).Str("identity", actor.Identity).
		Msg("wager window lapsed, skipping this round")
	e.advanceBetting(t, actor.Identity, now)
	return true
}

// applyTurnTimeout forces the current actor's move once their clock runs
// out. An actor past the disconnect grace is not waited on at all.
func (e *Engine) applyTurnTimeout(t *game.Table, now int64) bool {
	actor := t.Occupant(t.CurrentActor)
	if actor == nil {
		return e.fireActorTimeout(t, now)
	}
	elig := e.eligibility(t, now)
	if !elig.WithinGrace(actor) {
		return e.fireActorTimeout(t, now)
	}
	if t.ActionDeadline != 0 && now >= t.ActionDeadline {
		return e.fireActorTimeout(t, now)
	}
	return false
}

// applyEmptyDebounce resets a deserted table after it has stayed empty for
// the debounce window. A reseat in the meantime cancels it.
func (e *Engine) applyEmptyDebounce(t *game.Table, now int64) bool {
	if t.Phase == game.PhasePreGame {
		return false
	}
	if t.EmptySince == 0 {
		t.EmptySince = now
		return true
	}
	if now-t.EmptySince < int64(seconds(e.cfg.EmptyDebounce)) {
		return false
	}
	e.logger.Info().Str("room_id", t.ID).Msg("table stayed empty, resetting")
	e.resetToPreGame(t)
	return true
}

// tickMessage builds the per-second heartbeat for phases that carry a
// countdown. Quiet phases get no heartbeat.
func (e *Engine) tickMessage(t *game.Table, now int64) *protocol.TickMessage {
	msg := &protocol.TickMessage{
		Type:     protocol.TypeTick,
		RoomID:   t.ID,
		ServerTS: now,
		Phase:    t.Phase,
		Revision: t.Revision,
	}
	switch t.Phase {
	case game.PhasePreGame:
		if t.PhaseDeadline() == 0 {
			return nil
		}
		msg.ActionDeadline = t.PhaseDeadline()
	case game.PhaseBetting:
		msg.ActionDeadline = t.ActionDeadline
		msg.CurrentActor = t.CurrentActor
		msg.Hints = &protocol.ActionHints{
			Moves:  []string{protocol.MoveBet},
			MinBet: t.MinBet,
			MaxBet: t.MaxBet,
		}
	case game.PhasePlayerTurn:
		msg.ActionDeadline = t.ActionDeadline
		msg.CurrentActor = t.CurrentActor
		if v, ok := e.variants.Lookup(t.RoomType); ok {
			if actor := t.Occupant(t.CurrentActor); actor != nil {
				msg.Hints = &protocol.ActionHints{
					Moves:  v.LegalMoves(t, actor),
					MinBet: t.MinBet,
					MaxBet: t.MaxBet,
				}
			}
		}
	case game.PhaseDealerTurn, game.PhaseShowdown, game.PhasePostRound:
		msg.ActionDeadline = t.PhaseDeadline()
	default:
		return nil
	}
	return msg
}
