package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/greenfelt/dealerd/internal/game"
	"github.com/greenfelt/dealerd/internal/store"
)

// playerTurnTable builds a blackjack table stuck on alice's turn with the
// action clock freshly armed.
func playerTurnTable(tb testing.TB, env *testEnv, roomID string) *game.Table {
	tb.Helper()
	tbl := game.NewTable(roomID, "", "", game.RoomTypeBlackjack, "1", 5, 500)
	tbl.Phase = game.PhasePlayerTurn
	tbl.CurrentActor = "alice"
	tbl.Occupants = []*game.Occupant{
		{Identity: "alice", Seat: 1, Connected: true, Bet: 50, HasBet: true,
			Hands: []*game.Hand{{Cards: mustCards(tb, "5h", "9c"), Total: 14, Bet: 50}}},
	}
	tbl.DealerHand = mustCards(tb, "8d", "7s")
	tbl.DealerTotal = 8
	tbl.Deck = mustCards(tb, "2c", "3c", "4c", "5c", "6c")
	tbl.SetActionTimer(env.eng.now(), seconds(env.eng.cfg.ActionTimeout))
	tbl.Revision = 3
	return tbl
}

func TestPreGameWaitOpensBetting(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-pregame"

	env.sit(t, roomID, "alice", 0)
	env.sit(t, roomID, "bob", 0)

	// heartbeat only while the join window runs
	env.eng.tick(env.ctx)
	tbl := env.store.get(t, roomID)
	require.Equal(t, game.PhasePreGame, tbl.Phase)
	ticks := env.bcast.ticks()
	require.NotEmpty(t, ticks)
	require.Equal(t, tbl.PhaseDeadline(), ticks[len(ticks)-1].ActionDeadline)

	env.clock.Advance(env.eng.cfg.PreGameWait + time.Second).MustWait(env.ctx)
	env.eng.tick(env.ctx)

	tbl = env.store.get(t, roomID)
	require.Equal(t, game.PhaseBetting, tbl.Phase)
	require.Equal(t, "alice", tbl.CurrentActor, "rotation opens at the lowest seat")
	require.NotZero(t, tbl.ActionDeadline)
	require.Zero(t, tbl.PhaseDeadline())
}

func TestLoopArmsMissingPreGameWait(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-unarmed"

	tbl := game.NewTable(roomID, "", "", game.RoomTypeBlackjack, "1", 5, 500)
	tbl.Occupants = []*game.Occupant{{Identity: "alice", Seat: 1, Connected: true}}
	tbl.Revision = 1
	env.store.put(t, tbl)
	env.eng.Watch(roomID)
	env.bcast.setLive(roomID, "alice", true)

	env.eng.tick(env.ctx)

	got := env.store.get(t, roomID)
	require.Equal(t, game.PhasePreGame, got.Phase)
	require.NotZero(t, got.PhaseDeadline(), "a seated room without a wait gets one armed")
}

func TestBettorTimeoutSkipsAndDeals(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-betting"

	env.sit(t, roomID, "alice", 1)
	env.sit(t, roomID, "bob", 2)
	env.advance(t, roomID, "alice")
	env.bet(t, roomID, "alice", 10)

	tbl := env.store.get(t, roomID)
	require.Equal(t, "bob", tbl.CurrentActor, "the wager hands the rotation on")

	env.clock.Advance(env.eng.cfg.ActionTimeout + time.Second).MustWait(env.ctx)
	env.eng.tick(env.ctx)

	tbl = env.store.get(t, roomID)
	require.Contains(t, []game.Phase{game.PhasePlayerTurn, game.PhaseDealerTurn}, tbl.Phase,
		"the lapsed bettor was the last stop, so the round deals")

	bob := tbl.Occupant("bob")
	require.True(t, bob.Skipped)
	require.Empty(t, bob.Hands)

	alice := tbl.Occupant("alice")
	require.Len(t, alice.Hands, 1)
	require.Len(t, alice.Hands[0].Cards, 2)
	require.Len(t, tbl.DealerHand, 2)
	if tbl.Phase == game.PhasePlayerTurn {
		require.Equal(t, "alice", tbl.CurrentActor)
	}
}

func TestBettingLapWithoutWagersRestarts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-restart"

	env.sit(t, roomID, "alice", 1)
	env.sit(t, roomID, "bob", 2)
	env.advance(t, roomID, "alice")

	env.clock.Advance(env.eng.cfg.ActionTimeout + time.Second).MustWait(env.ctx)
	env.eng.tick(env.ctx)

	tbl := env.store.get(t, roomID)
	require.Equal(t, game.PhaseBetting, tbl.Phase)
	require.True(t, tbl.Occupant("alice").Skipped)
	require.Equal(t, "bob", tbl.CurrentActor)

	env.clock.Advance(env.eng.cfg.ActionTimeout + time.Second).MustWait(env.ctx)
	env.eng.tick(env.ctx)

	// nobody wagered, so the lap starts over instead of dealing nothing
	tbl = env.store.get(t, roomID)
	require.Equal(t, game.PhaseBetting, tbl.Phase)
	require.Equal(t, "alice", tbl.CurrentActor)
	require.False(t, tbl.Occupant("alice").Skipped)
	require.False(t, tbl.Occupant("bob").Skipped)
	require.Greater(t, tbl.ActionDeadline, env.eng.now())
}

func TestActionTimeoutForcesStand(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-timeout"

	env.store.put(t, playerTurnTable(t, env, roomID))
	env.eng.Watch(roomID)
	env.bcast.setLive(roomID, "alice", true)

	env.clock.Advance(env.eng.cfg.ActionTimeout + time.Second).MustWait(env.ctx)
	env.eng.tick(env.ctx)

	tbl := env.store.get(t, roomID)
	require.Equal(t, game.PhaseDealerTurn, tbl.Phase)
	require.True(t, tbl.Occupant("alice").Hands[0].Standing)
	require.Empty(t, tbl.CurrentActor)
	require.True(t, tbl.HoleRevealed)

	// the dealer pause runs out next, then the round settles
	env.clock.Advance(env.eng.cfg.DealerDelay + time.Second).MustWait(env.ctx)
	env.eng.tick(env.ctx)

	tbl = env.store.get(t, roomID)
	require.Equal(t, game.PhaseShowdown, tbl.Phase)
	require.NotNil(t, tbl.PendingPayouts)
	require.True(t, tbl.PendingPayouts.Credited)
	require.Equal(t, int64(-50), tbl.PendingPayouts.Amounts["alice"])
	require.Empty(t, env.ledger.byIdentity(), "losses never touch the ledger")
}

func TestActorWithinGraceKeepsTurn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-grace-wait"

	tbl := playerTurnTable(t, env, roomID)
	alice := tbl.Occupant("alice")
	alice.Connected = false
	alice.DisconnectedSince = env.eng.now() - 5
	env.store.put(t, tbl)
	env.eng.Watch(roomID)

	env.eng.tick(env.ctx)

	got := env.store.get(t, roomID)
	require.Equal(t, game.PhasePlayerTurn, got.Phase)
	require.False(t, got.Occupant("alice").Hands[0].Standing)
	require.Equal(t, int64(3), got.Revision, "no write while waiting out the grace")

	ticks := env.bcast.ticks()
	require.NotEmpty(t, ticks)
	last := ticks[len(ticks)-1]
	require.Equal(t, "alice", last.CurrentActor)
	require.Equal(t, got.ActionDeadline, last.ActionDeadline)
	require.NotNil(t, last.Hints)
	require.NotEmpty(t, last.Hints.Moves)
}

func TestLiveSocketBlocksReaping(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-probe"

	tbl := playerTurnTable(t, env, roomID)
	alice := tbl.Occupant("alice")
	alice.Connected = false
	alice.DisconnectedSince = env.eng.now() - 100
	env.store.put(t, tbl)
	env.eng.Watch(roomID)
	env.bcast.setLive(roomID, "alice", true)

	env.eng.tick(env.ctx)

	got := env.store.get(t, roomID)
	require.NotNil(t, got.Occupant("alice"), "a live socket counts as presence")
	require.Equal(t, game.PhasePlayerTurn, got.Phase)
	require.False(t, got.Occupant("alice").Hands[0].Standing)
}

func TestGraceExpiryReapsActorAndPassesTurn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-reap"

	tbl := playerTurnTable(t, env, roomID)
	tbl.Occupants = append(tbl.Occupants, &game.Occupant{
		Identity: "bob", Seat: 2, Connected: true, Bet: 50, HasBet: true,
		Hands: []*game.Hand{{Cards: mustCards(t, "6h", "8c"), Total: 14, Bet: 50}}})
	alice := tbl.Occupant("alice")
	alice.Connected = false
	alice.DisconnectedSince = env.eng.now() - 11
	env.store.put(t, tbl)
	env.eng.Watch(roomID)
	env.bcast.setLive(roomID, "bob", true)

	env.eng.tick(env.ctx)

	got := env.store.get(t, roomID)
	require.Nil(t, got.Occupant("alice"), "grace ran out, the seat frees up")
	require.Len(t, got.Occupants, 1)
	require.Equal(t, game.PhasePlayerTurn, got.Phase)
	require.Equal(t, "bob", got.CurrentActor)
}

func TestGraceExpiryReapsLastOccupant(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-reap-last"

	tbl := playerTurnTable(t, env, roomID)
	alice := tbl.Occupant("alice")
	alice.Connected = false
	alice.DisconnectedSince = env.eng.now() - 11
	env.store.put(t, tbl)
	env.eng.Watch(roomID)

	env.eng.tick(env.ctx)

	got := env.store.get(t, roomID)
	require.Empty(t, got.Occupants)
	require.Empty(t, got.CurrentActor)
	require.NotZero(t, got.EmptySince, "the empty debounce starts immediately")
}

func TestGhostConnectionStartsGraceClock(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-ghost"

	tbl := playerTurnTable(t, env, roomID)
	env.store.put(t, tbl)
	env.eng.Watch(roomID)
	// no live socket registered for alice

	env.eng.tick(env.ctx)

	got := env.store.get(t, roomID)
	alice := got.Occupant("alice")
	require.False(t, alice.Connected)
	require.Equal(t, env.eng.now(), alice.DisconnectedSince)
	require.Equal(t, game.PhasePlayerTurn, got.Phase, "grace starts, turn is not forced yet")
}

func TestLostConditionalSaveDiscardsSettlement(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-conflict"

	tbl := game.NewTable(roomID, "", "", game.RoomTypeBlackjack, "1", 5, 500)
	tbl.Phase = game.PhaseDealerTurn
	tbl.HoleRevealed = true
	tbl.Occupants = []*game.Occupant{
		{Identity: "alice", Seat: 1, Connected: true, Bet: 100, HasBet: true,
			Hands: []*game.Hand{{Cards: mustCards(t, "Kh", "Qs"), Total: 20, Standing: true, HasActed: true, Bet: 100}}},
	}
	tbl.DealerHand = mustCards(t, "0h", "7d")
	tbl.DealerTotal = 17
	tbl.SetPhaseTimer(env.eng.now(), seconds(env.eng.cfg.DealerDelay))
	tbl.Revision = 7
	env.store.put(t, tbl)
	env.eng.Watch(roomID)
	env.bcast.setLive(roomID, "alice", true)

	env.clock.Advance(env.eng.cfg.DealerDelay + time.Second).MustWait(env.ctx)

	env.store.conflictNext = true
	env.eng.tick(env.ctx)

	got := env.store.get(t, roomID)
	require.Equal(t, game.PhaseDealerTurn, got.Phase, "lost save leaves the stored room untouched")
	require.Equal(t, int64(7), got.Revision)
	require.Empty(t, env.ledger.byIdentity(), "credits never run off a lost save")

	// the next tick re-derives the settlement and wins the save
	env.eng.tick(env.ctx)

	got = env.store.get(t, roomID)
	require.Equal(t, game.PhaseShowdown, got.Phase)
	require.True(t, got.PendingPayouts.Credited)
	require.Equal(t, map[string]int64{"alice": 100}, env.ledger.byIdentity())
}

func TestCreditedFlagIsDurableBeforeLedgerCall(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-ordering"

	tbl := game.NewTable(roomID, "", "", game.RoomTypeBlackjack, "1", 5, 500)
	tbl.Phase = game.PhaseDealerTurn
	tbl.HoleRevealed = true
	tbl.Occupants = []*game.Occupant{
		{Identity: "alice", Seat: 1, Connected: true, Bet: 100, HasBet: true,
			Hands: []*game.Hand{{Cards: mustCards(t, "Kh", "Qs"), Total: 20, Standing: true, HasActed: true, Bet: 100}}},
	}
	tbl.DealerHand = mustCards(t, "0h", "7d")
	tbl.DealerTotal = 17
	tbl.SetPhaseTimer(env.eng.now(), seconds(env.eng.cfg.DealerDelay))
	tbl.Revision = 1
	env.store.put(t, tbl)
	env.eng.Watch(roomID)
	env.bcast.setLive(roomID, "alice", true)

	credited := false
	env.ledger.onCredit = func(string, int64) {
		stored := env.store.get(t, roomID)
		credited = stored.PendingPayouts != nil && stored.PendingPayouts.Credited
	}

	env.clock.Advance(env.eng.cfg.DealerDelay + time.Second).MustWait(env.ctx)
	env.eng.tick(env.ctx)

	require.Equal(t, map[string]int64{"alice": 100}, env.ledger.byIdentity())
	require.True(t, credited, "payout record must be saved as credited before the ledger call")
}

func TestEmptyTableDebounceResetsAndUnwatches(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-empty"

	tbl := game.NewTable(roomID, "", "", game.RoomTypeBlackjack, "1", 5, 500)
	tbl.Phase = game.PhaseShowdown
	tbl.DealerHand = mustCards(t, "0h", "7d")
	tbl.SetPhaseTimer(env.eng.now(), seconds(env.eng.cfg.ShowdownWindow))
	tbl.Revision = 5
	env.store.put(t, tbl)
	env.eng.Watch(roomID)

	env.eng.tick(env.ctx)
	got := env.store.get(t, roomID)
	require.NotZero(t, got.EmptySince, "first empty tick stamps the debounce clock")
	require.Equal(t, game.PhaseShowdown, got.Phase)

	env.clock.Advance(env.eng.cfg.EmptyDebounce + time.Second).MustWait(env.ctx)
	env.eng.tick(env.ctx)
	got = env.store.get(t, roomID)
	require.Equal(t, game.PhasePreGame, got.Phase)
	require.Zero(t, got.EmptySince)
	require.Empty(t, got.DealerHand)

	env.eng.tick(env.ctx)
	require.NotContains(t, env.eng.watchedRooms(), roomID, "dormant rooms drop out of the loop")
}

func TestReseatCancelsEmptyDebounce(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	roomID := "loop-reseat"

	env.sit(t, roomID, "alice", 0)
	env.advance(t, roomID, "alice")
	env.leave(t, roomID, "alice")
	require.NotZero(t, env.store.get(t, roomID).EmptySince)

	env.sit(t, roomID, "bob", 0)
	require.Zero(t, env.store.get(t, roomID).EmptySince)

	env.clock.Advance(env.eng.cfg.EmptyDebounce + time.Second).MustWait(env.ctx)
	env.eng.tick(env.ctx)

	got := env.store.get(t, roomID)
	require.Equal(t, game.PhaseBetting, got.Phase, "an occupied table never debounce-resets")
	require.NotNil(t, got.Occupant("bob"))
	require.Equal(t, "bob", got.CurrentActor, "the stalled rotation reopens at the new seat")
}

func TestRunPrimesWatchSetAndStops(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.store.rows = []store.RoomRow{{RoomID: "r1"}, {RoomID: "r2"}}

	env.eng.Stop()
	require.NoError(t, env.eng.Run(env.ctx))
	require.Equal(t, []string{"r1", "r2"}, env.eng.watchedRooms())
}
