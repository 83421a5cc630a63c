package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/greenfelt/dealerd/internal/cards"
	"github.com/greenfelt/dealerd/internal/game"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "dealerd.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open("", zerolog.Nop()); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	table := game.NewTable("lobby", "guild-1", "chan-1", game.RoomTypeBlackjack, "2", 10, 1000)
	table.Occupants = append(table.Occupants, &game.Occupant{
		Identity: "alice", Seat: 1, Connected: true, Bet: 25, HasBet: true,
	})
	table.Deck = []cards.Card{cards.New(cards.Hearts, cards.Ace)}
	table.Phase = game.PhaseBetting
	table.Revision = 3

	if err := s.Save(ctx, table); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx, "lobby")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("expected a table")
	}
	if got.Phase != game.PhaseBetting || got.Revision != 3 {
		t.Errorf("unexpected table: phase=%q revision=%d", got.Phase, got.Revision)
	}
	if len(got.Occupants) != 1 || got.Occupants[0].Identity != "alice" {
		t.Errorf("unexpected occupants: %+v", got.Occupants)
	}
	if len(got.Deck) != 1 || got.Deck[0].Code() != "Ah" {
		t.Errorf("unexpected deck: %+v", got.Deck)
	}
}

func TestLoadMissingRoom(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)

	got, err := s.Load(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil table for missing room, got %+v", got)
	}
}

func TestLoadCorruptDocumentStartsFresh(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_rooms (room_id, room_name, room_type, game_state, updated_at)
		VALUES ('broken', 'Blackjack broken', 'blackjack', '{not json', 0)`)
	if err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}

	got, err := s.Load(ctx, "broken")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil table for corrupt document, got %+v", got)
	}
}

func TestSaveIfRevision(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	table := game.NewTable("lobby", "", "", game.RoomTypeBlackjack, "1", 5, 500)
	table.Revision = 1
	if err := s.Save(ctx, table); err != nil {
		t.Fatalf("save: %v", err)
	}

	table.Revision = 2
	ok, err := s.SaveIfRevision(ctx, table, 1)
	if err != nil {
		t.Fatalf("conditional save: %v", err)
	}
	if !ok {
		t.Fatal("expected conditional save to win")
	}

	// Stale writer: expects revision 1 but the row is at 2 now.
	table.Revision = 3
	ok, err = s.SaveIfRevision(ctx, table, 1)
	if err != nil {
		t.Fatalf("conditional save: %v", err)
	}
	if ok {
		t.Fatal("expected stale conditional save to lose")
	}

	got, err := s.Load(ctx, "lobby")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Revision != 2 {
		t.Errorf("expected stored revision 2, got %d", got.Revision)
	}
}

func TestSaveIfRevisionMissingRow(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)

	table := game.NewTable("ghost", "", "", game.RoomTypeBlackjack, "1", 5, 500)
	ok, err := s.SaveIfRevision(context.Background(), table, 0)
	if err != nil {
		t.Fatalf("conditional save: %v", err)
	}
	if ok {
		t.Error("expected conditional save against a missing row to lose")
	}
}

func TestListRoomsMirrorsColumns(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	bj := game.NewTable("alpha", "g1", "c1", game.RoomTypeBlackjack, "1", 5, 500)
	bj.Occupants = append(bj.Occupants, &game.Occupant{Identity: "alice", Seat: 1})
	he := game.NewTable("beta", "g1", "c2", game.RoomTypeHoldem, "3", 25, 2500)
	for _, table := range []*game.Table{bj, he} {
		if err := s.Save(ctx, table); err != nil {
			t.Fatalf("save %s: %v", table.ID, err)
		}
	}

	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].RoomID != "alpha" || rooms[1].RoomID != "beta" {
		t.Errorf("unexpected ordering: %+v", rooms)
	}
	if rooms[0].PlayerCount != 1 || rooms[1].PlayerCount != 0 {
		t.Errorf("unexpected player counts: %d, %d", rooms[0].PlayerCount, rooms[1].PlayerCount)
	}
	if rooms[0].RoomName != "Blackjack alpha" || rooms[1].RoomName != "Hold'em beta" {
		t.Errorf("unexpected names: %q, %q", rooms[0].RoomName, rooms[1].RoomName)
	}
	if rooms[1].GameMode != "3" {
		t.Errorf("expected game mode mirrored, got %q", rooms[1].GameMode)
	}
}

func TestDeleteRoom(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()

	table := game.NewTable("gone", "", "", game.RoomTypeBlackjack, "1", 5, 500)
	if err := s.Save(ctx, table); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteRoom(ctx, "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.Load(ctx, "gone")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Error("expected room gone after delete")
	}
}
