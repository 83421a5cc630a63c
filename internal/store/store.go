// Package store persists table state and the chip ledger in SQLite. Each
// room is one row holding the full table document as JSON, with a revision
// column guarding concurrent writers.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/greenfelt/dealerd/internal/game"
)

// Store holds the SQLite handle shared by room state and the ledger.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// RoomRow is the queryable projection of one room, mirroring the fields
// that consumers filter on without parsing the JSON document.
type RoomRow struct {
	RoomID      string
	RoomName    string
	RoomType    string
	GuildID     string
	ChannelID   string
	GameMode    string
	PlayerCount int
	Revision    int64
	UpdatedAt   time.Time
}

// Open opens the SQLite database and creates the schema when missing.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS game_rooms (
			room_id TEXT PRIMARY KEY,
			room_name TEXT NOT NULL,
			room_type TEXT NOT NULL,
			guild_id TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL DEFAULT '',
			game_mode TEXT NOT NULL DEFAULT '1',
			game_state TEXT NOT NULL,
			player_count INTEGER NOT NULL DEFAULT 0,
			revision INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			identity TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity TEXT NOT NULL,
			amount INTEGER NOT NULL,
			reason TEXT,
			room_id TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (identity) REFERENCES accounts(identity)
		)
	`)
	return err
}

// Close closes the SQLite handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads one room's table document. A missing room returns (nil, nil)
// so the caller can start fresh; so does a corrupt document, after a
// warning, since a poisoned row must never wedge the room forever.
func (s *Store) Load(ctx context.Context, roomID string) (*game.Table, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT game_state FROM game_rooms WHERE room_id = ?`, roomID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}

	var t game.Table
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).
			Msg("corrupt room document, starting fresh")
		return nil, nil
	}
	t.ID = roomID
	return &t, nil
}

// Save writes the table unconditionally, inserting the row when new
func (s *Store) Save(ctx context.Context, t *game.Table) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", t.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO game_rooms (
			room_id, room_name, room_type, guild_id, channel_id,
			game_mode, game_state, player_count, revision, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			room_name = excluded.room_name,
			room_type = excluded.room_type,
			guild_id = excluded.guild_id,
			channel_id = excluded.channel_id,
			game_mode = excluded.game_mode,
			game_state = excluded.game_state,
			player_count = excluded.player_count,
			revision = excluded.revision,
			updated_at = excluded.updated_at`,
		t.ID, roomName(t), t.RoomType, t.GuildRef, t.ChannelRef,
		t.GameMode, string(raw), len(t.Occupants), t.Revision, nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("save room %s: %w", t.ID, err)
	}
	return nil
}

// SaveIfRevision writes the table only if the stored revision still equals
// expected. It reports false, without error, when another writer got there
// first; the caller discards its work and reloads.
func (s *Store) SaveIfRevision(ctx context.Context, t *game.Table, expected int64) (bool, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return false, fmt.Errorf("encode room %s: %w", t.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE game_rooms SET
			room_name = ?, room_type = ?, guild_id = ?, channel_id = ?,
			game_mode = ?, game_state = ?, player_count = ?, revision = ?,
			updated_at = ?
		WHERE room_id = ? AND revision = ?`,
		roomName(t), t.RoomType, t.GuildRef, t.ChannelRef,
		t.GameMode, string(raw), len(t.Occupants), t.Revision, nowMillis(),
		t.ID, expected,
	)
	if err != nil {
		return false, fmt.Errorf("save room %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save room %s: %w", t.ID, err)
	}
	return n == 1, nil
}

// ListRooms returns the row projection of every room, ordered by id
func (s *Store) ListRooms(ctx context.Context) ([]RoomRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, room_name, room_type, guild_id, channel_id,
		       game_mode, player_count, revision, updated_at
		  FROM game_rooms
		 ORDER BY room_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []RoomRow
	for rows.Next() {
		var r RoomRow
		var updatedAt int64
		if err := rows.Scan(
			&r.RoomID, &r.RoomName, &r.RoomType, &r.GuildID, &r.ChannelID,
			&r.GameMode, &r.PlayerCount, &r.Revision, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return out, nil
}

// DeleteRoom removes a room row entirely
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM game_rooms WHERE room_id = ?`, roomID,
	); err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	return nil
}

func roomName(t *game.Table) string {
	label := t.RoomType
	switch t.RoomType {
	case game.RoomTypeBlackjack:
		label = "Blackjack"
	case game.RoomTypeHoldem:
		label = "Hold'em"
	}
	return fmt.Sprintf("%s %s", label, t.ID)
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}
