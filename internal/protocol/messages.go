// Package protocol defines the JSON messages exchanged with clients: the
// inbound action envelope and the outbound state, tick and error frames.
package protocol

import (
	"errors"
	"fmt"

	"github.com/greenfelt/dealerd/internal/game"
)

// Inbound envelope actions.
const (
	ActionPlayerSit    = "player_sit"
	ActionPlayerLeave  = "player_leave"
	ActionPlayerAction = "player_action"
	ActionAdvancePhase = "advance_phase"
	ActionGetState     = "get_state"
)

// Moves carried by player_action envelopes.
const (
	MoveBet       = "bet"
	MoveHit       = "hit"
	MoveStand     = "stand"
	MoveDouble    = "double"
	MoveSplit     = "split"
	MoveSurrender = "surrender"
	MoveInsurance = "insurance"
	MoveFold      = "fold"
	MoveCheck     = "check"
	MoveCall      = "call"
	MoveRaise     = "raise"
)

// Outbound frame types.
const (
	TypeState = "state"
	TypeTick  = "tick"
	TypeError = "error"
)

// ErrMissingField marks an envelope rejected for absent required fields.
var ErrMissingField = errors.New("missing required field")

// PlayerData carries optional seat details on a player_sit envelope.
type PlayerData struct {
	Name string `json:"name,omitempty"`
	Seat int    `json:"seat,omitempty"`
}

// Envelope is the single inbound message shape. Action and RoomID are
// always required; SenderID for everything except get_state.
type Envelope struct {
	Action     string      `json:"action"`
	RoomID     string      `json:"room_id"`
	SenderID   string      `json:"sender_id,omitempty"`
	Move       string      `json:"move,omitempty"`
	Amount     int64       `json:"amount,omitempty"`
	PlayerData *PlayerData `json:"player_data,omitempty"`
	GuildID    string      `json:"guild_id,omitempty"`
	ChannelID  string      `json:"channel_id,omitempty"`
	RoomType   string      `json:"room_type,omitempty"`
	GameMode   string      `json:"game_mode,omitempty"`
}

// Validate checks structural requirements before any game logic runs
func (e *Envelope) Validate() error {
	if e.RoomID == "" {
		return fmt.Errorf("%w: room_id", ErrMissingField)
	}
	switch e.Action {
	case ActionPlayerSit, ActionPlayerLeave, ActionAdvancePhase:
		if e.SenderID == "" {
			return fmt.Errorf("%w: sender_id", ErrMissingField)
		}
	case ActionPlayerAction:
		if e.SenderID == "" {
			return fmt.Errorf("%w: sender_id", ErrMissingField)
		}
		if e.Move == "" {
			return fmt.Errorf("%w: move", ErrMissingField)
		}
	case ActionGetState:
	case "":
		return fmt.Errorf("%w: action", ErrMissingField)
	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
	return nil
}

// StateMessage is the full-table broadcast sent after every accepted
// transition.
type StateMessage struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"room_id"`
	ServerTS  int64       `json:"server_ts"`
	Revision  int64       `json:"revision"`
	GameState *game.Table `json:"game_state"`
}

// NewStateMessage builds a state frame for the given table snapshot
func NewStateMessage(t *game.Table, serverTS int64) *StateMessage {
	return &StateMessage{
		Type:      TypeState,
		RoomID:    t.ID,
		ServerTS:  serverTS,
		Revision:  t.Revision,
		GameState: t,
	}
}

// ActionHints tells the current actor what moves are open and the table's
// wager bounds.
type ActionHints struct {
	Moves  []string `json:"moves,omitempty"`
	MinBet int64    `json:"min_bet,omitempty"`
	MaxBet int64    `json:"max_bet,omitempty"`
}

// TickMessage is the lightweight countdown frame emitted by the timer loop
// between state broadcasts.
type TickMessage struct {
	Type           string       `json:"type"`
	RoomID         string       `json:"room_id"`
	ServerTS       int64        `json:"server_ts"`
	Phase          game.Phase   `json:"phase"`
	ActionDeadline int64        `json:"action_deadline,omitempty"`
	CurrentActor   string       `json:"current_actor,omitempty"`
	Revision       int64        `json:"revision"`
	Hints          *ActionHints `json:"hints,omitempty"`
}

// ErrorMessage is the targeted rejection sent only to the offending sender
type ErrorMessage struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error frame
func NewErrorMessage(roomID, code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    TypeError,
		RoomID:  roomID,
		Code:    code,
		Message: message,
	}
}
