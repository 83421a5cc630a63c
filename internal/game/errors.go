package game

import "errors"

// Sentinel errors for rejected envelopes. The gateway maps these onto
// targeted error frames; anything else is treated as an internal fault.
var (
	ErrWrongPhase     = errors.New("wrong phase for this action")
	ErrOutOfTurn      = errors.New("not your turn")
	ErrUnknownMove    = errors.New("unknown move")
	ErrMoveNotAllowed = errors.New("move not allowed now")
	ErrBetOutOfRange  = errors.New("bet out of range")
	ErrSeatTaken      = errors.New("seat already taken")
	ErrTableFull      = errors.New("table is full")
	ErrNotSeated      = errors.New("not seated at this table")
	ErrDeckExhausted  = errors.New("deck exhausted")
)
