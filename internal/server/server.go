// Package server is the websocket gateway: it owns the sockets, fans
// engine broadcasts out to room subscribers and feeds inbound envelopes to
// the engine. Game rules never live here.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/greenfelt/dealerd/internal/game"
	"github.com/greenfelt/dealerd/internal/protocol"
)

// Engine is the part of the game engine the gateway drives.
type Engine interface {
	HandleEnvelope(ctx context.Context, env *protocol.Envelope) error
	PlayerConnect(ctx context.Context, roomID, identity string)
	PlayerDisconnect(ctx context.Context, roomID, identity string)
}

// Server accepts websocket clients and routes frames between them and the
// engine. One socket is bound to one room and one identity for its whole
// life, both taken from the upgrade request.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Connection]struct{}

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc

	engine  Engine
	httpSrv *http.Server
}

// NewServer creates a gateway listening on addr once started.
func NewServer(addr string, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:     logger.With().Str("component", "gateway").Logger(),
		rooms:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetEngine wires the engine in after construction. The gateway and engine
// reference each other, so one of them has to be attached late.
func (s *Server) SetEngine(engine Engine) {
	s.engine = engine
}

// Start runs the gateway until Stop is called. Blocks.
func (s *Server) Start() error {
	go s.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}
	s.logger.Info().Str("addr", s.addr).Msg("websocket gateway listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes every socket and shuts the listener down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for _, set := range s.rooms {
		for conn := range set {
			_ = conn.Close()
		}
	}
	s.rooms = make(map[string]map[*Connection]struct{})
	s.mu.Unlock()

	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// run owns socket registration. Presence hooks fire from here so the
// socket map is always updated before the engine hears about it.
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			set := s.rooms[conn.roomID]
			if set == nil {
				set = make(map[*Connection]struct{})
				s.rooms[conn.roomID] = set
			}
			set[conn] = struct{}{}
			s.mu.Unlock()
			s.logger.Info().Str("room_id", conn.roomID).Str("identity", conn.identity).
				Msg("client connected")
			if s.engine != nil {
				s.engine.PlayerConnect(s.ctx, conn.roomID, conn.identity)
			}

		case conn := <-s.unregister:
			removed := false
			s.mu.Lock()
			if set, ok := s.rooms[conn.roomID]; ok {
				if _, held := set[conn]; held {
					delete(set, conn)
					removed = true
				}
				if len(set) == 0 {
					delete(s.rooms, conn.roomID)
				}
			}
			s.mu.Unlock()
			_ = conn.Close()
			if !removed {
				continue
			}
			s.logger.Info().Str("room_id", conn.roomID).Str("identity", conn.identity).
				Msg("client disconnected")
			// a fresh socket for the same identity may already be up; only
			// the last one leaving starts the grace clock
			if s.engine != nil && !s.HasLiveSocket(conn.roomID, conn.identity) {
				s.engine.PlayerDisconnect(s.ctx, conn.roomID, conn.identity)
			}

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket upgrades a client. Room and identity are fixed at
// upgrade time from query parameters.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	identity := r.URL.Query().Get("identity")
	if roomID == "" || identity == "" {
		http.Error(w, "room and identity query parameters are required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewConnection(conn, roomID, identity, s, s.logger)
	s.register <- client
	client.Start()

	go func() {
		<-client.ctx.Done()
		s.unregister <- client
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// dispatch hands one envelope to the engine.
func (s *Server) dispatch(env *protocol.Envelope) error {
	if s.engine == nil {
		return errors.New("engine not attached")
	}
	return s.engine.HandleEnvelope(s.ctx, env)
}

// BroadcastToRoom sends a frame to every socket subscribed to the room.
func (s *Server) BroadcastToRoom(roomID string, payload any) {
	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.rooms[roomID]))
	for conn := range s.rooms[roomID] {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		conn.Send(payload)
	}
}

// SendToIdentity sends a frame to the sockets one identity holds in a room.
func (s *Server) SendToIdentity(roomID, identity string, payload any) {
	s.mu.RLock()
	var conns []*Connection
	for conn := range s.rooms[roomID] {
		if conn.identity == identity {
			conns = append(conns, conn)
		}
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		conn.Send(payload)
	}
}

// HasLiveSocket reports whether the identity has any open socket in the room.
func (s *Server) HasLiveSocket(roomID, identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.rooms[roomID] {
		if conn.identity == identity {
			return true
		}
	}
	return false
}

// errorCode maps an engine rejection to the wire code on the error frame.
func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, game.ErrOutOfTurn):
		return "out_of_turn"
	case errors.Is(err, game.ErrUnknownMove):
		return "unknown_move"
	case errors.Is(err, game.ErrMoveNotAllowed):
		return "move_not_allowed"
	case errors.Is(err, game.ErrBetOutOfRange):
		return "bet_out_of_range"
	case errors.Is(err, game.ErrSeatTaken):
		return "seat_taken"
	case errors.Is(err, game.ErrTableFull):
		return "table_full"
	case errors.Is(err, game.ErrNotSeated):
		return "not_seated"
	case errors.Is(err, game.ErrDeckExhausted):
		return "deck_exhausted"
	case errors.Is(err, protocol.ErrMissingField):
		return "invalid_envelope"
	default:
		return "internal_error"
	}
}
