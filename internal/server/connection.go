package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/greenfelt/dealerd/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Connection wraps one websocket with its room and identity binding.
type Connection struct {
	conn      *websocket.Conn
	send      chan any
	roomID    string
	identity  string
	server    *Server
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection creates a connection wrapper bound to a room and identity.
func NewConnection(conn *websocket.Conn, roomID, identity string, server *Server, logger zerolog.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:     conn,
		send:     make(chan any, 256),
		roomID:   roomID,
		identity: identity,
		server:   server,
		logger: logger.With().Str("component", "conn").
			Str("room_id", roomID).Str("identity", identity).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// Send queues a frame for the client. A client that cannot drain its
// buffer gets dropped rather than stalling the whole room.
func (c *Connection) Send(payload any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug().Interface("recover", r).Msg("send on closed connection")
		}
	}()

	select {
	case c.send <- payload:
	case <-c.ctx.Done():
	default:
		c.logger.Warn().Msg("send buffer full, closing connection")
		_ = c.Close()
	}
}

// readPump handles incoming frames from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read failed")
			}
			break
		}

		c.handleFrame(raw)
	}
}

// writePump handles outgoing frames to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(payload); err != nil {
				c.logger.Error().Err(err).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleFrame decodes and dispatches one inbound frame. A bad frame gets a
// targeted error back; the socket stays up. The socket's own room and
// identity override whatever the client wrote, so nobody can act as
// someone else.
func (c *Connection) handleFrame(raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError("invalid_json", "frame is not valid JSON")
		return
	}

	env.RoomID = c.roomID
	env.SenderID = c.identity

	if err := env.Validate(); err != nil {
		c.sendError("invalid_envelope", err.Error())
		return
	}
	if err := c.server.dispatch(&env); err != nil {
		c.logger.Debug().Err(err).Str("action", env.Action).Msg("envelope rejected")
		c.sendError(errorCode(err), err.Error())
	}
}

// sendError sends a targeted error frame to this client only
func (c *Connection) sendError(code, message string) {
	c.Send(protocol.NewErrorMessage(c.roomID, code, message))
}
