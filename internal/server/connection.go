package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/feltpoker/felt/internal/protocol"
)

const (
	// writeWait bounds a single frame write to the peer.
	writeWait = 10 * time.Second

	// maxMessageSize caps the bytes of one logical message. Exceeding it
	// is a protocol violation that faults the connection; it is the sole
	// defense against a flooding client.
	maxMessageSize = 1 << 20

	sendBufferSize = 256
)

// connectionHandler receives decoded messages and lifecycle events from a
// Connection. Heartbeats never reach it.
type connectionHandler interface {
	HandleMessage(c *Connection, m *protocol.Message)
	HandleDisconnect(c *Connection)
}

// Connection owns one WebSocket stream: the read loop, a serialized write
// path, and the liveness timestamp the heartbeat supervisor inspects. It
// has no game knowledge.
type Connection struct {
	ID string

	ws      *websocket.Conn
	send    chan *protocol.Message
	handler connectionHandler
	clock   quartz.Clock
	logger  *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu           sync.RWMutex
	name         string
	sessionToken string
	lobbyCode    string
	lastSeen     time.Time
}

// NewConnection wraps an upgraded WebSocket stream. The id is the transient
// client id, reissued on every physical connection.
func NewConnection(id string, ws *websocket.Conn, handler connectionHandler, clock quartz.Clock, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:       id,
		ws:       ws,
		send:     make(chan *protocol.Message, sendBufferSize),
		handler:  handler,
		clock:    clock,
		logger:   logger.WithPrefix("conn").With("client", id),
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: clock.Now(),
	}
}

// Start launches the read and write pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down exactly once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.ws != nil {
			err = c.ws.Close()
		}
	})
	return err
}

// Done is closed when the connection is finished.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// Send queues a message on the serialized write path. A full buffer faults
// the connection rather than blocking a broadcast.
func (c *Connection) Send(msg *protocol.Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SendError sends a structured error frame.
func (c *Connection) SendError(code, message string) {
	_ = c.Send(protocol.MustNew(protocol.TypeError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}

// SetIdentity binds the display name and durable session token after a
// successful connect or resume.
func (c *Connection) SetIdentity(name, sessionToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.sessionToken = sessionToken
}

// Name returns the display name, empty before connect.
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SessionToken returns the durable token, empty before connect.
func (c *Connection) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

// SetLobby records the lobby this connection is seated in ("" for none).
func (c *Connection) SetLobby(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lobbyCode = code
}

// Lobby returns the current lobby code, empty when unseated.
func (c *Connection) Lobby() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lobbyCode
}

// LastSeen returns the liveness timestamp.
func (c *Connection) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastSeen = c.clock.Now()
	c.mu.Unlock()
}

// readPump decodes inbound frames and hands them to the handler. A frame
// that is not a valid envelope is discarded; the connection survives.
// Transport faults (oversized frame, closed stream) end the loop and emit
// the disconnect event.
func (c *Connection) readPump() {
	defer func() {
		_ = c.Close()
		c.handler.HandleDisconnect(c)
	}()

	c.ws.SetReadLimit(maxMessageSize)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}

		c.touch()

		msg, ok := protocol.Parse(data)
		if !ok {
			c.logger.Debug("discarding malformed frame", "bytes", len(data))
			continue
		}

		// Heartbeats are liveness only; they never reach game logic.
		if msg.Type == protocol.TypeHeartbeat {
			_ = c.Send(protocol.MustNew(protocol.TypeHeartbeatAck, nil))
			continue
		}

		c.handler.HandleMessage(c, msg)
	}
}

// writePump is the single writer to the underlying stream, so interleaved
// broadcasts never corrupt a frame.
func (c *Connection) writePump() {
	defer func() { _ = c.ws.Close() }()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Debug("write failed", "error", err)
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
