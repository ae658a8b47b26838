package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/feltpoker/felt/internal/protocol"
)

const (
	// heartbeatTimeout is how long a connection may stay silent before the
	// supervisor force-disconnects it.
	heartbeatTimeout = 30 * time.Second

	// supervisorInterval is the sweep period.
	supervisorInterval = 5 * time.Second
)

// Registry tracks live connections by client id and fans messages out to
// them. The heartbeat supervisor runs on top of it, evicting silent
// connections through the same path a transport failure takes.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	clock    quartz.Clock
	logger   *log.Logger
	timeout  time.Duration
	interval time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry(clock quartz.Clock, logger *log.Logger) *Registry {
	return &Registry{
		conns:    make(map[string]*Connection),
		clock:    clock,
		logger:   logger.WithPrefix("registry"),
		timeout:  heartbeatTimeout,
		interval: supervisorInterval,
	}
}

// Register adds a connection. Idempotent under concurrent connect paths.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	r.conns[c.ID] = c
	total := len(r.conns)
	r.mu.Unlock()
	r.logger.Debug("registered", "client", c.ID, "total", total)
}

// Unregister removes a connection by id. Removing an id that is absent, or
// that has been rebound to a newer connection, is a no-op.
func (r *Registry) Unregister(c *Connection) {
	r.mu.Lock()
	if cur, ok := r.conns[c.ID]; ok && cur == c {
		delete(r.conns, c.ID)
	}
	total := len(r.conns)
	r.mu.Unlock()
	r.logger.Debug("unregistered", "client", c.ID, "total", total)
}

// Get returns the connection for a client id.
func (r *Registry) Get(clientID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[clientID]
	return c, ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send delivers a message to one client.
func (r *Registry) Send(clientID string, msg *protocol.Message) error {
	c, ok := r.Get(clientID)
	if !ok {
		return fmt.Errorf("client %s: %w", clientID, ErrConnectionClosed)
	}
	return c.Send(msg)
}

// Broadcast fans msg out to every connection seated in the lobby, minus the
// excluded ids. It returns once every currently-known recipient has been
// attempted, so callers can use it as a synchronization point. One failing
// recipient never blocks the others.
func (r *Registry) Broadcast(lobbyCode string, msg *protocol.Message, exclude ...string) {
	r.fanOut(msg, func(c *Connection) bool {
		if c.Lobby() != lobbyCode {
			return false
		}
		for _, id := range exclude {
			if c.ID == id {
				return false
			}
		}
		return true
	})
}

// BroadcastAll sends msg to every live connection.
func (r *Registry) BroadcastAll(msg *protocol.Message) {
	r.fanOut(msg, func(*Connection) bool { return true })
}

func (r *Registry) fanOut(msg *protocol.Message, want func(*Connection) bool) {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		if want(c) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for _, c := range targets {
		g.Go(func() error {
			if err := c.Send(msg); err != nil {
				r.logger.Debug("broadcast send failed", "client", c.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Supervise runs the heartbeat sweep until ctx is cancelled.
func (r *Registry) Supervise(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval, "supervisor")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep force-disconnects every connection whose liveness timestamp is
// older than the timeout. Ids are snapshotted first to tolerate concurrent
// removal; closing the stream makes the read pump emit the same disconnect
// event a transport failure would.
func (r *Registry) sweep() {
	r.mu.RLock()
	stale := make([]*Connection, 0)
	for _, c := range r.conns {
		if r.clock.Since(c.LastSeen()) > r.timeout {
			stale = append(stale, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range stale {
		r.logger.Info("evicting silent connection", "client", c.ID, "lastSeen", c.LastSeen())
		_ = c.Close()
	}
}
