package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

const (
	// graceWindow is how long a dropped player's seat waits before an
	// automated strategy takes it over.
	graceWindow = 30 * time.Second

	// hardExpiry is the point past which a session token can never
	// resume; the entry is discarded to bound memory.
	hardExpiry = 5 * time.Minute

	sweepInterval = time.Minute
)

// DisconnectedPlayerInfo snapshots a player's identity at the moment its
// connection died, keyed by the durable session token rather than the
// transient client id.
type DisconnectedPlayerInfo struct {
	SessionToken   string
	ClientID       string
	Name           string
	LobbyCode      string
	WasHost        bool
	DisconnectedAt time.Time
	TakeoverDone   bool

	timer *quartz.Timer
}

// ReconnectService decouples "this stream died" from "this player is gone".
// It owns the token→info table independent of whether the lobby still
// exists, escalates to bot takeover when the grace window lapses, and
// evicts entries past hard expiry.
type ReconnectService struct {
	mu      sync.Mutex
	entries map[string]*DisconnectedPlayerInfo

	clock  quartz.Clock
	logger *log.Logger
	grace  time.Duration
	expiry time.Duration

	// onTakeover fires exactly once per entry when the grace window
	// lapses without a resume. Takeover is not reversible: a later resume
	// re-attaches the human but never undoes the strategy's actions.
	onTakeover func(info DisconnectedPlayerInfo)

	// onExpire fires when the hard expiry sweep discards an entry.
	onExpire func(info DisconnectedPlayerInfo)
}

// NewReconnectService creates the service with default windows.
func NewReconnectService(clock quartz.Clock, logger *log.Logger) *ReconnectService {
	return &ReconnectService{
		entries: make(map[string]*DisconnectedPlayerInfo),
		clock:   clock,
		logger:  logger.WithPrefix("reconnect"),
		grace:   graceWindow,
		expiry:  hardExpiry,
	}
}

// OnTakeover registers the takeover escalation callback.
func (r *ReconnectService) OnTakeover(fn func(info DisconnectedPlayerInfo)) {
	r.onTakeover = fn
}

// OnExpire registers the hard-expiry callback.
func (r *ReconnectService) OnExpire(fn func(info DisconnectedPlayerInfo)) {
	r.onExpire = fn
}

// HandleDisconnect snapshots a dropped player and starts its grace timer.
// Calling it again for the same token resets nothing; the original
// disconnect time stands.
func (r *ReconnectService) HandleDisconnect(sessionToken, clientID, name, lobbyCode string, wasHost bool) {
	if sessionToken == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[sessionToken]; exists {
		return
	}

	info := &DisconnectedPlayerInfo{
		SessionToken:   sessionToken,
		ClientID:       clientID,
		Name:           name,
		LobbyCode:      lobbyCode,
		WasHost:        wasHost,
		DisconnectedAt: r.clock.Now(),
	}
	info.timer = r.clock.AfterFunc(r.grace, func() { r.takeover(sessionToken) }, "grace")
	r.entries[sessionToken] = info
	r.logger.Info("grace window started", "player", name, "lobby", lobbyCode, "grace", r.grace)
}

func (r *ReconnectService) takeover(sessionToken string) {
	r.mu.Lock()
	info, ok := r.entries[sessionToken]
	if !ok || info.TakeoverDone {
		r.mu.Unlock()
		return
	}
	info.TakeoverDone = true
	snapshot := *info
	r.mu.Unlock()

	r.logger.Info("grace window lapsed, escalating to takeover", "player", snapshot.Name, "lobby", snapshot.LobbyCode)
	if r.onTakeover != nil {
		r.onTakeover(snapshot)
	}
}

// Resume validates a session token and removes its entry. The caller
// rebinds the new client id to the returned identity. The grace timer is
// cancelled; if takeover already happened the returned info says so and the
// human is simply re-attached going forward.
func (r *ReconnectService) Resume(sessionToken string) (DisconnectedPlayerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.entries[sessionToken]
	if !ok {
		return DisconnectedPlayerInfo{}, ErrSessionUnknown
	}
	if r.clock.Since(info.DisconnectedAt) > r.expiry {
		info.timer.Stop()
		delete(r.entries, sessionToken)
		return DisconnectedPlayerInfo{}, ErrSessionExpired
	}

	info.timer.Stop()
	delete(r.entries, sessionToken)
	return *info, nil
}

// Pending reports whether a token has a live entry. Test hook.
func (r *ReconnectService) Pending(sessionToken string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[sessionToken]
	return ok
}

// Run sweeps expired entries until ctx is cancelled.
func (r *ReconnectService) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(sweepInterval, "reconnect-sweep")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepExpired()
		}
	}
}

// sweepExpired drops entries past hard expiry regardless of takeover
// status, to bound memory.
func (r *ReconnectService) sweepExpired() {
	r.mu.Lock()
	var expired []DisconnectedPlayerInfo
	for token, info := range r.entries {
		if r.clock.Since(info.DisconnectedAt) > r.expiry {
			info.timer.Stop()
			delete(r.entries, token)
			expired = append(expired, *info)
		}
	}
	r.mu.Unlock()

	for _, info := range expired {
		r.logger.Info("session expired", "player", info.Name, "lobby", info.LobbyCode)
		if r.onExpire != nil {
			r.onExpire(info)
		}
	}
}
