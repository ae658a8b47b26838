// Package history records session, lobby and hand lifecycle events.
//
// The sink is strictly fire-and-forget: game correctness never depends on a
// write landing, and a failing sink is logged by the caller's side of the
// boundary, never propagated.
package history

import "time"

// EventKind classifies a recorded event.
type EventKind string

const (
	EventSessionStarted EventKind = "session_started"
	EventSessionResumed EventKind = "session_resumed"
	EventSessionExpired EventKind = "session_expired"
	EventLobbyCreated   EventKind = "lobby_created"
	EventLobbyClosed    EventKind = "lobby_closed"
	EventGameStarted    EventKind = "game_started"
	EventGameOver       EventKind = "game_over"
	EventHandStarted    EventKind = "hand_started"
	EventHandComplete   EventKind = "hand_complete"
	EventAction         EventKind = "action"
	EventBotTakeover    EventKind = "bot_takeover"
)

// Event is one history record. Detail is free-form JSON-encodable data whose
// shape depends on Kind.
type Event struct {
	Kind      EventKind
	LobbyCode string
	HandID    string
	ClientID  string
	Detail    any
	At        time.Time
}

// Sink consumes events. Implementations must be safe for concurrent use and
// must not block the caller beyond a local write.
type Sink interface {
	Record(ev Event) error
	Close() error
}

// NullSink discards everything. Used in tests and when no history path is
// configured.
type NullSink struct{}

func (NullSink) Record(Event) error { return nil }
func (NullSink) Close() error       { return nil }
