package server

import (
	"fmt"

	"github.com/feltpoker/felt/internal/protocol"
)

// LobbyState is the room lifecycle. It only moves forward.
type LobbyState int

const (
	LobbyWaiting LobbyState = iota
	LobbyStarting
	LobbyInGame
	LobbyFinished
)

func (s LobbyState) String() string {
	return [...]string{"waiting", "starting", "in_game", "finished"}[s]
}

// LobbySettings are fixed at creation.
type LobbySettings struct {
	Name       string
	MaxPlayers int
	Public     bool
	Password   string
	SmallBlind int
	BigBlind   int
	StartChips int
}

// LobbyMember is one seat in the room.
type LobbyMember struct {
	ClientID  string
	Name      string
	Ready     bool
	Host      bool
	Bot       bool
	Connected bool
}

// Lobby is pure room state: ordered membership, a single host, readiness
// flags. No I/O and no locking; LobbyService serializes access.
type Lobby struct {
	Code     string
	Settings LobbySettings
	State    LobbyState

	members []*LobbyMember
	chat    []protocol.ChatEntry
}

const chatHistoryLimit = 50

// NewLobby creates an empty Waiting room.
func NewLobby(code string, settings LobbySettings) *Lobby {
	return &Lobby{Code: code, Settings: settings, State: LobbyWaiting}
}

// Add seats a member. The first member becomes host. Joining is only
// possible while Waiting and below capacity.
func (l *Lobby) Add(clientID, name string, bot bool) (*LobbyMember, error) {
	if l.State != LobbyWaiting {
		return nil, ErrLobbyStarted
	}
	if len(l.members) >= l.Settings.MaxPlayers {
		return nil, ErrLobbyFull
	}
	m := &LobbyMember{
		ClientID:  clientID,
		Name:      name,
		Bot:       bot,
		Ready:     bot, // automated seats are always ready
		Host:      len(l.members) == 0,
		Connected: !bot,
	}
	l.members = append(l.members, m)
	return m, nil
}

// Remove unseats a member. If the host leaves, the role passes to the first
// remaining human seat, else the first automated seat, so exactly one host
// exists while the lobby is non-empty.
func (l *Lobby) Remove(clientID string) (*LobbyMember, error) {
	idx := l.index(clientID)
	if idx < 0 {
		return nil, ErrNotMember
	}
	m := l.members[idx]
	l.members = append(l.members[:idx], l.members[idx+1:]...)

	if m.Host && len(l.members) > 0 {
		next := l.firstHuman()
		if next == nil {
			next = l.members[0]
		}
		next.Host = true
	}
	m.Host = false
	return m, nil
}

func (l *Lobby) firstHuman() *LobbyMember {
	for _, m := range l.members {
		if !m.Bot {
			return m
		}
	}
	return nil
}

func (l *Lobby) index(clientID string) int {
	for i, m := range l.members {
		if m.ClientID == clientID {
			return i
		}
	}
	return -1
}

// Member returns the member with the given client id, or nil.
func (l *Lobby) Member(clientID string) *LobbyMember {
	if idx := l.index(clientID); idx >= 0 {
		return l.members[idx]
	}
	return nil
}

// Members returns the ordered membership. The slice is a copy; the members
// are shared.
func (l *Lobby) Members() []*LobbyMember {
	out := make([]*LobbyMember, len(l.members))
	copy(out, l.members)
	return out
}

// Host returns the current host, or nil for an empty lobby.
func (l *Lobby) Host() *LobbyMember {
	for _, m := range l.members {
		if m.Host {
			return m
		}
	}
	return nil
}

// Empty reports whether no seats are occupied.
func (l *Lobby) Empty() bool { return len(l.members) == 0 }

// TransferHost moves the host role between two current members.
func (l *Lobby) TransferHost(fromID, toID string) error {
	from, to := l.Member(fromID), l.Member(toID)
	if from == nil || to == nil {
		return ErrNotMember
	}
	if !from.Host {
		return ErrNotHost
	}
	from.Host = false
	to.Host = true
	return nil
}

// Rebind swaps a member's client id after a reconnect; the transient id
// changes while the seat stays put.
func (l *Lobby) Rebind(oldID, newID string) *LobbyMember {
	m := l.Member(oldID)
	if m == nil {
		return nil
	}
	m.ClientID = newID
	m.Connected = true
	return m
}

// CanStart checks the start preconditions: Waiting state, issuer is host,
// at least two seats, every human ready.
func (l *Lobby) CanStart(issuerID string) error {
	if l.State != LobbyWaiting {
		return ErrLobbyStarted
	}
	issuer := l.Member(issuerID)
	if issuer == nil {
		return ErrNotMember
	}
	if !issuer.Host {
		return ErrNotHost
	}
	if len(l.members) < 2 {
		return ErrTooFewPlayers
	}
	for _, m := range l.members {
		if !m.Bot && !m.Ready {
			return ErrNotReady
		}
	}
	return nil
}

// Advance moves the lifecycle forward. Backward transitions are rejected:
// a Finished lobby never becomes Waiting again.
func (l *Lobby) Advance(to LobbyState) error {
	if to < l.State {
		return fmt.Errorf("%w: %s -> %s", ErrStateRegress, l.State, to)
	}
	l.State = to
	return nil
}

// AppendChat records a chat line, keeping a bounded history.
func (l *Lobby) AppendChat(entry protocol.ChatEntry) {
	l.chat = append(l.chat, entry)
	if len(l.chat) > chatHistoryLimit {
		l.chat = l.chat[len(l.chat)-chatHistoryLimit:]
	}
}

// ChatHistory returns the retained chat lines, oldest first.
func (l *Lobby) ChatHistory() []protocol.ChatEntry {
	out := make([]protocol.ChatEntry, len(l.chat))
	copy(out, l.chat)
	return out
}

// Snapshot renders the full wire view of the room.
func (l *Lobby) Snapshot() protocol.LobbySnapshot {
	players := make([]protocol.LobbyPlayer, len(l.members))
	for i, m := range l.members {
		players[i] = protocol.LobbyPlayer{
			ClientID:  m.ClientID,
			Name:      m.Name,
			Ready:     m.Ready,
			Host:      m.Host,
			Bot:       m.Bot,
			Connected: m.Connected,
		}
	}
	return protocol.LobbySnapshot{
		Code:       l.Code,
		Name:       l.Settings.Name,
		State:      l.State.String(),
		MaxPlayers: l.Settings.MaxPlayers,
		Public:     l.Settings.Public,
		SmallBlind: l.Settings.SmallBlind,
		BigBlind:   l.Settings.BigBlind,
		StartChips: l.Settings.StartChips,
		Players:    players,
	}
}

// ListEntry renders the public listing row.
func (l *Lobby) ListEntry() protocol.LobbyListEntry {
	return protocol.LobbyListEntry{
		Code:        l.Code,
		Name:        l.Settings.Name,
		PlayerCount: len(l.members),
		MaxPlayers:  l.Settings.MaxPlayers,
		SmallBlind:  l.Settings.SmallBlind,
		BigBlind:    l.Settings.BigBlind,
		HasPassword: l.Settings.Password != "",
	}
}
