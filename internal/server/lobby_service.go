package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/feltpoker/felt/internal/history"
	"github.com/feltpoker/felt/internal/protocol"
	"github.com/feltpoker/felt/internal/roomcode"
)

// Defaults applied to create_lobby payloads that omit settings.
const (
	defaultMaxPlayers = 6
	defaultSmallBlind = 5
	defaultBigBlind   = 10
	defaultStartChips = 1000
	maxLobbyPlayers   = 9
)

// LobbyService is message-driven CRUD over lobbies, keyed by connection id.
// Every mutation broadcasts a full room snapshot; there is no delta
// protocol, so clients replace their copy wholesale.
type LobbyService struct {
	registry *Registry
	codes    *roomcode.Generator
	logger   *log.Logger
	sink     history.Sink

	// onStart hands a Starting lobby to the game orchestrator.
	onStart func(l *Lobby)
	// onClose runs after a lobby is torn down.
	onClose func(code string)
	// onRemove runs when a member is unseated from a lobby that has
	// already left Waiting, so the running game can hand the seat to an
	// automated strategy instead of soliciting a player who is gone.
	onRemove func(code, clientID string)

	// The lobby table is touched from every connection's read loop; the
	// service lock also serializes mutations of the lobbies themselves.
	mu      sync.RWMutex
	lobbies map[string]*Lobby
}

// NewLobbyService creates the service.
func NewLobbyService(registry *Registry, codes *roomcode.Generator, sink history.Sink, logger *log.Logger) *LobbyService {
	return &LobbyService{
		registry: registry,
		codes:    codes,
		logger:   logger.WithPrefix("lobby"),
		sink:     sink,
		lobbies:  make(map[string]*Lobby),
	}
}

// OnStart registers the start handoff.
func (s *LobbyService) OnStart(fn func(l *Lobby)) { s.onStart = fn }

// OnClose registers the teardown notification.
func (s *LobbyService) OnClose(fn func(code string)) { s.onClose = fn }

// OnRemove registers the mid-game removal notification.
func (s *LobbyService) OnRemove(fn func(code, clientID string)) { s.onRemove = fn }

// Get returns a lobby by code.
func (s *LobbyService) Get(code string) (*Lobby, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lobbies[code]
	return l, ok
}

// Create allocates a room and seats the creator as host.
func (s *LobbyService) Create(c *Connection, p protocol.CreateLobbyPayload) error {
	if c.Lobby() != "" {
		return ErrAlreadyInLobby
	}

	settings := LobbySettings{
		Name:       p.Name,
		MaxPlayers: p.MaxPlayers,
		Public:     p.Public,
		Password:   p.Password,
		SmallBlind: p.SmallBlind,
		BigBlind:   p.BigBlind,
		StartChips: p.StartChips,
	}
	if settings.MaxPlayers <= 0 || settings.MaxPlayers > maxLobbyPlayers {
		settings.MaxPlayers = defaultMaxPlayers
	}
	if settings.SmallBlind <= 0 {
		settings.SmallBlind = defaultSmallBlind
	}
	if settings.BigBlind <= settings.SmallBlind {
		settings.BigBlind = max(defaultBigBlind, settings.SmallBlind*2)
	}
	if settings.StartChips < settings.BigBlind*10 {
		settings.StartChips = max(defaultStartChips, settings.BigBlind*10)
	}
	if settings.Name == "" {
		settings.Name = fmt.Sprintf("%s's table", c.Name())
	}

	s.mu.Lock()
	code := s.codes.Generate()
	for _, taken := s.lobbies[code]; taken; _, taken = s.lobbies[code] {
		code = s.codes.Generate()
	}
	lobby := NewLobby(code, settings)
	if _, err := lobby.Add(c.ID, c.Name(), false); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lobbies[code] = lobby
	s.mu.Unlock()

	c.SetLobby(code)
	s.logger.Info("lobby created", "code", code, "host", c.Name())
	s.record(history.EventLobbyCreated, lobby.Code, "", c.ID, map[string]any{"name": settings.Name})
	s.broadcastUpdate(lobby, "created")
	return nil
}

// Join seats a connection in an existing Waiting room.
func (s *LobbyService) Join(c *Connection, p protocol.JoinLobbyPayload) error {
	if c.Lobby() != "" {
		return ErrAlreadyInLobby
	}

	s.mu.Lock()
	lobby, ok := s.lobbies[roomcode.Normalize(p.Code)]
	if !ok {
		s.mu.Unlock()
		return ErrLobbyNotFound
	}
	if lobby.Settings.Password != "" && lobby.Settings.Password != p.Password {
		s.mu.Unlock()
		return ErrWrongPassword
	}
	if _, err := lobby.Add(c.ID, c.Name(), false); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	c.SetLobby(lobby.Code)
	s.logger.Info("player joined", "code", lobby.Code, "player", c.Name())
	s.broadcastUpdate(lobby, "joined")
	s.sendChatHistory(c, lobby)
	return nil
}

// Leave unseats a connection; an emptied lobby is torn down.
func (s *LobbyService) Leave(c *Connection) error {
	return s.removeMember(c.Lobby(), c.ID, "left")
}

// Kick removes a member; host only.
func (s *LobbyService) Kick(c *Connection, targetID string) error {
	s.mu.Lock()
	lobby, ok := s.lobbies[c.Lobby()]
	if !ok {
		s.mu.Unlock()
		return ErrLobbyNotFound
	}
	issuer := lobby.Member(c.ID)
	if issuer == nil {
		s.mu.Unlock()
		return ErrNotMember
	}
	if !issuer.Host {
		s.mu.Unlock()
		return ErrNotHost
	}
	s.mu.Unlock()

	if kicked, ok := s.registry.Get(targetID); ok {
		kicked.SendError(protocol.CodeNotMember, "you were removed from the lobby")
	}
	return s.removeMember(lobby.Code, targetID, "kicked")
}

func (s *LobbyService) removeMember(code, clientID, event string) error {
	s.mu.Lock()
	lobby, ok := s.lobbies[code]
	if !ok {
		s.mu.Unlock()
		return ErrLobbyNotFound
	}
	if _, err := lobby.Remove(clientID); err != nil {
		s.mu.Unlock()
		return err
	}
	inGame := lobby.State != LobbyWaiting
	empty := lobby.Empty()
	if empty {
		delete(s.lobbies, code)
	}
	s.mu.Unlock()

	if c, ok := s.registry.Get(clientID); ok && c.Lobby() == code {
		c.SetLobby("")
	}

	if inGame && !empty && s.onRemove != nil {
		s.onRemove(code, clientID)
	}

	if empty {
		s.logger.Info("lobby torn down", "code", code)
		s.record(history.EventLobbyClosed, code, "", "", nil)
		if s.onClose != nil {
			s.onClose(code)
		}
		return nil
	}
	s.broadcastUpdate(lobby, event)
	return nil
}

// Ready toggles the issuer's ready flag.
func (s *LobbyService) Ready(c *Connection, ready bool) error {
	s.mu.Lock()
	lobby, ok := s.lobbies[c.Lobby()]
	if !ok {
		s.mu.Unlock()
		return ErrLobbyNotFound
	}
	m := lobby.Member(c.ID)
	if m == nil {
		s.mu.Unlock()
		return ErrNotMember
	}
	m.Ready = ready
	s.mu.Unlock()

	s.broadcastUpdate(lobby, "ready")
	return nil
}

// TransferHost hands the host role to another member; host only.
func (s *LobbyService) TransferHost(c *Connection, targetID string) error {
	s.mu.Lock()
	lobby, ok := s.lobbies[c.Lobby()]
	if !ok {
		s.mu.Unlock()
		return ErrLobbyNotFound
	}
	if err := lobby.TransferHost(c.ID, targetID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.broadcastUpdate(lobby, "host_changed")
	return nil
}

// Start validates preconditions and hands the lobby to the orchestrator.
// The orchestrator owns the eventual InGame and Finished transitions.
func (s *LobbyService) Start(c *Connection) error {
	s.mu.Lock()
	lobby, ok := s.lobbies[c.Lobby()]
	if !ok {
		s.mu.Unlock()
		return ErrLobbyNotFound
	}
	if err := lobby.CanStart(c.ID); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := lobby.Advance(LobbyStarting); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.logger.Info("game starting", "code", lobby.Code)
	s.record(history.EventGameStarted, lobby.Code, "", c.ID, nil)
	s.broadcastUpdate(lobby, "started")
	if s.onStart != nil {
		s.onStart(lobby)
	}
	return nil
}

// List returns the public listing: Waiting, non-full, public rooms.
func (s *LobbyService) List() []protocol.LobbyListEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.LobbyListEntry, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		if l.State != LobbyWaiting || !l.Settings.Public {
			continue
		}
		entry := l.ListEntry()
		if entry.PlayerCount >= entry.MaxPlayers {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// MarkDisconnected flags a member whose connection died, without unseating
// it; the reconnection service decides the seat's fate.
func (s *LobbyService) MarkDisconnected(code, clientID string) (wasHost bool, inLobby bool) {
	s.mu.Lock()
	lobby, ok := s.lobbies[code]
	if !ok {
		s.mu.Unlock()
		return false, false
	}
	m := lobby.Member(clientID)
	if m == nil {
		s.mu.Unlock()
		return false, false
	}
	m.Connected = false
	wasHost = m.Host
	s.mu.Unlock()

	s.broadcastUpdate(lobby, "player_dropped")
	return wasHost, true
}

// Rebind swaps a reconnecting member onto its new client id and rebroadcasts.
func (s *LobbyService) Rebind(code, oldID, newID string) (*Lobby, *LobbyMember) {
	s.mu.Lock()
	lobby, ok := s.lobbies[code]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	m := lobby.Rebind(oldID, newID)
	s.mu.Unlock()
	if m == nil {
		return nil, nil
	}

	s.broadcastUpdate(lobby, "player_returned")
	return lobby, m
}

// ConvertToBot flips a seat to automated control after takeover. In a
// Waiting lobby the seat is removed instead; a bot has no business waiting
// for a game to start.
func (s *LobbyService) ConvertToBot(code, clientID string) bool {
	s.mu.Lock()
	lobby, ok := s.lobbies[code]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if lobby.State == LobbyWaiting {
		s.mu.Unlock()
		_ = s.removeMember(code, clientID, "left")
		return false
	}
	m := lobby.Member(clientID)
	if m == nil {
		s.mu.Unlock()
		return false
	}
	m.Bot = true
	m.Ready = true
	m.Connected = false
	s.mu.Unlock()

	s.broadcastUpdate(lobby, "bot_takeover")
	return true
}

// MarkInGame records that the orchestrator has taken over the lobby.
func (s *LobbyService) MarkInGame(code string) {
	s.mu.Lock()
	lobby, ok := s.lobbies[code]
	if ok {
		_ = lobby.Advance(LobbyInGame)
	}
	s.mu.Unlock()
	if ok {
		s.broadcastUpdate(lobby, "in_game")
	}
}

// Finish marks the lobby Finished after a game completes.
func (s *LobbyService) Finish(code string) {
	s.mu.Lock()
	lobby, ok := s.lobbies[code]
	if ok {
		_ = lobby.Advance(LobbyFinished)
	}
	s.mu.Unlock()
	if ok {
		s.broadcastUpdate(lobby, "finished")
	}
}

// Chat relays a member's chat line and records it in the lobby history.
func (s *LobbyService) Chat(c *Connection, text string) error {
	s.mu.Lock()
	lobby, ok := s.lobbies[c.Lobby()]
	if !ok {
		s.mu.Unlock()
		return ErrLobbyNotFound
	}
	m := lobby.Member(c.ID)
	if m == nil {
		s.mu.Unlock()
		return ErrNotMember
	}
	entry := protocol.ChatEntry{
		ClientID: c.ID,
		Name:     m.Name,
		Text:     text,
		SentAt:   s.registry.clock.Now(),
	}
	lobby.AppendChat(entry)
	s.mu.Unlock()

	s.registry.Broadcast(lobby.Code, protocol.MustNew(protocol.TypeChatBroadcast, entry))
	return nil
}

func (s *LobbyService) sendChatHistory(c *Connection, lobby *Lobby) {
	s.mu.RLock()
	entries := lobby.ChatHistory()
	s.mu.RUnlock()
	if len(entries) == 0 {
		return
	}
	_ = c.Send(protocol.MustNew(protocol.TypeChatHistory, protocol.ChatHistoryPayload{
		LobbyCode: lobby.Code,
		Entries:   entries,
	}))
}

// broadcastUpdate pushes the full current snapshot to every member.
func (s *LobbyService) broadcastUpdate(lobby *Lobby, event string) {
	s.mu.RLock()
	snapshot := lobby.Snapshot()
	s.mu.RUnlock()

	s.registry.Broadcast(lobby.Code, protocol.MustNew(protocol.TypeLobbyUpdate, protocol.LobbyUpdatePayload{
		Event: event,
		Lobby: snapshot,
	}))
}

func (s *LobbyService) record(kind history.EventKind, lobbyCode, handID, clientID string, detail any) {
	if err := s.sink.Record(history.Event{
		Kind:      kind,
		LobbyCode: lobbyCode,
		HandID:    handID,
		ClientID:  clientID,
		Detail:    detail,
	}); err != nil {
		s.logger.Warn("history record failed", "kind", kind, "error", err)
	}
}

// errorCode maps a service error onto its stable wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrLobbyNotFound):
		return protocol.CodeLobbyNotFound
	case errors.Is(err, ErrLobbyFull):
		return protocol.CodeLobbyFull
	case errors.Is(err, ErrLobbyStarted):
		return protocol.CodeLobbyStarted
	case errors.Is(err, ErrWrongPassword):
		return protocol.CodeWrongPassword
	case errors.Is(err, ErrNotHost):
		return protocol.CodeNotHost
	case errors.Is(err, ErrNotMember):
		return protocol.CodeNotMember
	case errors.Is(err, ErrNotReady):
		return protocol.CodeNotReady
	case errors.Is(err, ErrTooFewPlayers):
		return protocol.CodeTooFewPlayers
	case errors.Is(err, ErrAlreadyInLobby):
		return protocol.CodeAlreadyInLobby
	case errors.Is(err, ErrSessionUnknown):
		return protocol.CodeSessionUnknown
	case errors.Is(err, ErrSessionExpired):
		return protocol.CodeSessionExpired
	default:
		return protocol.CodeInternal
	}
}
