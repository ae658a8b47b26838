package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/feltpoker/felt/internal/history"
	"github.com/feltpoker/felt/internal/protocol"
	"github.com/feltpoker/felt/internal/randutil"
	"github.com/feltpoker/felt/internal/roomcode"
)

const shutdownNotifyWindow = 3 * time.Second

// Server ties the transport, registry, lobby service, reconnection service,
// and per-lobby orchestrators together behind one WebSocket endpoint.
type Server struct {
	cfg       *Config
	logger    *log.Logger
	clock     quartz.Clock
	registry  *Registry
	lobbies   *LobbyService
	reconnect *ReconnectService
	sink      history.Sink
	upgrader  websocket.Upgrader

	// seed drives deck shuffles; zero means nondeterministic.
	seed int64

	mu    sync.Mutex
	games map[string]*Orchestrator

	httpSrv *http.Server
}

// New builds a fully wired server. A nil sink disables history recording.
func New(cfg *Config, sink history.Sink, seed int64, logger *log.Logger) *Server {
	if sink == nil {
		sink = history.NullSink{}
	}
	clock := quartz.NewReal()

	s := &Server{
		cfg:      cfg,
		logger:   logger.WithPrefix("server"),
		clock:    clock,
		registry: NewRegistry(clock, logger),
		sink:     sink,
		seed:     seed,
		games:    make(map[string]*Orchestrator),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement is a deployment concern handled by the
			// fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.registry.timeout = time.Duration(cfg.Session.HeartbeatTimeoutSeconds) * time.Second

	s.lobbies = NewLobbyService(s.registry, roomcode.NewGenerator(nil), sink, logger)
	s.lobbies.OnStart(s.startGame)
	s.lobbies.OnClose(s.closeGame)
	s.lobbies.OnRemove(s.handleMidGameRemoval)

	s.reconnect = NewReconnectService(clock, logger)
	s.reconnect.grace = time.Duration(cfg.Session.GraceWindowSeconds) * time.Second
	s.reconnect.expiry = time.Duration(cfg.Session.HardExpirySeconds) * time.Second
	s.reconnect.OnTakeover(s.handleTakeover)
	s.reconnect.OnExpire(s.handleExpire)

	return s
}

// Router builds the HTTP surface: the WebSocket endpoint plus two small
// read-only routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/lobbies", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.LobbyListPayload{Lobbies: s.lobbies.List()})
	})
	return r
}

// Run serves until ctx is cancelled, then drains: connected clients get a
// disconnect notice and a short window before streams are torn down.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.Router(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", s.httpSrv.Addr)
		err := s.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		s.registry.Supervise(ctx)
		return nil
	})
	g.Go(func() error {
		s.reconnect.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down", "clients", s.registry.Count())

	s.registry.BroadcastAll(protocol.MustNew(protocol.TypeDisconnect, protocol.ErrorPayload{
		Code:    protocol.CodeInternal,
		Message: "server shutting down",
	}))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownNotifyWindow)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)

	s.mu.Lock()
	for _, g := range s.games {
		g.Stop()
	}
	s.mu.Unlock()
	return err
}

// handleWS upgrades the HTTP request and hands the stream to a Connection.
// The upgrader performs the protocol handshake; a request that is not a
// well-formed upgrade is answered with an HTTP error and no session exists.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade rejected", "remote", r.RemoteAddr, "error", err)
		return
	}

	clientID := uuid.NewString()
	conn := NewConnection(clientID, ws, s, s.clock, s.logger)
	s.registry.Register(conn)
	conn.Start()
}

// HandleMessage dispatches one decoded frame. Runs on the connection's read
// goroutine.
func (s *Server) HandleMessage(c *Connection, m *protocol.Message) {
	switch m.Type {
	case protocol.TypeConnect:
		s.handleConnect(c, m)
		return
	case protocol.TypeReconnect:
		s.handleReconnect(c, m)
		return
	}

	// Everything below requires an established identity.
	if c.SessionToken() == "" {
		c.SendError(protocol.CodeNotConnected, "connect first")
		return
	}

	switch m.Type {
	case protocol.TypeCreateLobby:
		var p protocol.CreateLobbyPayload
		if m.Decode(&p) {
			s.reply(c, s.lobbies.Create(c, p))
		}
	case protocol.TypeJoinLobby:
		var p protocol.JoinLobbyPayload
		if m.Decode(&p) {
			s.reply(c, s.lobbies.Join(c, p))
		}
	case protocol.TypeLeaveLobby:
		s.reply(c, s.lobbies.Leave(c))
	case protocol.TypePlayerReady:
		var p protocol.PlayerReadyPayload
		if m.Decode(&p) {
			s.reply(c, s.lobbies.Ready(c, p.Ready))
		}
	case protocol.TypeStartGame:
		s.reply(c, s.lobbies.Start(c))
	case protocol.TypeListLobbies:
		_ = c.Send(protocol.MustNew(protocol.TypeLobbyList, protocol.LobbyListPayload{
			Lobbies: s.lobbies.List(),
		}))
	case protocol.TypeKickPlayer:
		var p protocol.KickPlayerPayload
		if m.Decode(&p) {
			s.reply(c, s.lobbies.Kick(c, p.ClientID))
		}
	case protocol.TypeTransferHost:
		var p protocol.TransferHostPayload
		if m.Decode(&p) {
			s.reply(c, s.lobbies.TransferHost(c, p.ClientID))
		}
	case protocol.TypeActionResponse:
		var p protocol.ActionResponsePayload
		if m.Decode(&p) {
			if g, ok := s.game(c.Lobby()); ok {
				g.HandleAction(c.ID, p)
			}
		}
	case protocol.TypeChatMessage:
		var p protocol.ChatMessagePayload
		if m.Decode(&p) && p.Text != "" {
			s.reply(c, s.lobbies.Chat(c, p.Text))
		}
	case protocol.TypeStateRequest:
		if g, ok := s.game(c.Lobby()); ok {
			g.SyncClient(c.ID)
		} else {
			c.SendError(protocol.CodeNotInGame, "no game in progress")
		}
	default:
		c.SendError(protocol.CodeInvalidMessage, "unknown message type")
	}
}

// reply sends an error frame when a lobby operation fails; success is
// signalled by the broadcasts the operation itself produced.
func (s *Server) reply(c *Connection, err error) {
	if err != nil {
		c.SendError(errorCode(err), err.Error())
	}
}

func (s *Server) handleConnect(c *Connection, m *protocol.Message) {
	var p protocol.ConnectPayload
	if !m.Decode(&p) || p.Name == "" {
		c.SendError(protocol.CodeInvalidMessage, "connect requires a name")
		return
	}
	if c.SessionToken() != "" {
		// Already connected; re-ack idempotently.
		s.ackConnect(c)
		return
	}

	c.SetIdentity(p.Name, uuid.NewString())
	s.logger.Info("session started", "client", c.ID, "name", p.Name)
	s.record(history.EventSessionStarted, "", c.ID, map[string]any{"name": p.Name})
	s.ackConnect(c)
}

func (s *Server) ackConnect(c *Connection) {
	_ = c.Send(protocol.MustNew(protocol.TypeConnectAck, protocol.ConnectAckPayload{
		ClientID:     c.ID,
		Name:         c.Name(),
		SessionToken: c.SessionToken(),
	}))
}

func (s *Server) handleReconnect(c *Connection, m *protocol.Message) {
	var p protocol.ReconnectPayload
	if !m.Decode(&p) || p.SessionToken == "" {
		c.SendError(protocol.CodeInvalidMessage, "reconnect requires a session token")
		return
	}

	info, err := s.reconnect.Resume(p.SessionToken)
	if err != nil {
		s.reply(c, err)
		return
	}

	c.SetIdentity(info.Name, info.SessionToken)
	s.logger.Info("session resumed", "client", c.ID, "name", info.Name, "lobby", info.LobbyCode)
	s.record(history.EventSessionResumed, info.LobbyCode, c.ID, map[string]any{"name": info.Name})

	lobbyCode := ""
	if info.LobbyCode != "" {
		if lobby, m := s.lobbies.Rebind(info.LobbyCode, info.ClientID, c.ID); m != nil {
			lobbyCode = lobby.Code
			c.SetLobby(lobby.Code)
		}
	}

	_ = c.Send(protocol.MustNew(protocol.TypeReconnectAck, protocol.ReconnectAckPayload{
		ClientID:     c.ID,
		Name:         info.Name,
		SessionToken: info.SessionToken,
		LobbyCode:    lobbyCode,
	}))

	if lobbyCode == "" {
		return
	}

	if g, ok := s.game(lobbyCode); ok {
		g.HandleReconnect(info.ClientID, c.ID)
	}
	if lobby, ok := s.lobbies.Get(lobbyCode); ok {
		s.lobbies.sendChatHistory(c, lobby)
	}
	s.registry.Broadcast(lobbyCode, protocol.MustNew(protocol.TypePlayerReturned, protocol.PlayerReturnedPayload{
		LobbyCode: lobbyCode,
		ClientID:  c.ID,
		Name:      info.Name,
	}), c.ID)
}

// HandleDisconnect runs once per connection when its stream ends, from any
// cause: transport fault, heartbeat eviction, or shutdown.
func (s *Server) HandleDisconnect(c *Connection) {
	s.registry.Unregister(c)

	token := c.SessionToken()
	if token == "" {
		return
	}

	lobbyCode := c.Lobby()
	wasHost := false
	if lobbyCode != "" {
		wasHost, _ = s.lobbies.MarkDisconnected(lobbyCode, c.ID)
		s.registry.Broadcast(lobbyCode, protocol.MustNew(protocol.TypePlayerDropped, protocol.PlayerDroppedPayload{
			LobbyCode:    lobbyCode,
			ClientID:     c.ID,
			Name:         c.Name(),
			GraceSeconds: int(s.reconnect.grace / time.Second),
		}))
	}

	s.reconnect.HandleDisconnect(token, c.ID, c.Name(), lobbyCode, wasHost)
}

// handleTakeover runs when a grace window lapses: the seat flips to
// automated control in both the lobby roster and the running game.
func (s *Server) handleTakeover(info DisconnectedPlayerInfo) {
	if info.LobbyCode == "" {
		return
	}

	converted := s.lobbies.ConvertToBot(info.LobbyCode, info.ClientID)
	if !converted {
		return
	}
	if g, ok := s.game(info.LobbyCode); ok {
		g.HandleTakeover(info.ClientID)
	}
	s.registry.Broadcast(info.LobbyCode, protocol.MustNew(protocol.TypeBotTakeover, protocol.BotTakeoverPayload{
		LobbyCode: info.LobbyCode,
		ClientID:  info.ClientID,
		Name:      info.Name,
	}))
}

// handleMidGameRemoval covers a seat that leaves or is kicked after the
// game started: its remaining turns go to the automated strategy so the
// hand never waits a full turn timeout on a player who is gone.
func (s *Server) handleMidGameRemoval(code, clientID string) {
	if g, ok := s.game(code); ok {
		g.HandleTakeover(clientID)
	}
}

func (s *Server) handleExpire(info DisconnectedPlayerInfo) {
	s.record(history.EventSessionExpired, info.LobbyCode, info.ClientID, map[string]any{"name": info.Name})
}

// startGame hands a Starting lobby to a fresh orchestrator.
func (s *Server) startGame(l *Lobby) {
	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	g := NewOrchestrator(OrchestratorConfig{
		Lobby:       l,
		Registry:    s.registry,
		Sink:        s.sink,
		Logger:      s.logger,
		Clock:       s.clock,
		Rng:         randutil.New(seed),
		TurnTimeout: time.Duration(s.cfg.Game.TurnTimeoutSeconds) * time.Second,
		OnFinish:    s.finishGame,
	})

	s.mu.Lock()
	s.games[l.Code] = g
	s.mu.Unlock()

	s.lobbies.MarkInGame(l.Code)
	go g.Run()
}

func (s *Server) finishGame(code string) {
	s.mu.Lock()
	delete(s.games, code)
	s.mu.Unlock()
	s.lobbies.Finish(code)
}

func (s *Server) closeGame(code string) {
	s.mu.Lock()
	g, ok := s.games[code]
	delete(s.games, code)
	s.mu.Unlock()
	if ok {
		g.Stop()
	}
}

func (s *Server) game(code string) (*Orchestrator, bool) {
	if code == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[code]
	return g, ok
}

func (s *Server) record(kind history.EventKind, lobbyCode, clientID string, detail any) {
	if err := s.sink.Record(history.Event{
		Kind:      kind,
		LobbyCode: lobbyCode,
		ClientID:  clientID,
		Detail:    detail,
	}); err != nil {
		s.logger.Warn("history record failed", "kind", kind, "error", err)
	}
}
