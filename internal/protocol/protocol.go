// Package protocol defines the wire envelope and payloads exchanged between
// the server and its clients. Every logical message is one JSON text frame:
//
//	{"type": "...", "payload": {...}}
//
// The type tag selects the payload decoding. Unknown or malformed payloads
// decode to "no message" so one bad frame never kills a connection.
package protocol

import (
	"encoding/json"
	"time"
)

// MessageType tags the envelope.
type MessageType string

// Client → server.
const (
	TypeConnect        MessageType = "connect"
	TypeReconnect      MessageType = "reconnect"
	TypeHeartbeat      MessageType = "heartbeat"
	TypeCreateLobby    MessageType = "create_lobby"
	TypeJoinLobby      MessageType = "join_lobby"
	TypeLeaveLobby     MessageType = "leave_lobby"
	TypePlayerReady    MessageType = "player_ready"
	TypeStartGame      MessageType = "start_game"
	TypeListLobbies    MessageType = "list_lobbies"
	TypeKickPlayer     MessageType = "kick_player"
	TypeTransferHost   MessageType = "transfer_host"
	TypeActionResponse MessageType = "action_response"
	TypeChatMessage    MessageType = "chat_message"
	TypeStateRequest   MessageType = "state_request"
)

// Server → client.
const (
	TypeConnectAck     MessageType = "connect_ack"
	TypeReconnectAck   MessageType = "reconnect_ack"
	TypeHeartbeatAck   MessageType = "heartbeat_ack"
	TypeDisconnect     MessageType = "disconnect"
	TypeLobbyUpdate    MessageType = "lobby_update"
	TypeLobbyList      MessageType = "lobby_list"
	TypeGameStateSync  MessageType = "game_state_sync"
	TypeActionRequest  MessageType = "action_request"
	TypePhaseChange    MessageType = "phase_change"
	TypeHandComplete   MessageType = "hand_complete"
	TypeGameOver       MessageType = "game_over"
	TypePlayerDropped  MessageType = "player_dropped"
	TypePlayerReturned MessageType = "player_returned"
	TypeBotTakeover    MessageType = "bot_takeover"
	TypeChatBroadcast  MessageType = "chat_broadcast"
	TypeChatHistory    MessageType = "chat_history"
	TypeError          MessageType = "error"
)

func (t MessageType) String() string { return string(t) }

// Message is the wire envelope.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds an envelope around payload. Marshal errors surface to the
// caller; payloads are plain structs so they only fail on programmer error.
func New(t MessageType, payload any) (*Message, error) {
	if payload == nil {
		return &Message{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Payload: raw}, nil
}

// MustNew is New for payloads that cannot fail to marshal.
func MustNew(t MessageType, payload any) *Message {
	m, err := New(t, payload)
	if err != nil {
		panic("protocol: marshal " + string(t) + ": " + err.Error())
	}
	return m
}

// Decode unmarshals the payload into dst. A missing payload decodes to the
// zero value; a malformed one returns false rather than an error so callers
// can treat it as "no message".
func (m *Message) Decode(dst any) bool {
	if len(m.Payload) == 0 {
		return true
	}
	return json.Unmarshal(m.Payload, dst) == nil
}

// Parse decodes a raw frame into an envelope. A frame that is not a valid
// envelope yields (nil, false).
func Parse(data []byte) (*Message, bool) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil || m.Type == "" {
		return nil, false
	}
	return &m, true
}

// Error codes carried by TypeError payloads. Stable: clients switch on them.
const (
	CodeInvalidMessage = "invalid_message"
	CodeNotConnected   = "not_connected"
	CodeLobbyNotFound  = "lobby_not_found"
	CodeLobbyFull      = "lobby_full"
	CodeLobbyStarted   = "lobby_started"
	CodeWrongPassword  = "wrong_password"
	CodeNotHost        = "not_host"
	CodeNotMember      = "not_member"
	CodeNotReady       = "not_ready"
	CodeTooFewPlayers  = "too_few_players"
	CodeAlreadyInLobby = "already_in_lobby"
	CodeSessionUnknown = "session_unknown"
	CodeSessionExpired = "session_expired"
	CodeNotInGame      = "not_in_game"
	CodeInternal       = "internal_error"
)

// ErrorPayload is the structured failure surface; raw error text never
// crosses the wire.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectPayload opens a session.
type ConnectPayload struct {
	Name string `json:"name"`
}

// ConnectAckPayload carries the identity the client must persist. The
// session token is the durable half; the client id is reissued on reconnect.
type ConnectAckPayload struct {
	ClientID     string `json:"clientId"`
	Name         string `json:"name"`
	SessionToken string `json:"sessionToken"`
}

// ReconnectPayload resumes a disconnected session.
type ReconnectPayload struct {
	SessionToken string `json:"sessionToken"`
}

// ReconnectAckPayload confirms a resume.
type ReconnectAckPayload struct {
	ClientID     string `json:"clientId"`
	Name         string `json:"name"`
	SessionToken string `json:"sessionToken"`
	LobbyCode    string `json:"lobbyCode,omitempty"`
}

// CreateLobbyPayload configures a new room.
type CreateLobbyPayload struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
	Public     bool   `json:"public"`
	Password   string `json:"password,omitempty"`
	SmallBlind int    `json:"smallBlind,omitempty"`
	BigBlind   int    `json:"bigBlind,omitempty"`
	StartChips int    `json:"startChips,omitempty"`
}

// JoinLobbyPayload joins an existing room by code.
type JoinLobbyPayload struct {
	Code     string `json:"code"`
	Password string `json:"password,omitempty"`
}

// PlayerReadyPayload toggles the issuer's ready flag.
type PlayerReadyPayload struct {
	Ready bool `json:"ready"`
}

// KickPlayerPayload removes a member; host only.
type KickPlayerPayload struct {
	ClientID string `json:"clientId"`
}

// TransferHostPayload hands the host role to another member; host only.
type TransferHostPayload struct {
	ClientID string `json:"clientId"`
}

// LobbyPlayer is one seat in a lobby snapshot.
type LobbyPlayer struct {
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	Host      bool   `json:"host"`
	Bot       bool   `json:"bot"`
	Connected bool   `json:"connected"`
}

// LobbySnapshot is the full room state broadcast after every mutation.
// There is no delta protocol; clients replace their copy wholesale.
type LobbySnapshot struct {
	Code       string        `json:"code"`
	Name       string        `json:"name"`
	State      string        `json:"state"`
	MaxPlayers int           `json:"maxPlayers"`
	Public     bool          `json:"public"`
	SmallBlind int           `json:"smallBlind"`
	BigBlind   int           `json:"bigBlind"`
	StartChips int           `json:"startChips"`
	Players    []LobbyPlayer `json:"players"`
}

// LobbyUpdatePayload wraps a snapshot with the event that caused it.
type LobbyUpdatePayload struct {
	Event string        `json:"event"`
	Lobby LobbySnapshot `json:"lobby"`
}

// LobbyListEntry is one row of the public listing.
type LobbyListEntry struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	SmallBlind  int    `json:"smallBlind"`
	BigBlind    int    `json:"bigBlind"`
	HasPassword bool   `json:"hasPassword"`
}

// LobbyListPayload answers list_lobbies.
type LobbyListPayload struct {
	Lobbies []LobbyListEntry `json:"lobbies"`
}

// SeatView is one seat as a particular viewer sees it. HoleCards is nil
// unless the viewer owns the seat or the hand has reached showdown.
type SeatView struct {
	ClientID   string   `json:"clientId"`
	Name       string   `json:"name"`
	Chips      int      `json:"chips"`
	RoundBet   int      `json:"roundBet"`
	TotalBet   int      `json:"totalBet"`
	Folded     bool     `json:"folded"`
	AllIn      bool     `json:"allIn"`
	Eliminated bool     `json:"eliminated"`
	Bot        bool     `json:"bot"`
	HoleCards  []string `json:"holeCards,omitempty"`
}

// GameStateSyncPayload is the per-viewer redacted projection of game state,
// recomputed and pushed after every validated action.
type GameStateSyncPayload struct {
	LobbyCode  string     `json:"lobbyCode"`
	HandID     string     `json:"handId"`
	Phase      string     `json:"phase"`
	Board      []string   `json:"board"`
	Pot        int        `json:"pot"`
	CurrentBet int        `json:"currentBet"`
	Dealer     int        `json:"dealer"`
	SmallBlind int        `json:"smallBlind"`
	BigBlind   int        `json:"bigBlind"`
	Turn       int        `json:"turn"`
	YourSeat   int        `json:"yourSeat"`
	Seats      []SeatView `json:"seats"`
}

// ActionRequestPayload solicits the acting seat's decision.
type ActionRequestPayload struct {
	LobbyCode      string   `json:"lobbyCode"`
	HandID         string   `json:"handId"`
	Seat           int      `json:"seat"`
	ToCall         int      `json:"toCall"`
	MinRaise       int      `json:"minRaise"`
	ValidActions   []string `json:"validActions"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
}

// ActionResponsePayload is the client's answer. The server never trusts it;
// validation re-derives a legal action from current state.
type ActionResponsePayload struct {
	HandID string `json:"handId"`
	Action string `json:"action"`
	Amount int    `json:"amount,omitempty"`
}

// PhaseChangePayload announces a street transition.
type PhaseChangePayload struct {
	LobbyCode string   `json:"lobbyCode"`
	HandID    string   `json:"handId"`
	Phase     string   `json:"phase"`
	Board     []string `json:"board"`
	Pot       int      `json:"pot"`
}

// HandWinner is one winner's share at hand end.
type HandWinner struct {
	ClientID    string `json:"clientId"`
	Name        string `json:"name"`
	Seat        int    `json:"seat"`
	Amount      int    `json:"amount"`
	Description string `json:"description,omitempty"`
}

// HandCompletePayload announces settlement of a hand.
type HandCompletePayload struct {
	LobbyCode string       `json:"lobbyCode"`
	HandID    string       `json:"handId"`
	Winners   []HandWinner `json:"winners"`
	Pot       int          `json:"pot"`
	Showdown  bool         `json:"showdown"`
}

// Standing is one row of the end-of-game ranking.
type Standing struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name"`
	Place    int    `json:"place"`
	Chips    int    `json:"chips"`
}

// GameOverPayload ends a game; the lobby is Finished.
type GameOverPayload struct {
	LobbyCode string     `json:"lobbyCode"`
	Standings []Standing `json:"standings"`
}

// PlayerDroppedPayload tells a lobby a member's connection died and the
// grace window started.
type PlayerDroppedPayload struct {
	LobbyCode    string `json:"lobbyCode"`
	ClientID     string `json:"clientId"`
	Name         string `json:"name"`
	GraceSeconds int    `json:"graceSeconds"`
}

// PlayerReturnedPayload tells a lobby a member resumed inside the window.
type PlayerReturnedPayload struct {
	LobbyCode string `json:"lobbyCode"`
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
}

// BotTakeoverPayload is broadcast exactly once when the grace window lapses
// and an automated strategy takes the seat.
type BotTakeoverPayload struct {
	LobbyCode string `json:"lobbyCode"`
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
}

// ChatMessagePayload is a client's chat line.
type ChatMessagePayload struct {
	Text string `json:"text"`
}

// ChatEntry is one relayed chat line.
type ChatEntry struct {
	ClientID string    `json:"clientId"`
	Name     string    `json:"name"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

// ChatHistoryPayload replays recent lobby chat to a (re)joining member.
type ChatHistoryPayload struct {
	LobbyCode string      `json:"lobbyCode"`
	Entries   []ChatEntry `json:"entries"`
}
