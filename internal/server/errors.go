package server

import "errors"

var (
	ErrLobbyNotFound  = errors.New("lobby not found")
	ErrLobbyFull      = errors.New("lobby is full")
	ErrLobbyStarted   = errors.New("lobby has already started")
	ErrWrongPassword  = errors.New("wrong password")
	ErrNotHost        = errors.New("issuer is not the host")
	ErrNotMember      = errors.New("issuer is not a member")
	ErrNotReady       = errors.New("not all players are ready")
	ErrTooFewPlayers  = errors.New("need at least 2 players")
	ErrAlreadyInLobby = errors.New("already in a lobby")
	ErrStateRegress   = errors.New("lobby state cannot move backwards")

	ErrSessionUnknown = errors.New("unknown session token")
	ErrSessionExpired = errors.New("session expired")

	ErrConnectionClosed = errors.New("connection closed")
)
