package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feltpoker/felt/internal/protocol"
)

func testLobby(maxPlayers int) *Lobby {
	return NewLobby("ROOM1", LobbySettings{
		Name:       "test table",
		MaxPlayers: maxPlayers,
		SmallBlind: 5,
		BigBlind:   10,
		StartChips: 1000,
	})
}

func TestFirstMemberBecomesHost(t *testing.T) {
	t.Parallel()
	l := testLobby(4)

	a, err := l.Add("a", "alice", false)
	require.NoError(t, err)
	require.True(t, a.Host)

	b, err := l.Add("b", "bob", false)
	require.NoError(t, err)
	require.False(t, b.Host)
	require.Equal(t, a, l.Host())
}

func TestHostLeavingPassesToFirstHuman(t *testing.T) {
	t.Parallel()
	l := testLobby(4)
	_, _ = l.Add("a", "alice", false)
	_, _ = l.Add("bot", "bot-1", true)
	_, _ = l.Add("b", "bob", false)

	_, err := l.Remove("a")
	require.NoError(t, err)

	host := l.Host()
	require.NotNil(t, host)
	require.Equal(t, "b", host.ClientID, "host should skip the automated seat")
}

func TestHostLeavingFallsBackToBot(t *testing.T) {
	t.Parallel()
	l := testLobby(4)
	_, _ = l.Add("a", "alice", false)
	_, _ = l.Add("bot", "bot-1", true)

	_, err := l.Remove("a")
	require.NoError(t, err)
	require.Equal(t, "bot", l.Host().ClientID)
}

func TestExactlyOneHostThroughChurn(t *testing.T) {
	t.Parallel()
	l := testLobby(9)
	for i := 0; i < 5; i++ {
		_, err := l.Add(fmt.Sprintf("c%d", i), fmt.Sprintf("p%d", i), false)
		require.NoError(t, err)
	}

	countHosts := func() int {
		n := 0
		for _, m := range l.Members() {
			if m.Host {
				n++
			}
		}
		return n
	}

	for _, id := range []string{"c0", "c2", "c1"} {
		_, err := l.Remove(id)
		require.NoError(t, err)
		require.Equal(t, 1, countHosts())
	}
}

func TestAddRespectsCapacityAndState(t *testing.T) {
	t.Parallel()
	l := testLobby(2)
	_, _ = l.Add("a", "alice", false)
	_, _ = l.Add("b", "bob", false)

	_, err := l.Add("c", "carol", false)
	require.ErrorIs(t, err, ErrLobbyFull)

	_, _ = l.Remove("b")
	require.NoError(t, l.Advance(LobbyStarting))
	_, err = l.Add("c", "carol", false)
	require.ErrorIs(t, err, ErrLobbyStarted)
}

func TestLobbyStateOnlyMovesForward(t *testing.T) {
	t.Parallel()
	l := testLobby(4)

	require.NoError(t, l.Advance(LobbyStarting))
	require.NoError(t, l.Advance(LobbyInGame))
	require.ErrorIs(t, l.Advance(LobbyWaiting), ErrStateRegress)
	require.NoError(t, l.Advance(LobbyFinished))
	require.ErrorIs(t, l.Advance(LobbyInGame), ErrStateRegress)
}

func TestCanStartPreconditions(t *testing.T) {
	t.Parallel()
	l := testLobby(4)
	_, _ = l.Add("a", "alice", false)

	require.ErrorIs(t, l.CanStart("a"), ErrTooFewPlayers)

	b, _ := l.Add("b", "bob", false)
	require.ErrorIs(t, l.CanStart("b"), ErrNotHost)
	require.ErrorIs(t, l.CanStart("ghost"), ErrNotMember)
	require.ErrorIs(t, l.CanStart("a"), ErrNotReady, "humans must ready up")

	l.Member("a").Ready = true
	b.Ready = true
	require.NoError(t, l.CanStart("a"))
}

func TestBotsCountTowardStartButNeedNoReady(t *testing.T) {
	t.Parallel()
	l := testLobby(4)
	a, _ := l.Add("a", "alice", false)
	a.Ready = true
	_, _ = l.Add("bot", "bot-1", true)

	require.NoError(t, l.CanStart("a"))
}

func TestRebindSwapsClientID(t *testing.T) {
	t.Parallel()
	l := testLobby(4)
	_, _ = l.Add("old", "alice", false)
	l.Member("old").Connected = false

	m := l.Rebind("old", "new")
	require.NotNil(t, m)
	require.Equal(t, "new", m.ClientID)
	require.True(t, m.Connected)
	require.Nil(t, l.Member("old"))

	require.Nil(t, l.Rebind("missing", "x"))
}

func TestTransferHost(t *testing.T) {
	t.Parallel()
	l := testLobby(4)
	_, _ = l.Add("a", "alice", false)
	_, _ = l.Add("b", "bob", false)

	require.ErrorIs(t, l.TransferHost("b", "a"), ErrNotHost)
	require.ErrorIs(t, l.TransferHost("a", "ghost"), ErrNotMember)
	require.NoError(t, l.TransferHost("a", "b"))
	require.Equal(t, "b", l.Host().ClientID)
	require.False(t, l.Member("a").Host)
}

func TestChatHistoryIsBounded(t *testing.T) {
	t.Parallel()
	l := testLobby(4)
	for i := 0; i < chatHistoryLimit+10; i++ {
		l.AppendChat(protocol.ChatEntry{Text: fmt.Sprintf("msg %d", i)})
	}

	history := l.ChatHistory()
	require.Len(t, history, chatHistoryLimit)
	require.Equal(t, "msg 10", history[0].Text, "oldest lines are dropped first")
}

func TestSnapshotReflectsMembers(t *testing.T) {
	t.Parallel()
	l := testLobby(4)
	_, _ = l.Add("a", "alice", false)
	_, _ = l.Add("bot", "bot-1", true)

	snap := l.Snapshot()
	require.Equal(t, "ROOM1", snap.Code)
	require.Equal(t, "waiting", snap.State)
	require.Len(t, snap.Players, 2)
	require.True(t, snap.Players[0].Host)
	require.True(t, snap.Players[1].Bot)
	require.True(t, snap.Players[1].Ready, "automated seats are always ready")
}
