package server

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/feltpoker/felt/internal/protocol"
)

func newRegistryFixture(t *testing.T) (*Registry, *quartz.Mock) {
	t.Helper()
	mock := quartz.NewMock(t)
	return NewRegistry(mock, log.New(io.Discard)), mock
}

func registryConn(r *Registry, mock *quartz.Mock, id, lobby string) *Connection {
	c := NewConnection(id, nil, nil, mock, log.New(io.Discard))
	c.SetLobby(lobby)
	r.Register(c)
	return c
}

func TestRegisterGetUnregister(t *testing.T) {
	t.Parallel()
	r, mock := newRegistryFixture(t)

	c := registryConn(r, mock, "c1", "")
	got, ok := r.Get("c1")
	require.True(t, ok)
	require.Same(t, c, got)
	require.Equal(t, 1, r.Count())

	r.Unregister(c)
	_, ok = r.Get("c1")
	require.False(t, ok)
}

func TestUnregisterIgnoresReboundID(t *testing.T) {
	t.Parallel()
	r, mock := newRegistryFixture(t)

	old := registryConn(r, mock, "c1", "")
	// A new physical connection claims the same id before the old one's
	// disconnect path runs.
	replacement := registryConn(r, mock, "c1", "")

	r.Unregister(old)
	got, ok := r.Get("c1")
	require.True(t, ok)
	require.Same(t, replacement, got, "the newer connection must survive")
}

func TestBroadcastScopesToLobbyAndExcludes(t *testing.T) {
	t.Parallel()
	r, mock := newRegistryFixture(t)

	a := registryConn(r, mock, "a", "ROOM1")
	b := registryConn(r, mock, "b", "ROOM1")
	other := registryConn(r, mock, "x", "ROOM2")

	r.Broadcast("ROOM1", protocol.MustNew(protocol.TypeLobbyUpdate, nil), "a")

	require.Empty(t, drain(a), "excluded id must not receive")
	require.Len(t, drain(b), 1)
	require.Empty(t, drain(other), "other rooms must not receive")
}

func TestSendToUnknownClient(t *testing.T) {
	t.Parallel()
	r, _ := newRegistryFixture(t)

	err := r.Send("missing", protocol.MustNew(protocol.TypeError, nil))
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestSweepEvictsSilentConnections(t *testing.T) {
	t.Parallel()
	r, mock := newRegistryFixture(t)

	quiet := registryConn(r, mock, "quiet", "")
	chatty := registryConn(r, mock, "chatty", "")

	mock.Advance(heartbeatTimeout + time.Second)
	chatty.touch()

	r.sweep()

	select {
	case <-quiet.Done():
	default:
		t.Fatal("silent connection should have been closed")
	}
	select {
	case <-chatty.Done():
		t.Fatal("live connection must survive the sweep")
	default:
	}
}
