package history

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteSinkRecordsEvents(t *testing.T) {
	sink, err := NewSQLiteSink(":memory:")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Record(Event{
		Kind:      EventHandStarted,
		LobbyCode: "ABCDE",
		HandID:    "hand-1",
	}))
	require.NoError(t, sink.Record(Event{
		Kind:      EventAction,
		LobbyCode: "ABCDE",
		HandID:    "hand-1",
		ClientID:  "c1",
		Detail:    map[string]any{"action": "raise", "amount": 40},
	}))
	require.NoError(t, sink.Record(Event{
		Kind:      EventHandStarted,
		LobbyCode: "ZZZZZ",
	}))

	n, err := sink.CountByKind(EventHandStarted, "ABCDE")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = sink.CountByKind(EventHandStarted, "")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSQLiteSinkRejectsEmptyPath(t *testing.T) {
	_, err := NewSQLiteSink("  ")
	require.Error(t, err)
}
