package deck

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feltpoker/felt/internal/randutil"
)

func TestNewDeckHas52UniqueCards(t *testing.T) {
	t.Parallel()
	d := New(randutil.New(1))
	require.Equal(t, 52, d.Remaining())

	seen := make(map[Card]bool)
	for _, c := range d.Deal(52) {
		require.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}
	require.Equal(t, 0, d.Remaining())
}

func TestShuffleIsSeedDeterministic(t *testing.T) {
	t.Parallel()
	a := New(randutil.New(7)).Deal(52)
	b := New(randutil.New(7)).Deal(52)
	require.Equal(t, a, b)

	c := New(randutil.New(8)).Deal(52)
	require.NotEqual(t, a, c)
}

func TestStackedDealsGivenCardsFirst(t *testing.T) {
	t.Parallel()
	d := Stacked(MustParseCard("Ah"), MustParseCard("Kd"))
	require.Equal(t, []Card{MustParseCard("Ah"), MustParseCard("Kd")}, d.Deal(2))
	require.Equal(t, 50, d.Remaining())

	seen := map[Card]bool{MustParseCard("Ah"): true, MustParseCard("Kd"): true}
	for _, c := range d.Deal(50) {
		require.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}
}

func TestDealPastEndIsBounded(t *testing.T) {
	t.Parallel()
	d := New(nil)
	d.Deal(50)
	require.Len(t, d.Deal(5), 2)
	require.Empty(t, d.Deal(1))
}
