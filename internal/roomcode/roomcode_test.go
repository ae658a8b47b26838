package roomcode

import (
	rand "math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateUsesRestrictedAlphabet(t *testing.T) {
	t.Parallel()
	g := NewGenerator(nil)
	for i := 0; i < 100; i++ {
		code := g.Generate()
		require.Len(t, code, Length)
		for _, ch := range code {
			require.Contains(t, alphabet, string(ch))
			require.NotContains(t, "0O1IL", string(ch))
		}
	}
}

func TestGenerateIsSeedDeterministic(t *testing.T) {
	t.Parallel()
	a := NewGenerator(rand.New(rand.NewPCG(1, 2))).Generate()
	b := NewGenerator(rand.New(rand.NewPCG(1, 2))).Generate()
	require.Equal(t, a, b)
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	require.Equal(t, "AB2CD", Normalize("  ab2cd "))
	require.Equal(t, "XYZ99", Normalize("xyz99"))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	g := NewGenerator(nil)
	require.NoError(t, Validate(g.Generate()))

	require.Error(t, Validate("AB"), "too short")
	require.Error(t, Validate("ABCDEF"), "too long")
	require.Error(t, Validate("AB0CD"), "excluded character")
	require.Error(t, Validate(strings.Repeat("!", Length)))
}
