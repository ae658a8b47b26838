package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "felt.hcl")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.Equal(t, "localhost:8080", cfg.ListenAddr())
}

func TestLoadConfigAppliesDefaultsToPartialFile(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
server {
  port = 9000
}

game {
  big_blind = 20
  small_blind = 10
}

session {}

history {
  path = "felt.db"
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "localhost", cfg.Server.Address)
	require.Equal(t, 20, cfg.Game.BigBlind)
	require.Equal(t, defaultStartChips, cfg.Game.StartChips)
	require.Equal(t, 30, cfg.Session.GraceWindowSeconds)
	require.Equal(t, "felt.db", cfg.History.Path)
}

func TestLoadConfigRejectsMalformedHCL(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `server { port = `)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidateRejectsBadBlinds(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Game.BigBlind = cfg.Game.SmallBlind

	require.Error(t, cfg.Validate())
}

func TestValidateRejectsGraceBeyondExpiry(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Session.GraceWindowSeconds = 600
	cfg.Session.HardExpirySeconds = 300

	require.Error(t, cfg.Validate())
}
