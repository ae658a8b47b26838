package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerSettings  `hcl:"server,block"`
	Game    GameSettings    `hcl:"game,block"`
	Session SessionSettings `hcl:"session,block"`
	History HistorySettings `hcl:"history,block"`
}

// ServerSettings covers the listener and logging.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// GameSettings are the table defaults applied when a create_lobby request
// leaves them unset.
type GameSettings struct {
	SmallBlind         int `hcl:"small_blind,optional"`
	BigBlind           int `hcl:"big_blind,optional"`
	StartChips         int `hcl:"start_chips,optional"`
	TurnTimeoutSeconds int `hcl:"turn_timeout_seconds,optional"`
}

// SessionSettings tune the liveness and reconnection windows.
type SessionSettings struct {
	HeartbeatTimeoutSeconds int `hcl:"heartbeat_timeout_seconds,optional"`
	GraceWindowSeconds      int `hcl:"grace_window_seconds,optional"`
	HardExpirySeconds       int `hcl:"hard_expiry_seconds,optional"`
}

// HistorySettings configure the event log.
type HistorySettings struct {
	Path string `hcl:"path,optional"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Game: GameSettings{
			SmallBlind:         defaultSmallBlind,
			BigBlind:           defaultBigBlind,
			StartChips:         defaultStartChips,
			TurnTimeoutSeconds: 30,
		},
		Session: SessionSettings{
			HeartbeatTimeoutSeconds: 30,
			GraceWindowSeconds:      30,
			HardExpirySeconds:       300,
		},
		History: HistorySettings{},
	}
}

// LoadConfig reads an HCL configuration file. A missing file yields the
// defaults; a present but malformed file is an error.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	// Every block is optional in the file; absent ones take defaults.
	var raw struct {
		Server  *ServerSettings  `hcl:"server,block"`
		Game    *GameSettings    `hcl:"game,block"`
		Session *SessionSettings `hcl:"session,block"`
		History *HistorySettings `hcl:"history,block"`
	}
	diags = gohcl.DecodeBody(file.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	var config Config
	if raw.Server != nil {
		config.Server = *raw.Server
	}
	if raw.Game != nil {
		config.Game = *raw.Game
	}
	if raw.Session != nil {
		config.Session = *raw.Session
	}
	if raw.History != nil {
		config.History = *raw.History
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
	if c.Game.SmallBlind == 0 {
		c.Game.SmallBlind = def.Game.SmallBlind
	}
	if c.Game.BigBlind == 0 {
		c.Game.BigBlind = def.Game.BigBlind
	}
	if c.Game.StartChips == 0 {
		c.Game.StartChips = def.Game.StartChips
	}
	if c.Game.TurnTimeoutSeconds == 0 {
		c.Game.TurnTimeoutSeconds = def.Game.TurnTimeoutSeconds
	}
	if c.Session.HeartbeatTimeoutSeconds == 0 {
		c.Session.HeartbeatTimeoutSeconds = def.Session.HeartbeatTimeoutSeconds
	}
	if c.Session.GraceWindowSeconds == 0 {
		c.Session.GraceWindowSeconds = def.Session.GraceWindowSeconds
	}
	if c.Session.HardExpirySeconds == 0 {
		c.Session.HardExpirySeconds = def.Session.HardExpirySeconds
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Game.SmallBlind <= 0 {
		return fmt.Errorf("small blind must be positive, got %d", c.Game.SmallBlind)
	}
	if c.Game.BigBlind <= c.Game.SmallBlind {
		return fmt.Errorf("big blind (%d) must exceed small blind (%d)", c.Game.BigBlind, c.Game.SmallBlind)
	}
	if c.Game.StartChips < c.Game.BigBlind {
		return fmt.Errorf("start chips (%d) cannot be below the big blind (%d)", c.Game.StartChips, c.Game.BigBlind)
	}
	if c.Session.GraceWindowSeconds >= c.Session.HardExpirySeconds {
		return fmt.Errorf("grace window (%ds) must be shorter than hard expiry (%ds)",
			c.Session.GraceWindowSeconds, c.Session.HardExpirySeconds)
	}
	return nil
}

// ListenAddr renders the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
