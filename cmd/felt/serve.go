package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/feltpoker/felt/internal/history"
	"github.com/feltpoker/felt/internal/server"
)

// ServeCmd runs the table server.
type ServeCmd struct {
	Addr      string `kong:"help='Listen address, overrides the config file'"`
	Config    string `kong:"default='felt.hcl',help='HCL configuration file'"`
	Debug     bool   `kong:"help='Enable debug logging'"`
	Seed      *int64 `kong:"help='Deterministic deck seed (optional)'"`
	HistoryDB string `kong:"name='history-db',help='SQLite event log path, overrides the config file'"`
}

func (c *ServeCmd) Run() error {
	// .env is optional; flags and config still win.
	_ = godotenv.Load()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	level, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logger.SetLevel(level)

	if c.Addr != "" {
		host, port, err := splitAddr(c.Addr)
		if err != nil {
			return err
		}
		cfg.Server.Address = host
		cfg.Server.Port = port
	}
	if c.HistoryDB != "" {
		cfg.History.Path = c.HistoryDB
	}

	var sink history.Sink = history.NullSink{}
	if cfg.History.Path != "" {
		s, err := history.NewSQLiteSink(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history db: %w", err)
		}
		defer func() { _ = s.Close() }()
		sink = s
		logger.Info("recording history", "path", cfg.History.Path)
	}

	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info("using deterministic seed", "seed", seed)
	} else {
		seed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, sink, seed, logger)
	logger.Info("starting felt server",
		"addr", cfg.ListenAddr(),
		"small_blind", cfg.Game.SmallBlind,
		"big_blind", cfg.Game.BigBlind,
		"start_chips", cfg.Game.StartChips,
		"turn_timeout", time.Duration(cfg.Game.TurnTimeoutSeconds)*time.Second,
	)
	return srv.Run(ctx)
}

// splitAddr parses "host:port" into config fields. A bare ":8080" defaults
// the host to localhost.
func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		host = "localhost"
	}
	return host, port, nil
}
