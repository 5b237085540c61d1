// Package agent wires configuration into the field agent command.
package agent

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	app "github.com/seamark/fieldops/internal/agent/app"
	platformcmd "github.com/seamark/fieldops/internal/platform/cmd"
)

// Config holds agent command configuration.
type Config struct {
	ServerURL         string
	DBPath            string
	SyncInterval      time.Duration
	HeartbeatInterval time.Duration
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		ServerURL: envOrDefault(lookup, "FIELDOPS_SERVER_URL", "http://localhost:8080"),
		DBPath:    envOrDefault(lookup, "FIELDOPS_AGENT_DB_PATH", ""),
	}

	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "The backend base URL")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The agent SQLite file path")
	fs.DurationVar(&cfg.SyncInterval, "sync-interval", cfg.SyncInterval, "Outbox flush period (0 uses the default)")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "Session probe period (0 uses the default)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the agent with startup telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceAgent, func(ctx context.Context) error {
		agent, err := app.New(app.Config{
			ServerURL:         cfg.ServerURL,
			DBPath:            cfg.DBPath,
			SyncInterval:      cfg.SyncInterval,
			HeartbeatInterval: cfg.HeartbeatInterval,
			OnConflict: func() {
				log.Print("session held by another device; relinquish or take over")
			},
			OnForcedLogout: func() {
				log.Print("session ended; sign in again")
			},
		})
		if err != nil {
			return err
		}
		return agent.Run(ctx)
	})
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
