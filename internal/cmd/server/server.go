// Package server wires configuration into the field server command.
package server

import (
	"context"
	"flag"
	"strconv"
	"strings"

	platformcmd "github.com/seamark/fieldops/internal/platform/cmd"
	app "github.com/seamark/fieldops/internal/services/field/app"
)

// Config holds field server command configuration.
type Config struct {
	Port int
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		Port: envIntOrDefault(lookup, "FIELDOPS_SERVER_PORT", 8080),
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "The field HTTP server port")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the field server with startup telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceServer, func(ctx context.Context) error {
		return app.Run(ctx, cfg.Port)
	})
}

func envIntOrDefault(lookup EnvLookup, key string, fallback int) int {
	if lookup == nil {
		return fallback
	}
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
