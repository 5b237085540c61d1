// Package config holds the env-driven configuration helpers shared by the
// agent and server entry points.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv populates a tagged config struct from FIELDOPS_* environment
// variables. Defaults come from envDefault tags; validation beyond type
// conversion stays with the caller.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
