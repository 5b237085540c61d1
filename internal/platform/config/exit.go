package config

import (
	"fmt"
	"os"
)

// Exitf prints to stderr and exits 1. The agent and server mains both call
// it for startup failures, before any logger is configured.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
