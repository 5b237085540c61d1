// Package timeouts defines shared timeout constants used across the agent
// and the server. Centralizing these values prevents drift between the two
// halves and makes the durations discoverable.
package timeouts

import "time"

// APIRequest caps the time allowed for a single agent-to-server HTTP request.
const APIRequest = 10 * time.Second

// SyncInterval is the default period between dispatcher flush passes.
const SyncInterval = 8 * time.Second

// HeartbeatInterval is the default period between session-check probes.
const HeartbeatInterval = 15 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
