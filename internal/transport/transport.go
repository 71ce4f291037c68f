// Package transport carries the push channel from the trading process to
// the reconciliation loop. Payloads are full status snapshots, never
// deltas, so dropped or reordered events are harmless: the next snapshot
// supersedes everything before it.
package transport

import (
	"context"
	"encoding/json"
	"time"
)

// EventEnvelope wraps all wire events with metadata for ordering and resume.
type EventEnvelope struct {
	V       int             `json:"v"`       // version for future compatibility
	Type    string          `json:"type"`    // event type: status, log, heartbeat
	ID      string          `json:"id"`      // monotonic ID for deduplication
	TS      time.Time       `json:"ts_utc"`  // server timestamp when emitted
	Payload json.RawMessage `json:"payload"` // raw event data
}

// EventStatus is the only event type the loop consumes today.
const EventStatus = "status"

// Client is a push transport (SSE, WebSocket, or HTTP polling fallback).
type Client interface {
	// Start begins consuming events and returns a channel of envelopes.
	// Context cancellation stops the client gracefully.
	Start(ctx context.Context) (<-chan EventEnvelope, error)

	// Close shuts down the client and cleans up resources.
	Close() error

	// LastEventID returns the last successfully processed event ID.
	LastEventID() string

	// ConnectionState returns current connection state for metrics.
	ConnectionState() ConnectionState
}

// ConnectionState represents the current state of a transport connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config selects and tunes the transport.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	Transport string        `yaml:"transport"` // "sse", "ws", or "http"
	Timeout   time.Duration `yaml:"timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`

	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
	MaxChannelBuffer int `yaml:"max_channel_buffer"`
}

type ReconnectConfig struct {
	InitialDelayMs int `yaml:"initial_delay_ms"`
	MaxDelayMs     int `yaml:"max_delay_ms"`
	MaxAttempts    int `yaml:"max_attempts"` // -1 for infinite
	JitterMs       int `yaml:"jitter_ms"`
}

func (rc *ReconnectConfig) fillDefaults() {
	if rc.InitialDelayMs <= 0 {
		rc.InitialDelayMs = 500
	}
	if rc.MaxDelayMs <= 0 {
		rc.MaxDelayMs = 30000
	}
	if rc.JitterMs <= 0 {
		rc.JitterMs = 250
	}
	if rc.MaxAttempts == 0 {
		rc.MaxAttempts = -1
	}
}

// NewClient creates a transport client based on configuration.
func NewClient(config Config) (Client, error) {
	switch config.Transport {
	case "ws":
		return NewWSClient(config)
	case "http":
		return NewPollClient(config)
	default:
		return NewSSEClient(config)
	}
}
