package transport

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	// ErrClosed signals a clean, expected close of the channel (normal
	// closure or going-away from the peer, or a local Close).
	ErrClosed = errors.New("channel closed")

	// ErrStale signals that the peer stopped answering keepalive pings.
	ErrStale = errors.New("channel stale (no ping)")

	// ErrNotOpen is returned by Send on a channel that is not open.
	ErrNotOpen = errors.New("channel not open")
)

// Frame is one inbound wire frame with its local receive timestamp.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// RawChannel is one established bidirectional transport session. Inbound
// frames and transport failures are delivered on the Frames and Errors
// channels; both are closed when the session ends.
type RawChannel interface {
	// Send writes one frame. Never blocks past the configured write deadline.
	Send(data []byte) error

	// Ping sends a liveness probe, failing if it cannot be written by the
	// deadline.
	Ping(deadline time.Time) error

	// Close terminates the session. Idempotent.
	Close() error

	// Frames returns the inbound frame channel.
	Frames() <-chan Frame

	// Errors returns the channel on which transport failures are reported.
	// A clean peer close is reported as ErrClosed.
	Errors() <-chan error

	// IsOpen reports whether the session is still usable.
	IsOpen() bool
}

// Factory opens raw channels to the remote endpoint. Injected into the pool at
// construction.
type Factory interface {
	Open(ctx context.Context) (RawChannel, error)
}

// FactoryFunc is a function adapter for Factory.
type FactoryFunc func(ctx context.Context) (RawChannel, error)

func (f FactoryFunc) Open(ctx context.Context) (RawChannel, error) {
	return f(ctx)
}

// Config configures the WebSocket transport.
type Config struct {
	URL               string        // WebSocket endpoint (wss://...)
	Header            http.Header   // Extra handshake headers (auth etc.)
	HandshakeTimeout  time.Duration // Dial handshake deadline
	WriteTimeout      time.Duration // Write deadline for sends and pings
	PingTimeout       time.Duration // Max silence before the channel is stale
	KeepaliveInterval time.Duration // Interval between keepalive pings
	BufferSize        int           // Inbound frame channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingTimeout:       60 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		BufferSize:        1024,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
}
