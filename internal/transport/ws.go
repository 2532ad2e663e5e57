package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSFactory opens WebSocket channels to a fixed endpoint.
type WSFactory struct {
	cfg    Config
	logger *slog.Logger
}

// NewWSFactory creates a WebSocket channel factory.
func NewWSFactory(cfg Config, logger *slog.Logger) *WSFactory {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &WSFactory{cfg: cfg, logger: logger}
}

// Open dials the endpoint and returns a running channel.
func (f *WSFactory) Open(ctx context.Context) (RawChannel, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: f.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, f.cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.cfg.URL, err)
	}

	ch := &wsChannel{
		cfg:        f.cfg,
		logger:     f.logger,
		conn:       conn,
		frames:     make(chan Frame, f.cfg.BufferSize),
		errs:       make(chan error, 1),
		done:       make(chan struct{}),
		lastPingAt: time.Now(),
		open:       true,
	}

	// Peer pings refresh liveness; we answer with a pong.
	conn.SetPingHandler(func(data string) error {
		ch.touchPing()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Pong responses to our keepalive pings.
	conn.SetPongHandler(func(string) error {
		ch.touchPing()
		return nil
	})

	go ch.readLoop()
	go ch.keepaliveLoop()

	f.logger.Debug("websocket channel opened", "url", f.cfg.URL)

	return ch, nil
}

// wsChannel implements RawChannel over a gorilla/websocket connection.
type wsChannel struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	frames chan Frame
	errs   chan error
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	open       bool
	closed     bool
	lastPingAt time.Time
}

// Send writes one text frame to the connection.
func (c *wsChannel) Send(data []byte) error {
	c.mu.RLock()
	if !c.open {
		c.mu.RUnlock()
		return ErrNotOpen
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control frame.
func (c *wsChannel) Ping(deadline time.Time) error {
	c.mu.RLock()
	if !c.open {
		c.mu.RUnlock()
		return ErrNotOpen
	}
	c.mu.RUnlock()

	return c.conn.WriteControl(websocket.PingMessage, []byte("probe"), deadline)
}

// Close terminates the session. Safe to call more than once.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()

	close(c.done)

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

// Frames returns the inbound frame channel.
func (c *wsChannel) Frames() <-chan Frame {
	return c.frames
}

// Errors returns the transport error channel.
func (c *wsChannel) Errors() <-chan error {
	return c.errs
}

// IsOpen reports whether the session is usable.
func (c *wsChannel) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

func (c *wsChannel) touchPing() {
	c.mu.Lock()
	c.lastPingAt = time.Now()
	c.mu.Unlock()
}

// reportError delivers one error and marks the channel unusable. Errors after
// a local Close are discarded.
func (c *wsChannel) reportError(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	c.open = false
	c.mu.Unlock()

	select {
	case c.errs <- err:
	default:
	}
}

// readLoop reads frames from the connection into the frames channel.
func (c *wsChannel) readLoop() {
	defer close(c.frames)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.reportError(ErrClosed)
			} else {
				c.reportError(err)
			}
			return
		}

		frame := Frame{Data: data, ReceivedAt: receivedAt}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		default:
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// keepaliveLoop pings the peer and detects stale connections.
func (c *wsChannel) keepaliveLoop() {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send keepalive ping", "error", err)
			}

			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping activity, channel stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				c.reportError(ErrStale)
				return
			}
		}
	}
}
