package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAcquireTimeout    = Duration(30 * time.Second)
	DefaultHealthInterval    = Duration(15 * time.Second)
	DefaultReapInterval      = Duration(10 * time.Second)
	DefaultSessionStateLimit = 64
	DefaultHandshakeTimeout  = Duration(10 * time.Second)
	DefaultWriteTimeout      = Duration(5 * time.Second)
	DefaultPingTimeout       = Duration(60 * time.Second)
	DefaultKeepaliveInterval = Duration(30 * time.Second)
	DefaultBufferSize        = 1024
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultEventBatchSize    = 500
	DefaultEventBufferSize   = 1024
	DefaultEventFlushPeriod  = Duration(1 * time.Second)
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

func (c *Config) applyDefaults() {
	// Pool defaults
	if c.Pool.AcquireTimeout == 0 {
		c.Pool.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.Pool.HealthInterval == 0 {
		c.Pool.HealthInterval = DefaultHealthInterval
	}
	if c.Pool.ReapInterval == 0 {
		c.Pool.ReapInterval = DefaultReapInterval
	}
	if c.Pool.SessionStateLimit == 0 {
		c.Pool.SessionStateLimit = DefaultSessionStateLimit
	}

	// Transport defaults
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = DefaultPingTimeout
	}
	if c.Transport.KeepaliveInterval == 0 {
		c.Transport.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = DefaultBufferSize
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Event writer defaults
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = DefaultEventBatchSize
	}
	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = DefaultEventBufferSize
	}
	if c.Events.FlushInterval == 0 {
		c.Events.FlushInterval = DefaultEventFlushPeriod
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
