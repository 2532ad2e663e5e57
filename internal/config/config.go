// Package config loads and validates the YAML configuration for the
// real-time channel service: category policies, pool tuning, transport
// endpoint, event store, and metrics exposition.
package config

// Config is the root configuration.
type Config struct {
	Pool       PoolConfig                `yaml:"pool"`
	Categories map[string]CategoryConfig `yaml:"categories"`
	Transport  TransportConfig           `yaml:"transport"`
	Database   DBConfig                  `yaml:"database"`
	Events     EventsConfig              `yaml:"events"`
	Metrics    MetricsConfig             `yaml:"metrics"`
}

// PoolConfig tunes the channel pool.
type PoolConfig struct {
	AcquireTimeout    Duration   `yaml:"acquire_timeout"`
	HealthInterval    Duration   `yaml:"health_interval"`
	ReapInterval      Duration   `yaml:"reap_interval"`
	SessionStateLimit int        `yaml:"session_state_limit"`
	BackoffTable      []Duration `yaml:"backoff_table"`
}

// CategoryConfig holds one traffic category's limits.
type CategoryConfig struct {
	MaxChannels          int      `yaml:"max_channels"`
	Priority             string   `yaml:"priority"`
	IdleTimeout          Duration `yaml:"idle_timeout"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	HeartbeatInterval    Duration `yaml:"heartbeat_interval"`
}

// TransportConfig holds the WebSocket endpoint settings.
type TransportConfig struct {
	URL               string   `yaml:"url"`
	AuthToken         string   `yaml:"auth_token"`
	HandshakeTimeout  Duration `yaml:"handshake_timeout"`
	WriteTimeout      Duration `yaml:"write_timeout"`
	PingTimeout       Duration `yaml:"ping_timeout"`
	KeepaliveInterval Duration `yaml:"keepalive_interval"`
	BufferSize        int      `yaml:"buffer_size"`
}

// DBConfig holds the Postgres connection for the channel-event store.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MinConns int    `yaml:"min_conns"`
	MaxConns int    `yaml:"max_conns"`
}

// EventsConfig tunes the channel-event audit writer.
type EventsConfig struct {
	Enabled       bool     `yaml:"enabled"`
	BatchSize     int      `yaml:"batch_size"`
	BufferSize    int      `yaml:"buffer_size"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}
