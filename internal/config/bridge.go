package config

import (
	"net/http"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/pool"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/transport"
)

// BuildPool converts the loaded configuration into pool settings. Categories
// absent from the file keep their default policy.
func BuildPool(cfg *Config) pool.Config {
	pc := pool.Config{
		Policies:          pool.DefaultPolicies(),
		AcquireTimeout:    cfg.Pool.AcquireTimeout.Duration(),
		HealthInterval:    cfg.Pool.HealthInterval.Duration(),
		ReapInterval:      cfg.Pool.ReapInterval.Duration(),
		SessionStateLimit: cfg.Pool.SessionStateLimit,
	}
	if len(cfg.Pool.BackoffTable) > 0 {
		table := make(pool.BackoffTable, len(cfg.Pool.BackoffTable))
		for i, d := range cfg.Pool.BackoffTable {
			table[i] = d.Duration()
		}
		pc.Backoff = table
	}

	for name, cat := range cfg.Categories {
		policy := pc.Policies[pool.Category(name)]
		if cat.MaxChannels != 0 {
			policy.MaxChannels = cat.MaxChannels
		}
		if cat.Priority != "" {
			policy.Priority = pool.Priority(cat.Priority)
		}
		if cat.IdleTimeout != 0 {
			policy.IdleTimeout = cat.IdleTimeout.Duration()
		}
		if cat.MaxReconnectAttempts != 0 {
			policy.MaxReconnectAttempts = cat.MaxReconnectAttempts
		}
		if cat.HeartbeatInterval != 0 {
			policy.HeartbeatInterval = cat.HeartbeatInterval.Duration()
		}
		pc.Policies[pool.Category(name)] = policy
	}

	return pc
}

// BuildTransport converts the loaded configuration into transport settings.
func BuildTransport(cfg *Config) transport.Config {
	tc := transport.Config{
		URL:               cfg.Transport.URL,
		HandshakeTimeout:  cfg.Transport.HandshakeTimeout.Duration(),
		WriteTimeout:      cfg.Transport.WriteTimeout.Duration(),
		PingTimeout:       cfg.Transport.PingTimeout.Duration(),
		KeepaliveInterval: cfg.Transport.KeepaliveInterval.Duration(),
		BufferSize:        cfg.Transport.BufferSize,
	}
	if cfg.Transport.AuthToken != "" {
		tc.Header = http.Header{}
		tc.Header.Set("Authorization", "Bearer "+cfg.Transport.AuthToken)
	}
	return tc
}
