package config

import (
	"errors"
	"fmt"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/pool"
)

// Validate checks that all required fields are set and values are valid.
// Unknown categories are rejected here, at startup, not at first use.
func (c *Config) Validate() error {
	if c.Transport.URL == "" {
		return errors.New("transport.url is required")
	}

	for name, cat := range c.Categories {
		if _, err := pool.ParseCategory(name); err != nil {
			return fmt.Errorf("categories.%s: %w", name, err)
		}
		if cat.MaxChannels < 1 {
			return fmt.Errorf("categories.%s.max_channels must be >= 1", name)
		}
		if cat.MaxReconnectAttempts < 0 {
			return fmt.Errorf("categories.%s.max_reconnect_attempts must be >= 0", name)
		}
		if cat.IdleTimeout <= 0 {
			return fmt.Errorf("categories.%s.idle_timeout must be positive", name)
		}
		if cat.Priority != "" {
			if _, err := pool.ParsePriority(cat.Priority); err != nil {
				return fmt.Errorf("categories.%s: %v", name, err)
			}
		}
	}

	if c.Events.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Events.BatchSize < 1 {
			return errors.New("events.batch_size must be >= 1")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
