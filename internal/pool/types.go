package pool

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	// ErrTimeout is returned by Acquire when the wait deadline elapses while
	// queued. Recoverable; the caller may retry.
	ErrTimeout = errors.New("timed out waiting for channel")

	// ErrNotReady is returned by Send on a channel that is not connected or
	// active.
	ErrNotReady = errors.New("channel not ready")

	// ErrTransport wraps an underlying channel failure surfaced to a Send
	// caller. The pool handles reconnection internally.
	ErrTransport = errors.New("transport failure")

	// ErrPermanentFailure marks a channel whose reconnect attempts are
	// exhausted. Delivered to consumers via the notification sink.
	ErrPermanentFailure = errors.New("reconnect attempts exhausted")

	// ErrUnknownChannel is returned for operations on a channel id that is
	// not in the pool.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrUnknownCategory is returned for a category outside the configured
	// policy table.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrPoolClosed is returned once the pool is stopped.
	ErrPoolClosed = errors.New("pool closed")
)

// Category is a traffic class with its own limits and priority.
type Category string

const (
	CategoryVoice     Category = "voice"
	CategoryChat      Category = "chat"
	CategoryInventory Category = "inventory"
	CategoryAlerts    Category = "alerts"
	CategoryGeneral   Category = "general"
)

// Categories returns every recognized category.
func Categories() []Category {
	return []Category{CategoryVoice, CategoryChat, CategoryInventory, CategoryAlerts, CategoryGeneral}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryVoice, CategoryChat, CategoryInventory, CategoryAlerts, CategoryGeneral:
		return Category(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Priority orders categories for reconnection aggressiveness.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority validates a priority name.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority: %q", s)
}

// Status is a channel's position in its lifecycle state machine:
//
//	connecting → connected → {active ⇄ idle} → disconnected
//
// with error reachable from connected/active/idle on transport failure, and
// error → connecting (reconnect) or error → disconnected (gave up).
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusIdle         Status = "idle"
	StatusActive       Status = "active"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// CategoryPolicy holds the static per-category limits.
type CategoryPolicy struct {
	MaxChannels          int
	Priority             Priority
	IdleTimeout          time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
}

// AcquireContext identifies the logical caller asking for a channel.
type AcquireContext struct {
	TenantID      string
	RequesterRole string

	// Priority optionally overrides the category priority for this channel's
	// reconnection behavior. Empty means the category default.
	Priority Priority
}

// ChannelMetrics are cumulative for one channel's lifetime.
type ChannelMetrics struct {
	BytesSent       int64
	BytesReceived   int64
	MessagesHandled int64
	Errors          int64
	AverageLatency  time.Duration
}

// ChannelInfo is a point-in-time snapshot of one pooled channel.
type ChannelInfo struct {
	ID                uuid.UUID
	Category          Category
	TenantID          string
	RequesterRole     string
	Status            Status
	LastActivityAt    time.Time
	MessageCount      int64
	ReconnectAttempts int
	Metrics           ChannelMetrics
}

// PoolMetrics is the aggregate snapshot over the live channel index.
type PoolMetrics struct {
	TotalChannels   int
	ActiveChannels  int
	IdleChannels    int
	ErrorChannels   int
	WaitingCallers  int
	TotalMessages   int64
	MeanLatency     time.Duration
	Utilization     float64
	ReusedChannels  int
	CreatedChannels int64
}

// Config tunes the pool. Zero fields take defaults.
type Config struct {
	// Policies maps each category to its limits. Unknown categories are
	// rejected at construction.
	Policies map[Category]CategoryPolicy

	AcquireTimeout    time.Duration // Max time a queued Acquire waits
	HealthInterval    time.Duration // Liveness probe tick
	ReapInterval      time.Duration // Idle reaper tick
	PingWriteTimeout  time.Duration // Deadline for one liveness probe write
	SessionStateLimit int           // Max retained session frames per channel
	Backoff           BackoffTable  // Reconnect delay table
}

// Default pool tuning values.
const (
	DefaultAcquireTimeout    = 30 * time.Second
	DefaultHealthInterval    = 15 * time.Second
	DefaultReapInterval      = 10 * time.Second
	DefaultPingWriteTimeout  = 5 * time.Second
	DefaultSessionStateLimit = 64
)

// DefaultPolicies returns the standard policy table for all five categories.
func DefaultPolicies() map[Category]CategoryPolicy {
	return map[Category]CategoryPolicy{
		CategoryVoice: {
			MaxChannels:          4,
			Priority:             PriorityCritical,
			IdleTimeout:          5 * time.Minute,
			MaxReconnectAttempts: 5,
			HeartbeatInterval:    15 * time.Second,
		},
		CategoryChat: {
			MaxChannels:          8,
			Priority:             PriorityHigh,
			IdleTimeout:          10 * time.Minute,
			MaxReconnectAttempts: 4,
			HeartbeatInterval:    30 * time.Second,
		},
		CategoryInventory: {
			MaxChannels:          4,
			Priority:             PriorityMedium,
			IdleTimeout:          15 * time.Minute,
			MaxReconnectAttempts: 3,
			HeartbeatInterval:    60 * time.Second,
		},
		CategoryAlerts: {
			MaxChannels:          2,
			Priority:             PriorityCritical,
			IdleTimeout:          30 * time.Minute,
			MaxReconnectAttempts: 5,
			HeartbeatInterval:    20 * time.Second,
		},
		CategoryGeneral: {
			MaxChannels:          4,
			Priority:             PriorityLow,
			IdleTimeout:          5 * time.Minute,
			MaxReconnectAttempts: 2,
			HeartbeatInterval:    60 * time.Second,
		},
	}
}

// DefaultConfig returns a config with the standard policy table and tuning.
func DefaultConfig() Config {
	return Config{
		Policies:          DefaultPolicies(),
		AcquireTimeout:    DefaultAcquireTimeout,
		HealthInterval:    DefaultHealthInterval,
		ReapInterval:      DefaultReapInterval,
		PingWriteTimeout:  DefaultPingWriteTimeout,
		SessionStateLimit: DefaultSessionStateLimit,
		Backoff:           DefaultBackoffTable(),
	}
}

func (c *Config) applyDefaults() {
	if c.Policies == nil {
		c.Policies = DefaultPolicies()
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = DefaultReapInterval
	}
	if c.PingWriteTimeout == 0 {
		c.PingWriteTimeout = DefaultPingWriteTimeout
	}
	if c.SessionStateLimit == 0 {
		c.SessionStateLimit = DefaultSessionStateLimit
	}
	if len(c.Backoff) == 0 {
		c.Backoff = DefaultBackoffTable()
	}
}

// validate rejects bad policy tables eagerly, before any channel exists.
func (c *Config) validate() error {
	if len(c.Policies) == 0 {
		return errors.New("at least one category policy is required")
	}
	for cat, policy := range c.Policies {
		if _, err := ParseCategory(string(cat)); err != nil {
			return err
		}
		if policy.MaxChannels < 1 {
			return fmt.Errorf("category %s: max_channels must be >= 1", cat)
		}
		if policy.MaxReconnectAttempts < 0 {
			return fmt.Errorf("category %s: max_reconnect_attempts must be >= 0", cat)
		}
		if policy.IdleTimeout <= 0 {
			return fmt.Errorf("category %s: idle_timeout must be positive", cat)
		}
		if policy.Priority != "" {
			if _, err := ParsePriority(string(policy.Priority)); err != nil {
				return fmt.Errorf("category %s: %w", cat, err)
			}
		}
	}
	return nil
}
