package pool

import (
	"time"

	"github.com/google/uuid"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/transport"
)

// channel is one pooled transport session plus its bookkeeping. Every mutable
// field is guarded by the pool mutex; the struct itself has no locking.
type channel struct {
	id       uuid.UUID
	category Category
	tenantID string
	role     string
	priority Priority

	status            Status
	lastActivity      time.Time
	lastProbe         time.Time
	messageCount      int64
	reconnectAttempts int

	// session holds the most recent frames exchanged on the channel, trimmed
	// to the pool's session-state limit on release.
	session [][]byte

	metrics ChannelMetrics

	raw transport.RawChannel

	// reconnecting serializes reconnect attempts: never two concurrent
	// attempts for the same channel id.
	reconnecting bool

	// cancelled is set by Close; an in-flight reconnect observes it and
	// discards its result.
	cancelled bool
}

func (ch *channel) key() waitKey {
	return waitKey{category: ch.category, tenantID: ch.tenantID, role: ch.role}
}

// recordFrame appends one frame to the session buffer, keeping at most limit
// entries.
func (ch *channel) recordFrame(data []byte, limit int) {
	ch.session = append(ch.session, data)
	ch.trimSession(limit)
}

func (ch *channel) trimSession(limit int) {
	if limit > 0 && len(ch.session) > limit {
		ch.session = ch.session[len(ch.session)-limit:]
	}
}

// recordLatency folds one probe round-trip into the channel's average.
func (ch *channel) recordLatency(rtt time.Duration) {
	if ch.metrics.AverageLatency == 0 {
		ch.metrics.AverageLatency = rtt
		return
	}
	ch.metrics.AverageLatency = (ch.metrics.AverageLatency*3 + rtt) / 4
}

func (ch *channel) snapshot() ChannelInfo {
	return ChannelInfo{
		ID:                ch.id,
		Category:          ch.category,
		TenantID:          ch.tenantID,
		RequesterRole:     ch.role,
		Status:            ch.status,
		LastActivityAt:    ch.lastActivity,
		MessageCount:      ch.messageCount,
		ReconnectAttempts: ch.reconnectAttempts,
		Metrics:           ch.metrics,
	}
}
