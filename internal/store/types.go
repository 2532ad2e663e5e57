package store

import "time"

// WriterConfig contains configuration for the event writer.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// BufferSize caps the events queued between the pool and the consume
	// goroutine; overflow is dropped.
	BufferSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		BufferSize:    1024,
		FlushInterval: 1 * time.Second,
	}
}

// eventRow represents a row to be inserted into the channel_events table.
type eventRow struct {
	ChannelID   string
	Category    string
	TenantID    string
	Kind        string
	OccurredAt  int64 // Microseconds
	MessageType string
	Payload     []byte // JSONB, message events only
	Detail      string // error text, error events only
}

// WriterMetrics holds counters for the event writer.
type WriterMetrics struct {
	Inserts int64
	Errors  int64
	Flushes int64
	Dropped int64
}
