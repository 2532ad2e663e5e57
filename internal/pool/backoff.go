package pool

import "time"

// BackoffTable is the fixed progressive delay sequence between reconnection
// attempts. Attempts past the end of the table reuse the last entry.
type BackoffTable []time.Duration

// DefaultBackoffTable returns the standard 1s/2s/5s/10s/30s progression.
func DefaultBackoffTable() BackoffTable {
	return BackoffTable{
		1 * time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		30 * time.Second,
	}
}

// Delay maps a 1-based attempt number to its wait duration.
func (t BackoffTable) Delay(attempt int) time.Duration {
	if len(t) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(t) {
		idx = len(t) - 1
	}
	return t[idx]
}
