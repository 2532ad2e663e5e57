// Package pool implements the real-time channel pool.
//
// The pool:
//   - Multiplexes a bounded number of long-lived transport channels across
//     traffic categories (voice, chat, inventory, alerts, general)
//   - Reuses idle channels that match the caller's category, tenant, and role
//   - Queues callers per (category, tenant, role) when a category is saturated
//   - Recovers from transport failures with bounded, prioritized backoff
//   - Probes channel liveness and reaps stale idle channels in the background
//
// All pool-state mutation is serialized by a single mutex; Acquire is the only
// operation that may block the caller.
package pool
