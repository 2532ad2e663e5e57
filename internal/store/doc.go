// Package store persists channel lifecycle events and inbound message
// summaries to PostgreSQL for audit and replay.
//
// The writer buffers events behind a bounded queue, batches rows, and
// flushes on size or interval. Inserts are append-only; events that do not
// fit in the queue are dropped and counted.
package store
