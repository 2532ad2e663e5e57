// Package database provides the PostgreSQL connection pool backing the
// channel-event store.
package database
