// Package transport provides the raw bidirectional channel primitive the pool
// multiplexes. A Factory opens one RawChannel to the remote endpoint; the
// default implementation speaks WebSocket.
//
// The pool only depends on the Factory and RawChannel interfaces, so tests and
// alternative transports can swap in their own implementations.
package transport
