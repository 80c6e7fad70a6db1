// File: api/update.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Update is the channel between the reactor and a connection's state machine.

package api

// Update carries buffered bytes in both directions for one connection.
//
// The reactor appends received bytes to PendingReadBuffer and removes sent
// bytes from the front of PendingWriteBuffer, then calls the state machine,
// which consumes from the former and appends to the latter.
type Update struct {
	// Bytes received from the client and not yet consumed by parsing.
	PendingReadBuffer []byte

	// Set by the reactor once the peer closed its write side.
	ReadClosed bool

	// Cleared by the state machine when it will no longer process input.
	// Once false and PendingWriteBuffer is empty the socket can be dropped.
	AcceptsRead bool

	// Bytes produced by the state machine and not yet written to the socket.
	PendingWriteBuffer []byte

	// When non-nil the reactor must call the state machine again once the
	// registration becomes ready. Consumed by the reactor.
	Registration *Registration
}

// NewUpdate returns an empty Update for a new connection.
func NewUpdate() *Update {
	return &Update{
		PendingReadBuffer:  make([]byte, 0, 1024),
		AcceptsRead:        true,
		PendingWriteBuffer: make([]byte, 0, 1024),
	}
}
