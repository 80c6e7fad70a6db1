// File: api/handler.go
// Package api defines the request handler contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handler turns a fully parsed request into exactly one response.
//
// Handlers run on the task pool, never on a reactor thread, so they are free
// to block. A panicking handler is answered with a 500 response.
type Handler func(req *Request) *Response

// Spawner executes closures off the I/O path. Spawn never blocks; it fails
// with ErrPoolClosed once the pool has been shut down.
type Spawner interface {
	Spawn(task func()) error
}
