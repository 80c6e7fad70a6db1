// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types shared by the reactor, protocol handlers and server.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrServerClosed    = errors.New("server is closed")
	ErrPoolClosed      = errors.New("task pool is closed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSupported    = errors.New("operation not supported")
)

// BindError reports a listener that could not be bound or put into listening
// mode. It is fatal to that listener only.
type BindError struct {
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying OS error.
func (e *BindError) Unwrap() error { return e.Err }
