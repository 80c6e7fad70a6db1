//go:build !linux

// File: reactor/reactor_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"net"

	"github.com/momentics/hioload-http/protocol"
)

// Reactor is unavailable on this platform.
type Reactor struct{}

// New always fails with ErrNotSupported.
func New(Options) (*Reactor, error) { return nil, ErrNotSupported }

func (r *Reactor) RegisterListener(string, *protocol.TLSConfig) (net.Addr, error) {
	return nil, ErrNotSupported
}

func (r *Reactor) OnePoll(int) error { return ErrNotSupported }
func (r *Reactor) Shutdown()         {}
func (r *Reactor) Close() error      { return nil }
func (r *Reactor) Stats() Stats      { return Stats{} }
