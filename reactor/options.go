// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"log/slog"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/protocol"
)

// DefaultReadSize is the amount of spare buffer reserved for each socket read.
const DefaultReadSize = 16 * 1024

// Options configures a Reactor.
type Options struct {
	Handler  api.Handler
	Pool     api.Spawner
	Protocol protocol.Config
	Logger   *slog.Logger

	// ReadSize is the spare capacity reserved before each read.
	ReadSize int

	// MaxReadBuffer stops reading from a socket while this many unconsumed
	// bytes are buffered. Zero disables the limit.
	MaxReadBuffer int

	// Probe, when set, records per-connection service concurrency.
	Probe *ConcurrencyProbe
}

// Stats is a snapshot of reactor counters.
type Stats struct {
	Listeners   int
	Connections int
	Accepted    int64
	Dropped     int64
	Panics      int64
}
