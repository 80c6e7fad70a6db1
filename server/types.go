// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/momentics/hioload-http/internal/concurrency"
	"github.com/momentics/hioload-http/protocol"
	"github.com/momentics/hioload-http/reactor"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ReactorThreads  int           // polling goroutines started by Run besides the caller
	PinThreads      bool          // bind each polling thread to its own CPU
	MinPoolThreads  int           // handler workers kept alive while idle
	PoolIdleTimeout time.Duration // idle time before a surplus worker retires
	MaxHeaderSize   int           // request line plus headers
	MaxBodySize     int64         // buffered request body
	ReadChunkSize   int           // size of each read from a response body
	WriteHighWater  int           // pending output above which body streaming pauses
	MaxReadBuffer   int           // unconsumed input per connection, 0 = unbounded
	ServerHeader    string        // default Server header, empty to omit
	Logger          *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	p := protocol.DefaultConfig()
	return &Config{
		ReactorThreads:  max(runtime.NumCPU()-1, 0),
		MinPoolThreads:  concurrency.DefaultMinThreads,
		PoolIdleTimeout: concurrency.DefaultIdleTimeout,
		MaxHeaderSize:   p.MaxHeaderSize,
		MaxBodySize:     p.MaxBodySize,
		ReadChunkSize:   p.ReadChunkSize,
		WriteHighWater:  p.WriteHighWater,
		MaxReadBuffer:   1 << 20,
		ServerHeader:    p.ServerHeader,
		Logger:          slog.Default(),
	}
}

func (c *Config) protocolConfig() protocol.Config {
	return protocol.Config{
		MaxHeaderSize:  c.MaxHeaderSize,
		MaxBodySize:    c.MaxBodySize,
		WriteHighWater: c.WriteHighWater,
		ReadChunkSize:  c.ReadChunkSize,
		ServerHeader:   c.ServerHeader,
		Logger:         c.Logger,
	}
}

// Stats is a snapshot of server activity.
type Stats struct {
	Listeners   int
	Connections int   // currently open
	Accepted    int64 // connections accepted since start
	Requests    int64 // requests handed to the handler
	Panics      int64 // handler invocations that panicked
	Pool        concurrency.PoolStats
	Reactor     reactor.Stats
}
