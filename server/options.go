// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"time"

	"github.com/momentics/hioload-http/reactor"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithConfig replaces the whole configuration. Options applied after it
// still take effect.
func WithConfig(cfg *Config) ServerOption {
	return func(s *Server) {
		if cfg != nil {
			c := *cfg
			s.cfg = &c
		}
	}
}

// WithLogger sets the structured logger handed to every component.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.cfg.Logger = l
	}
}

// WithReactorThreads sets how many extra goroutines Run polls with.
func WithReactorThreads(n int) ServerOption {
	return func(s *Server) {
		s.cfg.ReactorThreads = n
	}
}

// WithCPUAffinity binds each polling thread started by Run to a CPU.
func WithCPUAffinity(on bool) ServerOption {
	return func(s *Server) {
		s.cfg.PinThreads = on
	}
}

// WithPool sizes the handler worker pool.
func WithPool(minThreads int, idleTimeout time.Duration) ServerOption {
	return func(s *Server) {
		s.cfg.MinPoolThreads = minThreads
		s.cfg.PoolIdleTimeout = idleTimeout
	}
}

// WithLimits bounds request heads and buffered request bodies.
func WithLimits(maxHeaderSize int, maxBodySize int64) ServerOption {
	return func(s *Server) {
		s.cfg.MaxHeaderSize = maxHeaderSize
		s.cfg.MaxBodySize = maxBodySize
	}
}

// WithServerHeader sets the default Server response header; empty omits it.
func WithServerHeader(v string) ServerOption {
	return func(s *Server) {
		s.cfg.ServerHeader = v
	}
}

// WithServiceProbe installs a probe counting concurrent services per
// connection.
func WithServiceProbe(p *reactor.ConcurrencyProbe) ServerOption {
	return func(s *Server) {
		s.probe = p
	}
}
