// File: protocol/socket_handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"net"

	"github.com/momentics/hioload-http/api"
)

// Kind selects the protocol variant of a SocketHandler.
type Kind uint8

const (
	KindHTTP Kind = iota
	KindHTTPS
)

// SocketHandler is the per-connection state machine the reactor drives. The
// variant is fixed at accept time.
type SocketHandler struct {
	kind  Kind
	plain *HTTP1Handler
	tls   *TLSHandler
}

// NewSocketHandler builds the handler for a freshly accepted connection. A
// nil tlsCfg selects plaintext HTTP.
func NewSocketHandler(local, remote net.Addr, tlsCfg *TLSConfig, handler api.Handler, pool api.Spawner, cfg Config) *SocketHandler {
	if tlsCfg == nil {
		return &SocketHandler{
			kind:  KindHTTP,
			plain: NewHTTP1Handler(remote, false, handler, pool, cfg),
		}
	}
	inner := NewHTTP1Handler(remote, true, handler, pool, cfg)
	return &SocketHandler{
		kind: KindHTTPS,
		tls:  NewTLSHandler(tlsCfg, inner, local, remote),
	}
}

// Kind returns the protocol variant.
func (s *SocketHandler) Kind() Kind { return s.kind }

// Update advances the state machine. An error means the connection must be
// dropped without a response.
func (s *SocketHandler) Update(u *api.Update) error {
	switch s.kind {
	case KindHTTPS:
		return s.tls.Update(u)
	default:
		s.plain.Update(u)
		return nil
	}
}

// State returns the HTTP/1 state of the connection.
func (s *SocketHandler) State() State {
	if s.kind == KindHTTPS {
		return s.tls.State()
	}
	return s.plain.State()
}

// Close releases the connection's resources.
func (s *SocketHandler) Close() {
	if s.kind == KindHTTPS {
		s.tls.Close()
		return
	}
	s.plain.Close()
}
