// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server ties a reactor, a handler worker pool and a set of listeners
// together.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/internal/concurrency"
	"github.com/momentics/hioload-http/protocol"
	"github.com/momentics/hioload-http/reactor"
)

var ErrAlreadyRunning = errors.New("server already running")

// Server serves one handler on any number of plaintext and TLS listeners.
type Server struct {
	cfg     *Config
	log     *slog.Logger
	handler api.Handler
	probe   *reactor.ConcurrencyProbe

	pool    *concurrency.TaskPool
	reactor *reactor.Reactor

	mu      sync.Mutex
	addrs   []net.Addr
	running bool

	closed    atomic.Bool
	loops     sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	requests *xsync.Counter
	panics   *xsync.Counter
}

// New builds a server for handler. Nothing is bound until Listen or
// ListenTLS is called.
func New(handler api.Handler, opts ...ServerOption) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("server: nil handler: %w", api.ErrInvalidArgument)
	}
	s := &Server{
		cfg:      DefaultConfig(),
		handler:  handler,
		requests: xsync.NewCounter(),
		panics:   xsync.NewCounter(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.Logger == nil {
		s.cfg.Logger = slog.Default()
	}
	s.log = s.cfg.Logger.With("component", "server")

	s.pool = concurrency.NewTaskPool(s.cfg.MinPoolThreads, s.cfg.PoolIdleTimeout, s.cfg.Logger)
	r, err := reactor.New(reactor.Options{
		Handler:       s.serve,
		Pool:          s.pool,
		Protocol:      s.cfg.protocolConfig(),
		Logger:        s.cfg.Logger,
		MaxReadBuffer: s.cfg.MaxReadBuffer,
		Probe:         s.probe,
	})
	if err != nil {
		s.pool.Close()
		return nil, err
	}
	s.reactor = r
	return s, nil
}

// serve counts requests and panics around the user handler. The panic is
// re-raised so the connection still gets its 500 response.
func (s *Server) serve(req *api.Request) *api.Response {
	s.requests.Inc()
	defer func() {
		if rec := recover(); rec != nil {
			s.panics.Inc()
			panic(rec)
		}
	}()
	return s.handler(req)
}

// Listen binds a plaintext HTTP listener and returns its bound address.
func (s *Server) Listen(addr string) (net.Addr, error) {
	return s.listen(addr, nil)
}

// ListenTLS binds an HTTPS listener using certificates from cfg.
func (s *Server) ListenTLS(addr string, cfg *protocol.TLSConfig) (net.Addr, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: nil TLS config: %w", api.ErrInvalidArgument)
	}
	return s.listen(addr, cfg)
}

func (s *Server) listen(addr string, cfg *protocol.TLSConfig) (net.Addr, error) {
	if s.closed.Load() {
		return nil, api.ErrServerClosed
	}
	bound, err := s.reactor.RegisterListener(addr, cfg)
	if err != nil {
		s.log.Error("listen failed", "addr", addr, "err", err)
		return nil, err
	}
	s.mu.Lock()
	s.addrs = append(s.addrs, bound)
	s.mu.Unlock()
	return bound, nil
}

// Addrs returns the bound addresses in the order they were added.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]net.Addr(nil), s.addrs...)
}

// Run polls on the calling goroutine and on Config.ReactorThreads extra
// goroutines until Close is called. It returns api.ErrServerClosed after a
// clean shutdown.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if s.closed.Load() {
		s.mu.Unlock()
		return api.ErrServerClosed
	}
	s.running = true
	s.loops.Add(1 + s.cfg.ReactorThreads)
	s.mu.Unlock()

	s.log.Info("running", "threads", 1+s.cfg.ReactorThreads, "listeners", len(s.Addrs()))
	errs := make(chan error, 1+s.cfg.ReactorThreads)
	for i := 1; i <= s.cfg.ReactorThreads; i++ {
		go func() {
			s.pin(i)
			errs <- s.loop()
		}()
	}
	errs <- s.loop()

	var first error
	for i := 0; i <= s.cfg.ReactorThreads; i++ {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return first
	}
	return api.ErrServerClosed
}

// pin binds a polling goroutine started by Run to a CPU. The caller's own
// goroutine is never pinned.
func (s *Server) pin(i int) {
	if !s.cfg.PinThreads {
		return
	}
	if err := concurrency.PinCurrentThread(i); err != nil {
		s.log.Warn("cpu pinning unavailable", "thread", i, "err", err)
	}
}

func (s *Server) loop() error {
	defer s.loops.Done()
	for {
		err := s.reactor.OnePoll(-1)
		if err == nil {
			continue
		}
		if errors.Is(err, reactor.ErrClosed) {
			return nil
		}
		s.log.Error("poll failed", "err", err)
		// One broken loop stops the others so Run reports the failure.
		s.reactor.Shutdown()
		return err
	}
}

// Poll services whatever events are ready without blocking. It lets a
// caller drive the server from its own loop instead of Run.
func (s *Server) Poll() error {
	err := s.reactor.OnePoll(0)
	if errors.Is(err, reactor.ErrClosed) {
		return api.ErrServerClosed
	}
	return err
}

// Close stops Run, closes every socket and shuts the worker pool down.
// Handlers already running finish on their own. Close must not race with a
// caller-driven Poll.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		s.mu.Unlock()
		s.reactor.Shutdown()
		s.loops.Wait()
		s.closeErr = s.reactor.Close()
		s.pool.Close()
		s.log.Info("closed")
	})
	return s.closeErr
}

// Stats returns a snapshot of server counters.
func (s *Server) Stats() Stats {
	rs := s.reactor.Stats()
	return Stats{
		Listeners:   rs.Listeners,
		Connections: rs.Connections,
		Accepted:    rs.Accepted,
		Requests:    s.requests.Value(),
		Panics:      s.panics.Value(),
		Pool:        s.pool.Stats(),
		Reactor:     rs,
	}
}

// ListenAndServe binds addr and runs a server until ctx is done.
func ListenAndServe(ctx context.Context, addr string, handler api.Handler, opts ...ServerOption) error {
	s, err := New(handler, opts...)
	if err != nil {
		return err
	}
	defer s.Close()
	if _, err := s.Listen(addr); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	return s.Run()
}
