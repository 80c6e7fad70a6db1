//go:build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Epoll-driven reactor. Any number of goroutines may call OnePoll on the same
// Reactor; each event is serviced by the goroutine that received it.

package reactor

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/protocol"
)

const maxEvents = 128

// Reactor multiplexes listeners and connections over one epoll instance.
type Reactor struct {
	opts Options
	log  *slog.Logger
	poll *poller
	reg  *registry

	wakeFd  eventFD // edge-triggered, drained by whoever receives it
	closeFd eventFD // level-triggered, never drained

	wakeMu sync.Mutex
	wakes  *queue.Queue // of Token
	closed bool         // guarded by wakeMu

	shutting  atomic.Bool
	listeners atomic.Int32

	accepted *xsync.Counter
	dropped  *xsync.Counter
	panics   *xsync.Counter
}

// New creates a reactor with no sockets registered.
func New(opts Options) (*Reactor, error) {
	if opts.Handler == nil || opts.Pool == nil {
		return nil, fmt.Errorf("reactor: handler and pool are required: %w", api.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}
	if opts.MaxReadBuffer > 0 {
		// A head that fits the header limit must fit the read buffer too, or
		// the connection stalls before the parser can answer 431.
		hdr := opts.Protocol.MaxHeaderSize
		if hdr <= 0 {
			hdr = protocol.DefaultConfig().MaxHeaderSize
		}
		opts.MaxReadBuffer = max(opts.MaxReadBuffer, hdr+opts.ReadSize)
	}
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		opts:     opts,
		log:      opts.Logger.With("component", "reactor"),
		poll:     p,
		reg:      newRegistry(),
		wakes:    queue.New(),
		accepted: xsync.NewCounter(),
		dropped:  xsync.NewCounter(),
		panics:   xsync.NewCounter(),
	}
	if r.wakeFd, err = newEventFD(); err != nil {
		p.close()
		return nil, err
	}
	if r.closeFd, err = newEventFD(); err != nil {
		r.wakeFd.close()
		p.close()
		return nil, err
	}
	if err = p.add(int(r.wakeFd), wakeToken, unix.EPOLLIN|unix.EPOLLET); err == nil {
		err = p.add(int(r.closeFd), closeToken, unix.EPOLLIN)
	}
	if err != nil {
		r.closeFd.close()
		r.wakeFd.close()
		p.close()
		return nil, err
	}
	return r, nil
}

// RegisterListener binds addr and starts accepting on it. A non-nil tlsCfg
// makes every connection accepted there HTTPS. Bind failures are returned as
// *api.BindError.
func (r *Reactor) RegisterListener(addr string, tlsCfg *protocol.TLSConfig) (net.Addr, error) {
	if r.shutting.Load() {
		return nil, ErrClosed
	}
	fd, bound, err := listenTCP(addr)
	if err != nil {
		return nil, &api.BindError{Addr: addr, Err: err}
	}
	t := r.reg.insert(&entry{kind: kindListener, fd: fd, addr: bound, tls: tlsCfg})
	r.listeners.Add(1)
	if err := r.poll.add(fd, t, unix.EPOLLIN|evOneShot); err != nil {
		r.reg.take(t)
		r.reg.remove(t)
		r.listeners.Add(-1)
		unix.Close(fd)
		return nil, err
	}
	r.log.Info("listening", "addr", bound.String(), "tls", tlsCfg != nil)
	return bound, nil
}

// OnePoll waits up to timeoutMs milliseconds for events and services those
// received. A negative timeout blocks until something happens. It returns
// ErrClosed once Shutdown has been called.
func (r *Reactor) OnePoll(timeoutMs int) error {
	if r.shutting.Load() {
		return ErrClosed
	}
	var events [maxEvents]unix.EpollEvent
	n, err := r.poll.wait(events[:], timeoutMs)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		switch t := eventToken(&events[i]); t {
		case closeToken:
		case wakeToken:
			r.wakeFd.drain()
			r.serviceWake()
		default:
			r.dispatch(t)
		}
	}
	if r.shutting.Load() {
		return ErrClosed
	}
	return nil
}

// Shutdown makes every current and future OnePoll call return ErrClosed.
func (r *Reactor) Shutdown() {
	if r.shutting.CompareAndSwap(false, true) {
		r.closeFd.signal()
	}
}

// Close shuts the reactor down and releases every socket. No OnePoll call may
// be running.
func (r *Reactor) Close() error {
	r.Shutdown()
	r.wakeMu.Lock()
	already := r.closed
	r.closed = true
	r.wakeMu.Unlock()
	if already {
		return nil
	}
	for _, e := range r.reg.drain() {
		if e.handler != nil {
			e.handler.Close()
		}
		unix.Close(e.fd)
	}
	r.closeFd.close()
	r.wakeFd.close()
	return r.poll.close()
}

// Stats returns current counters.
func (r *Reactor) Stats() Stats {
	l := int(r.listeners.Load())
	return Stats{
		Listeners:   l,
		Connections: r.reg.len() - l,
		Accepted:    r.accepted.Value(),
		Dropped:     r.dropped.Value(),
		Panics:      r.panics.Value(),
	}
}

// wake schedules t to be serviced by some polling goroutine.
func (r *Reactor) wake(t Token) {
	r.wakeMu.Lock()
	if r.closed {
		r.wakeMu.Unlock()
		return
	}
	r.wakes.Add(t)
	r.wakeFd.signal()
	r.wakeMu.Unlock()
}

// serviceWake handles one queued wakeup and passes the rest on to other
// goroutines.
func (r *Reactor) serviceWake() {
	r.wakeMu.Lock()
	if r.wakes.Length() == 0 {
		r.wakeMu.Unlock()
		return
	}
	t := r.wakes.Remove().(Token)
	if r.wakes.Length() > 0 {
		r.wakeFd.signal()
	}
	r.wakeMu.Unlock()
	r.dispatch(t)
}

func (r *Reactor) dispatch(t Token) {
	e, ok := r.reg.take(t)
	if !ok {
		return
	}
	if e.kind == kindListener {
		r.accept(t, e)
		return
	}
	r.serviceStream(t, e)
}

// accept drains the listener backlog.
func (r *Reactor) accept(t Token, l *entry) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			case errors.Is(err, unix.EAGAIN):
				r.finishListener(t, l)
			default:
				r.log.Error("accept failed, closing listener", "addr", l.addr.String(), "err", err)
				r.listeners.Add(-1)
				unix.Close(l.fd)
				r.reg.remove(t)
			}
			return
		}
		_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		remote := fromSockaddr(sa)
		var local net.Addr = l.addr
		if lsa, err := unix.Getsockname(nfd); err == nil {
			local = fromSockaddr(lsa)
		}
		c := &entry{
			kind:    kindStream,
			fd:      nfd,
			addr:    local,
			remote:  remote,
			handler: protocol.NewSocketHandler(local, remote, l.tls, r.opts.Handler, r.opts.Pool, r.opts.Protocol),
			update:  api.NewUpdate(),
		}
		ct := r.reg.insert(c)
		r.accepted.Inc()
		if err := r.poll.add(nfd, ct, evRead|evOneShot); err != nil {
			r.log.Warn("register connection", "remote", remote.String(), "err", err)
			r.reg.take(ct)
			r.drop(ct, c)
			continue
		}
		r.log.Debug("accepted", "remote", remote.String(), "local", local.String())
	}
}

func (r *Reactor) finishListener(t Token, l *entry) {
	if err := r.poll.rearm(l.fd, t, unix.EPOLLIN|evOneShot); err != nil {
		r.log.Error("re-arm listener", "addr", l.addr.String(), "err", err)
	}
	if r.reg.release(t) {
		r.wake(t)
	}
}

func (r *Reactor) serviceStream(t Token, c *entry) {
	probe := r.opts.Probe
	if probe != nil {
		probe.enter(t)
	}
	keep := r.service(c)
	if probe != nil {
		probe.exit(t)
	}
	if !keep || r.shutting.Load() {
		r.drop(t, c)
		return
	}
	r.finish(t, c)
}

// service runs one read, update, write cycle. It reports false when the
// connection must be dropped.
func (r *Reactor) service(c *entry) (keep bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Inc()
			r.log.Error("connection service panicked", "remote", c.remote.String(), "panic", rec)
			keep = false
		}
	}()
	u := c.update
	if err := r.read(c); err != nil {
		r.log.Debug("read failed", "remote", c.remote.String(), "err", err)
		return false
	}
	u.ReadClosed = c.readClosed
	if err := c.handler.Update(u); err != nil {
		r.log.Debug("protocol error", "remote", c.remote.String(), "err", err)
		return false
	}
	if err := r.write(c); err != nil {
		r.log.Debug("write failed", "remote", c.remote.String(), "err", err)
		return false
	}
	// A response body may produce more output as soon as the socket drains.
	for len(u.PendingWriteBuffer) == 0 && u.Registration == nil &&
		c.handler.State() == protocol.StateSendingResponse {
		if err := c.handler.Update(u); err != nil {
			return false
		}
		if len(u.PendingWriteBuffer) == 0 {
			break
		}
		if err := r.write(c); err != nil {
			r.log.Debug("write failed", "remote", c.remote.String(), "err", err)
			return false
		}
	}
	return u.AcceptsRead || len(u.PendingWriteBuffer) > 0
}

func (r *Reactor) readBlocked(c *entry) bool {
	u := c.update
	return c.readClosed || !u.AcceptsRead ||
		(r.opts.MaxReadBuffer > 0 && len(u.PendingReadBuffer) >= r.opts.MaxReadBuffer)
}

// read pulls bytes until the socket would block or the peer closes.
func (r *Reactor) read(c *entry) error {
	u := c.update
	for !r.readBlocked(c) {
		buf := slices.Grow(u.PendingReadBuffer, r.opts.ReadSize)
		n, err := unix.Read(c.fd, buf[len(buf):cap(buf)])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil
		case err != nil:
			return err
		case n == 0:
			c.readClosed = true
			return nil
		}
		u.PendingReadBuffer = buf[:len(buf)+n]
	}
	return nil
}

// write sends as much pending output as the socket accepts.
func (r *Reactor) write(c *entry) error {
	u := c.update
	for len(u.PendingWriteBuffer) > 0 {
		n, err := unix.SendmsgN(c.fd, u.PendingWriteBuffer, nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil
		case err != nil:
			return err
		}
		u.PendingWriteBuffer = append(u.PendingWriteBuffer[:0], u.PendingWriteBuffer[n:]...)
	}
	return nil
}

// finish re-arms the socket for whatever the connection waits on and hands
// it back to the registry.
func (r *Reactor) finish(t Token, c *entry) {
	u := c.update
	reg := u.Registration
	u.Registration = nil

	var events uint32
	if !r.readBlocked(c) {
		events |= evRead
	}
	if len(u.PendingWriteBuffer) > 0 {
		events |= evWrite
	}
	if events == 0 && reg == nil {
		// Nothing could ever wake this connection again.
		r.drop(t, c)
		return
	}
	if events != 0 {
		if err := r.poll.rearm(c.fd, t, events|evOneShot); err != nil {
			r.log.Warn("re-arm connection", "remote", c.remote.String(), "err", err)
			r.drop(t, c)
			return
		}
	}
	if r.reg.release(t) {
		r.wake(t)
	}
	if reg != nil {
		reg.Arm(func() { r.wake(t) })
	}
}

// drop closes a checked-out connection and frees its slot.
func (r *Reactor) drop(t Token, c *entry) {
	c.handler.Close()
	unix.Close(c.fd)
	r.reg.remove(t)
	r.dropped.Inc()
}
