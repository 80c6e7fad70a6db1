// File: protocol/tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TLSHandler terminates TLS in front of an HTTP1Handler. crypto/tls drives a
// net.Conn, so each connection gets a small record pump goroutine reading
// from an in-memory transport. Update feeds it the wire bytes and waits
// until the pump has consumed them and is starved again, which keeps the
// exchange synchronous from the reactor's point of view.

package protocol

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-http/api"
)

// TLSHandler handles one TLS connection.
type TLSHandler struct {
	inner     *HTTP1Handler
	innerUpd  *api.Update
	pipe      *tlsPipe
	conn      *tls.Conn
	handshook atomic.Bool
	notified  bool // close_notify sent
}

// NewTLSHandler wraps inner, which must have been created with secure set.
func NewTLSHandler(cfg *TLSConfig, inner *HTTP1Handler, local, remote net.Addr) *TLSHandler {
	p := newTLSPipe(local, remote)
	t := &TLSHandler{
		inner:    inner,
		innerUpd: api.NewUpdate(),
		pipe:     p,
		conn:     tls.Server(p, cfg.serverConfig()),
	}
	go t.pump()
	return t
}

// State returns the state of the wrapped HTTP/1 handler.
func (t *TLSHandler) State() State { return t.inner.State() }

// Update decrypts u.PendingReadBuffer into the inner handler, runs it, and
// encrypts its output into u.PendingWriteBuffer. A non-nil error is a
// handshake or record failure; the connection must be dropped.
func (t *TLSHandler) Update(u *api.Update) error {
	plain, eof, err := t.pipe.feed(u.PendingReadBuffer, u.ReadClosed)
	u.PendingReadBuffer = u.PendingReadBuffer[:0]
	if err != nil {
		return err
	}

	in := t.innerUpd
	in.PendingReadBuffer = append(in.PendingReadBuffer, plain...)
	in.ReadClosed = eof
	t.inner.Update(in)

	if len(in.PendingWriteBuffer) > 0 && t.handshook.Load() {
		if _, err := t.conn.Write(in.PendingWriteBuffer); err != nil {
			return err
		}
		in.PendingWriteBuffer = in.PendingWriteBuffer[:0]
	}
	if !in.AcceptsRead && len(in.PendingWriteBuffer) == 0 && t.handshook.Load() && !t.notified {
		t.notified = true
		_ = t.conn.CloseWrite()
	}

	u.PendingWriteBuffer = t.pipe.takeOutput(u.PendingWriteBuffer)
	u.Registration = in.Registration
	in.Registration = nil
	u.AcceptsRead = in.AcceptsRead || len(in.PendingWriteBuffer) > 0
	return nil
}

// Close stops the record pump and releases the inner handler.
func (t *TLSHandler) Close() {
	t.pipe.Close()
	t.inner.Close()
}

// pump runs the handshake and then decrypts records until the transport
// reports EOF or an error.
func (t *TLSHandler) pump() {
	err := t.conn.Handshake()
	if err == nil {
		t.handshook.Store(true)
		buf := make([]byte, 16*1024)
		for {
			var n int
			n, err = t.conn.Read(buf)
			if n > 0 {
				t.pipe.putPlaintext(buf[:n])
			}
			if err != nil {
				break
			}
		}
	}
	t.pipe.finish(err)
}

// tlsPipe is the in-memory net.Conn under crypto/tls plus the plaintext the
// pump produced. Reads block until input arrives; writes never block.
type tlsPipe struct {
	mu      sync.Mutex
	cond    *sync.Cond
	in      []byte // ciphertext from the client
	out     []byte // ciphertext for the client
	plain   []byte // decrypted application data
	eof     bool   // no more input will arrive
	starved bool   // pump is waiting for input
	done    bool   // pump exited
	closed  bool   // Close was called
	err     error  // pump exit reason

	local, remote net.Addr
}

func newTLSPipe(local, remote net.Addr) *tlsPipe {
	p := &tlsPipe{local: local, remote: remote}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// feed hands wire bytes to the pump and waits until it needs more input or
// has exited. It returns the plaintext decrypted so far and whether the
// plaintext stream has ended.
func (p *tlsPipe) feed(wire []byte, closed bool) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(wire) > 0 || (closed && !p.eof) {
		p.in = append(p.in, wire...)
		p.eof = p.eof || closed
		p.starved = false
		p.cond.Broadcast()
	}
	for !p.starved && !p.done {
		p.cond.Wait()
	}

	plain := p.plain
	p.plain = nil
	if p.done && p.err != nil && !errors.Is(p.err, io.EOF) {
		return plain, true, p.err
	}
	return plain, p.done, nil
}

func (p *tlsPipe) putPlaintext(b []byte) {
	p.mu.Lock()
	p.plain = append(p.plain, b...)
	p.mu.Unlock()
}

func (p *tlsPipe) takeOutput(dst []byte) []byte {
	p.mu.Lock()
	dst = append(dst, p.out...)
	p.out = p.out[:0]
	p.mu.Unlock()
	return dst
}

func (p *tlsPipe) finish(err error) {
	p.mu.Lock()
	p.done = true
	p.err = err
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Read implements net.Conn for the pump goroutine.
func (p *tlsPipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.in) == 0 && !p.eof {
		p.starved = true
		p.cond.Broadcast()
		p.cond.Wait()
	}
	if len(p.in) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.in)
	p.in = p.in[:copy(p.in, p.in[n:])]
	return n, nil
}

// Write implements net.Conn; ciphertext is buffered for the reactor.
func (p *tlsPipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, net.ErrClosed
	}
	p.out = append(p.out, b...)
	return len(b), nil
}

// Close ends the input stream so the pump exits. Output written after the
// peer's EOF is still buffered until Close.
func (p *tlsPipe) Close() error {
	p.mu.Lock()
	p.closed = true
	p.eof = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

func (p *tlsPipe) LocalAddr() net.Addr              { return p.local }
func (p *tlsPipe) RemoteAddr() net.Addr             { return p.remote }
func (p *tlsPipe) SetDeadline(time.Time) error      { return nil }
func (p *tlsPipe) SetReadDeadline(time.Time) error  { return nil }
func (p *tlsPipe) SetWriteDeadline(time.Time) error { return nil }
