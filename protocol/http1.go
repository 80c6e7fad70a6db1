// File: protocol/http1.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP1Handler is the per-connection HTTP/1.x state machine. It parses
// requests from the bytes the reactor accumulated, runs the handler on the
// task pool, and serializes the response, without ever blocking the calling
// reactor goroutine on the handler.

package protocol

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/momentics/hioload-http/api"
)

// State names the externally visible state of a connection.
type State uint8

const (
	StatePoisoned State = iota
	StateWaitingForRequestLine
	StateWaitingForHeaders
	StateReadingBody
	StateExecutingHandler
	StateSendingResponse
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWaitingForRequestLine:
		return "WaitingForRequestLine"
	case StateWaitingForHeaders:
		return "WaitingForHeaders"
	case StateReadingBody:
		return "ReadingBody"
	case StateExecutingHandler:
		return "ExecutingHandler"
	case StateSendingResponse:
		return "SendingResponse"
	case StateClosed:
		return "Closed"
	default:
		return "Poisoned"
	}
}

// connState is a tagged union; only the fields of the live kind are set.
type connState struct {
	kind State

	// WaitingForRequestLine, WaitingForHeaders: offset where unscanned data starts.
	scanFrom int

	// WaitingForHeaders onwards.
	method  string
	target  string
	version Version

	// ReadingBody.
	headers []api.Header
	body    *bodyAnalyzer
	bodyBuf []byte

	// ReadingBody onwards.
	keepAlive bool

	// ExecutingHandler.
	result       <-chan *api.Response
	registration *api.Registration

	// SendingResponse.
	source io.Reader
	closer io.Closer
	short  *int64 // bytes still owed when the length was announced
}

// HTTP1Handler handles one plaintext HTTP/1.x connection.
type HTTP1Handler struct {
	state      connState
	remoteAddr net.Addr
	secure     bool
	handler    api.Handler
	pool       api.Spawner
	cfg        Config
	log        *slog.Logger
	now        func() time.Time
}

// NewHTTP1Handler starts handling a new client connection. secure marks
// requests as received over TLS.
func NewHTTP1Handler(remote net.Addr, secure bool, handler api.Handler, pool api.Spawner, cfg Config) *HTTP1Handler {
	cfg = cfg.withDefaults()
	return &HTTP1Handler{
		state:      connState{kind: StateWaitingForRequestLine},
		remoteAddr: remote,
		secure:     secure,
		handler:    handler,
		pool:       pool,
		cfg:        cfg,
		log:        cfg.Logger,
		now:        time.Now,
	}
}

// State returns the current state.
func (h *HTTP1Handler) State() State { return h.state.kind }

// Update consumes u.PendingReadBuffer and appends to u.PendingWriteBuffer.
// It must be called whenever new data arrived, output was drained, or the
// registration it returned became ready.
func (h *HTTP1Handler) Update(u *api.Update) {
	for {
		st := h.state
		h.state = connState{kind: StatePoisoned}

		switch st.kind {
		case StatePoisoned:
			panic("protocol: update on poisoned connection state")

		case StateWaitingForRequestLine:
			buf := u.PendingReadBuffer
			off := max(st.scanFrom-1, 0)
			i := bytes.Index(buf[off:], crlf)
			if i < 0 {
				switch {
				case len(buf) > h.cfg.MaxHeaderSize:
					h.respondError(u, 414, st)
					continue
				case u.ReadClosed:
					h.state = connState{kind: StateClosed}
					continue
				}
				h.state = connState{kind: StateWaitingForRequestLine, scanFrom: len(buf)}
				return
			}
			end := off + i
			line := buf[:end]
			if len(line) == 0 {
				// Empty lines before a request line are ignored.
				consume(u, 2)
				h.state = connState{kind: StateWaitingForRequestLine}
				continue
			}
			method, target, version, err := parseRequestLine(line)
			consume(u, end+2)
			if err != nil {
				h.log.Debug("bad request line", "remote", h.remoteAddr, "err", err)
				h.respondError(u, statusFor(err), st)
				continue
			}
			h.state = connState{
				kind:    StateWaitingForHeaders,
				method:  method,
				target:  target,
				version: version,
			}

		case StateWaitingForHeaders:
			buf := u.PendingReadBuffer
			var blockEnd, cut int
			if bytes.HasPrefix(buf, crlf) {
				blockEnd, cut = 0, 2
			} else {
				off := max(st.scanFrom-3, 0)
				i := bytes.Index(buf[off:], crlfcrlf)
				if i < 0 {
					switch {
					case len(buf) > h.cfg.MaxHeaderSize:
						h.respondError(u, 431, st)
						continue
					case u.ReadClosed:
						h.state = connState{kind: StateClosed}
						continue
					}
					st.scanFrom = len(buf)
					h.state = st
					return
				}
				blockEnd, cut = off+i+2, off+i+4
			}
			headers, err := parseHeaders(buf[:blockEnd])
			consume(u, cut)
			if err != nil {
				h.respondError(u, statusFor(err), st)
				continue
			}
			analyzer, err := newBodyAnalyzer(headers, h.cfg.MaxBodySize)
			if err != nil {
				h.respondError(u, statusFor(err), st)
				continue
			}
			st.kind = StateReadingBody
			st.scanFrom = 0
			st.headers = headers
			st.body = analyzer
			st.keepAlive = wantsKeepAlive(st.version, headers)
			h.state = st

		case StateReadingBody:
			n, finished, err := st.body.feed(u.PendingReadBuffer, &st.bodyBuf)
			consume(u, n)
			if err != nil {
				h.respondError(u, statusFor(err), st)
				continue
			}
			if !finished {
				if u.ReadClosed {
					h.state = connState{kind: StateClosed}
					continue
				}
				h.state = st
				return
			}
			h.dispatch(u, st)
			if h.state.kind == StateExecutingHandler {
				return
			}

		case StateExecutingHandler:
			select {
			case resp := <-st.result:
				h.startResponse(u, st, resp)
			default:
				h.state = st
				u.Registration = st.registration
				return
			}

		case StateSendingResponse:
			if !h.fill(u, &st) {
				h.state = st
				return
			}
			if st.closer != nil {
				_ = st.closer.Close()
			}
			if st.keepAlive {
				h.state = connState{kind: StateWaitingForRequestLine}
			} else {
				h.state = connState{kind: StateClosed}
			}

		case StateClosed:
			h.state = st
			u.AcceptsRead = false
			u.PendingReadBuffer = u.PendingReadBuffer[:0]
			return
		}
	}
}

// Close releases resources held by the current state. The connection is
// being dropped; a handler still running keeps its result to itself.
func (h *HTTP1Handler) Close() {
	if h.state.kind == StateSendingResponse && h.state.closer != nil {
		_ = h.state.closer.Close()
	}
	h.state = connState{kind: StateClosed}
}

// dispatch submits the handler to the task pool and moves to
// ExecutingHandler, arming u.Registration.
func (h *HTTP1Handler) dispatch(u *api.Update, st connState) {
	result := make(chan *api.Response, 1)
	reg := api.NewRegistration()
	req := api.NewRequest(st.method, st.target, st.headers, h.secure, h.remoteAddr, st.bodyBuf)
	handler, log := h.handler, h.log

	err := h.pool.Spawn(func() {
		result <- invoke(handler, req, log)
		reg.SetReady()
	})
	if err != nil {
		h.log.Warn("cannot dispatch request", "remote", h.remoteAddr, "err", err)
		st.keepAlive = false
		h.startResponse(u, st, api.Empty(503))
		return
	}

	h.state = connState{
		kind:         StateExecutingHandler,
		method:       st.method,
		version:      st.version,
		keepAlive:    st.keepAlive,
		result:       result,
		registration: reg,
	}
	u.Registration = reg
}

// invoke runs the handler, turning a panic or nil response into a 500.
func invoke(handler api.Handler, req *api.Request, log *slog.Logger) (resp *api.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", "method", req.Method(), "url", req.URL(), "panic", r)
			resp = api.InternalServerError()
		}
	}()
	resp = handler(req)
	if resp == nil {
		log.Error("handler returned no response", "method", req.Method(), "url", req.URL())
		resp = api.InternalServerError()
	}
	return resp
}

// startResponse writes the response head and moves to SendingResponse.
func (h *HTTP1Handler) startResponse(u *api.Update, st connState, resp *api.Response) {
	keepAlive := st.keepAlive
	if resp.Upgrade != nil {
		h.log.Debug("protocol upgrade not supported by connection core", "remote", h.remoteAddr)
		keepAlive = false
	}
	if headerContainsToken(resp.Headers, "Connection", "close") {
		keepAlive = false
	}

	length := resp.Length
	body := resp.Body
	if body == nil {
		body, length = bytes.NewReader(nil), 0
	}
	closer, _ := body.(io.Closer)
	if !bodyAllowed(resp.StatusCode) {
		body, length = bytes.NewReader(nil), api.UnknownLength
	}
	if length < 0 && bodyAllowed(resp.StatusCode) {
		keepAlive = false
	}

	u.PendingWriteBuffer = appendHead(u.PendingWriteBuffer, responseHead{
		status:     resp.StatusCode,
		headers:    resp.Headers,
		length:     length,
		keepAlive:  keepAlive,
		oldVersion: !st.version.AtLeast(1, 1),
		server:     h.cfg.ServerHeader,
		now:        h.now(),
	})

	next := connState{
		kind:      StateSendingResponse,
		keepAlive: keepAlive,
		source:    body,
		closer:    closer,
	}
	if st.method == "HEAD" {
		next.source = bytes.NewReader(nil)
	} else if length >= 0 {
		owed := length
		next.source = io.LimitReader(body, length)
		next.short = &owed
	}
	h.state = next
}

// fill copies body bytes into the write buffer in fixed-size chunks until
// the high-water mark is reached. It returns true once the body is done.
func (h *HTTP1Handler) fill(u *api.Update, st *connState) bool {
	chunk := h.cfg.ReadChunkSize
	for len(u.PendingWriteBuffer) < h.cfg.WriteHighWater {
		w := slices.Grow(u.PendingWriteBuffer, chunk)
		n, err := st.source.Read(w[len(w) : len(w)+chunk])
		u.PendingWriteBuffer = w[:len(w)+n]
		if st.short != nil {
			*st.short -= int64(n)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			h.log.Debug("response body read failed", "remote", h.remoteAddr, "err", err)
			st.keepAlive = false
		}
		if st.short != nil && *st.short > 0 {
			// Fewer bytes than announced; the framing is broken.
			st.keepAlive = false
		}
		return true
	}
	return false
}

// respondError queues a minimal error response and closes afterwards.
func (h *HTTP1Handler) respondError(u *api.Update, status int, st connState) {
	st.keepAlive = false
	st.method = ""
	resp := api.Text(ReasonPhrase(status)).WithStatus(status)
	h.startResponse(u, st, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedVersion):
		return 505
	case errors.Is(err, ErrHeadersTooLarge):
		return 431
	case errors.Is(err, ErrBodyTooLarge):
		return 413
	default:
		return 400
	}
}

// consume drops the first n bytes of the read buffer.
func consume(u *api.Update, n int) {
	u.PendingReadBuffer = u.PendingReadBuffer[:copy(u.PendingReadBuffer, u.PendingReadBuffer[n:])]
}
