// File: reactor/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"net"
	"sync"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/protocol"
)

// Token identifies a registry slot. The low 32 bits are the slot index and
// the high 32 bits its generation, so a stale token never reaches a socket
// that reused the slot.
type Token uint64

func makeToken(idx, gen uint32) Token { return Token(idx) | Token(gen)<<32 }

func (t Token) index() uint32 { return uint32(t) }
func (t Token) gen() uint32   { return uint32(t >> 32) }

// Reserved tokens. Registry tokens always have a non-zero generation.
const (
	wakeToken  Token = 0
	closeToken Token = 1
)

type entryKind uint8

const (
	kindListener entryKind = iota
	kindStream
)

// entry is a registered socket: a listener or an accepted stream with its
// connection state.
type entry struct {
	kind entryKind
	fd   int
	addr net.Addr // local address

	// Listener.
	tls *protocol.TLSConfig

	// Stream.
	remote     net.Addr
	handler    *protocol.SocketHandler
	update     *api.Update
	readClosed bool
}

type slot struct {
	gen     uint32
	used    bool
	busy    bool // checked out by a servicing goroutine
	pending bool // an event arrived while busy
	e       *entry
}

// registry is the slab of sockets. Its lock is held only for slot
// bookkeeping, never while a connection is serviced.
type registry struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	count int
}

func newRegistry() *registry {
	return &registry{}
}

// insert stores e in a free slot and returns its token.
func (r *registry) insert(e *entry) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[idx]
	s.gen++
	s.used, s.busy, s.pending, s.e = true, false, false, e
	r.count++
	return makeToken(idx, s.gen)
}

// take checks the entry out for servicing. It fails for stale tokens and
// for entries another goroutine holds; in the latter case the event is
// remembered and reported by release.
func (r *registry) take(t Token) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(t)
	if s == nil {
		return nil, false
	}
	if s.busy {
		s.pending = true
		return nil, false
	}
	s.busy = true
	return s.e, true
}

// release returns a checked-out entry and reports whether events arrived
// meanwhile.
func (r *registry) release(t Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(t)
	if s == nil {
		return false
	}
	pending := s.pending
	s.busy, s.pending = false, false
	return pending
}

// remove frees a checked-out slot.
func (r *registry) remove(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(t)
	if s == nil {
		return
	}
	*s = slot{gen: s.gen}
	r.free = append(r.free, t.index())
	r.count--
}

// drain removes and returns every entry that is not checked out.
func (r *registry) drain() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entry
	for i := range r.slots {
		s := &r.slots[i]
		if !s.used || s.busy {
			continue
		}
		out = append(out, s.e)
		*s = slot{gen: s.gen}
		r.free = append(r.free, uint32(i))
		r.count--
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *registry) lookup(t Token) *slot {
	idx := t.index()
	if int(idx) >= len(r.slots) {
		return nil
	}
	s := &r.slots[idx]
	if !s.used || s.gen != t.gen() {
		return nil
	}
	return s
}
