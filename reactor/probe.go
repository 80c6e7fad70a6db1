// File: reactor/probe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ConcurrencyProbe counts how many goroutines service each token at the same
// time. The registry protocol keeps this at one; the probe lets tests and
// debugging sessions verify it.
type ConcurrencyProbe struct {
	inFlight *xsync.MapOf[Token, *atomic.Int32]
	peak     atomic.Int32
	services atomic.Int64
}

// NewConcurrencyProbe returns an empty probe.
func NewConcurrencyProbe() *ConcurrencyProbe {
	return &ConcurrencyProbe{inFlight: xsync.NewMapOf[Token, *atomic.Int32]()}
}

func (p *ConcurrencyProbe) enter(t Token) {
	c, _ := p.inFlight.LoadOrCompute(t, func() *atomic.Int32 { return new(atomic.Int32) })
	n := c.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	p.services.Add(1)
}

func (p *ConcurrencyProbe) exit(t Token) {
	if c, ok := p.inFlight.Load(t); ok {
		c.Add(-1)
	}
}

// Peak returns the highest number of concurrent services seen for any
// single token.
func (p *ConcurrencyProbe) Peak() int { return int(p.peak.Load()) }

// Services returns the number of service cycles observed.
func (p *ConcurrencyProbe) Services() int64 { return p.services.Load() }
