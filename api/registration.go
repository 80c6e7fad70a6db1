// File: api/registration.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "sync"

// Registration is a one-shot cross-thread wakeup. A background goroutine
// calls SetReady once its result is available; the reactor arms it with a
// callback that reschedules the owning connection.
//
// Readiness is latched: SetReady before Arm fires the callback from Arm.
type Registration struct {
	mu     sync.Mutex
	ready  bool
	notify func()
}

// NewRegistration returns an unarmed, not-ready registration.
func NewRegistration() *Registration {
	return &Registration{}
}

// SetReady marks the registration ready and fires the armed callback, if any.
func (r *Registration) SetReady() {
	r.mu.Lock()
	r.ready = true
	fn := r.notify
	r.notify = nil
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Arm installs the callback. If the registration is already ready the
// callback runs immediately on the calling goroutine.
func (r *Registration) Arm(notify func()) {
	r.mu.Lock()
	if r.ready {
		r.mu.Unlock()
		notify()
		return
	}
	r.notify = notify
	r.mu.Unlock()
}

// Ready reports whether SetReady has been called.
func (r *Registration) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}
