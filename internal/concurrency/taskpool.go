// File: internal/concurrency/taskpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TaskPool runs blocking closures on an elastic set of worker goroutines.
// Tasks go to an idle worker when one exists; otherwise a new worker is
// started for the task so nothing waits behind a slow handler. Workers above
// the minimum retire after sitting idle for the idle timeout.

package concurrency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/momentics/hioload-http/api"
)

const (
	// DefaultMinThreads is the number of workers kept alive while idle.
	DefaultMinThreads = 4
	// DefaultIdleTimeout is how long a surplus worker waits before retiring.
	DefaultIdleTimeout = 5 * time.Second
)

// TaskPool is an elastic worker pool. The zero value is not usable; create
// one with NewTaskPool.
type TaskPool struct {
	mu          sync.Mutex
	cond        *sync.Cond
	todo        *queue.Queue // of func()
	threads     int          // live workers
	idle        int          // workers blocked waiting for work
	closed      bool
	minThreads  int
	idleTimeout time.Duration
	log         *slog.Logger

	started   *xsync.Counter
	completed *xsync.Counter
	panics    *xsync.Counter
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Threads   int
	Idle      int
	Queued    int
	Started   int64
	Completed int64
	Panics    int64
}

// NewTaskPool starts minThreads workers. Non-positive arguments select the
// defaults.
func NewTaskPool(minThreads int, idleTimeout time.Duration, log *slog.Logger) *TaskPool {
	if minThreads <= 0 {
		minThreads = DefaultMinThreads
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	p := &TaskPool{
		todo:        queue.New(),
		minThreads:  minThreads,
		idleTimeout: idleTimeout,
		log:         log,
		started:     xsync.NewCounter(),
		completed:   xsync.NewCounter(),
		panics:      xsync.NewCounter(),
	}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	for i := 0; i < minThreads; i++ {
		p.startWorkerLocked(nil)
	}
	p.mu.Unlock()
	return p
}

// Spawn runs task on a worker. It never blocks: if no worker is idle a new
// one is started for the task.
func (p *TaskPool) Spawn(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrPoolClosed
	}
	if p.idle > p.todo.Length() {
		p.todo.Add(task)
		p.cond.Signal()
		return nil
	}
	p.startWorkerLocked(task)
	return nil
}

// Close stops accepting tasks and wakes every idle worker so it can exit.
// Queued and running tasks still complete.
func (p *TaskPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Threads returns the number of live workers.
func (p *TaskPool) Threads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threads
}

// Stats returns a snapshot of the pool counters.
func (p *TaskPool) Stats() PoolStats {
	p.mu.Lock()
	s := PoolStats{Threads: p.threads, Idle: p.idle, Queued: p.todo.Length()}
	p.mu.Unlock()
	s.Started = p.started.Value()
	s.Completed = p.completed.Value()
	s.Panics = p.panics.Value()
	return s
}

func (p *TaskPool) startWorkerLocked(first func()) {
	p.threads++
	p.started.Inc()
	g := &threadGuard{pool: p}
	go p.work(g, first)
}

// threadGuard decrements the live worker count exactly once, however the
// worker goroutine ends.
type threadGuard struct {
	pool     *TaskPool
	released bool
}

func (g *threadGuard) release() {
	if g.released {
		return
	}
	g.pool.mu.Lock()
	g.releaseLocked()
	g.pool.mu.Unlock()
}

func (g *threadGuard) releaseLocked() {
	if !g.released {
		g.released = true
		g.pool.threads--
	}
}

func (p *TaskPool) work(g *threadGuard, task func()) {
	defer g.release()
	for {
		if task != nil {
			p.run(task)
		}
		var ok bool
		if task, ok = p.next(g); !ok {
			return
		}
	}
}

// run executes one task, containing any panic it raises.
func (p *TaskPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Inc()
			p.log.Error("task panicked", "panic", r)
		}
		p.completed.Inc()
	}()
	task()
}

// next blocks until a task is available. It returns false when the worker
// must exit, in which case g has already been released.
func (p *TaskPool) next(g *threadGuard) (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.todo.Length() > 0 {
			return p.todo.Remove().(func()), true
		}
		if p.closed {
			g.releaseLocked()
			return nil, false
		}

		if p.threads <= p.minThreads {
			p.idle++
			p.cond.Wait()
			p.idle--
			continue
		}

		expired := false
		timer := time.AfterFunc(p.idleTimeout, func() {
			p.mu.Lock()
			expired = true
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		p.idle++
		for !expired && !p.closed && p.todo.Length() == 0 {
			p.cond.Wait()
		}
		p.idle--
		timer.Stop()

		if expired && p.todo.Length() == 0 && p.threads > p.minThreads {
			g.releaseLocked()
			return nil, false
		}
	}
}
