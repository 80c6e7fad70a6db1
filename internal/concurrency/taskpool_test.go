// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-http/api"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestTaskPoolPrespawnsMinimum(t *testing.T) {
	p := NewTaskPool(4, time.Second, quietLogger())
	defer p.Close()
	if got := p.Threads(); got != 4 {
		t.Fatalf("Threads() = %d, want 4", got)
	}
}

func TestTaskPoolGrowsAndShrinks(t *testing.T) {
	const tasks = 12
	p := NewTaskPool(4, 50*time.Millisecond, quietLogger())
	defer p.Close()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(tasks)
	for i := 0; i < tasks; i++ {
		if err := p.Spawn(func() {
			started.Done()
			<-release
		}); err != nil {
			t.Fatalf("Spawn: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		started.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked tasks did not all start; a task waited for a busy worker")
	}
	if got := p.Threads(); got < tasks {
		t.Fatalf("Threads() = %d while %d tasks block, want >= %d", got, tasks, tasks)
	}

	close(release)
	waitFor(t, 3*time.Second, func() bool { return p.Threads() == 4 })

	// The minimum is kept; idle workers at the floor do not time out.
	time.Sleep(150 * time.Millisecond)
	if got := p.Threads(); got != 4 {
		t.Fatalf("Threads() = %d after idle period, want 4", got)
	}
}

func TestTaskPoolContainsPanics(t *testing.T) {
	p := NewTaskPool(2, time.Second, quietLogger())
	defer p.Close()

	if err := p.Spawn(func() { panic("boom") }); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	waitFor(t, time.Second, func() bool { return p.Stats().Panics == 1 })

	ran := make(chan struct{})
	if err := p.Spawn(func() { close(ran) }); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task after panic did not run")
	}
	if got := p.Threads(); got < 2 {
		t.Fatalf("Threads() = %d after panic, want >= 2", got)
	}
}

func TestTaskPoolCloseDrainsAndExits(t *testing.T) {
	p := NewTaskPool(3, time.Second, quietLogger())

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 5; i++ {
		_ = p.Spawn(func() {
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	p.Close()

	if err := p.Spawn(func() {}); !errors.Is(err, api.ErrPoolClosed) {
		t.Fatalf("Spawn after Close = %v, want ErrPoolClosed", err)
	}
	waitFor(t, 2*time.Second, func() bool { return p.Threads() == 0 })

	mu.Lock()
	defer mu.Unlock()
	if ran != 5 {
		t.Fatalf("ran %d tasks, want 5", ran)
	}
}

var _ api.Spawner = (*TaskPool)(nil)

func TestTaskPoolAsSpawner(t *testing.T) {
	p := NewTaskPool(1, time.Second, quietLogger())
	var sp api.Spawner = p

	ran := make(chan struct{})
	if err := sp.Spawn(func() { close(ran) }); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	p.Close()
	if err := sp.Spawn(func() {}); !errors.Is(err, api.ErrPoolClosed) {
		t.Fatalf("Spawn on closed pool = %v, want ErrPoolClosed", err)
	}
}

func TestPinCurrentThread(t *testing.T) {
	done := make(chan error, 1)
	// The goroutine exits locked, so its pinned thread is discarded.
	go func() { done <- PinCurrentThread(3) }()
	if err := <-done; err != nil && !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("PinCurrentThread: %v", err)
	}
}
