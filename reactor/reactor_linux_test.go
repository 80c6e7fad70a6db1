//go:build linux

package reactor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/internal/concurrency"
	"github.com/momentics/hioload-http/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	r    *Reactor
	pool *concurrency.TaskPool
	wg   sync.WaitGroup
}

// startReactor runs n polling goroutines over a fresh reactor.
func startReactor(t *testing.T, h api.Handler, n int, probe *ConcurrencyProbe) *harness {
	t.Helper()
	return startReactorWith(t, Options{Handler: h, Probe: probe}, n)
}

// startReactorWith fills in the pool, logger and protocol defaults of opts.
func startReactorWith(t *testing.T, opts Options, n int) *harness {
	t.Helper()
	log := quietLogger()
	pool := concurrency.NewTaskPool(2, 100*time.Millisecond, log)
	if opts.Protocol.MaxHeaderSize == 0 {
		opts.Protocol = protocol.DefaultConfig()
	}
	opts.Protocol.Logger = log
	opts.Pool, opts.Logger = pool, log
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hs := &harness{r: r, pool: pool}
	for i := 0; i < n; i++ {
		hs.wg.Add(1)
		go func() {
			defer hs.wg.Done()
			for {
				if err := r.OnePoll(-1); err != nil {
					if !errors.Is(err, ErrClosed) {
						t.Errorf("OnePoll: %v", err)
					}
					return
				}
			}
		}()
	}
	t.Cleanup(hs.stop)
	return hs
}

func (h *harness) stop() {
	h.r.Shutdown()
	h.wg.Wait()
	h.r.Close()
	h.pool.Close()
}

func hello(*api.Request) *api.Response { return api.Text("hello") }

func get(t *testing.T, br *bufio.Reader, conn net.Conn, path string) *http.Response {
	t.Helper()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: test\r\n\r\n", path); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp
}

func TestReactorServesHello(t *testing.T) {
	hs := startReactor(t, hello, 2, nil)
	addr, err := hs.r.RegisterListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("RegisterListener: %v", err)
	}
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	br := bufio.NewReader(conn)
	for i := 0; i < 3; i++ {
		resp := get(t, br, conn, "/")
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != 200 || string(body) != "hello" {
			t.Fatalf("request %d: %d %q", i, resp.StatusCode, body)
		}
	}
	if st := hs.r.Stats(); st.Listeners != 1 || st.Accepted != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestReactorLargeResponse(t *testing.T) {
	payload := strings.Repeat("abcdefgh", 512*1024)
	hs := startReactor(t, func(*api.Request) *api.Response { return api.Text(payload) }, 2, nil)
	addr, err := hs.r.RegisterListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	resp := get(t, bufio.NewReader(conn), conn, "/big")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(body) != len(payload) || string(body) != payload {
		t.Fatalf("body length %d, want %d", len(body), len(payload))
	}
}

func TestReactorDropsClosedPeer(t *testing.T) {
	hs := startReactor(t, hello, 1, nil)
	addr, err := hs.r.RegisterListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	get(t, bufio.NewReader(conn), conn, "/")
	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for hs.r.Stats().Connections != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection never dropped: %+v", hs.r.Stats())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReadLimitBelowHeaderLimitStillAnswers431(t *testing.T) {
	cfg := protocol.DefaultConfig()
	cfg.MaxHeaderSize = 2048
	hs := startReactorWith(t, Options{
		Handler:       hello,
		Protocol:      cfg,
		ReadSize:      1024,
		MaxReadBuffer: 512,
	}, 2)
	if got := hs.r.opts.MaxReadBuffer; got <= cfg.MaxHeaderSize {
		t.Fatalf("MaxReadBuffer = %d, not above MaxHeaderSize %d", got, cfg.MaxHeaderSize)
	}
	addr, err := hs.r.RegisterListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	// An unterminated head longer than the header limit.
	head := "GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("a", 2600)
	if _, err := io.WriteString(conn, head); err != nil {
		t.Fatal(err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.StatusCode != 431 {
		t.Fatalf("status = %d, want 431", resp.StatusCode)
	}
}

func TestReactorBindError(t *testing.T) {
	hs := startReactor(t, hello, 1, nil)
	addr, err := hs.r.RegisterListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = hs.r.RegisterListener(addr.String(), nil)
	var be *api.BindError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *api.BindError", err)
	}
	if be.Addr != addr.String() {
		t.Fatalf("BindError.Addr = %q", be.Addr)
	}
}

func TestReactorNeverServicesConnectionConcurrently(t *testing.T) {
	probe := NewConcurrencyProbe()
	slow := func(*api.Request) *api.Response {
		time.Sleep(time.Millisecond)
		return api.Text("ok")
	}
	hs := startReactor(t, slow, 8, probe)
	addr, err := hs.r.RegisterListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr.String())
			if err != nil {
				t.Error(err)
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(10 * time.Second))
			// Pipeline a burst so events arrive while the connection executes.
			var req strings.Builder
			for i := 0; i < 20; i++ {
				req.WriteString("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
			}
			if _, err := io.WriteString(conn, req.String()); err != nil {
				t.Error(err)
				return
			}
			br := bufio.NewReader(conn)
			for i := 0; i < 20; i++ {
				resp, err := http.ReadResponse(br, nil)
				if err != nil {
					t.Errorf("response %d: %v", i, err)
					return
				}
				io.Copy(io.Discard, resp.Body)
			}
		}()
	}
	wg.Wait()
	if probe.Peak() != 1 {
		t.Fatalf("peak concurrent services per connection = %d, want 1", probe.Peak())
	}
	if probe.Services() == 0 {
		t.Fatal("probe saw no services")
	}
}

func TestOnePollAfterShutdown(t *testing.T) {
	log := quietLogger()
	pool := concurrency.NewTaskPool(1, time.Second, log)
	defer pool.Close()
	r, err := New(Options{Handler: hello, Pool: pool, Logger: log})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.OnePoll(0); err != nil {
		t.Fatalf("idle poll: %v", err)
	}
	r.Shutdown()
	if err := r.OnePoll(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewRequiresHandlerAndPool(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}
