package server

import (
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-http/api"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("APP_REACTOR_THREADS", "3")
	t.Setenv("APP_MIN_POOL_THREADS", "8")
	t.Setenv("APP_POOL_IDLE_TIMEOUT", "250ms")
	t.Setenv("APP_MAX_BODY_SIZE", "1024")
	t.Setenv("APP_SERVER_HEADER", "")
	t.Setenv("APP_PIN_THREADS", "true")

	cfg, err := ConfigFromEnv("APP_")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ReactorThreads != 3 || cfg.MinPoolThreads != 8 {
		t.Fatalf("threads = %d/%d", cfg.ReactorThreads, cfg.MinPoolThreads)
	}
	if cfg.PoolIdleTimeout != 250*time.Millisecond {
		t.Fatalf("idle timeout = %v", cfg.PoolIdleTimeout)
	}
	if cfg.MaxBodySize != 1024 {
		t.Fatalf("max body = %d", cfg.MaxBodySize)
	}
	if !cfg.PinThreads {
		t.Fatal("PIN_THREADS not applied")
	}
	if cfg.ServerHeader != "" {
		t.Fatalf("server header = %q", cfg.ServerHeader)
	}
	if cfg.MaxHeaderSize != DefaultConfig().MaxHeaderSize {
		t.Fatalf("unset variable changed MaxHeaderSize to %d", cfg.MaxHeaderSize)
	}
}

func TestConfigFromEnvRejectsGarbage(t *testing.T) {
	for _, name := range []string{"APP_REACTOR_THREADS", "APP_MAX_BODY_SIZE", "APP_POOL_IDLE_TIMEOUT"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, "lots")
			if _, err := ConfigFromEnv("APP_"); !errors.Is(err, api.ErrInvalidArgument) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestOptionsApplyInOrder(t *testing.T) {
	base := DefaultConfig()
	base.ServerHeader = "base"
	s := &Server{cfg: DefaultConfig()}
	for _, o := range []ServerOption{WithConfig(base), WithServerHeader("override"), WithLimits(10, 20)} {
		o(s)
	}
	if s.cfg.ServerHeader != "override" || s.cfg.MaxHeaderSize != 10 || s.cfg.MaxBodySize != 20 {
		t.Fatalf("cfg = %+v", s.cfg)
	}
	if base.ServerHeader != "base" {
		t.Fatal("WithConfig aliased the caller's Config")
	}
}
