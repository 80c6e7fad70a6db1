// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Environment overlay for Config.

package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/momentics/hioload-http/api"
)

// DefaultEnvPrefix is the prefix ConfigFromEnv uses when given none.
const DefaultEnvPrefix = "HIOLOAD_HTTP_"

// ConfigFromEnv returns DefaultConfig overlaid with the variables
//
//	<prefix>REACTOR_THREADS, <prefix>MIN_POOL_THREADS,
//	<prefix>POOL_IDLE_TIMEOUT (a time.Duration), <prefix>MAX_HEADER_SIZE,
//	<prefix>MAX_BODY_SIZE, <prefix>MAX_READ_BUFFER, <prefix>SERVER_HEADER,
//	<prefix>PIN_THREADS (a boolean).
//
// Unset variables keep their defaults.
func ConfigFromEnv(prefix string) (*Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	cfg := DefaultConfig()
	ints := []struct {
		name string
		dst  *int
	}{
		{"REACTOR_THREADS", &cfg.ReactorThreads},
		{"MIN_POOL_THREADS", &cfg.MinPoolThreads},
		{"MAX_HEADER_SIZE", &cfg.MaxHeaderSize},
		{"MAX_READ_BUFFER", &cfg.MaxReadBuffer},
	}
	for _, v := range ints {
		raw, ok := os.LookupEnv(prefix + v.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s%s=%q: %w", prefix, v.name, raw, api.ErrInvalidArgument)
		}
		*v.dst = n
	}
	if raw, ok := os.LookupEnv(prefix + "MAX_BODY_SIZE"); ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%sMAX_BODY_SIZE=%q: %w", prefix, raw, api.ErrInvalidArgument)
		}
		cfg.MaxBodySize = n
	}
	if raw, ok := os.LookupEnv(prefix + "POOL_IDLE_TIMEOUT"); ok {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%sPOOL_IDLE_TIMEOUT=%q: %w", prefix, raw, api.ErrInvalidArgument)
		}
		cfg.PoolIdleTimeout = d
	}
	if raw, ok := os.LookupEnv(prefix + "PIN_THREADS"); ok {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%sPIN_THREADS=%q: %w", prefix, raw, api.ErrInvalidArgument)
		}
		cfg.PinThreads = on
	}
	if raw, ok := os.LookupEnv(prefix + "SERVER_HEADER"); ok {
		cfg.ServerHeader = raw
	}
	return cfg, nil
}
