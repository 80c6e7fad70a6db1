// File: protocol/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "log/slog"

// Config bounds and labels the HTTP/1 handlers of one server.
type Config struct {
	MaxHeaderSize  int    // request line plus headers
	MaxBodySize    int64  // buffered request body
	WriteHighWater int    // pending output above which body streaming pauses
	ReadChunkSize  int    // size of each read from a response body
	ServerHeader   string // default Server header, empty to omit
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxHeaderSize:  64 * 1024,
		MaxBodySize:    8 << 20,
		WriteHighWater: 64 * 1024,
		ReadChunkSize:  4096,
		ServerHeader:   "hioload-http",
		Logger:         slog.Default(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxHeaderSize <= 0 {
		c.MaxHeaderSize = d.MaxHeaderSize
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = d.MaxBodySize
	}
	if c.WriteHighWater <= 0 {
		c.WriteHighWater = d.WriteHighWater
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = d.ReadChunkSize
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}
