//go:build !linux

// File: internal/concurrency/affinity_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "github.com/momentics/hioload-http/api"

// Threads stay locked but unbound on this platform.
func platformPinCurrentThread(int) error { return api.ErrNotSupported }
