// File: internal/concurrency/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU affinity for polling goroutines.

package concurrency

import "runtime"

// PinCurrentThread locks the calling goroutine to its OS thread and, where
// the platform allows, binds that thread to the n-th CPU it may run on
// (modulo their count). The goroutine must not unlock the thread; the runtime
// discards it when the goroutine exits.
func PinCurrentThread(n int) error {
	runtime.LockOSThread()
	return platformPinCurrentThread(n)
}
