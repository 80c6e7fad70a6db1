// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for the server: the elastic handler TaskPool and
// CPU pinning for polling goroutines.
package concurrency
