// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for the reactor.

package reactor

import "errors"

var (
	// ErrClosed is returned by OnePoll once the reactor has been closed.
	ErrClosed = errors.New("reactor is closed")

	// ErrNotSupported indicates the platform has no readiness facility binding.
	ErrNotSupported = errors.New("reactor: this platform is not supported")
)
