// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for the HTTP/1 connection handlers.

package protocol

import "errors"

var (
	// ErrMalformedRequestLine indicates a request line that is not METHOD SP TARGET SP HTTP/x.y.
	ErrMalformedRequestLine = errors.New("malformed request line")

	// ErrUnsupportedVersion indicates an HTTP major version other than 1.
	ErrUnsupportedVersion = errors.New("unsupported HTTP version")

	// ErrMalformedHeader indicates a header line without a valid name or separator.
	ErrMalformedHeader = errors.New("malformed header line")

	// ErrHeadersTooLarge indicates the request head exceeded the configured limit.
	ErrHeadersTooLarge = errors.New("request headers too large")

	// ErrBadContentLength indicates an unparsable or conflicting Content-Length.
	ErrBadContentLength = errors.New("invalid Content-Length")

	// ErrBodyTooLarge indicates the request body exceeded the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrBadChunk indicates a malformed chunked transfer-encoding frame.
	ErrBadChunk = errors.New("malformed chunked body")
)
