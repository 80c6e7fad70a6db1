// File: api/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"bytes"
	"io"
	"net"
	"strings"
)

// Header is a single (name, value) pair in wire order.
type Header struct {
	Name  string
	Value string
}

// Request is an HTTP request as seen by a Handler. It is immutable once
// handed to the handler.
type Request struct {
	method     string
	url        string
	headers    []Header
	https      bool
	remoteAddr net.Addr
	body       []byte
}

// NewRequest builds a request. The connection core calls it once framing is
// complete; it is exported for handler unit tests.
func NewRequest(method, url string, headers []Header, https bool, remote net.Addr, body []byte) *Request {
	return &Request{
		method:     method,
		url:        url,
		headers:    headers,
		https:      https,
		remoteAddr: remote,
		body:       body,
	}
}

// Method returns the request method, e.g. "GET".
func (r *Request) Method() string { return r.method }

// URL returns the raw request target from the request line.
func (r *Request) URL() string { return r.url }

// Headers returns the request headers in wire order.
func (r *Request) Headers() []Header { return r.headers }

// Header returns the value of the first header matching name
// case-insensitively, or "" when absent.
func (r *Request) Header(name string) string {
	for _, h := range r.headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// IsSecure reports whether the request arrived over TLS.
func (r *Request) IsSecure() bool { return r.https }

// RemoteAddr returns the address of the client.
func (r *Request) RemoteAddr() net.Addr { return r.remoteAddr }

// Data returns a fresh reader over the request body.
func (r *Request) Data() io.Reader { return bytes.NewReader(r.body) }

// ContentLength returns the number of body bytes received.
func (r *Request) ContentLength() int { return len(r.body) }
