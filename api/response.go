// File: api/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"bytes"
	"io"
	"strings"
)

// UnknownLength marks a response body whose size is not known up front.
const UnknownLength int64 = -1

// Upgrader takes over a connection after a 101 response. The connection core
// does not hand sockets over; see the server package documentation.
type Upgrader interface {
	Build(conn io.ReadWriteCloser)
}

// Response is produced by a Handler and serialized by the connection core.
type Response struct {
	StatusCode int
	Headers    []Header

	// Body is read until EOF. Length is its exact size, or UnknownLength,
	// in which case the body is delimited by closing the connection.
	Body   io.Reader
	Length int64

	Upgrade Upgrader
}

// Bytes builds a 200 response with the given content type and body.
func Bytes(contentType string, body []byte) *Response {
	return &Response{
		StatusCode: 200,
		Headers:    []Header{{Name: "Content-Type", Value: contentType}},
		Body:       bytes.NewReader(body),
		Length:     int64(len(body)),
	}
}

// Text builds a 200 text/plain response.
func Text(s string) *Response {
	return Bytes("text/plain; charset=utf-8", []byte(s))
}

// HTML builds a 200 text/html response.
func HTML(s string) *Response {
	return Bytes("text/html; charset=utf-8", []byte(s))
}

// Empty builds a response with no body.
func Empty(status int) *Response {
	return &Response{StatusCode: status, Body: bytes.NewReader(nil), Length: 0}
}

// FromReader builds a 200 response streaming r. Pass UnknownLength when the
// size is not known.
func FromReader(contentType string, r io.Reader, length int64) *Response {
	return &Response{
		StatusCode: 200,
		Headers:    []Header{{Name: "Content-Type", Value: contentType}},
		Body:       r,
		Length:     length,
	}
}

// WithStatus sets the status code and returns the response.
func (r *Response) WithStatus(code int) *Response {
	r.StatusCode = code
	return r
}

// WithHeader appends a header, replacing any existing header of the same
// name, and returns the response.
func (r *Response) WithHeader(name, value string) *Response {
	out := r.Headers[:0]
	for _, h := range r.Headers {
		if !strings.EqualFold(h.Name, name) {
			out = append(out, h)
		}
	}
	r.Headers = append(out, Header{Name: name, Value: value})
	return r
}

// Header returns the first header value matching name case-insensitively.
func (r *Response) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// InternalServerError is the response used when a handler panics.
func InternalServerError() *Response {
	return HTML("<h1>Internal Server Error</h1>" +
		"<p>An internal error has occurred on the server.</p>").WithStatus(500)
}
