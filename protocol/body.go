// File: protocol/body.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request body framing: Content-Length and chunked transfer-encoding.

package protocol

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/momentics/hioload-http/api"
)

type bodyMode uint8

const (
	bodyNone bodyMode = iota
	bodyLength
	bodyChunked
)

type chunkPhase uint8

const (
	chunkSize chunkPhase = iota
	chunkData
	chunkDataEnd
	chunkTrailer
)

// bodyAnalyzer decodes a request body from the connection's read buffer. It
// only ever consumes bytes that belong to the current request, so anything
// after the body stays buffered for the next request line.
type bodyAnalyzer struct {
	mode      bodyMode
	remaining int64 // bodyLength: bytes still expected; bodyChunked: bytes left in chunk
	phase     chunkPhase
	max       int64
	received  int64
}

// newBodyAnalyzer inspects the request headers. Chunked transfer-encoding
// takes precedence over Content-Length; with neither the body is empty.
func newBodyAnalyzer(headers []api.Header, max int64) (*bodyAnalyzer, error) {
	a := &bodyAnalyzer{max: max}
	if te, ok := headerValue(headers, "Transfer-Encoding"); ok {
		if !strings.EqualFold(strings.TrimSpace(lastToken(te)), "chunked") {
			return nil, ErrBadChunk
		}
		a.mode = bodyChunked
		return a, nil
	}

	var length int64 = -1
	for _, h := range headers {
		if !strings.EqualFold(h.Name, "Content-Length") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64)
		if err != nil || n < 0 {
			return nil, ErrBadContentLength
		}
		if length >= 0 && length != n {
			return nil, ErrBadContentLength
		}
		length = n
	}
	if length < 0 {
		return a, nil
	}
	if max > 0 && length > max {
		return nil, ErrBodyTooLarge
	}
	a.mode = bodyLength
	a.remaining = length
	return a, nil
}

func lastToken(v string) string {
	if i := strings.LastIndexByte(v, ','); i >= 0 {
		return v[i+1:]
	}
	return v
}

// feed decodes as much of data as possible, appending body bytes to *body.
// It returns the number of bytes of data consumed and whether the body is
// complete.
func (a *bodyAnalyzer) feed(data []byte, body *[]byte) (int, bool, error) {
	switch a.mode {
	case bodyNone:
		return 0, true, nil
	case bodyLength:
		n := int64(len(data))
		if n > a.remaining {
			n = a.remaining
		}
		*body = append(*body, data[:n]...)
		a.remaining -= n
		return int(n), a.remaining == 0, nil
	default:
		return a.feedChunked(data, body)
	}
}

func (a *bodyAnalyzer) feedChunked(data []byte, body *[]byte) (int, bool, error) {
	consumed := 0
	for {
		rest := data[consumed:]
		switch a.phase {
		case chunkSize:
			i := bytes.Index(rest, crlf)
			if i < 0 {
				if len(rest) > 1024 {
					return consumed, false, ErrBadChunk
				}
				return consumed, false, nil
			}
			size, err := parseChunkSize(rest[:i])
			if err != nil {
				return consumed, false, err
			}
			consumed += i + 2
			if size == 0 {
				a.phase = chunkTrailer
				continue
			}
			if a.max > 0 && a.received+size > a.max {
				return consumed, false, ErrBodyTooLarge
			}
			a.remaining = size
			a.phase = chunkData

		case chunkData:
			if len(rest) == 0 {
				return consumed, false, nil
			}
			n := int64(len(rest))
			if n > a.remaining {
				n = a.remaining
			}
			*body = append(*body, rest[:n]...)
			a.remaining -= n
			a.received += n
			consumed += int(n)
			if a.remaining == 0 {
				a.phase = chunkDataEnd
			}

		case chunkDataEnd:
			if len(rest) < 2 {
				return consumed, false, nil
			}
			if rest[0] != '\r' || rest[1] != '\n' {
				return consumed, false, ErrBadChunk
			}
			consumed += 2
			a.phase = chunkSize

		case chunkTrailer:
			i := bytes.Index(rest, crlf)
			if i < 0 {
				return consumed, false, nil
			}
			consumed += i + 2
			if i == 0 {
				return consumed, true, nil
			}
		}
	}
}

// parseChunkSize parses a hex chunk size, ignoring chunk extensions.
func parseChunkSize(line []byte) (int64, error) {
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 || len(line) > 15 {
		return 0, ErrBadChunk
	}
	n, err := strconv.ParseInt(string(line), 16, 64)
	if err != nil || n < 0 {
		return 0, ErrBadChunk
	}
	return n, nil
}
