// File: protocol/parse.go
// Package protocol
// Request-line and header-block parsing for HTTP/1.x framing.
package protocol

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/momentics/hioload-http/api"
)

// maxHeaders bounds the number of header lines in one request.
const maxHeaders = 100

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// Version is an HTTP protocol version such as 1.1.
type Version struct {
	Major, Minor int
}

// AtLeast reports whether v >= major.minor.
func (v Version) AtLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

func (v Version) String() string {
	return "HTTP/" + strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// parseRequestLine parses "METHOD SP TARGET SP HTTP/major.minor" without the
// trailing CRLF.
func parseRequestLine(line []byte) (method, target string, ver Version, err error) {
	first := bytes.IndexByte(line, ' ')
	if first <= 0 {
		return "", "", Version{}, ErrMalformedRequestLine
	}
	rest := line[first+1:]
	second := bytes.IndexByte(rest, ' ')
	if second <= 0 {
		return "", "", Version{}, ErrMalformedRequestLine
	}
	m, t, v := line[:first], rest[:second], rest[second+1:]
	if !isToken(m) || bytes.IndexByte(v, ' ') >= 0 {
		return "", "", Version{}, ErrMalformedRequestLine
	}
	for _, c := range t {
		if c <= ' ' || c == 0x7f {
			return "", "", Version{}, ErrMalformedRequestLine
		}
	}
	ver, err = parseVersion(v)
	if err != nil {
		return "", "", Version{}, err
	}
	return string(m), string(t), ver, nil
}

// parseVersion parses "HTTP/1.1".
func parseVersion(v []byte) (Version, error) {
	rest, ok := bytes.CutPrefix(v, []byte("HTTP/"))
	if !ok {
		return Version{}, ErrMalformedRequestLine
	}
	maj, min, ok := bytes.Cut(rest, []byte("."))
	if !ok {
		return Version{}, ErrMalformedRequestLine
	}
	major, err1 := atoiDigits(maj)
	minor, err2 := atoiDigits(min)
	if err1 != nil || err2 != nil {
		return Version{}, ErrMalformedRequestLine
	}
	if major != 1 {
		return Version{}, ErrUnsupportedVersion
	}
	return Version{Major: major, Minor: minor}, nil
}

func atoiDigits(b []byte) (int, error) {
	if len(b) == 0 || len(b) > 3 {
		return 0, ErrMalformedRequestLine
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, ErrMalformedRequestLine
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// parseHeaders parses a header block of "Name: value\r\n" lines. The block
// excludes the terminating blank line.
func parseHeaders(block []byte) ([]api.Header, error) {
	var out []api.Header
	for len(block) > 0 {
		var line []byte
		if i := bytes.Index(block, crlf); i >= 0 {
			line, block = block[:i], block[i+2:]
		} else {
			line, block = block, nil
		}
		if len(line) == 0 {
			continue
		}
		// obs-fold continuation lines are rejected.
		if line[0] == ' ' || line[0] == '\t' {
			return nil, ErrMalformedHeader
		}
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok || !isToken(name) {
			return nil, ErrMalformedHeader
		}
		if len(out) == maxHeaders {
			return nil, ErrHeadersTooLarge
		}
		out = append(out, api.Header{
			Name:  string(name),
			Value: string(bytes.Trim(value, " \t")),
		})
	}
	return out, nil
}

// headerValue returns the first value of name, case-insensitively.
func headerValue(headers []api.Header, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// headerContainsToken reports whether any comma-separated element of the
// named headers equals token, case-insensitively.
func headerContainsToken(headers []api.Header, name, token string) bool {
	for _, h := range headers {
		if !strings.EqualFold(h.Name, name) {
			continue
		}
		for _, p := range strings.Split(h.Value, ",") {
			if strings.EqualFold(strings.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}

// wantsKeepAlive applies HTTP/1.0 and HTTP/1.1 connection persistence rules.
func wantsKeepAlive(v Version, headers []api.Header) bool {
	if headerContainsToken(headers, "Connection", "close") {
		return false
	}
	if v.AtLeast(1, 1) {
		return true
	}
	return headerContainsToken(headers, "Connection", "keep-alive")
}

// isToken reports whether b is a non-empty RFC 7230 token.
func isToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c >= 0x80 || !tokenTable[c] {
			return false
		}
	}
	return true
}

var tokenTable = func() [128]bool {
	var t [128]bool
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		t[c] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		t[c] = true
	}
	return t
}()
