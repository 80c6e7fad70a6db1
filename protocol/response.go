// File: protocol/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Response head serialization.

package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/momentics/hioload-http/api"
)

// dateFormat is the IMF-fixdate layout used by the Date header.
const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// responseHead describes the framing decided for one response.
type responseHead struct {
	status     int
	headers    []api.Header
	length     int64 // api.UnknownLength when close-delimited
	keepAlive  bool
	oldVersion bool // request was HTTP/1.0
	server     string
	now        time.Time
}

// appendHead writes the status line and headers, including the blank line.
// Framing headers set by the handler are dropped and re-derived.
func appendHead(out []byte, h responseHead) []byte {
	out = append(out, "HTTP/1.1 "...)
	out = strconv.AppendInt(out, int64(h.status), 10)
	out = append(out, ' ')
	out = append(out, ReasonPhrase(h.status)...)
	out = append(out, crlf...)

	foundServer, foundDate := false, false
	for _, hdr := range h.headers {
		switch {
		case strings.EqualFold(hdr.Name, "Content-Length"),
			strings.EqualFold(hdr.Name, "Transfer-Encoding"),
			strings.EqualFold(hdr.Name, "Connection"),
			strings.EqualFold(hdr.Name, "Trailer"):
			continue
		case strings.EqualFold(hdr.Name, "Server"):
			foundServer = true
		case strings.EqualFold(hdr.Name, "Date"):
			foundDate = true
		}
		out = appendHeader(out, hdr.Name, hdr.Value)
	}
	if !foundServer && h.server != "" {
		out = appendHeader(out, "Server", h.server)
	}
	if !foundDate {
		out = append(out, "Date: "...)
		out = h.now.UTC().AppendFormat(out, dateFormat)
		out = append(out, crlf...)
	}
	if h.length >= 0 {
		out = append(out, "Content-Length: "...)
		out = strconv.AppendInt(out, h.length, 10)
		out = append(out, crlf...)
	}
	switch {
	case !h.keepAlive:
		out = appendHeader(out, "Connection", "close")
	case h.oldVersion:
		out = appendHeader(out, "Connection", "keep-alive")
	}
	return append(out, crlf...)
}

func appendHeader(out []byte, name, value string) []byte {
	out = append(out, name...)
	out = append(out, ": "...)
	out = append(out, value...)
	return append(out, crlf...)
}

// bodyAllowed reports whether a response with this status may carry a body.
func bodyAllowed(status int) bool {
	return !(status >= 100 && status < 200) && status != 204 && status != 304
}

// ReasonPhrase returns the reason phrase for a status code.
func ReasonPhrase(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 101:
		return "Switching Protocols"
	case 102:
		return "Processing"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 203:
		return "Non-Authoritative Information"
	case 204:
		return "No Content"
	case 205:
		return "Reset Content"
	case 206:
		return "Partial Content"
	case 207:
		return "Multi-Status"
	case 300:
		return "Multiple Choices"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 303:
		return "See Other"
	case 304:
		return "Not Modified"
	case 305:
		return "Use Proxy"
	case 307:
		return "Temporary Redirect"
	case 308:
		return "Permanent Redirect"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 402:
		return "Payment Required"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 406:
		return "Not Acceptable"
	case 407:
		return "Proxy Authentication Required"
	case 408:
		return "Request Timeout"
	case 409:
		return "Conflict"
	case 410:
		return "Gone"
	case 411:
		return "Length Required"
	case 412:
		return "Precondition Failed"
	case 413:
		return "Payload Too Large"
	case 414:
		return "URI Too Long"
	case 415:
		return "Unsupported Media Type"
	case 416:
		return "Range Not Satisfiable"
	case 417:
		return "Expectation Failed"
	case 426:
		return "Upgrade Required"
	case 429:
		return "Too Many Requests"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 504:
		return "Gateway Timeout"
	case 505:
		return "HTTP Version Not Supported"
	default:
		return "Unknown"
	}
}
