// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-http/api"
)

func TestParseRequestLine(t *testing.T) {
	cases := []struct {
		line    string
		method  string
		target  string
		version Version
		err     error
	}{
		{"GET / HTTP/1.1", "GET", "/", Version{1, 1}, nil},
		{"POST /a/b?c=d HTTP/1.0", "POST", "/a/b?c=d", Version{1, 0}, nil},
		{"OPTIONS * HTTP/1.1", "OPTIONS", "*", Version{1, 1}, nil},
		{"GET / HTTP/2.0", "", "", Version{}, ErrUnsupportedVersion},
		{"GET /", "", "", Version{}, ErrMalformedRequestLine},
		{"GET  / HTTP/1.1", "", "", Version{}, ErrMalformedRequestLine},
		{"GET / HTTP/1.1 extra", "", "", Version{}, ErrMalformedRequestLine},
		{" / HTTP/1.1", "", "", Version{}, ErrMalformedRequestLine},
		{"GET / HTTP/11", "", "", Version{}, ErrMalformedRequestLine},
		{"GET / http/1.1", "", "", Version{}, ErrMalformedRequestLine},
		{"GET /\x01 HTTP/1.1", "", "", Version{}, ErrMalformedRequestLine},
	}
	for _, c := range cases {
		m, tg, v, err := parseRequestLine([]byte(c.line))
		if !errors.Is(err, c.err) {
			t.Errorf("%q: err = %v, want %v", c.line, err, c.err)
			continue
		}
		if m != c.method || tg != c.target || v != c.version {
			t.Errorf("%q: got (%q, %q, %v)", c.line, m, tg, v)
		}
	}
}

func TestParseHeaders(t *testing.T) {
	hs, err := parseHeaders([]byte("Host: a\r\nX-Dup: 1\r\nX-Dup: 2\r\n"))
	if err != nil {
		t.Fatalf("parseHeaders: %v", err)
	}
	want := []api.Header{{Name: "Host", Value: "a"}, {Name: "X-Dup", Value: "1"}, {Name: "X-Dup", Value: "2"}}
	if len(hs) != len(want) {
		t.Fatalf("got %v", hs)
	}
	for i := range want {
		if hs[i] != want[i] {
			t.Errorf("header %d = %v, want %v", i, hs[i], want[i])
		}
	}

	for _, bad := range []string{"NoColon\r\n", " folded: x\r\n", "Bad Name: x\r\n", ": empty\r\n"} {
		if _, err := parseHeaders([]byte(bad)); !errors.Is(err, ErrMalformedHeader) {
			t.Errorf("%q: err = %v, want ErrMalformedHeader", bad, err)
		}
	}
}

func TestWantsKeepAlive(t *testing.T) {
	v11, v10 := Version{1, 1}, Version{1, 0}
	cases := []struct {
		v       Version
		headers []api.Header
		want    bool
	}{
		{v11, nil, true},
		{v11, []api.Header{{Name: "Connection", Value: "close"}}, false},
		{v11, []api.Header{{Name: "connection", Value: "Upgrade, Close"}}, false},
		{v10, nil, false},
		{v10, []api.Header{{Name: "Connection", Value: "Keep-Alive"}}, true},
	}
	for i, c := range cases {
		if got := wantsKeepAlive(c.v, c.headers); got != c.want {
			t.Errorf("case %d: got %v, want %v", i, got, c.want)
		}
	}
}
