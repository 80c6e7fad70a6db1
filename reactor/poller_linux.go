//go:build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) readiness facility with token-carrying events.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	evRead    = unix.EPOLLIN | unix.EPOLLRDHUP
	evWrite   = unix.EPOLLOUT
	evOneShot = unix.EPOLLONESHOT | unix.EPOLLET
)

// poller wraps an epoll instance. Event data carries a Token.
type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &poller{epfd: epfd}, nil
}

func epollEvent(t Token, events uint32) *unix.EpollEvent {
	return &unix.EpollEvent{
		Events: events,
		Fd:     int32(t.index()),
		Pad:    int32(t.gen()),
	}
}

func eventToken(ev *unix.EpollEvent) Token {
	return makeToken(uint32(ev.Fd), uint32(ev.Pad))
}

// add registers fd under token t.
func (p *poller) add(fd int, t Token, events uint32) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, epollEvent(t, events)); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// rearm replaces the interest set of fd, re-enabling a one-shot registration.
func (p *poller) rearm(fd int, t Token, events uint32) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, epollEvent(t, events)); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// wait blocks for events; msec < 0 blocks indefinitely. EINTR is reported
// as zero events.
func (p *poller) wait(events []unix.EpollEvent, msec int) (int, error) {
	n, err := unix.EpollWait(p.epfd, events, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	return n, nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}

// eventFD is a non-blocking eventfd(2) used to interrupt epoll waits.
type eventFD int

func newEventFD() (eventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("eventfd: %w", err)
	}
	return eventFD(fd), nil
}

var one = []byte{1, 0, 0, 0, 0, 0, 0, 0}

func (e eventFD) signal() {
	_, _ = unix.Write(int(e), one)
}

func (e eventFD) drain() {
	var buf [8]byte
	_, _ = unix.Read(int(e), buf[:])
}

func (e eventFD) close() error { return unix.Close(int(e)) }
