//go:build darwin

package selector

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// kqueueSelector is the Darwin/BSD backend for Selector, built on kqueue(2).
// Wake uses a dedicated user event (EVFILT_USER) instead of a pipe, avoiding
// an extra fd pair.
type kqueueSelector struct {
	mu   sync.Mutex
	kq   int
	fds  map[int]registration
	evts []unix.Kevent_t
	closed bool
}

type registration struct {
	events Events
	cb     Callback
}

const wakeIdent = 1

// New creates the platform-native Selector (kqueue on Darwin).
func New() (Selector, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	s := &kqueueSelector{
		kq:   kq,
		fds:  make(map[int]registration),
		evts: make([]unix.Kevent_t, 256),
	}
	reg := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{reg}, nil, nil); err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	return s, nil
}

func (s *kqueueSelector) kevents(fd int, events Events, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&Read != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&Write != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func (s *kqueueSelector) Register(fd int, events Events, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSelectorClosed
	}
	if _, ok := s.fds[fd]; ok {
		return ErrAlreadyRegistered
	}
	changes := s.kevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) > 0 {
		if _, err := unix.Kevent(s.kq, changes, nil, nil); err != nil {
			return err
		}
	}
	s.fds[fd] = registration{events: events, cb: cb}
	return nil
}

func (s *kqueueSelector) Modify(fd int, events Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.fds[fd]
	if !ok {
		return ErrNotRegistered
	}
	_, _ = unix.Kevent(s.kq, s.kevents(fd, reg.events, unix.EV_DELETE), nil, nil)
	changes := s.kevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) > 0 {
		if _, err := unix.Kevent(s.kq, changes, nil, nil); err != nil {
			return err
		}
	}
	reg.events = events
	s.fds[fd] = reg
	return nil
}

func (s *kqueueSelector) Cancel(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.fds[fd]
	if !ok {
		return nil
	}
	delete(s.fds, fd)
	_, _ = unix.Kevent(s.kq, s.kevents(fd, reg.events, unix.EV_DELETE), nil, nil)
	return nil
}

func (s *kqueueSelector) Wait(timeout time.Duration) (int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(s.kq, nil, s.evts, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	ready := 0
	for i := 0; i < n; i++ {
		ev := s.evts[i]
		if ev.Filter == unix.EVFILT_USER && ev.Ident == wakeIdent {
			continue
		}
		fd := int(ev.Ident)
		s.mu.Lock()
		reg, ok := s.fds[fd]
		s.mu.Unlock()
		if !ok || reg.cb == nil {
			continue
		}
		ready++
		var events Events
		switch ev.Filter {
		case unix.EVFILT_READ:
			events = Read
		case unix.EVFILT_WRITE:
			events = Write
		}
		if ev.Flags&unix.EV_EOF != 0 {
			events |= Hangup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			events |= Error
		}
		reg.cb(events)
	}
	return ready, nil
}

func (s *kqueueSelector) Wake() error {
	trigger := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(s.kq, []unix.Kevent_t{trigger}, nil, nil)
	return err
}

// Rebuild replaces the underlying kqueue instance and re-registers every
// known fd, discarding any that fail to re-arm.
func (s *kqueueSelector) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newKq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	reg := unix.Kevent_t{Ident: wakeIdent, Filter: unix.EVFILT_USER, Flags: unix.EV_ADD | unix.EV_CLEAR}
	if _, err := unix.Kevent(newKq, []unix.Kevent_t{reg}, nil, nil); err != nil {
		_ = unix.Close(newKq)
		return err
	}
	for fd, r := range s.fds {
		changes := s.kevents(fd, r.events, unix.EV_ADD|unix.EV_ENABLE)
		if _, err := unix.Kevent(newKq, changes, nil, nil); err != nil {
			delete(s.fds, fd)
		}
	}
	_ = unix.Close(s.kq)
	s.kq = newKq
	return nil
}

func (s *kqueueSelector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.kq)
}
