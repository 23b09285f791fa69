//go:build linux

package selector

import (
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// epollSelector is the Linux backend for Selector, built on epoll(7) with an
// eventfd used to implement Wake. Grounded on the teacher's FastPoller
// (poller_linux.go), simplified to a map-keyed registry: this module
// prioritizes pipeline/bootstrap correctness over the teacher's direct-index
// microbenchmark tuning.
type epollSelector struct {
	mu      sync.Mutex
	epfd    int
	wakeFd  int
	fds     map[int]registration
	events  []unix.EpollEvent
	closed  bool
}

type registration struct {
	events Events
	cb     Callback
}

// New creates the platform-native Selector (epoll on Linux).
func New() (Selector, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	s := &epollSelector{
		epfd:   epfd,
		wakeFd: wakeFd,
		fds:    make(map[int]registration),
		events: make([]unix.EpollEvent, 256),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}
	return s, nil
}

func (s *epollSelector) Register(fd int, events Events, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSelectorClosed
	}
	if _, ok := s.fds[fd]; ok {
		return ErrAlreadyRegistered
	}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: toEpoll(events),
		Fd:     int32(fd),
	}); err != nil {
		return err
	}
	s.fds[fd] = registration{events: events, cb: cb}
	return nil
}

func (s *epollSelector) Modify(fd int, events Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.fds[fd]
	if !ok {
		return ErrNotRegistered
	}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: toEpoll(events),
		Fd:     int32(fd),
	}); err != nil {
		return err
	}
	reg.events = events
	s.fds[fd] = reg
	return nil
}

func (s *epollSelector) Cancel(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fds[fd]; !ok {
		// spec §4.1: cancelled keys that were never (or no longer) registered
		// are discarded silently.
		return nil
	}
	delete(s.fds, fd)
	_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return nil
}

func (s *epollSelector) Wait(timeout time.Duration) (int, error) {
	ms := durationToEpollMillis(timeout)
	n, err := unix.EpollWait(s.epfd, s.events, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	ready := 0
	for i := 0; i < n; i++ {
		fd := int(s.events[i].Fd)
		if fd == s.wakeFd {
			s.drainWake()
			continue
		}
		s.mu.Lock()
		reg, ok := s.fds[fd]
		s.mu.Unlock()
		if !ok || reg.cb == nil {
			continue
		}
		ready++
		reg.cb(fromEpoll(s.events[i].Events))
	}
	return ready, nil
}

func (s *epollSelector) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(s.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

func (s *epollSelector) Wake() error {
	one := uint64(1)
	buf := (*[8]byte)(unsafe.Pointer(&one))
	_, err := unix.Write(s.wakeFd, buf[:])
	return err
}

// Rebuild replaces the underlying epoll instance and re-registers every
// known fd, discarding any that fail to re-arm. This is the mitigation for
// the classic epoll "ready with no events" spin defect described in spec
// §4.1.
func (s *epollSelector) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newEpfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	if err := unix.EpollCtl(newEpfd, unix.EPOLL_CTL_ADD, s.wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(s.wakeFd),
	}); err != nil {
		_ = unix.Close(newEpfd)
		return err
	}
	for fd, reg := range s.fds {
		if err := unix.EpollCtl(newEpfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: toEpoll(reg.events),
			Fd:     int32(fd),
		}); err != nil {
			delete(s.fds, fd)
		}
	}
	_ = unix.Close(s.epfd)
	s.epfd = newEpfd
	return nil
}

func (s *epollSelector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = unix.Close(s.wakeFd)
	return unix.Close(s.epfd)
}

func toEpoll(e Events) uint32 {
	var v uint32
	if e&Read != 0 {
		v |= unix.EPOLLIN
	}
	if e&Write != 0 {
		v |= unix.EPOLLOUT
	}
	return v
}

func fromEpoll(v uint32) Events {
	var e Events
	if v&unix.EPOLLIN != 0 {
		e |= Read
	}
	if v&unix.EPOLLOUT != 0 {
		e |= Write
	}
	if v&unix.EPOLLERR != 0 {
		e |= Error
	}
	if v&unix.EPOLLHUP != 0 {
		e |= Hangup
	}
	return e
}

func durationToEpollMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d == 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms == 0 {
		return 1
	}
	return int(ms)
}
