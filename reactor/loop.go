// Package reactor implements the single-threaded event-loop primitive
// (spec §4, components A/B/G): a Reactor owns one worker goroutine, a readiness
// selector, a task queue and a scheduled-task heap; a Group is a fixed-size
// pool of reactors handed out by a round-robin chooser. Grounded on the
// teacher's eventloop.Loop (joeycumines-go-utilpkg/eventloop/loop.go),
// generalized from its JS-event-loop semantics to a network-reactor's.
package reactor

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/selector"
)

// Reactor is a single-threaded I/O and task processor. All mutation of a
// Channel, its pipeline or the selector registration for its file descriptor
// must happen on the Reactor's own goroutine (spec §4.1's thread-affinity
// invariant); code running elsewhere uses Submit/Invoke to funnel work
// through the reactor.
type Reactor struct {
	id  uuid.UUID
	cfg config
	sel selector.Selector
	log *nettylog.Logger

	state atomicState

	startOnce sync.Once
	goroutine uint64 // set once, by the worker goroutine, before anything else runs

	extMu    sync.Mutex
	external []Task

	intMu    sync.Mutex
	internal []Task

	timers timerHeap // loop-goroutine only
	seq    uint64    // loop-goroutine only, timer sequence counter

	activeChannels int

	shutdownOnce       sync.Once
	shuttingDown        bool
	shutdownRequestedAt time.Time
	quiet               time.Duration
	shutdownTimeout     time.Duration
	lastActivity        time.Time // loop-goroutine only

	spinWindowStart time.Time // loop-goroutine only
	spinCount       int       // loop-goroutine only

	selectErrCount int   // loop-goroutine only, consecutive Selector.Wait failures
	fatalErr       error // loop-goroutine only, set once the selector is unrecoverable

	terminated *Promise
	done       chan struct{}
}

// maxConsecutiveSelectErrors bounds how many Selector.Wait failures in a row
// the loop tolerates before giving up on the selector and failing the
// terminated promise (spec §4.1/§7 "unrecoverable reactor failures terminate
// that reactor"). A single transient error is logged and retried; a selector
// that never recovers must not spin forever.
const maxConsecutiveSelectErrors = 10

// New constructs a Reactor. The worker goroutine is not started until the
// first Submit, Invoke, Schedule or ShutdownGracefully call (spec §4.1 "lazy
// start"); SubmitInternal alone does not start it.
func New(opts ...Option) (*Reactor, error) {
	cfg, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	sel, err := cfg.newSelector()
	if err != nil {
		return nil, fmt.Errorf("reactor: creating selector: %w", err)
	}
	r := &Reactor{
		id:   uuid.New(),
		cfg:  cfg,
		sel:  sel,
		log:  cfg.log,
		done: make(chan struct{}),
	}
	r.terminated = NewPromise(r)
	return r, nil
}

// ID uniquely identifies this reactor for the lifetime of the process.
func (r *Reactor) ID() uuid.UUID { return r.id }

// Selector exposes the reactor's readiness multiplexer so a transport can
// register its file descriptors. Must only be called for registration
// purposes from within a task already running on this reactor (e.g. inside
// the closure passed to Invoke during channel registration).
func (r *Reactor) Selector() selector.Selector { return r.sel }

// Logger returns the reactor's structured logger (never nil).
func (r *Reactor) Logger() *nettylog.Logger { return r.log }

// InEventLoop reports whether the calling goroutine is this reactor's
// worker goroutine.
func (r *Reactor) InEventLoop() bool {
	return r.state.load() != StateCreated && goroutineID() == r.goroutine
}

// ensureStarted lazily starts the worker goroutine. Safe to call from any
// goroutine, any number of times.
func (r *Reactor) ensureStarted() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// Submit enqueues task to run on this reactor's goroutine, in submission
// order relative to other Submit calls. Returns ErrTerminated if the reactor
// has already fully shut down.
func (r *Reactor) Submit(task Task) error {
	if task == nil {
		return nil
	}
	if r.state.load() == StateTerminated {
		return ErrTerminated
	}
	r.ensureStarted()
	r.extMu.Lock()
	r.external = append(r.external, task)
	r.extMu.Unlock()
	_ = r.sel.Wake()
	return nil
}

// SubmitInternal is like Submit but reserved for use by code already running
// on this reactor's goroutine (e.g. a handler re-scheduling follow-up work
// without a selector wake round-trip). Calling it from a foreign goroutine
// is safe, but it neither starts nor wakes the loop: the task runs only once
// something else does.
func (r *Reactor) SubmitInternal(task Task) {
	if task == nil {
		return
	}
	r.intMu.Lock()
	r.internal = append(r.internal, task)
	r.intMu.Unlock()
}

// Invoke runs fn on the reactor's goroutine and returns a Future for its
// result. If the calling goroutine already is the reactor's goroutine, fn is
// still deferred to the task queue: Invoke never runs fn inline, so its
// ordering relative to other submitted work is always well defined.
func (r *Reactor) Invoke(fn func() (any, error)) *Future {
	p := NewPromise(r)
	err := r.Submit(func() {
		v, err := fn()
		if err != nil {
			p.Fail(err)
			return
		}
		p.Succeed(v)
	})
	if err != nil {
		p.Fail(err)
	}
	return p.Future()
}

// Schedule runs task once, after at least delay has elapsed. The returned
// Future's Promise is cancellable: Cancel before the deadline prevents task
// from running, though the entry is only actually removed from the heap
// lazily, on pop (spec §5).
func (r *Reactor) Schedule(delay time.Duration, task Task) *Future {
	entry := &timerEntry{task: task}
	p := NewCancellablePromise(r, func() { entry.cancelled = true })
	deadline := time.Now().Add(delay)
	submitErr := r.Submit(func() {
		entry.deadline = deadline.UnixNano()
		r.seq++
		entry.seq = r.seq
		heap.Push(&r.timers, entry)
	})
	if submitErr != nil {
		p.Fail(submitErr)
	}
	_ = p // entry's own task, below, settles p on run; submitErr only covers enqueue failure
	wrapped := entry.task
	entry.task = func() {
		if wrapped != nil {
			wrapped()
		}
		p.Succeed(nil)
	}
	return p.Future()
}

// AddChannel records that a channel is now owned by this reactor, delaying
// graceful shutdown until it is removed via RemoveChannel. Must be called
// from the reactor's own goroutine.
func (r *Reactor) AddChannel() { r.activeChannels++ }

// RemoveChannel reverses AddChannel. Must be called from the reactor's own
// goroutine.
func (r *Reactor) RemoveChannel() { r.activeChannels-- }

// ShutdownGracefully requests an orderly shutdown: the reactor keeps
// accepting and running tasks, but once quiet has elapsed since the last
// task ran and every registered channel has closed, the loop exits. If
// timeout elapses first, the loop exits regardless. The same Future is
// returned on every call; it settles once the worker goroutine has fully
// stopped.
func (r *Reactor) ShutdownGracefully(quiet, timeout time.Duration) *Future {
	r.shutdownOnce.Do(func() {
		r.ensureStarted()
		r.extMu.Lock()
		r.quiet = quiet
		r.shutdownTimeout = timeout
		r.shutdownRequestedAt = time.Now()
		r.shuttingDown = true
		r.extMu.Unlock()
		_ = r.sel.Wake()
	})
	return r.terminated.Future()
}

// IsShuttingDown reports whether ShutdownGracefully has been called.
func (r *Reactor) IsShuttingDown() bool {
	r.extMu.Lock()
	defer r.extMu.Unlock()
	return r.shuttingDown
}

// IsTerminated reports whether the worker goroutine has fully stopped.
func (r *Reactor) IsTerminated() bool { return r.state.load() == StateTerminated }

// Done returns a channel closed once the reactor has fully terminated.
func (r *Reactor) Done() <-chan struct{} { return r.done }

func (r *Reactor) run() {
	r.goroutine = goroutineID()
	r.state.store(StateRunning)
	r.lastActivity = time.Now()

	nettylog.Log(r.log, nettylog.LevelDebug, "reactor started", func(b *nettylog.Builder) *nettylog.Builder {
		return b.Str("reactor_id", r.id.String())
	})

	for {
		if r.tick() {
			break
		}
	}

	r.state.store(StateTerminated)
	close(r.done)
	if r.fatalErr != nil {
		r.terminated.Fail(r.fatalErr)
	} else {
		r.terminated.Succeed(nil)
	}

	nettylog.Log(r.log, nettylog.LevelDebug, "reactor stopped", func(b *nettylog.Builder) *nettylog.Builder {
		return b.Str("reactor_id", r.id.String())
	})
}

// tick runs exactly one iteration of the reactor loop, returning true once
// the loop should exit.
func (r *Reactor) tick() bool {
	pendingExternal, pendingInternal := r.pendingCounts()
	hasTasks := pendingExternal > 0 || pendingInternal > 0 || r.timers.Len() > 0

	timeout := r.selectTimeout(hasTasks)

	r.state.cas(StateRunning, StateSleeping)
	waitStart := time.Now()
	ready, err := r.sel.Wait(timeout)
	waited := time.Since(waitStart)
	r.state.store(StateRunning)

	if err != nil {
		r.selectErrCount++
		nettylog.Log(r.log, nettylog.LevelError, "selector wait failed", func(b *nettylog.Builder) *nettylog.Builder {
			return b.Str("reactor_id", r.id.String()).Int("consecutive_failures", r.selectErrCount).Err(err)
		})
		if r.selectErrCount >= maxConsecutiveSelectErrors {
			r.fatalErr = fmt.Errorf("reactor: selector wait failed %d times in a row: %w", r.selectErrCount, err)
			nettylog.Log(r.log, nettylog.LevelError, "selector unrecoverable, terminating reactor", func(b *nettylog.Builder) *nettylog.Builder {
				return b.Str("reactor_id", r.id.String()).Err(r.fatalErr)
			})
			return true
		}
	} else {
		r.selectErrCount = 0
		r.trackSpin(waited, ready)
	}

	r.runTimers()
	ranTasks := r.runTasks(waited)
	if ranTasks || ready > 0 {
		r.lastActivity = time.Now()
	}

	return r.checkTermination()
}

// selectTimeout decides how long the next selector wait may block: zero if
// tasks are already pending (poll, then drain them), otherwise until the
// next timer deadline, capped while a graceful shutdown is pending so
// quiescence is re-checked periodically.
func (r *Reactor) selectTimeout(hasTasks bool) time.Duration {
	if hasTasks {
		return 0
	}
	timeout := time.Duration(-1)
	if r.timers.Len() > 0 {
		next := time.Unix(0, r.timers[0].deadline)
		if d := time.Until(next); d > 0 {
			timeout = d
		} else {
			timeout = 0
		}
	}
	if r.IsShuttingDown() {
		if timeout < 0 || timeout > r.cfg.minSelectTimeout {
			timeout = r.cfg.minSelectTimeout
		}
	}
	return timeout
}

// trackSpin is the mitigation for the classic epoll "ready with no events"
// spin defect (spec §4.1): a selector wait that returns essentially
// instantly with nothing ready, over and over within a one-second window,
// triggers Selector.Rebuild.
func (r *Reactor) trackSpin(waited time.Duration, ready int) {
	if ready > 0 || waited > time.Millisecond {
		r.spinCount = 0
		r.spinWindowStart = time.Time{}
		return
	}
	now := time.Now()
	if r.spinWindowStart.IsZero() || now.Sub(r.spinWindowStart) > time.Second {
		r.spinWindowStart = now
		r.spinCount = 0
	}
	r.spinCount++
	if r.spinCount >= r.cfg.spinThreshold {
		nettylog.Log(r.log, nettylog.LevelWarn, "selector spin threshold exceeded, rebuilding", func(b *nettylog.Builder) *nettylog.Builder {
			return b.Str("reactor_id", r.id.String()).Int("spin_count", r.spinCount)
		})
		if err := r.sel.Rebuild(); err != nil {
			nettylog.Log(r.log, nettylog.LevelError, "selector rebuild failed", func(b *nettylog.Builder) *nettylog.Builder {
				return b.Str("reactor_id", r.id.String()).Err(err)
			})
		}
		r.spinCount = 0
		r.spinWindowStart = time.Time{}
	}
}

// runTimers runs every timer whose deadline has passed, discarding cancelled
// entries as they're popped (spec §5).
func (r *Reactor) runTimers() {
	now := time.Now().UnixNano()
	for r.timers.Len() > 0 {
		top := r.timers[0]
		if top.cancelled {
			heap.Pop(&r.timers)
			continue
		}
		if top.deadline > now {
			break
		}
		heap.Pop(&r.timers)
		r.safeExecute(top.task)
	}
}

// safeExecute runs task with panic recovery, logging and discarding any
// panic instead of letting it unwind the reactor goroutine (spec §4.1
// "Unchecked exceptions thrown by tasks are caught and logged; the loop
// continues"). Grounded on the teacher's Loop.safeExecute/safeExecuteFn
// (eventloop/loop.go), which exists for exactly this reason.
func (r *Reactor) safeExecute(task Task) {
	if task == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			nettylog.Log(r.log, nettylog.LevelError, "task panicked", func(b *nettylog.Builder) *nettylog.Builder {
				return b.Str("reactor_id", r.id.String()).Any("panic", rec)
			})
		}
	}()
	task()
}

// runTasks drains the external and internal queues, bounded by the larger of
// ioElapsed*ratio and a minimum, and by a hard batch-count cap (spec §4.1's
// I/O-to-task wall-time budget ratio). Returns whether any task ran.
func (r *Reactor) runTasks(ioElapsed time.Duration) bool {
	budget := time.Duration(float64(ioElapsed) * r.cfg.ioTaskRatio)
	if budget < time.Millisecond {
		budget = time.Millisecond
	}
	deadline := time.Now().Add(budget)

	ran := false
	count := 0
	for count < r.cfg.taskBatchLimit {
		task, ok := r.popTask()
		if !ok {
			break
		}
		r.safeExecute(task)
		ran = true
		count++
		if count%32 == 0 && time.Now().After(deadline) {
			break
		}
	}
	return ran
}

// popTask returns the next task to run, preferring internal (loop-local)
// tasks over externally submitted ones, matching the teacher's priority
// between microtasks and macrotasks.
func (r *Reactor) popTask() (Task, bool) {
	r.intMu.Lock()
	if len(r.internal) > 0 {
		t := r.internal[0]
		r.internal = r.internal[1:]
		r.intMu.Unlock()
		return t, true
	}
	r.intMu.Unlock()

	r.extMu.Lock()
	if len(r.external) > 0 {
		t := r.external[0]
		r.external = r.external[1:]
		r.extMu.Unlock()
		return t, true
	}
	r.extMu.Unlock()
	return nil, false
}

func (r *Reactor) pendingCounts() (external, internal int) {
	r.extMu.Lock()
	external = len(r.external)
	r.extMu.Unlock()
	r.intMu.Lock()
	internal = len(r.internal)
	r.intMu.Unlock()
	return
}

func (r *Reactor) checkTermination() bool {
	if !r.IsShuttingDown() {
		return false
	}
	now := time.Now()
	if now.Sub(r.shutdownRequestedAt) >= r.shutdownTimeout {
		return true
	}
	ext, intl := r.pendingCounts()
	quiescent := ext == 0 && intl == 0 && r.timers.Len() == 0 && r.activeChannels == 0
	return quiescent && now.Sub(r.lastActivity) >= r.quiet
}

// Close is a convenience wrapper around ShutdownGracefully(0, 0) that blocks
// until the reactor has fully stopped or ctx is done.
func (r *Reactor) Close(ctx context.Context) error {
	return r.ShutdownGracefully(0, 0).Await(ctx)
}
