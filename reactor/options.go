package reactor

import (
	"fmt"
	"time"

	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/selector"
)

// config holds the resolved construction parameters for a Reactor. It is
// built once, up front, by applying every Option in order (teacher's
// functional-options idiom, eventloop/options.go), then validated eagerly so
// construction fails fast instead of at first use.
type config struct {
	log               *nettylog.Logger
	newSelector       func() (selector.Selector, error)
	ioTaskRatio       float64
	spinThreshold     int
	minSelectTimeout  time.Duration
	taskBatchLimit    int
}

func defaultConfig() config {
	return config{
		log:              nettylog.Nop(),
		newSelector:      selector.New,
		ioTaskRatio:       1.0,
		spinThreshold:    8192,
		minSelectTimeout: 20 * time.Millisecond,
		taskBatchLimit:   1024,
	}
}

// Option configures a Reactor or Group at construction time.
type Option func(*config) error

// WithLogger attaches a structured logger. A nil logger is equivalent to
// WithLogger(nettylog.Nop()).
func WithLogger(log *nettylog.Logger) Option {
	return func(c *config) error {
		if log == nil {
			log = nettylog.Nop()
		}
		c.log = log
		return nil
	}
}

// WithSelectorFactory overrides how each reactor constructs its Selector.
// Exposed mainly for tests, which substitute an in-memory fake.
func WithSelectorFactory(f func() (selector.Selector, error)) Option {
	return func(c *config) error {
		if f == nil {
			return fmt.Errorf("reactor: WithSelectorFactory requires a non-nil factory")
		}
		c.newSelector = f
		return nil
	}
}

// WithIOTaskRatio sets the ratio of task-processing time budget to time
// spent in the preceding selector wait (spec §4.1 "I/O-to-task wall-time
// budget ratio", default 50:50, i.e. ratio 1.0). A ratio of 2.0 allows tasks
// up to twice the preceding I/O wait.
func WithIOTaskRatio(ratio float64) Option {
	return func(c *config) error {
		if ratio <= 0 {
			return fmt.Errorf("reactor: WithIOTaskRatio requires a positive ratio, got %v", ratio)
		}
		c.ioTaskRatio = ratio
		return nil
	}
}

// WithSpinThreshold sets how many consecutive zero-progress selector waits
// within a one-second window trigger a Selector.Rebuild (the mitigation for
// the classic "epoll reports ready but no events" spin defect, spec §4.1).
func WithSpinThreshold(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("reactor: WithSpinThreshold requires a positive count, got %d", n)
		}
		c.spinThreshold = n
		return nil
	}
}

// WithMinSelectTimeout bounds how long a single selector wait may block while
// a graceful shutdown is in progress, so the loop periodically re-checks
// quiescence even with no I/O activity.
func WithMinSelectTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return fmt.Errorf("reactor: WithMinSelectTimeout requires a positive duration, got %v", d)
		}
		c.minSelectTimeout = d
		return nil
	}
}

// WithTaskBatchLimit caps how many queued tasks a single loop iteration will
// run even if the I/O-to-task time budget has not been exhausted, bounding
// worst-case latency of newly-arriving I/O events under task flood.
func WithTaskBatchLimit(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("reactor: WithTaskBatchLimit requires a positive count, got %d", n)
		}
		c.taskBatchLimit = n
		return nil
	}
}

func resolve(opts []Option) (config, error) {
	c := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&c); err != nil {
			return config{}, err
		}
	}
	return c, nil
}
