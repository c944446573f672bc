// Package autofetch polls the chat server on a fixed interval while the
// user is logged in.
package autofetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	o3chat "github.com/EetuSeppa/O3-chat-client"
	"github.com/EetuSeppa/O3-chat-client/internal/clock"
)

// DefaultInterval is the polling period when Options.Interval is zero.
const DefaultInterval = time.Second

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("auto-fetch is already running")

// Fetcher is the part of the chat client the scheduler drives.
// FetchCurrent must pick the channel while holding the client's lock, so a
// tick never carries a channel read before a concurrent channel change.
type Fetcher interface {
	FetchCurrent(ctx context.Context) (*o3chat.FetchResult, error)
}

// State is the scheduler's lifecycle state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Tick describes one timer tick. Exactly one of Skipped, Err or Result is
// meaningful: Skipped when the previous fetch was still outstanding, Err
// when the fetch failed or credentials went away, Result otherwise.
// Channel is the channel fetched, known only when Result is set.
type Tick struct {
	At      time.Time
	Channel string
	Result  *o3chat.FetchResult
	Err     error
	Skipped bool
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
	// Report is called from the scheduler's goroutines with each tick's
	// outcome. It must not call Stop synchronously.
	Report func(Tick)
	// Ready reports whether the session is logged in. If nil the session is
	// always considered ready.
	Ready   func() bool
	Metrics *o3chat.Metrics
}

// Scheduler runs FetchCurrent every interval.
//
// A tick that arrives while the previous fetch is still in flight is
// skipped, not queued. Fetch errors are reported and polling continues.
// Stop ends polling but never cancels a fetch already in flight.
type Scheduler struct {
	fetcher  Fetcher
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	report   func(Tick)
	ready    func() bool
	metrics  *o3chat.Metrics

	busy atomic.Bool

	mu    sync.Mutex
	state State
	stop  chan struct{}
	done  chan struct{}
}

// New creates a stopped scheduler.
func New(fetcher Fetcher, opts Options) *Scheduler {
	s := &Scheduler{
		fetcher:  fetcher,
		interval: opts.Interval,
		clock:    opts.Clock,
		logger:   opts.Logger,
		report:   opts.Report,
		ready:    opts.Ready,
		metrics:  opts.Metrics,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.report == nil {
		s.report = func(Tick) {}
	}
	if s.ready == nil {
		s.ready = func() bool { return true }
	}
	return s
}

// Start begins polling. Fetches run with ctx; cancelling it also stops the
// scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		return ErrAlreadyRunning
	}
	if !s.ready() {
		return &o3chat.PreconditionError{Op: "auto_fetch", Err: o3chat.ErrNotLoggedIn}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.state, s.stop, s.done = Running, stop, done
	ticker := s.clock.NewTicker(s.interval)

	go s.run(ctx, ticker, stop, done)
	s.logger.Info("auto-fetch started", "interval", s.interval)
	return nil
}

// Stop ends polling and waits for the timer goroutine to exit. A fetch in
// flight is left to finish and still reported. Stop on a stopped
// scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	done := s.done
	s.halt(s.stop)
	s.mu.Unlock()

	<-done
	s.logger.Info("auto-fetch stopped")
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Interval returns the polling period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// halt moves the run owning stop to Stopped. Must be called with mu held.
func (s *Scheduler) halt(stop chan struct{}) bool {
	if s.state != Running || s.stop != stop {
		return false
	}
	close(stop)
	s.state, s.stop, s.done = Stopped, nil, nil
	return true
}

func (s *Scheduler) run(ctx context.Context, ticker *clock.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			s.mu.Lock()
			s.halt(stop)
			s.mu.Unlock()
			return
		case at := <-ticker.C:
			if !s.tick(ctx, at, stop) {
				return
			}
		}
	}
}

// tick handles one timer tick. It returns false when the loop must exit.
func (s *Scheduler) tick(ctx context.Context, at time.Time, stop chan struct{}) bool {
	select {
	case <-stop:
		return false
	default:
	}

	if !s.ready() {
		s.mu.Lock()
		s.halt(stop)
		s.mu.Unlock()
		s.logger.Warn("auto-fetch stopped: not logged in")
		s.report(Tick{At: at, Err: &o3chat.PreconditionError{Op: "auto_fetch", Err: o3chat.ErrNotLoggedIn}})
		return false
	}

	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.ObserveTick("skipped")
		s.logger.Debug("auto-fetch tick skipped, previous fetch still running")
		s.report(Tick{At: at, Skipped: true})
		return true
	}

	go func() {
		result, err := s.fetcher.FetchCurrent(ctx)
		s.busy.Store(false)
		tick := Tick{At: at, Result: result, Err: err}
		if err != nil {
			s.metrics.ObserveTick("failed")
			s.logger.Debug("auto-fetch failed", "error", err)
		} else {
			s.metrics.ObserveTick("fetched")
			if result != nil {
				tick.Channel = result.Channel
			}
		}
		s.report(tick)
	}()
	return true
}
