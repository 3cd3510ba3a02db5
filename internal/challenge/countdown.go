package challenge

import (
	"sync"
	"time"
)

// Countdown is a single repeating task that decrements a counter from the
// session deadline to 0 inclusive, emitting the remaining value to an
// observer after each tick. It is advisory: reaching 0 cancels nothing.
type Countdown struct {
	interval time.Duration
	onTick   func(remaining int)

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (c *Countdown) run(seconds int) {
	defer close(c.done)

	remaining := seconds
	if remaining < 0 {
		remaining = 0
	}
	c.emit(remaining)
	if remaining == 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			remaining--
			c.emit(remaining)
			if remaining == 0 {
				return
			}
		}
	}
}

func (c *Countdown) emit(remaining int) {
	if c.onTick != nil {
		c.onTick(remaining)
	}
}

// Stop cancels the countdown and waits for its task to exit. Idempotent:
// stopping an already-stopped or naturally-finished countdown is a no-op.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

// Done is closed when the countdown task has exited, either by reaching 0 or
// by cancellation.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// Runner owns at most one live countdown. Starting a new countdown cancels
// the previous one synchronously before the new one is scheduled, so two
// clocks are never active at once.
type Runner struct {
	mu       sync.Mutex
	interval time.Duration
	active   *Countdown
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTickInterval overrides the one-second tick. Tests use millisecond
// intervals to exercise full sequences quickly.
func WithTickInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRunner creates a countdown runner ticking once per second.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{interval: time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start cancels any prior countdown and begins a new one from seconds down
// to 0. The observer receives the initial value and then each decrement.
func (r *Runner) Start(seconds int, onTick func(remaining int)) *Countdown {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		r.active.Stop()
	}
	c := &Countdown{
		interval: r.interval,
		onTick:   onTick,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.active = c
	go c.run(seconds)
	return c
}

// Stop cancels the active countdown, if any. Idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		r.active.Stop()
		r.active = nil
	}
}
