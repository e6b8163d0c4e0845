package session

import (
	"sync"
	"time"
)

// WarnThreshold is when the countdown enters its warning state.
const WarnThreshold = 5 * time.Minute

// Remaining is one countdown reading.
type Remaining struct {
	Seconds int64
	Warning bool // true at or under WarnThreshold
	Up      bool // true once the deadline has passed
}

// Countdown derives remaining time purely from the wall clock against a
// fixed start point. It never decrements a counter, so a starved or
// suspended tick loop cannot drift from the deadline: the next evaluation
// reflects true elapsed time. There is no pause; once armed the deadline is
// fixed.
type Countdown struct {
	duration  time.Duration
	startedAt time.Time
	clock     func() time.Time
	interval  time.Duration

	onTick   func(Remaining)
	onTimeUp func()

	mu    sync.Mutex
	fired bool
	stop  chan struct{}
	once  sync.Once // guards stop channel close
}

type CountdownOption func(*Countdown)

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) CountdownOption {
	return func(c *Countdown) { c.clock = clock }
}

// WithInterval overrides the 1s tick interval.
func WithInterval(d time.Duration) CountdownOption {
	return func(c *Countdown) { c.interval = d }
}

// WithOnTick registers a per-tick observer (display updates).
func WithOnTick(fn func(Remaining)) CountdownOption {
	return func(c *Countdown) { c.onTick = fn }
}

// NewCountdown arms a countdown of the given duration from startedAt, the
// server-assigned start time. onTimeUp is invoked exactly once, from the
// tick goroutine, when remaining reaches zero. A startedAt in the future
// (client clock skew) just yields remaining above duration; a non-positive
// duration makes the first evaluation fire time-up.
func NewCountdown(duration time.Duration, startedAt time.Time, onTimeUp func(), opts ...CountdownOption) *Countdown {
	c := &Countdown{
		duration:  duration,
		startedAt: startedAt,
		clock:     time.Now,
		interval:  time.Second,
		onTimeUp:  onTimeUp,
		stop:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Remaining recomputes the reading from absolute timestamps.
func (c *Countdown) Remaining() Remaining {
	now := c.clock()
	elapsed := int64(now.Sub(c.startedAt) / time.Second)
	secs := int64(c.duration/time.Second) - elapsed
	if secs <= 0 {
		return Remaining{Seconds: 0, Warning: true, Up: true}
	}
	return Remaining{
		Seconds: secs,
		Warning: secs <= int64(WarnThreshold/time.Second),
	}
}

// Tick evaluates once: reports the reading to the tick observer and, on the
// evaluation that first reaches zero, fires time-up. Further ticks after
// that are no-ops, so callbacks scheduled before cancellation completes
// cannot double-fire.
func (c *Countdown) Tick() Remaining {
	rem := c.Remaining()
	c.mu.Lock()
	if c.fired {
		c.mu.Unlock()
		return rem
	}
	fire := rem.Up
	if fire {
		c.fired = true
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(rem)
	}
	if fire {
		c.Stop()
		if c.onTimeUp != nil {
			c.onTimeUp()
		}
	}
	return rem
}

// Run drives the tick loop until time-up or Stop. Call in a goroutine.
func (c *Countdown) Run() {
	// evaluate immediately so a zero/negative duration fires on the first
	// tick rather than one interval later
	if rem := c.Tick(); rem.Up {
		return
	}
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			if rem := c.Tick(); rem.Up {
				return
			}
		}
	}
}

// Stop halts the tick loop. Idempotent. Does not fire time-up.
func (c *Countdown) Stop() {
	c.once.Do(func() { close(c.stop) })
}
