package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a hand-advanced wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCountdownDriftResistance(t *testing.T) {
	// a throttled tab delivers no ticks for 65s; the next evaluation must
	// still reflect true elapsed time
	t0 := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(t0)
	c := NewCountdown(2*time.Minute, t0, func() {}, WithClock(clk.Now))

	clk.Advance(65 * time.Second)
	if got := c.Tick(); got.Seconds != 55 {
		t.Fatalf("remaining = %d, want 55", got.Seconds)
	}
}

func TestCountdownMonotonicAndFiresOnce(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(t0)
	var fired atomic.Int64
	c := NewCountdown(10*time.Second, t0, func() { fired.Add(1) }, WithClock(clk.Now))

	prev := int64(11)
	for i := 0; i < 20; i++ {
		rem := c.Tick()
		if rem.Seconds > prev {
			t.Fatalf("remaining increased: %d -> %d", prev, rem.Seconds)
		}
		prev = rem.Seconds
		clk.Advance(time.Second)
	}
	if prev != 0 {
		t.Fatalf("remaining bottomed at %d, want 0", prev)
	}
	// ticks scheduled after time-up must not re-fire
	for i := 0; i < 5; i++ {
		c.Tick()
	}
	if n := fired.Load(); n != 1 {
		t.Fatalf("time-up fired %d times, want exactly once", n)
	}
}

func TestCountdownWarningThreshold(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(t0)
	c := NewCountdown(10*time.Minute, t0, func() {}, WithClock(clk.Now))

	clk.Advance(4*time.Minute + 59*time.Second)
	if rem := c.Remaining(); rem.Warning {
		t.Fatalf("warning at %ds remaining, want none above threshold", rem.Seconds)
	}
	clk.Advance(time.Second)
	if rem := c.Remaining(); !rem.Warning {
		t.Fatalf("no warning at %ds remaining", rem.Seconds)
	}
}

func TestCountdownClockSkew(t *testing.T) {
	// server-assigned start in the client's future: remaining may exceed
	// the duration but nothing fires
	t0 := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(t0)
	c := NewCountdown(time.Minute, t0.Add(30*time.Second), func() { t.Fatal("time-up fired") }, WithClock(clk.Now))

	if rem := c.Tick(); rem.Seconds != 90 {
		t.Fatalf("remaining = %d, want 90", rem.Seconds)
	}
}

func TestCountdownZeroDurationFiresImmediately(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(t0)
	var fired atomic.Int64
	c := NewCountdown(0, t0, func() { fired.Add(1) }, WithClock(clk.Now))

	if rem := c.Tick(); !rem.Up || rem.Seconds != 0 {
		t.Fatalf("first tick = %+v, want up with 0 remaining", rem)
	}
	if fired.Load() != 1 {
		t.Fatalf("time-up fired %d times", fired.Load())
	}
}

func TestCountdownRunStops(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(t0)
	var fired atomic.Int64
	c := NewCountdown(5*time.Second, t0, func() { fired.Add(1) },
		WithClock(clk.Now), WithInterval(time.Millisecond))

	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()
	clk.Advance(6 * time.Second) // past the deadline; next tick must fire
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after time-up")
	}
	if fired.Load() != 1 {
		t.Fatalf("time-up fired %d times", fired.Load())
	}
	c.Stop() // idempotent
}

func TestCountdownOnTickObserver(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(t0)
	var seen []int64
	c := NewCountdown(3*time.Second, t0, func() {},
		WithClock(clk.Now),
		WithOnTick(func(r Remaining) { seen = append(seen, r.Seconds) }))

	for i := 0; i < 4; i++ {
		c.Tick()
		clk.Advance(time.Second)
	}
	want := []int64{3, 2, 1, 0}
	if len(seen) != len(want) {
		t.Fatalf("observer saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("observer saw %v, want %v", seen, want)
		}
	}
}
