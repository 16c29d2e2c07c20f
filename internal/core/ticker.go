package core

import (
	"log/slog"
	"sync"
	"time"
)

// Ticker drives the time-based state machines at a fixed cadence. All
// per-tick work is a short synchronous step, so cancellation of sieges and
// teleports is safe at tick boundaries. Speed and running state are written
// from the API and signal goroutines while Run reads them, so both live
// behind mu.
type Ticker struct {
	Interval time.Duration // base tick interval (default 1 second)

	// OnTick runs every tick. Populated during setup, before Run.
	OnTick func()

	mu      sync.Mutex
	speed   float64 // multiplier: 1.0 = real-time, 0 = paused
	running bool
}

// NewTicker creates a ticker with default settings.
func NewTicker() *Ticker {
	return &Ticker{
		Interval: time.Second,
		speed:    1.0,
	}
}

// Speed returns the current tick speed multiplier.
func (t *Ticker) Speed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speed
}

// SetSpeed changes the tick speed multiplier. Zero pauses the loop.
func (t *Ticker) SetSpeed(speed float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.speed = speed
}

// Running reports whether the tick loop is active.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Run starts the tick loop. Blocks until Stop is called.
func (t *Ticker) Run() {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
	slog.Info("ticker started", "interval", t.Interval, "speed", t.Speed())

	for t.Running() {
		speed := t.Speed()
		if speed <= 0 {
			// Paused. Sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		if t.OnTick != nil {
			t.OnTick()
		}

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(t.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("ticker stopped")
}

// Stop halts the tick loop.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
}
