// Package clock provides the millisecond tick source used for request timeouts.
package clock

import (
	"sync"
	"time"
)

// Clock returns a monotonic millisecond counter. The counter is 32 bit wide and
// wraps after ~49 days, use Since to compute elapsed time.
type Clock interface {
	NowMs() uint32
}

// Since returns the milliseconds elapsed between then and now, correct across
// a single wraparound of the counter
func Since(now, then uint32) uint32 {
	return now - then
}

// ToMs converts a duration to clock ticks, saturating at the counter width
func ToMs(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}

	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}

	return uint32(ms)
}

type systemClock struct {
	start time.Time
}

// System returns a clock backed by the monotonic time of the process
func System() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) NowMs() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Manual is a clock for tests. It only moves when Advance is called, or by
// Step on every NowMs call, which lets bounded busy-waits terminate.
type Manual struct {
	mu   sync.Mutex
	now  uint32
	step uint32
}

func NewManual(start uint32) *Manual {
	return &Manual{now: start}
}

func (m *Manual) NowMs() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now
	m.now += m.step
	return now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += ToMs(d)
}

// SetStep makes every NowMs call advance the clock by d
func (m *Manual) SetStep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step = ToMs(d)
}
