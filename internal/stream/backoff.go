package stream

import (
	"math/rand/v2"
	"time"
)

// Backoff produces jittered, multiplicatively growing reconnect delays.
// It is not safe for concurrent use.
type Backoff struct {
	floor   time.Duration
	ceiling time.Duration
	factor  float64
	current time.Duration
	rand    func() float64
}

// NewBackoff returns a backoff starting at floor. rnd returns values in
// [0, 1); nil uses math/rand.
func NewBackoff(floor, ceiling time.Duration, factor float64, rnd func() float64) *Backoff {
	if rnd == nil {
		rnd = rand.Float64
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{floor: floor, ceiling: ceiling, factor: factor, current: floor, rand: rnd}
}

// Next returns the delay for the upcoming attempt, min(current*jitter, ceiling)
// with jitter in [0.75, 1.25], and grows current for the attempt after.
func (b *Backoff) Next() time.Duration {
	jitter := 0.75 + 0.5*b.rand()
	delay := time.Duration(float64(b.current) * jitter)
	if delay > b.ceiling {
		delay = b.ceiling
	}
	next := time.Duration(float64(b.current) * b.factor)
	if next > b.ceiling {
		next = b.ceiling
	}
	b.current = next
	return delay
}

// Current is the un-jittered base of the next delay.
func (b *Backoff) Current() time.Duration { return b.current }

// Reset returns to the floor after a successful connection.
func (b *Backoff) Reset() { b.current = b.floor }
