// Package backoff implements the retry-delay generators used between failed
// job-server requests: a fixed jittered delay, or a growing jittered delay
// that resets after a success.
package backoff

import (
	"math/rand"
	"time"
)

// Generator produces the next retry delay. Reset returns it to its initial
// state, called after a successful request.
type Generator interface {
	Next() time.Duration
	Reset()
}

// Fixed always waits a uniformly random duration in [0, max).
type Fixed struct {
	Max  time.Duration
	rand *rand.Rand
}

// NewFixed returns a Fixed backoff with the given ceiling (3s matches the
// original client's Fixed Backoff mode).
func NewFixed(max time.Duration) *Fixed {
	return &Fixed{Max: max, rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (f *Fixed) Next() time.Duration {
	return time.Duration(f.rand.Float64() * float64(f.Max))
}

func (f *Fixed) Reset() {
	// Stateless: nothing to reset.
}

// Exponential grows an internal step counter b by 1 (up to capSteps) on
// every call, and returns a jittered value in [0.5*b, b) seconds, dropping
// back to b=1 after a success.
type Exponential struct {
	capSteps int

	b    int
	rand *rand.Rand
}

// NewExponential returns an Exponential backoff starting at b=1 and capped
// at capSteps (30 matches the original client's default mode).
func NewExponential(capSteps int) *Exponential {
	return &Exponential{
		capSteps: capSteps,
		b:        1,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns a jittered half-to-full fraction of the current step,
// 0.5*b + 0.5*b*rand(), then grows b by 1 up to capSteps.
func (e *Exponential) Next() time.Duration {
	b := float64(e.b)
	jittered := (0.5*b + 0.5*b*e.rand.Float64()) * float64(time.Second)

	if e.b < e.capSteps {
		e.b++
	}
	return time.Duration(jittered)
}

// Reset drops the step counter back to 1, called after a successful request.
func (e *Exponential) Reset() {
	e.b = 1
}
