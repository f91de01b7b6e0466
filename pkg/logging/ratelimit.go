package logging

import (
	"sync/atomic"
	"time"
)

// Every gates a call site to at most once per interval. Construct one
// value per call site (a package-level var, or a field on the owning
// struct) and call Allow before logging; independent call sites never
// share state (§4.13's "per-call-site... values so that different call
// sites rate-limit independently").
type Every struct {
	interval time.Duration
	lastNs   atomic.Int64
}

// NewEvery constructs an Every gate for the given interval.
func NewEvery(interval time.Duration) *Every {
	return &Every{interval: interval}
}

// Allow reports whether enough time has passed since the last allowed call.
func (e *Every) Allow() bool {
	now := time.Now().UnixNano()
	last := e.lastNs.Load()
	if now-last < int64(e.interval) {
		return false
	}
	return e.lastNs.CompareAndSwap(last, now)
}

// Nth gates a call site to once every n calls.
type Nth struct {
	n     int64
	count atomic.Int64
}

// NewNth constructs an Nth gate; n <= 1 allows every call.
func NewNth(n int) *Nth {
	return &Nth{n: int64(n)}
}

// Allow reports whether this call is the 1st, (n+1)th, (2n+1)th, ... since
// construction.
func (g *Nth) Allow() bool {
	if g.n <= 1 {
		return true
	}
	c := g.count.Add(1)
	return c%g.n == 1
}

// Once gates a call site to fire at most one time for the life of the
// process (or until the owning struct is recreated).
type Once struct {
	fired atomic.Bool
}

// Allow reports true exactly once.
func (o *Once) Allow() bool {
	return o.fired.CompareAndSwap(false, true)
}
