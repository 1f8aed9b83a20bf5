// Package ctrl implements the profiler's control plane: the pause/resume
// synchronization shared between mutator allocation callbacks and the
// PAUSE/RESUME request handler, and the client-side pending-request table
// used to correlate asynchronous server responses with their requests.
package ctrl

import "sync"

// PauseLock is the writer-preferring synchronization point between the
// mutator's allocation hook and a PAUSE/RESUME request. Every allocation
// briefly takes the reader side; PAUSE takes the writer side and holds it
// until RESUME releases it, blocking new allocations from being recorded
// for the duration. It does not, and cannot, stop native threads in the
// target process that aren't allocating — only the mutator callback path
// observes it.
//
// Go's sync.RWMutex permits Unlock from any goroutine, unlike the
// pthread-style mutex the original server used, so Pause and Resume can
// run on whatever goroutine handles each request without tracking which
// one acquired the lock.
type PauseLock struct {
	mu     sync.RWMutex
	paused bool
	pmu    sync.Mutex
}

// NewPauseLock returns an unpaused lock.
func NewPauseLock() *PauseLock {
	return &PauseLock{}
}

// EnterMutator blocks until the lock is not held for pause, then returns
// a release function the caller must call exactly once.
func (p *PauseLock) EnterMutator() func() {
	p.mu.RLock()
	return p.mu.RUnlock
}

// Pause acquires the writer side and marks the lock paused. Returns false
// if already paused; the caller should answer the PAUSE request with an
// error in that case rather than double-locking.
func (p *PauseLock) Pause() bool {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	if p.paused {
		return false
	}
	p.mu.Lock()
	p.paused = true
	return true
}

// Resume releases the writer side. Returns false if not currently paused.
func (p *PauseLock) Resume() bool {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	if !p.paused {
		return false
	}
	p.paused = false
	p.mu.Unlock()
	return true
}

// IsPaused reports whether the lock is currently held for pause.
func (p *PauseLock) IsPaused() bool {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	return p.paused
}
