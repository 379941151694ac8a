// Package phase models one named unit of startup work and runs it with
// timestamps, progress and failure capture.
package phase

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a Phase.
type Status int

const (
	Pending Status = iota
	Running
	Completed
	TimedOut
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed-out"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == Completed || s == TimedOut || s == Failed
}

// Phase is safe for concurrent use. Once it reaches a terminal status it is
// frozen: a late completion of abandoned work does not overwrite TimedOut.
type Phase struct {
	name string

	mu        sync.Mutex
	status    Status
	startedAt time.Time
	endedAt   time.Time
	err       error
}

// New returns a Pending phase.
func New(name string) *Phase {
	return &Phase{name: name}
}

func (p *Phase) Name() string { return p.name }

func (p *Phase) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Err is the retained cause for Failed and TimedOut phases.
func (p *Phase) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Phase) StartedAt() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt, !p.startedAt.IsZero()
}

func (p *Phase) EndedAt() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endedAt, !p.endedAt.IsZero()
}

// Elapsed is ended-started for finished phases and zero otherwise.
func (p *Phase) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsedLocked()
}

func (p *Phase) elapsedLocked() time.Duration {
	if p.startedAt.IsZero() || p.endedAt.IsZero() {
		return 0
	}
	return p.endedAt.Sub(p.startedAt)
}

// MarkTimedOut abandons the phase at t. It returns false if the phase had
// already resolved.
func (p *Phase) MarkTimedOut(t time.Time, err error) bool {
	return p.resolve(t, TimedOut, err)
}

// MarkFailed fails the phase at t without running it, e.g. when a
// dependency did not complete.
func (p *Phase) MarkFailed(t time.Time, err error) bool {
	return p.resolve(t, Failed, err)
}

func (p *Phase) begin(t time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != Pending {
		return false
	}
	p.status = Running
	p.startedAt = t
	return true
}

func (p *Phase) resolve(t time.Time, s Status, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Terminal() {
		return false
	}
	if p.startedAt.IsZero() {
		p.startedAt = t
	}
	p.status = s
	p.endedAt = t
	p.err = err
	return true
}

// Snapshot is a point-in-time copy of a Phase for reporting.
type Snapshot struct {
	Name      string
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	Elapsed   time.Duration
	Err       error
}

func (p *Phase) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Name:      p.name,
		Status:    p.status,
		StartedAt: p.startedAt,
		EndedAt:   p.endedAt,
		Elapsed:   p.elapsedLocked(),
		Err:       p.err,
	}
}
