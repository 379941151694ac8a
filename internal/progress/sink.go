// Package progress carries startup progress from the bootstrap to a single
// presentation consumer.
package progress

import (
	"context"
	"errors"
	"sync"
)

// DefaultBuffer is used when NewSink is given a non-positive capacity.
const DefaultBuffer = 256

// ErrAlreadySubscribed is returned by a second Subscribe call.
var ErrAlreadySubscribed = errors.New("progress: already subscribed")

// Update is one progress step. Fraction is in [0,1].
type Update struct {
	Fraction float64
	Message  string
}

// Event is an item delivered to the subscriber. Outcome is set only on the
// terminal event, which is always the last one.
type Event struct {
	Update  Update
	Outcome *Outcome
}

func (e Event) Terminal() bool { return e.Outcome != nil }

// Sink is a bounded single-writer single-reader buffer. Publishing never
// blocks: when the buffer is full the oldest non-terminal event is dropped.
// Fractions are clamped so the observed sequence never decreases.
type Sink struct {
	mu         sync.Mutex
	cond       *sync.Cond
	buf        []Event
	capacity   int
	last       float64
	dropped    int
	finished   bool
	subscribed bool
}

func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultBuffer
	}
	s := &Sink{capacity: capacity}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish enqueues u. It returns false once the sink has been finished.
func (s *Sink) Publish(u Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.pushLocked(Event{Update: s.clampLocked(u)})
	return true
}

// Finish enqueues the final update followed by the terminal outcome. Only
// the first call has any effect.
func (s *Sink) Finish(final Update, o Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.finished = true
	u := s.clampLocked(final)
	s.pushLocked(Event{Update: u})
	s.pushLocked(Event{Update: u, Outcome: &o})
	return true
}

// Finished reports whether the terminal outcome has been published.
func (s *Sink) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Dropped returns how many events were evicted because nobody drained them.
func (s *Sink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Sink) clampLocked(u Update) Update {
	switch {
	case u.Fraction > 1:
		u.Fraction = 1
	case u.Fraction < 0 || u.Fraction != u.Fraction:
		u.Fraction = 0
	}
	if u.Fraction < s.last {
		u.Fraction = s.last
	}
	s.last = u.Fraction
	return u
}

func (s *Sink) pushLocked(e Event) {
	if len(s.buf) >= s.capacity {
		// the terminal event is always appended last, so index 0 is never it
		s.buf = append(s.buf[:0], s.buf[1:]...)
		s.dropped++
	}
	s.buf = append(s.buf, e)
	s.cond.Signal()
}

// Subscribe returns the event stream. The channel is closed after the
// terminal event has been delivered, or when ctx is done. Only one
// subscription is allowed per sink.
func (s *Sink) Subscribe(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	s.subscribed = true
	s.mu.Unlock()

	out := make(chan Event)
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	go func() {
		defer close(out)
		defer stop()
		for {
			e, ok := s.next(ctx)
			if !ok {
				return
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
			if e.Terminal() {
				return
			}
		}
	}()
	return out, nil
}

func (s *Sink) next(ctx context.Context) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 {
		if ctx.Err() != nil {
			return Event{}, false
		}
		s.cond.Wait()
	}
	e := s.buf[0]
	s.buf = s.buf[1:]
	return e, true
}
