package livesync

import (
	"sync"
	"time"
)

// State is what a sync hook exposes to the view.
type State[T any] struct {
	Data    T
	Loading bool
	Err     string

	// Online is only meaningful for the health monitor.
	Online bool

	// Seq is the issue sequence of the fetch whose result is shown.
	// Zero until the first fetch resolves.
	Seq       uint64
	UpdatedAt time.Time
}

// ApplyPolicy decides which of several overlapping fetches ends up in State.
type ApplyPolicy int

const (
	// LastResolvedWins applies every resolution as it arrives, so the fetch
	// that completes last determines the final state even when it was issued
	// first.
	LastResolvedWins ApplyPolicy = iota

	// LastIssuedWins discards a resolution whose issue sequence is lower than
	// one already applied.
	LastIssuedWins
)

func (p ApplyPolicy) String() string {
	switch p {
	case LastResolvedWins:
		return "last-resolved-wins"
	case LastIssuedWins:
		return "last-issued-wins"
	}
	return "unknown"
}

// store owns one hook's state slot. Only the owning hook mutates it.
type store[T any] struct {
	mu      sync.Mutex
	state   State[T]
	issued  uint64
	applied uint64
	version uint64

	// notifyMu serializes callbacks; notified drops deliveries that were
	// overtaken by a newer mutation so subscribers never go back in time.
	notifyMu sync.Mutex
	notified uint64
	subs     map[int]func(State[T])
	nextSub  int
}

func newStore[T any](initial State[T]) *store[T] {
	return &store[T]{state: initial, subs: make(map[int]func(State[T]))}
}

func (s *store[T]) get() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *store[T]) subscribe(fn func(State[T])) func() {
	s.notifyMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.subs, id)
			s.notifyMu.Unlock()
		})
	}
}

// begin tags a new fetch attempt and applies the "attempt started" mutation.
func (s *store[T]) begin(mutate func(*State[T])) uint64 {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	mutate(&s.state)
	s.publishLocked()
	return seq
}

// resolve applies the outcome of fetch seq unless the policy discards it.
func (s *store[T]) resolve(seq uint64, policy ApplyPolicy, at time.Time, mutate func(*State[T])) bool {
	s.mu.Lock()
	if policy == LastIssuedWins && seq < s.applied {
		s.mu.Unlock()
		return false
	}
	if seq > s.applied {
		s.applied = seq
	}
	mutate(&s.state)
	s.state.Seq = seq
	s.state.UpdatedAt = at
	s.publishLocked()
	return true
}

// publishLocked must be called with mu held; it releases mu before any
// callback runs.
func (s *store[T]) publishLocked() {
	s.version++
	v, snap := s.version, s.state
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if v < s.notified {
		return
	}
	s.notified = v

	for _, fn := range s.subs {
		fn(snap)
	}
}
