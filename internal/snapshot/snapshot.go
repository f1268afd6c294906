package snapshot

import (
	"sync"
	"sync/atomic"

	"autoeye-traffic-dashboard/internal/dashboard"
)

// Snapshot is the read-only view served to the page.
type Snapshot struct {
	Version   uint64         `json:"version"`
	Dashboard dashboard.View `json:"dashboard"`
}

// Store holds the latest snapshot. Readers never block writers.
type Store struct {
	current atomic.Value // stores Snapshot

	mu      sync.Mutex
	version uint64
	changed chan struct{}
}

func NewStore() *Store {
	return &Store{changed: make(chan struct{})}
}

// Publish replaces the current snapshot and wakes everyone waiting on Changed.
func (s *Store) Publish(v dashboard.View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	s.current.Store(Snapshot{Version: s.version, Dashboard: v})

	close(s.changed)
	s.changed = make(chan struct{})
}

// Get returns the latest snapshot.
// If nothing was published yet, returns zero-value snapshot.
func (s *Store) Get() Snapshot {
	if v := s.current.Load(); v != nil {
		return v.(Snapshot)
	}
	return Snapshot{}
}

// Changed returns a channel that is closed by the next Publish.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

var defaultStore = NewStore()

// Default is the process-wide store behind Publish and Get.
func Default() *Store { return defaultStore }

// Publish replaces the current snapshot of the default store.
func Publish(v dashboard.View) { defaultStore.Publish(v) }

// Get returns the latest snapshot of the default store.
func Get() Snapshot { return defaultStore.Get() }
