package livesync

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"autoeye-traffic-dashboard/internal/trafficapi"
)

const DefaultHealthInterval = 30 * time.Second

type HealthSource interface {
	Health(ctx context.Context) (trafficapi.HealthStatus, error)
}

type HealthState = State[*trafficapi.HealthStatus]

type HealthOption func(*HealthMonitor)

func WithInterval(d time.Duration) HealthOption {
	return func(m *HealthMonitor) { m.interval = d }
}

func WithJitter(fraction float64) HealthOption {
	return func(m *HealthMonitor) { m.jitter = fraction }
}

func WithHealthClock(c clockwork.Clock) HealthOption {
	return func(m *HealthMonitor) { m.clock = c }
}

// HealthMonitor answers "is the backend reachable right now". A failed probe
// drops the last payload: no health object means offline.
type HealthMonitor struct {
	src      HealthSource
	interval time.Duration
	jitter   float64
	clock    clockwork.Clock
	st       *store[*trafficapi.HealthStatus]
	hb       *Heartbeat
}

func NewHealthMonitor(src HealthSource, opts ...HealthOption) *HealthMonitor {
	m := &HealthMonitor{
		src:      src,
		interval: DefaultHealthInterval,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.st = newStore(HealthState{})
	m.hb = NewHeartbeat(m.clock, m.interval, m.jitter, func(ctx context.Context) {
		_ = m.Refresh(ctx)
	})
	return m
}

// Start probes immediately and then on every interval until Stop.
func (m *HealthMonitor) Start(ctx context.Context) error {
	return m.hb.Start(ctx)
}

// Stop releases the heartbeat. Probes already in flight still land.
func (m *HealthMonitor) Stop() {
	m.hb.Stop()
}

// Refresh runs one out-of-band probe; the heartbeat schedule is untouched.
// Heartbeat and manual probes may overlap; the last to resolve wins.
func (m *HealthMonitor) Refresh(ctx context.Context) error {
	seq := m.st.begin(func(s *HealthState) {
		s.Loading = true
		s.Err = ""
	})

	h, err := m.src.Health(ctx)
	if err != nil {
		log.Printf("health: probe #%d failed: %v", seq, err)
		m.st.resolve(seq, LastResolvedWins, m.clock.Now(), func(s *HealthState) {
			s.Data = nil
			s.Online = false
			s.Err = err.Error()
			s.Loading = false
		})
		return err
	}

	m.st.resolve(seq, LastResolvedWins, m.clock.Now(), func(s *HealthState) {
		s.Data = &h
		s.Online = true
		s.Err = ""
		s.Loading = false
	})
	return nil
}

func (m *HealthMonitor) State() HealthState {
	return m.st.get()
}

func (m *HealthMonitor) IsOnline() bool {
	return m.st.get().Online
}

func (m *HealthMonitor) Subscribe(fn func(HealthState)) (unsubscribe func()) {
	return m.st.subscribe(fn)
}
