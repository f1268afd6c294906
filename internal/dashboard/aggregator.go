package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"autoeye-traffic-dashboard/internal/camera"
	"autoeye-traffic-dashboard/internal/livesync"
	"autoeye-traffic-dashboard/internal/trafficapi"
)

// View is everything the dashboard page renders, rebuilt on every change.
type View struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Traffic     TrafficView `json:"traffic"`
	Health      HealthView  `json:"health"`
	Camera      camera.View `json:"camera"`
}

type TrafficView struct {
	Loading   bool      `json:"loading"`
	Error     string    `json:"error"`
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
	Current   Stats     `json:"current"`
	History   []Stats   `json:"history"`
}

type HealthView struct {
	Online    bool                     `json:"online"`
	Status    *trafficapi.HealthStatus `json:"status"`
	Error     string                   `json:"error,omitempty"`
	CheckedAt time.Time                `json:"checked_at"`
}

// Transition is emitted when the backend flips between online and offline.
type Transition struct {
	From   bool
	To     bool
	At     time.Time
	Reason string
}

type FeedSource interface {
	State() livesync.FeedState
	Subscribe(fn func(livesync.FeedState)) (unsubscribe func())
	Refresh(ctx context.Context) error
}

type HealthSource interface {
	State() livesync.HealthState
	Subscribe(fn func(livesync.HealthState)) (unsubscribe func())
}

type CameraSource interface {
	View() camera.View
	Subscribe(fn func(camera.View)) (unsubscribe func())
}

type Config struct {
	// FollowHeartbeat refreshes the traffic feed after every successful
	// health probe.
	FollowHeartbeat bool
}

// Aggregator rebuilds the page view whenever one of its sources changes and
// reports liveness transitions.
type Aggregator struct {
	cfg     Config
	feed    FeedSource
	health  HealthSource
	cam     CameraSource
	publish func(View)
	events  chan<- Transition

	mu         sync.Mutex
	lastOnline *bool
}

// NewAggregator wires the sources together. events may be nil.
func NewAggregator(cfg Config, feed FeedSource, health HealthSource, cam CameraSource, publish func(View), events chan<- Transition) *Aggregator {
	return &Aggregator{
		cfg:     cfg,
		feed:    feed,
		health:  health,
		cam:     cam,
		publish: publish,
		events:  events,
	}
}

// Start subscribes to every source and publishes the initial view.
// The returned func detaches all subscriptions.
func (a *Aggregator) Start(ctx context.Context) (stop func()) {
	unsubs := []func(){
		a.feed.Subscribe(func(livesync.FeedState) { a.rebuild() }),
		a.health.Subscribe(func(s livesync.HealthState) { a.onHealth(ctx, s) }),
		a.cam.Subscribe(func(camera.View) { a.rebuild() }),
	}
	a.rebuild()

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (a *Aggregator) onHealth(ctx context.Context, s livesync.HealthState) {
	if !s.Loading {
		a.observeOnline(s)

		if a.cfg.FollowHeartbeat && s.Online {
			go func() {
				_ = a.feed.Refresh(ctx)
			}()
		}
	}
	a.rebuild()
}

func (a *Aggregator) observeOnline(s livesync.HealthState) {
	a.mu.Lock()
	prev := a.lastOnline
	now := s.Online
	a.lastOnline = &now
	a.mu.Unlock()

	// the first probe establishes the baseline
	if prev == nil || *prev == now {
		return
	}

	ev := Transition{From: *prev, To: now, At: s.UpdatedAt, Reason: s.Err}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if a.events == nil {
		return
	}

	// Non-blocking send: drop if the consumer is behind.
	select {
	case a.events <- ev:
	default:
		log.Printf("[WARN] events channel full; dropping transition %v->%v", ev.From, ev.To)
	}
}

func (a *Aggregator) rebuild() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publish(Build(a.feed.State(), a.health.State(), a.cam.View()))
}

// Build assembles a View from the three source states.
func Build(feed livesync.FeedState, health livesync.HealthState, cam camera.View) View {
	var latest *trafficapi.TrafficReading
	if len(feed.Data) > 0 {
		latest = &feed.Data[0]
	}

	return View{
		GeneratedAt: time.Now().UTC(),
		Traffic: TrafficView{
			Loading:   feed.Loading,
			Error:     feed.Err,
			Seq:       feed.Seq,
			UpdatedAt: feed.UpdatedAt,
			Current:   CurrentStats(latest),
			History:   History(feed.Data),
		},
		Health: HealthView{
			Online:    health.Online,
			Status:    health.Data,
			Error:     health.Err,
			CheckedAt: health.UpdatedAt,
		},
		Camera: cam,
	}
}
