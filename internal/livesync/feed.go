package livesync

import (
	"context"
	"log"

	"github.com/jonboulle/clockwork"

	"autoeye-traffic-dashboard/internal/trafficapi"
)

// ErrTrafficLoad is the message shown while the feed is in its failed state.
const ErrTrafficLoad = "Failed to load traffic data"

// TrafficSource is the data client call the feed depends on.
type TrafficSource interface {
	ListTraffic(ctx context.Context, f trafficapi.TrafficFilter) ([]trafficapi.TrafficReading, error)
}

type FeedState = State[[]trafficapi.TrafficReading]

type FeedOption func(*TrafficFeed)

// WithFilter restricts the feed to one location and/or status.
func WithFilter(f trafficapi.TrafficFilter) FeedOption {
	return func(t *TrafficFeed) { t.filter = f }
}

func WithApplyPolicy(p ApplyPolicy) FeedOption {
	return func(t *TrafficFeed) { t.policy = p }
}

func WithFeedClock(c clockwork.Clock) FeedOption {
	return func(t *TrafficFeed) { t.clock = c }
}

// TrafficFeed mirrors the backend's traffic list. It never polls on its own;
// callers drive Refresh. A failed refresh keeps the previous data on screen.
type TrafficFeed struct {
	src    TrafficSource
	filter trafficapi.TrafficFilter
	policy ApplyPolicy
	clock  clockwork.Clock
	st     *store[[]trafficapi.TrafficReading]
}

func NewTrafficFeed(src TrafficSource, opts ...FeedOption) *TrafficFeed {
	f := &TrafficFeed{
		src:    src,
		policy: LastResolvedWins,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.st = newStore(FeedState{
		Data:    []trafficapi.TrafficReading{},
		Loading: true,
	})
	return f
}

// Start performs the mount-time refresh in the background.
func (f *TrafficFeed) Start(ctx context.Context) {
	go func() {
		_ = f.Refresh(ctx)
	}()
}

// Refresh fetches the list once. Overlapping calls are not coalesced; which
// result sticks is decided by the feed's ApplyPolicy.
func (f *TrafficFeed) Refresh(ctx context.Context) error {
	seq := f.st.begin(func(s *FeedState) {
		s.Loading = true
		s.Err = ""
	})

	readings, err := f.src.ListTraffic(ctx, f.filter)
	if err != nil {
		log.Printf("traffic feed: refresh #%d failed: %v", seq, err)
		f.st.resolve(seq, f.policy, f.clock.Now(), func(s *FeedState) {
			s.Err = ErrTrafficLoad
			s.Loading = false
		})
		return err
	}

	if readings == nil {
		readings = []trafficapi.TrafficReading{}
	}
	if !f.st.resolve(seq, f.policy, f.clock.Now(), func(s *FeedState) {
		s.Data = readings
		s.Err = ""
		s.Loading = false
	}) {
		log.Printf("traffic feed: discarded stale refresh #%d", seq)
	}
	return nil
}

func (f *TrafficFeed) State() FeedState {
	return f.st.get()
}

// Latest returns the first reading of the current list; the backend sends
// most recent first.
func (f *TrafficFeed) Latest() (trafficapi.TrafficReading, bool) {
	s := f.st.get()
	if len(s.Data) == 0 {
		return trafficapi.TrafficReading{}, false
	}
	return s.Data[0], true
}

// Subscribe registers fn for every state change. fn must not call back into
// the feed synchronously.
func (f *TrafficFeed) Subscribe(fn func(FeedState)) (unsubscribe func()) {
	return f.st.subscribe(fn)
}
