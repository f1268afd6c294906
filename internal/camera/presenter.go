package camera

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"autoeye-traffic-dashboard/internal/livesync"
	"autoeye-traffic-dashboard/internal/trafficapi"
)

// Phase is the snapshot card's display state.
type Phase string

const (
	PhaseNoReading           Phase = "no-reading"
	PhaseReadingWithoutImage Phase = "reading-without-image"
	PhaseImageLoading        Phase = "image-loading"
	PhaseImageError          Phase = "image-error"
	PhaseImageDisplayed      Phase = "image-displayed"
)

// View is the card content for the current phase.
type View struct {
	Phase     Phase     `json:"phase"`
	ReadingID string    `json:"reading_id,omitempty"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	DataURI   string    `json:"data_uri,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// ReadingFeed is the part of livesync.TrafficFeed the presenter needs.
type ReadingFeed interface {
	State() livesync.FeedState
	Subscribe(fn func(livesync.FeedState)) (unsubscribe func())
	Refresh(ctx context.Context) error
}

type Option func(*Presenter)

// WithHealthRefresh makes Refresh probe the backend health as well.
func WithHealthRefresh(fn func(ctx context.Context) error) Option {
	return func(p *Presenter) { p.healthRefresh = fn }
}

func WithDecoder(d Decoder) Option {
	return func(p *Presenter) { p.decoder = d }
}

// Presenter drives the camera snapshot card from the latest traffic reading.
type Presenter struct {
	feed          ReadingFeed
	healthRefresh func(ctx context.Context) error
	decoder       Decoder

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	view  View
	image string // image being loaded or shown
	gen   uint64 // bumps on every re-arm; stale decodes compare against it

	version  uint64
	notifyMu sync.Mutex
	notified uint64
	subs     map[int]func(View)
	nextSub  int

	unsubscribe func()
}

// New subscribes to feed and derives the initial view from its current state.
func New(ctx context.Context, feed ReadingFeed, opts ...Option) *Presenter {
	p := &Presenter{
		feed:    feed,
		decoder: ImageDecoder{},
		view:    View{Phase: PhaseNoReading},
		subs:    make(map[int]func(View)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.unsubscribe = feed.Subscribe(p.onFeed)
	p.onFeed(feed.State())
	return p
}

// Close detaches from the feed and abandons pending decodes.
func (p *Presenter) Close() {
	p.unsubscribe()
	p.cancel()
}

func (p *Presenter) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

func (p *Presenter) Subscribe(fn func(View)) (unsubscribe func()) {
	p.notifyMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.notifyMu.Lock()
			delete(p.subs, id)
			p.notifyMu.Unlock()
		})
	}
}

// Refresh is the card's load-data / refresh / retry action. An errored image
// is re-armed and decoded again; the traffic refresh and, when configured,
// the health refresh run concurrently and independently. The first error
// is returned after both finish.
func (p *Presenter) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.view.Phase == PhaseImageError {
		p.armLocked(p.image)
		p.publishLocked()
	} else {
		p.mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error { return p.feed.Refresh(ctx) })
	if p.healthRefresh != nil {
		g.Go(func() error { return p.healthRefresh(ctx) })
	}
	return g.Wait()
}

func latest(s livesync.FeedState) (trafficapi.TrafficReading, bool) {
	if len(s.Data) == 0 {
		return trafficapi.TrafficReading{}, false
	}
	return s.Data[0], true
}

func (p *Presenter) onFeed(s livesync.FeedState) {
	r, ok := latest(s)

	p.mu.Lock()
	switch {
	case !ok:
		p.image = ""
		p.gen++
		p.view = View{Phase: PhaseNoReading}

	case !r.HasImage():
		p.image = ""
		p.gen++
		p.view = View{
			Phase:     PhaseReadingWithoutImage,
			ReadingID: r.ID,
			Location:  r.Location,
			Timestamp: r.Timestamp,
		}

	case *r.Image == p.image:
		// same picture: keep the phase, refresh the metadata
		p.view.ReadingID = r.ID
		p.view.Location = r.Location
		p.view.Timestamp = r.Timestamp

	default:
		p.view = View{
			ReadingID: r.ID,
			Location:  r.Location,
			Timestamp: r.Timestamp,
		}
		p.armLocked(*r.Image)
	}
	p.publishLocked()
}

// armLocked resets the card to loading for img and starts a decode.
func (p *Presenter) armLocked(img string) {
	p.image = img
	p.gen++
	p.view.Phase = PhaseImageLoading
	p.view.DataURI = DataURI(img)
	p.view.Err = ""

	go p.decode(p.gen, img)
}

func (p *Presenter) decode(gen uint64, img string) {
	err := p.decoder.Decode(p.ctx, img)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("camera: image for reading %s failed to render: %v", p.view.ReadingID, err)
		p.view.Phase = PhaseImageError
		p.view.Err = err.Error()
	} else {
		p.view.Phase = PhaseImageDisplayed
		p.view.Err = ""
	}
	p.publishLocked()
}

// publishLocked must be called with mu held; it releases mu before any
// callback runs. Deliveries overtaken by a newer view are dropped.
func (p *Presenter) publishLocked() {
	p.version++
	ver, v := p.version, p.view
	p.mu.Unlock()

	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	if ver < p.notified {
		return
	}
	p.notified = ver

	for _, fn := range p.subs {
		fn(v)
	}
}
