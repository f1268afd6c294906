package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autoeye-traffic-dashboard/internal/livesync"
	"autoeye-traffic-dashboard/internal/trafficapi"
)

// fakeFeed is a hand-driven stand-in for livesync.TrafficFeed.
type fakeFeed struct {
	mu        sync.Mutex
	state     livesync.FeedState
	subs      []func(livesync.FeedState)
	refreshes atomic.Int32
	refresh   func(ctx context.Context) error
}

func (f *fakeFeed) State() livesync.FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeFeed) Subscribe(fn func(livesync.FeedState)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeFeed) Refresh(ctx context.Context) error {
	f.refreshes.Add(1)
	if f.refresh != nil {
		return f.refresh(ctx)
	}
	return nil
}

func (f *fakeFeed) push(rs ...trafficapi.TrafficReading) {
	f.mu.Lock()
	f.state = livesync.FeedState{Data: rs}
	subs := append([]func(livesync.FeedState){}, f.subs...)
	s := f.state
	f.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// gatedDecoder blocks each decode until the test answers it.
type gatedDecoder struct {
	calls chan decodeCall
}

type decodeCall struct {
	img   string
	reply chan error
}

func newGatedDecoder() *gatedDecoder {
	return &gatedDecoder{calls: make(chan decodeCall, 8)}
}

func (d *gatedDecoder) Decode(ctx context.Context, img string) error {
	c := decodeCall{img: img, reply: make(chan error, 1)}
	d.calls <- c
	return <-c.reply
}

func (d *gatedDecoder) next(t *testing.T) decodeCall {
	t.Helper()
	select {
	case c := <-d.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for decode")
	}
	return decodeCall{}
}

func strPtr(s string) *string { return &s }

func reading(id string, img *string) trafficapi.TrafficReading {
	return trafficapi.TrafficReading{
		ID:        id,
		Location:  "MainSt",
		Status:    trafficapi.StatusModerate,
		Timestamp: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		Image:     img,
	}
}

func waitPhase(t *testing.T, p *Presenter, want Phase) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v := p.View(); v.Phase == want {
			return v
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("phase: got %q want %q", p.View().Phase, want)
	return View{}
}

func TestPresenter_NoReading(t *testing.T) {
	feed := &fakeFeed{state: livesync.FeedState{Data: []trafficapi.TrafficReading{}}}
	p := New(context.Background(), feed, WithDecoder(newGatedDecoder()))
	defer p.Close()

	if v := p.View(); v.Phase != PhaseNoReading {
		t.Fatalf("phase: got %q want %q", v.Phase, PhaseNoReading)
	}
}

func TestPresenter_ReadingWithoutImage(t *testing.T) {
	feed := &fakeFeed{}
	p := New(context.Background(), feed, WithDecoder(newGatedDecoder()))
	defer p.Close()

	feed.push(reading("r1", nil))

	v := p.View()
	if v.Phase != PhaseReadingWithoutImage {
		t.Fatalf("phase: got %q", v.Phase)
	}
	if v.Location != "MainSt" || v.ReadingID != "r1" || v.Timestamp.IsZero() {
		t.Fatalf("metadata missing: %+v", v)
	}

	feed.push(reading("r2", strPtr("")))
	if v := p.View(); v.Phase != PhaseReadingWithoutImage {
		t.Fatalf("empty image should count as absent, phase %q", v.Phase)
	}
}

func TestPresenter_ImageLoadingThenDisplayed(t *testing.T) {
	dec := newGatedDecoder()
	feed := &fakeFeed{}
	p := New(context.Background(), feed, WithDecoder(dec))
	defer p.Close()

	feed.push(reading("r1", nil))
	if v := p.View(); v.Phase != PhaseReadingWithoutImage {
		t.Fatalf("phase: got %q", v.Phase)
	}

	feed.push(reading("r1", strPtr("AAAA")))
	v := p.View()
	if v.Phase != PhaseImageLoading {
		t.Fatalf("phase: got %q want loading", v.Phase)
	}
	if v.DataURI != "data:image/jpeg;base64,AAAA" {
		t.Fatalf("data uri: got %q", v.DataURI)
	}

	call := dec.next(t)
	if call.img != "AAAA" {
		t.Fatalf("decoded image: got %q", call.img)
	}
	call.reply <- nil

	waitPhase(t, p, PhaseImageDisplayed)
}

func TestPresenter_ErrorThenNewImageRearms(t *testing.T) {
	dec := newGatedDecoder()
	feed := &fakeFeed{}
	p := New(context.Background(), feed, WithDecoder(dec))
	defer p.Close()

	feed.push(reading("r1", strPtr("AAAA")))
	dec.next(t).reply <- errors.New("corrupt")
	v := waitPhase(t, p, PhaseImageError)
	if v.Err == "" {
		t.Fatalf("expected error text")
	}

	// same image again keeps the error banner
	feed.push(reading("r2", strPtr("AAAA")))
	if v := p.View(); v.Phase != PhaseImageError || v.ReadingID != "r2" {
		t.Fatalf("same image: %+v", v)
	}

	// a different image resets to loading and clears the error
	feed.push(reading("r3", strPtr("BBBB")))
	v = p.View()
	if v.Phase != PhaseImageLoading || v.Err != "" {
		t.Fatalf("new image should re-arm: %+v", v)
	}
	dec.next(t).reply <- nil
	waitPhase(t, p, PhaseImageDisplayed)
}

func TestPresenter_StaleDecodeIsDiscarded(t *testing.T) {
	dec := newGatedDecoder()
	feed := &fakeFeed{}
	p := New(context.Background(), feed, WithDecoder(dec))
	defer p.Close()

	feed.push(reading("r1", strPtr("AAAA")))
	first := dec.next(t)
	feed.push(reading("r2", strPtr("BBBB")))
	second := dec.next(t)

	first.reply <- errors.New("old image broken")
	time.Sleep(10 * time.Millisecond)
	if v := p.View(); v.Phase != PhaseImageLoading {
		t.Fatalf("stale decode leaked into view: %+v", v)
	}

	second.reply <- nil
	v := waitPhase(t, p, PhaseImageDisplayed)
	if v.ReadingID != "r2" {
		t.Fatalf("reading id: got %q", v.ReadingID)
	}
}

func TestPresenter_RefreshTriggersBothAndRetriesError(t *testing.T) {
	dec := newGatedDecoder()
	feed := &fakeFeed{}
	var healthCalls atomic.Int32
	p := New(context.Background(), feed,
		WithDecoder(dec),
		WithHealthRefresh(func(ctx context.Context) error {
			healthCalls.Add(1)
			return errors.New("backend offline")
		}),
	)
	defer p.Close()

	feed.push(reading("r1", strPtr("AAAA")))
	dec.next(t).reply <- errors.New("corrupt")
	waitPhase(t, p, PhaseImageError)

	err := p.Refresh(context.Background())
	if err == nil {
		t.Fatalf("health error should be returned")
	}
	if feed.refreshes.Load() != 1 || healthCalls.Load() != 1 {
		t.Fatalf("refreshes: traffic=%d health=%d", feed.refreshes.Load(), healthCalls.Load())
	}

	retry := dec.next(t)
	if retry.img != "AAAA" {
		t.Fatalf("retry decoded %q", retry.img)
	}
	retry.reply <- nil
	waitPhase(t, p, PhaseImageDisplayed)
}

func TestPresenter_RefreshWithoutHealthCallback(t *testing.T) {
	feed := &fakeFeed{}
	p := New(context.Background(), feed, WithDecoder(newGatedDecoder()))
	defer p.Close()

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh err=%v", err)
	}
	if feed.refreshes.Load() != 1 {
		t.Fatalf("expected one traffic refresh, got %d", feed.refreshes.Load())
	}
	if v := p.View(); v.Phase != PhaseNoReading {
		t.Fatalf("phase: got %q", v.Phase)
	}
}

type emptySource struct{}

func (emptySource) ListTraffic(ctx context.Context, f trafficapi.TrafficFilter) ([]trafficapi.TrafficReading, error) {
	return []trafficapi.TrafficReading{}, nil
}

func TestPresenter_EmptyFeedReportsNoReading(t *testing.T) {
	feed := livesync.NewTrafficFeed(emptySource{})
	p := New(context.Background(), feed, WithDecoder(newGatedDecoder()))
	defer p.Close()

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh err=%v", err)
	}

	s := feed.State()
	if s.Data == nil || len(s.Data) != 0 || s.Loading || s.Err != "" {
		t.Fatalf("feed state: %+v", s)
	}
	if v := p.View(); v.Phase != PhaseNoReading {
		t.Fatalf("phase: got %q", v.Phase)
	}
}

func TestImageDecoder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	good := base64.StdEncoding.EncodeToString(buf.Bytes())

	d := ImageDecoder{}
	if err := d.Decode(context.Background(), good); err != nil {
		t.Fatalf("valid jpeg rejected: %v", err)
	}
	if err := d.Decode(context.Background(), "not base64!"); err == nil {
		t.Fatalf("invalid base64 accepted")
	}
	if err := d.Decode(context.Background(), base64.StdEncoding.EncodeToString([]byte("hello"))); err == nil {
		t.Fatalf("non-image accepted")
	}
	if err := (ImageDecoder{MaxBytes: 8}).Decode(context.Background(), good); err == nil {
		t.Fatalf("size cap ignored")
	}
}
