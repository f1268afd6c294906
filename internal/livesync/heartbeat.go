package livesync

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// maxJitterFraction caps the optional schedule randomness. 0.2 = ±20%.
const maxJitterFraction = 0.2

var ErrHeartbeatRunning = errors.New("heartbeat: already running")

// Heartbeat is an explicitly owned recurring timer: Start acquires it, Stop
// releases it. The probe runs once immediately and then every interval.
// Probes run in their own goroutine and are not cancelled by Stop.
type Heartbeat struct {
	clock    clockwork.Clock
	interval time.Duration
	jitter   float64
	probe    func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHeartbeat(clock clockwork.Clock, interval time.Duration, jitter float64, probe func(ctx context.Context)) *Heartbeat {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter > maxJitterFraction {
		jitter = maxJitterFraction
	}
	return &Heartbeat{clock: clock, interval: interval, jitter: jitter, probe: probe}
}

func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return ErrHeartbeatRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	probeCtx := context.WithoutCancel(ctx)
	go h.loop(loopCtx, probeCtx, h.done)
	return nil
}

// Stop cancels the schedule and waits for the loop to exit. Safe to call
// more than once.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

func (h *Heartbeat) loop(ctx, probeCtx context.Context, done chan struct{}) {
	defer close(done)

	go h.probe(probeCtx)

	for {
		timer := h.clock.NewTimer(h.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
			go h.probe(probeCtx)
		}
	}
}

// nextDelay returns the interval plus a random jitter in ±jitter.
// Never less than 1ms to avoid hot loops.
func (h *Heartbeat) nextDelay() time.Duration {
	if h.interval <= 0 {
		return time.Millisecond
	}
	delay := h.interval
	if h.jitter > 0 {
		maxJitter := time.Duration(float64(h.interval) * h.jitter)
		delay += time.Duration(rand.Int63n(int64(maxJitter)*2+1)) - maxJitter
	}
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
