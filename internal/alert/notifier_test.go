package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"autoeye-traffic-dashboard/internal/dashboard"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*bot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{}, nil
}

var at = time.Date(2026, 3, 4, 5, 6, 0, 0, time.UTC)

func TestFormatDownMessage(t *testing.T) {
	got := formatDownMessage("traffic-api", dashboard.Transition{From: true, To: false, At: at, Reason: "connection refused"})
	want := "🚨 DOWN: traffic-api\nStatus: OFFLINE (connection refused)\nAt: 2026-03-04 05:06 UTC"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	got = formatDownMessage("traffic-api", dashboard.Transition{At: at})
	want = "🚨 DOWN: traffic-api\nStatus: OFFLINE\nAt: 2026-03-04 05:06 UTC"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormatUpMessage(t *testing.T) {
	got := formatUpMessage("traffic-api", dashboard.Transition{From: false, To: true, At: at})
	want := "✅ UP: traffic-api\nStatus: ONLINE\nAt: 2026-03-04 05:06 UTC"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestNotifier_RunSendsEachTransition(t *testing.T) {
	s := &fakeSender{}
	n := New(s, 42, "traffic-api")

	events := make(chan dashboard.Transition, 2)
	events <- dashboard.Transition{From: true, To: false, At: at}
	events <- dashboard.Transition{From: false, To: true, At: at}
	close(events)

	n.Run(context.Background(), events)

	if len(s.sent) != 2 {
		t.Fatalf("sent %d messages want 2", len(s.sent))
	}
	if s.sent[0].ChatID != int64(42) {
		t.Fatalf("chat id: %v", s.sent[0].ChatID)
	}
}

func TestNotifier_SendFailureIsNotFatal(t *testing.T) {
	s := &fakeSender{err: errors.New("telegram down")}
	n := New(s, 1, "traffic-api")

	events := make(chan dashboard.Transition, 2)
	events <- dashboard.Transition{To: false, At: at}
	events <- dashboard.Transition{To: true, At: at}
	close(events)

	n.Run(context.Background(), events)
	if len(s.sent) != 2 {
		t.Fatalf("notifier stopped after a failed send: %d", len(s.sent))
	}
}

func TestNotifier_DisabledWithoutToken(t *testing.T) {
	n, err := NewTelegram("", 1, "traffic-api")
	if err != nil {
		t.Fatalf("NewTelegram err=%v", err)
	}
	if n.Enabled() {
		t.Fatalf("notifier enabled without a token")
	}

	events := make(chan dashboard.Transition, 1)
	events <- dashboard.Transition{To: false, At: at}
	close(events)
	n.Run(context.Background(), events)
}

func TestNotifier_StopsOnContextCancel(t *testing.T) {
	n := New(&fakeSender{}, 1, "traffic-api")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx, make(chan dashboard.Transition))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
