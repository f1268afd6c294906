package alert

import (
	"context"
	"fmt"
	"log"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"autoeye-traffic-dashboard/internal/dashboard"
)

// messageSender is the part of *bot.Bot the notifier uses.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier posts a chat message whenever the traffic backend goes down or
// comes back.
type Notifier struct {
	sender messageSender
	chatID int64
	target string
}

// New returns a notifier for the given bot. A nil sender yields a notifier
// that only drains events.
func New(sender messageSender, chatID int64, target string) *Notifier {
	return &Notifier{sender: sender, chatID: chatID, target: target}
}

// NewTelegram builds a notifier backed by a Telegram bot. An empty token
// disables sending.
func NewTelegram(token string, chatID int64, target string) (*Notifier, error) {
	if token == "" {
		return New(nil, chatID, target), nil
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return New(b, chatID, target), nil
}

func (n *Notifier) Enabled() bool { return n.sender != nil }

// Run consumes transitions until events is closed or ctx is done.
func (n *Notifier) Run(ctx context.Context, events <-chan dashboard.Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.notify(ctx, ev)
		}
	}
}

func (n *Notifier) notify(ctx context.Context, ev dashboard.Transition) {
	if n.sender == nil {
		log.Printf("alert: backend %s (telegram disabled)", stateWord(ev.To))
		return
	}

	var msg string
	if !ev.To {
		msg = formatDownMessage(n.target, ev)
	} else {
		msg = formatUpMessage(n.target, ev)
	}

	if _, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   msg,
	}); err != nil {
		log.Printf("telegram send failed for %s: %v", n.target, err)
	}
}

func stateWord(online bool) string {
	if online {
		return "UP"
	}
	return "DOWN"
}

func formatDownMessage(target string, ev dashboard.Transition) string {
	statusLine := "Status: OFFLINE"
	if ev.Reason != "" {
		statusLine += fmt.Sprintf(" (%s)", ev.Reason)
	}

	return fmt.Sprintf("🚨 DOWN: %s\n%s\nAt: %s",
		target,
		statusLine,
		ev.At.UTC().Format("2006-01-02 15:04 MST"),
	)
}

func formatUpMessage(target string, ev dashboard.Transition) string {
	return fmt.Sprintf("✅ UP: %s\nStatus: ONLINE\nAt: %s",
		target,
		ev.At.UTC().Format("2006-01-02 15:04 MST"),
	)
}
