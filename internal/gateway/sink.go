package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/stellarlinkco/todoclaw/internal/bus"
	"github.com/stellarlinkco/todoclaw/internal/format"
	"github.com/stellarlinkco/todoclaw/internal/reminder"
)

// deliverFunc hands a rendered message to a transport.
type deliverFunc func(ctx context.Context, msg bus.OutboundMessage) error

// reminderSink renders scheduler events and delivers them to the chat they
// address. The recipient's team is the platform name, so it doubles as the
// channel to send through. Direct reminders go to the user's private chat,
// whose id equals the user id on every supported platform.
type reminderSink struct {
	deliver deliverFunc
	fmt     *format.Formatter
	now     func() time.Time
}

func newReminderSink(deliver deliverFunc, f *format.Formatter, now func() time.Time) *reminderSink {
	if now == nil {
		now = time.Now
	}
	return &reminderSink{deliver: deliver, fmt: f, now: now}
}

func (s *reminderSink) Send(ctx context.Context, to reminder.Recipient, ev reminder.Event) error {
	content := s.fmt.Reminder(ev, s.now())
	if content == "" {
		return fmt.Errorf("nothing to send for %s event", ev.Kind)
	}

	chatID := to.ChannelID
	if chatID == "" {
		chatID = to.UserID
	}
	if chatID == "" {
		return fmt.Errorf("recipient %s has no chat", to)
	}

	return s.deliver(ctx, bus.OutboundMessage{
		Channel:  to.TeamID,
		ChatID:   chatID,
		Content:  content,
		Metadata: map[string]any{"reminder": string(ev.Kind)},
	})
}
