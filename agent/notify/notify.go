package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
)

// Publisher is the part of the QStash client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) (string, error)
}

// QStash publishes confirmed bookings to a fixed destination.
type QStash struct {
	publisher   Publisher
	destination string
}

func NewQStash(publisher Publisher, destination string) *QStash {
	return &QStash{publisher: publisher, destination: destination}
}

func (q *QStash) BookingConfirmed(ctx context.Context, ev contractx.BookingEvent) error {
	id, err := q.publisher.Publish(ctx, q.destination, ev)
	if err != nil {
		return fmt.Errorf("publish booking %s: %w", ev.SessionID, err)
	}
	zerolog.Ctx(ctx).Debug().Str("message_id", id).Msg("booking published")
	return nil
}

// Noop drops every event. Used when no queue is configured.
type Noop struct{}

func (Noop) BookingConfirmed(context.Context, contractx.BookingEvent) error { return nil }
