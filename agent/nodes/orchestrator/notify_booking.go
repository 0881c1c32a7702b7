package orchestratornode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
)

// NotifyBooking publishes the booking once, on the turn that confirmed it. A failed
// notification never fails the turn; the booking is already committed.
func NotifyBooking(ctx context.Context, in *GraphState, notifier contractx.BookingNotifier) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if notifier == nil || in.Result.From == statex.StateConfirmed || in.Result.To != statex.StateConfirmed {
		return in, nil
	}

	if err := notifier.BookingConfirmed(ctx, bookingEvent(in.Session, in.Now)); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("booking notification failed")
		return in, nil
	}
	zerolog.Ctx(ctx).Info().Msg("booking notification sent")
	return in, nil
}

func bookingEvent(sess *statex.Session, now time.Time) contractx.BookingEvent {
	ev := contractx.BookingEvent{
		SessionID:   sess.ID,
		Channel:     string(sess.Channel),
		Username:    sess.Username,
		ContactNo:   sess.ContactNo,
		MoveDate:    sess.MoveDate,
		ConfirmedAt: now.UTC(),
	}
	if sess.EstimatedCostMin != nil && sess.EstimatedCostMax != nil {
		ev.EstimatedCostMin, ev.EstimatedCostMax = *sess.EstimatedCostMin, *sess.EstimatedCostMax
	}
	if d := sess.Detail; d != nil {
		ev.Origin = d.Origin
		ev.Destination = d.Destination
		ev.MoveSize = d.MoveSize
		ev.AdditionalServices = append([]string(nil), d.AdditionalServices...)
		ev.Email = d.Email
	}
	return ev
}
