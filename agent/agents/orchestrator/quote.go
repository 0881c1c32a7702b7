package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
	"github.com/tanpawarit/movebot/agent/validate"
	logx "github.com/tanpawarit/movebot/pkg/logger"
)

type QuoteRequest struct {
	SessionID   string   `json:"chat_id"`
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	MoveSize    string   `json:"move_size"`
	Services    []string `json:"additional_services"`
	MoveDate    string   `json:"move_date"`
	Username    string   `json:"username"`
	ContactNo   string   `json:"contact_no"`
}

type QuoteResult struct {
	SessionID string             `json:"chat_id"`
	Estimate  contractx.Estimate `json:"estimate"`
}

// Quote prices a move outside the conversation and records the estimate on the session,
// creating it when absent. The session ends up in COST_ESTIMATED.
func (o *Orchestrator) Quote(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	req.Origin = strings.TrimSpace(req.Origin)
	req.Destination = strings.TrimSpace(req.Destination)
	req.MoveSize = strings.TrimSpace(req.MoveSize)
	if req.Origin == "" || req.Destination == "" || req.MoveSize == "" {
		return QuoteResult{}, fmt.Errorf("%w: origin, destination and move_size are required", ErrInvalidQuote)
	}

	now := o.now()
	moveDate := ""
	if strings.TrimSpace(req.MoveDate) != "" {
		d, err := validate.MoveDate(req.MoveDate, now)
		if err != nil {
			return QuoteResult{}, fmt.Errorf("%w: %v", ErrInvalidQuote, err)
		}
		moveDate = d
	}

	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = o.newID()
	}
	ctx = logx.WithSession(ctx, id)

	services := statex.NormalizeServices(req.Services)
	est, err := o.pricing.Estimate(ctx, contractx.Quote{
		Origin:      req.Origin,
		Destination: req.Destination,
		MoveSize:    req.MoveSize,
		Services:    services,
		MoveDate:    moveDate,
	})
	if err != nil {
		return QuoteResult{}, err
	}
	if est.Min > est.Max {
		return QuoteResult{}, fmt.Errorf("%w: min %.2f > max %.2f", contractx.ErrPricingUnavailable, est.Min, est.Max)
	}

	unlock := o.lock(id)
	defer unlock()

	sess, err := o.store.Load(ctx, id)
	switch {
	case err == nil:
		if !sess.Active {
			return QuoteResult{}, ErrSessionEnded
		}
	case errors.Is(err, statex.ErrSessionNotFound):
		sess = statex.NewSession(id, statex.ChannelText, o.pickName(), now)
		o.metrics.SessionStarted()
	default:
		return QuoteResult{}, err
	}

	d := sess.EnsureDetail(now)
	d.Origin, d.Destination, d.MoveSize = req.Origin, req.Destination, req.MoveSize
	d.AdditionalServices = services
	if moveDate != "" {
		sess.SetMoveDate(moveDate)
	}
	if v := strings.TrimSpace(req.Username); v != "" {
		sess.SetUsername(v)
	}
	if v := strings.TrimSpace(req.ContactNo); v != "" {
		sess.SetContact(v)
	}
	sess.SetEstimate(est.Min, est.Max)
	sess.SetState(statex.StateCostEstimated)
	sess.Touch(now)

	if err := o.store.Commit(ctx, sess, nil); err != nil {
		return QuoteResult{}, err
	}

	zerolog.Ctx(ctx).Info().Float64("min", est.Min).Float64("max", est.Max).Msg("quote recorded")
	return QuoteResult{SessionID: id, Estimate: est}, nil
}
