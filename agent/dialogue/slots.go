package dialogue

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
	"github.com/tanpawarit/movebot/agent/validate"
)

// fillSlots is shared by every slot-collecting state. handled=false means the utterance
// carried no core field and the caller should fall back to a free-form reply.
func (e *Engine) fillSlots(ctx context.Context, turn Turn, p Policy) (res Result, handled bool) {
	sess := turn.Session
	log := zerolog.Ctx(ctx)

	ext, err := e.lang.ExtractFields(ctx, turn.Text)
	if err != nil {
		log.Warn().Err(err).Msg("field extraction failed")
		return Result{Reply: replyExtractFailed, Outcome: OutcomeOracleFailure, Oracle: OracleExtractor}, true
	}
	if !ext.HasCoreField() {
		return Result{}, false
	}

	d := sess.EnsureDetail(turn.Now)
	if v := value(ext.Origin); v != "" {
		d.Origin = v
	}
	if v := value(ext.Destination); v != "" {
		d.Destination = v
	}
	if v := value(ext.MoveSize); v != "" {
		d.MoveSize = v
	}
	if services := statex.NormalizeServices(ext.AdditionalServices); len(services) > 0 {
		d.AdditionalServices = services
	}
	if v := value(ext.Username); v != "" {
		sess.SetUsername(v)
	}
	if v := value(ext.ContactNo); v != "" {
		if !p.StrictContact {
			sess.SetContact(v)
		} else if normalized, err := validate.Contact(v); err == nil {
			sess.SetContact(normalized)
		}
	}
	if v := value(ext.MoveDate); v != "" {
		date, err := validate.MoveDate(v, turn.Now)
		if err != nil {
			log.Debug().Err(err).Str("raw", v).Msg("move date rejected")
			return Result{Reply: dateErrorReply(err), Outcome: OutcomeReprompt}, true
		}
		sess.SetMoveDate(date)
	}

	if missing := d.MissingCoreFields(); len(missing) > 0 {
		if sess.State != statex.StateModifyDetails {
			sess.SetState(collectingState(missing))
		}
		return Result{Reply: missingReply(missing), Outcome: OutcomeCollecting}, true
	}

	est, err := e.pricing.Estimate(ctx, quoteFor(d))
	if err == nil && est.Min > est.Max {
		err = contractx.ErrPricingUnavailable
	}
	if err != nil {
		log.Warn().Err(err).Msg("pricing failed")
		return Result{Reply: replyPricingFailed, Outcome: OutcomeOracleFailure, Oracle: OraclePricing}, true
	}

	sess.SetEstimate(est.Min, est.Max)
	sess.SetState(statex.StateCostEstimated)
	return Result{Reply: estimateReply(d, est, p), Outcome: OutcomeAdvanced}, true
}

// collectingState names the sub-step still in progress: the date alone, or the rest.
func collectingState(missing []string) statex.DialogueState {
	if len(missing) == 1 && missing[0] == "move date" {
		return statex.StateCollectingMoveDate
	}
	return statex.StateCollectingMoveSize
}

func value(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
