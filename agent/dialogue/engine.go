package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	faqx "github.com/tanpawarit/movebot/agent/faq"
	statex "github.com/tanpawarit/movebot/agent/state"
	"github.com/tanpawarit/movebot/agent/validate"
)

// Outcome classifies what a step did. Soft failures are outcomes, not errors.
type Outcome string

const (
	// OutcomeAdvanced: the state moved forward.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeDeclined: a yes/no gate was answered no.
	OutcomeDeclined Outcome = "declined"
	// OutcomeCollecting: slots were filled but some core slots are still missing.
	OutcomeCollecting Outcome = "collecting"
	// OutcomeReprompt: the answer failed validation; the same question is asked again.
	OutcomeReprompt Outcome = "reprompt"
	// OutcomeOracleFailure: an oracle call failed; the state did not advance.
	OutcomeOracleFailure Outcome = "oracle_failure"
	OutcomeFAQ           Outcome = "faq"
	OutcomeFreeform      Outcome = "freeform"
)

// Oracle names used in Result.Oracle.
const (
	OracleExtractor = "extractor"
	OracleResponder = "responder"
	OraclePricing   = "pricing"
)

type Result struct {
	Reply   string
	Outcome Outcome
	From    statex.DialogueState
	To      statex.DialogueState
	// Oracle is set with OutcomeOracleFailure.
	Oracle string
}

// Turn is one utterance against a loaded session. Step mutates Session in place;
// the caller commits it.
type Turn struct {
	Session  *statex.Session
	Text     string
	Language string
	History  []statex.Message
	Now      time.Time
}

type Engine struct {
	lang    contractx.LanguageOracle
	pricing contractx.PricingOracle
	faq     contractx.FAQMatcher
	email   *validate.EmailValidator
}

// NewEngine wires the oracles. faq may be nil; a nil email validator checks syntax and typos only.
func NewEngine(
	lang contractx.LanguageOracle,
	pricing contractx.PricingOracle,
	faq contractx.FAQMatcher,
	email *validate.EmailValidator,
) *Engine {
	if email == nil {
		email = validate.NewEmailValidator(nil)
	}
	return &Engine{lang: lang, pricing: pricing, faq: faq, email: email}
}

// Step runs one transition. The returned error is reserved for internal failures;
// validation and oracle problems come back as a Result with a corrective reply.
func (e *Engine) Step(ctx context.Context, turn Turn, policy Policy) (Result, error) {
	sess := turn.Session
	if sess == nil {
		return Result{}, statex.ErrNilSession
	}
	if !sess.State.Valid() {
		return Result{}, fmt.Errorf("%w: %q", statex.ErrUnknownState, sess.State)
	}
	if turn.Now.IsZero() {
		turn.Now = time.Now()
	}
	turn.Text = strings.TrimSpace(turn.Text)

	from := sess.State
	res := e.step(ctx, turn, policy)
	res.From, res.To = from, sess.State
	sess.Touch(turn.Now)

	zerolog.Ctx(ctx).Info().
		Str("policy", policy.Name).
		Str("from", string(res.From)).
		Str("to", string(res.To)).
		Str("outcome", string(res.Outcome)).
		Msg("dialogue step")
	return res, nil
}

func (e *Engine) step(ctx context.Context, turn Turn, policy Policy) Result {
	if res, ok := e.answerFAQ(ctx, turn.Text); ok {
		return res
	}

	sess := turn.Session
	switch sess.State {
	case statex.StateInitial, statex.StateCollectingMoveSize, statex.StateCollectingMoveDate, statex.StateModifyDetails:
		if res, handled := e.fillSlots(ctx, turn, policy); handled {
			return res
		}
	case statex.StateCostEstimated:
		return e.onEstimate(ctx, sess, turn.Text, policy)
	case statex.StateAwaitingServices:
		return e.onServices(ctx, sess, turn.Text, policy)
	case statex.StateAwaitingEmail:
		return e.onEmail(ctx, sess, turn.Text, policy)
	case statex.StateAwaitingName:
		return e.onName(sess, turn.Text, policy)
	case statex.StateAwaitingContact:
		return e.onContact(sess, turn, policy)
	case statex.StateAwaitingFinalConfirmation:
		return e.onConfirm(sess, turn.Text, policy)
	}
	return e.freeform(ctx, turn)
}

// answerFAQ short-circuits the state machine for trigger keywords. No match or a
// matcher failure falls through to the state logic.
func (e *Engine) answerFAQ(ctx context.Context, text string) (Result, bool) {
	if e.faq == nil || !faqx.IsTrigger(text) {
		return Result{}, false
	}
	answer, ok, err := e.faq.Match(ctx, text)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("faq match failed")
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	return Result{Reply: answer, Outcome: OutcomeFAQ}, true
}

func (e *Engine) onEstimate(ctx context.Context, sess *statex.Session, text string, p Policy) Result {
	switch p.answer(text) {
	case answerYes:
		sess.SetState(statex.StateAwaitingServices)
		var costs *contractx.ServiceCosts
		if d := sess.Detail; d != nil && d.MoveSize != "" {
			c, err := e.pricing.ServiceCosts(ctx, d.MoveSize)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("size", d.MoveSize).Msg("service costs unavailable")
			} else {
				costs = &c
			}
		}
		return Result{Reply: servicesOffer(costs, p), Outcome: OutcomeAdvanced}
	case answerNo:
		sess.SetState(statex.StateInitial)
		return Result{Reply: replyDeclineEstimate, Outcome: OutcomeDeclined}
	default:
		return Result{Reply: estimatePrompt(p), Outcome: OutcomeReprompt}
	}
}

func (e *Engine) onServices(ctx context.Context, sess *statex.Session, text string, p Policy) Result {
	d := sess.Detail
	if d == nil {
		return Result{Reply: replyNoDetails, Outcome: OutcomeReprompt}
	}

	services, declined := parseServices(text)
	if len(services) == 0 && !declined && p.RepromptUnknownServices {
		return Result{Reply: replyUnknownServices, Outcome: OutcomeReprompt}
	}
	d.AdditionalServices = services

	// A failed re-price keeps the previous estimate.
	if est, err := e.pricing.Estimate(ctx, quoteFor(d)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("re-price with services failed")
	} else if est.Min <= est.Max {
		sess.SetEstimate(est.Min, est.Max)
	}

	sess.SetState(statex.StateAwaitingEmail)
	return Result{Reply: servicesAck(services, declined, p), Outcome: OutcomeAdvanced}
}

func (e *Engine) onEmail(ctx context.Context, sess *statex.Session, text string, p Policy) Result {
	d := sess.Detail
	if d == nil {
		return Result{Reply: replyNoDetails, Outcome: OutcomeReprompt}
	}

	addr := text
	if p.StrictEmail {
		normalized, err := e.email.Validate(ctx, text)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("email rejected")
			return Result{Reply: emailErrorReply(err), Outcome: OutcomeReprompt}
		}
		addr = normalized
	} else if addr == "" {
		return Result{Reply: replyBadEmail, Outcome: OutcomeReprompt}
	}

	d.Email = addr
	sess.SetState(statex.StateAwaitingName)
	return Result{Reply: replyAskName, Outcome: OutcomeAdvanced}
}

func (e *Engine) onName(sess *statex.Session, text string, p Policy) Result {
	if text == "" {
		return Result{Reply: namePrompt(p), Outcome: OutcomeReprompt}
	}
	sess.SetUsername(text)
	sess.SetState(statex.StateAwaitingContact)
	return Result{Reply: replyAskContact, Outcome: OutcomeAdvanced}
}

func (e *Engine) onContact(sess *statex.Session, turn Turn, p Policy) Result {
	contact := turn.Text
	if p.StrictContact {
		normalized, err := validate.Contact(turn.Text)
		if err != nil {
			return Result{Reply: replyBadContact, Outcome: OutcomeReprompt}
		}
		contact = normalized
	} else if contact == "" {
		return Result{Reply: replyBadContact, Outcome: OutcomeReprompt}
	}

	d := sess.EnsureDetail(turn.Now)
	sess.SetContact(contact)
	sess.SetState(statex.StateAwaitingFinalConfirmation)
	return Result{Reply: summaryReply(sess, d, p), Outcome: OutcomeAdvanced}
}

func (e *Engine) onConfirm(sess *statex.Session, text string, p Policy) Result {
	switch p.answer(text) {
	case answerYes:
		sess.Confirm()
		return Result{Reply: confirmedReply(p), Outcome: OutcomeAdvanced}
	case answerNo:
		sess.SetState(statex.StateModifyDetails)
		return Result{Reply: modifyPrompt(p), Outcome: OutcomeDeclined}
	default:
		return Result{Reply: confirmPrompt(p), Outcome: OutcomeReprompt}
	}
}

func (e *Engine) freeform(ctx context.Context, turn Turn) Result {
	lang := turn.Language
	if lang == "" {
		lang = contractx.DefaultLanguage
	}
	reply, err := e.lang.GenerateReply(ctx, contractx.ReplyRequest{
		AssistantName: turn.Session.AssistantName,
		Language:      lang,
		History:       turn.History,
		Text:          turn.Text,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("free-form reply failed")
		return Result{Reply: replyApology, Outcome: OutcomeOracleFailure, Oracle: OracleResponder}
	}
	return Result{Reply: reply, Outcome: OutcomeFreeform}
}

func quoteFor(d *statex.MoveDetail) contractx.Quote {
	return contractx.Quote{
		Origin:      d.Origin,
		Destination: d.Destination,
		MoveSize:    d.MoveSize,
		Services:    append([]string(nil), d.AdditionalServices...),
		MoveDate:    d.MoveDate,
	}
}
