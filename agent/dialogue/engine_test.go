package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
)

var today = time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC)

type fakeLang struct {
	extractions  map[string]contractx.Extraction
	extractErr   error
	reply        string
	replyErr     error
	extractCalls int
	replyCalls   int
	lastReply    contractx.ReplyRequest
}

func (f *fakeLang) ExtractFields(_ context.Context, text string) (contractx.Extraction, error) {
	f.extractCalls++
	if f.extractErr != nil {
		return contractx.Extraction{}, f.extractErr
	}
	return f.extractions[text], nil
}

func (f *fakeLang) GenerateReply(_ context.Context, req contractx.ReplyRequest) (string, error) {
	f.replyCalls++
	f.lastReply = req
	if f.replyErr != nil {
		return "", f.replyErr
	}
	return f.reply, nil
}

func (f *fakeLang) DetectLanguage(context.Context, string) (string, error) {
	return contractx.DefaultLanguage, nil
}

type fakePricing struct {
	est      contractx.Estimate
	err      error
	costs    contractx.ServiceCosts
	costsErr error
	quotes   []contractx.Quote
}

func (f *fakePricing) Estimate(_ context.Context, q contractx.Quote) (contractx.Estimate, error) {
	f.quotes = append(f.quotes, q)
	if f.err != nil {
		return contractx.Estimate{}, f.err
	}
	est := f.est
	// Each service adds 100 to both bounds so re-pricing is observable.
	for range q.Services {
		est.Min += 100
		est.Max += 100
	}
	return est, nil
}

func (f *fakePricing) ServiceCosts(context.Context, string) (contractx.ServiceCosts, error) {
	return f.costs, f.costsErr
}

func (f *fakePricing) Distance(context.Context, string, string) (float64, error) {
	return f.est.DistanceMiles, f.err
}

type fakeFAQ struct {
	answers map[string]string
	err     error
}

func (f *fakeFAQ) Match(_ context.Context, text string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	for k, v := range f.answers {
		if strings.Contains(strings.ToLower(text), k) {
			return v, true, nil
		}
	}
	return "", false, nil
}

func ptr(s string) *string { return &s }

type harness struct {
	lang    *fakeLang
	pricing *fakePricing
	faq     *fakeFAQ
	engine  *Engine
}

func newHarness() *harness {
	h := &harness{
		lang: &fakeLang{
			extractions: map[string]contractx.Extraction{},
			reply:       "Happy to help with your move! 🚚",
		},
		pricing: &fakePricing{
			est:   contractx.Estimate{DistanceMiles: 195.4, Min: 840, Max: 1210},
			costs: contractx.ServiceCosts{Packing: 400, Storage: 200},
		},
		faq: &fakeFAQ{answers: map[string]string{"refund": "Deposits are refundable up to 72 hours before the move."}},
	}
	h.engine = NewEngine(h.lang, h.pricing, h.faq, nil)
	return h
}

func (h *harness) step(t *testing.T, sess *statex.Session, text string, p Policy) Result {
	t.Helper()
	res, err := h.engine.Step(context.Background(), Turn{Session: sess, Text: text, Now: today}, p)
	if err != nil {
		t.Fatalf("Step(%q) error = %v", text, err)
	}
	if err := sess.Validate(); err != nil {
		t.Fatalf("session invalid after %q: %v", text, err)
	}
	return res
}

func newSession() *statex.Session {
	return statex.NewSession("chat-1", statex.ChannelText, "Ava", today.Add(-time.Hour))
}

// sessionIn returns a session with all core slots filled and an estimate, parked in state.
func sessionIn(state statex.DialogueState) *statex.Session {
	sess := newSession()
	d := sess.EnsureDetail(today)
	d.Origin, d.Destination, d.MoveSize = "austin", "dallas", "2 bedroom"
	sess.SetMoveDate("2099-01-01")
	sess.SetEstimate(840, 1210)
	sess.SetState(state)
	return sess
}

func fullExtraction() contractx.Extraction {
	return contractx.Extraction{
		Origin:      ptr("Austin"),
		Destination: ptr("Dallas"),
		MoveSize:    ptr("2 bedroom"),
		MoveDate:    ptr("2099-01-01"),
	}
}

func TestFullUtteranceProducesEstimate(t *testing.T) {
	t.Parallel()

	h := newHarness()
	text := "move from Austin to Dallas, 2 bedroom, on 2099-01-01"
	h.lang.extractions[text] = fullExtraction()
	sess := newSession()

	res := h.step(t, sess, text, TextPolicy)

	if res.To != statex.StateCostEstimated || sess.State != statex.StateCostEstimated {
		t.Fatalf("state = %s, want COST_ESTIMATED", sess.State)
	}
	if res.From != statex.StateInitial || res.Outcome != OutcomeAdvanced {
		t.Fatalf("unexpected result %+v", res)
	}
	want := "The estimated cost for moving from Austin to Dallas (2 Bedroom, date: 2099-01-01) is between $840 and $1210."
	if !strings.HasPrefix(res.Reply, want) {
		t.Fatalf("reply = %q", res.Reply)
	}
	if len(h.pricing.quotes) != 1 {
		t.Fatalf("pricing called %d times, want 1", len(h.pricing.quotes))
	}
	if *sess.EstimatedCostMin != 840 || *sess.Detail.EstimatedCostMax != 1210 {
		t.Fatal("estimate not stored on session and detail")
	}
	if sess.Detail.State != sess.State || sess.MoveDate != "2099-01-01" {
		t.Fatalf("detail not kept in step: %+v", sess.Detail)
	}
}

func TestYesAfterEstimateOffersPricedServices(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateCostEstimated)

	res := h.step(t, sess, "yes", TextPolicy)

	if sess.State != statex.StateAwaitingServices {
		t.Fatalf("state = %s", sess.State)
	}
	for _, want := range []string{"packing (cost: $400)", "storage (cost: $200)", "type 'no'"} {
		if !strings.Contains(res.Reply, want) {
			t.Fatalf("reply %q missing %q", res.Reply, want)
		}
	}
}

func TestEstimateGate(t *testing.T) {
	t.Parallel()

	h := newHarness()

	sess := sessionIn(statex.StateCostEstimated)
	res := h.step(t, sess, "maybe later", TextPolicy)
	if sess.State != statex.StateCostEstimated || res.Outcome != OutcomeReprompt {
		t.Fatalf("unexpected %+v", res)
	}

	res = h.step(t, sess, "👎", TextPolicy)
	if sess.State != statex.StateInitial || res.Reply != replyDeclineEstimate {
		t.Fatalf("unexpected %+v", res)
	}

	// Without service prices the offer is generic.
	h.pricing.costsErr = errors.New("no rate")
	sess = sessionIn(statex.StateCostEstimated)
	res = h.step(t, sess, "y", TextPolicy)
	if sess.State != statex.StateAwaitingServices || strings.Contains(res.Reply, "$") {
		t.Fatalf("unexpected %+v", res)
	}
}

func TestInvalidContactIsRejected(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateAwaitingContact)

	res := h.step(t, sess, "12a", TextPolicy)

	if sess.State != statex.StateAwaitingContact || res.Outcome != OutcomeReprompt {
		t.Fatalf("unexpected %+v", res)
	}
	if !strings.Contains(res.Reply, "valid 10-digit contact number") {
		t.Fatalf("reply = %q", res.Reply)
	}
	if sess.ContactNo != "" {
		t.Fatalf("contact stored: %q", sess.ContactNo)
	}

	for _, bad := range []string{"123456789", "12345678901"} {
		if h.step(t, sess, bad, TextPolicy).Outcome != OutcomeReprompt {
			t.Fatalf("%q accepted", bad)
		}
	}

	res = h.step(t, sess, "(512) 555-0100", TextPolicy)
	if sess.State != statex.StateAwaitingFinalConfirmation || sess.ContactNo != "5125550100" {
		t.Fatalf("contact not normalized: %q state %s", sess.ContactNo, sess.State)
	}
	if sess.Detail.ContactNo != "5125550100" {
		t.Fatal("contact not mirrored onto move detail")
	}
	if !strings.Contains(res.Reply, "📞 Contact No: 5125550100") || !strings.Contains(res.Reply, "💰 Estimated Cost: $840 - $1210") {
		t.Fatalf("summary = %q", res.Reply)
	}
}

func TestRejectThenModifyDate(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateAwaitingFinalConfirmation)

	res := h.step(t, sess, "no", TextPolicy)
	if sess.State != statex.StateModifyDetails || res.Outcome != OutcomeDeclined {
		t.Fatalf("unexpected %+v", res)
	}

	text := "actually move date is 2099-02-02"
	h.lang.extractions[text] = contractx.Extraction{MoveDate: ptr("2099-02-02")}
	res = h.step(t, sess, text, TextPolicy)

	if sess.State != statex.StateCostEstimated {
		t.Fatalf("state = %s, want COST_ESTIMATED", sess.State)
	}
	if sess.MoveDate != "2099-02-02" || sess.Detail.MoveDate != "2099-02-02" {
		t.Fatalf("date not updated: %q", sess.MoveDate)
	}
	if len(h.pricing.quotes) != 1 || h.pricing.quotes[0].MoveDate != "2099-02-02" {
		t.Fatalf("unexpected quotes %+v", h.pricing.quotes)
	}
	if !strings.Contains(res.Reply, "date: 2099-02-02") {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestFAQBypassesStateMachine(t *testing.T) {
	t.Parallel()

	states := []statex.DialogueState{
		statex.StateInitial,
		statex.StateCollectingMoveDate,
		statex.StateCostEstimated,
		statex.StateAwaitingServices,
		statex.StateAwaitingEmail,
		statex.StateAwaitingContact,
		statex.StateAwaitingFinalConfirmation,
		statex.StateModifyDetails,
	}
	for _, st := range states {
		h := newHarness()
		sess := sessionIn(st)
		before := sess.Clone()

		res := h.step(t, sess, "What is your refund policy?", TextPolicy)

		if res.Outcome != OutcomeFAQ || !strings.Contains(res.Reply, "refundable") {
			t.Fatalf("%s: unexpected %+v", st, res)
		}
		if sess.State != st || res.To != st {
			t.Fatalf("%s: state changed to %s", st, sess.State)
		}
		if sess.Detail.Origin != before.Detail.Origin || sess.Detail.MoveDate != before.Detail.MoveDate ||
			len(sess.Detail.AdditionalServices) != len(before.Detail.AdditionalServices) || sess.Detail.Email != before.Detail.Email {
			t.Fatalf("%s: move detail changed", st)
		}
		if h.lang.extractCalls != 0 || len(h.pricing.quotes) != 0 {
			t.Fatalf("%s: oracles called on faq turn", st)
		}
	}
}

func TestFAQNoMatchFallsThrough(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateCostEstimated)

	// "payment" is a trigger keyword but the fake has no answer for it.
	res := h.step(t, sess, "payment", TextPolicy)
	if res.Outcome != OutcomeReprompt || sess.State != statex.StateCostEstimated {
		t.Fatalf("expected state logic to handle the turn, got %+v", res)
	}

	h.faq.err = errors.New("embedding down")
	sess = newSession()
	res = h.step(t, sess, "refund please", TextPolicy)
	if res.Outcome != OutcomeFreeform {
		t.Fatalf("matcher failure should fall through, got %+v", res)
	}
}

func TestPastDateIsRejectedOnEveryChannel(t *testing.T) {
	t.Parallel()

	for _, p := range []Policy{TextPolicy, VoicePolicy, VoicePassThroughPolicy} {
		h := newHarness()
		text := "Austin to Dallas 2 bedroom on 2020-01-01"
		ext := fullExtraction()
		ext.MoveDate = ptr("2020-01-01")
		h.lang.extractions[text] = ext
		sess := newSession()

		res := h.step(t, sess, text, p)

		if sess.State != statex.StateInitial || res.Outcome != OutcomeReprompt {
			t.Fatalf("%s: unexpected %+v state %s", p.Name, res, sess.State)
		}
		want := "The date you provided is in the past. Please provide a future date. Please provide a valid future date."
		if res.Reply != want {
			t.Fatalf("%s: reply = %q", p.Name, res.Reply)
		}
		if sess.MoveDate != "" || len(h.pricing.quotes) != 0 {
			t.Fatalf("%s: past date stored or priced", p.Name)
		}
		// Other fields from the same utterance are kept.
		if sess.Detail.Origin != "Austin" {
			t.Fatalf("%s: origin lost", p.Name)
		}
	}
}

func TestUnparseableDate(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.lang.extractions["whenever"] = contractx.Extraction{MoveDate: ptr("no idea")}
	sess := newSession()

	res := h.step(t, sess, "whenever", TextPolicy)
	if !strings.HasPrefix(res.Reply, "Invalid date format.") || sess.State != statex.StateInitial {
		t.Fatalf("unexpected %+v", res)
	}
}

func TestPartialFillNamesMissingFieldsInOrder(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.lang.extractions["from Austin"] = contractx.Extraction{Origin: ptr("Austin")}
	h.lang.extractions["to Dallas, 2 bedroom"] = contractx.Extraction{Destination: ptr("Dallas"), MoveSize: ptr("2 bedroom")}
	h.lang.extractions["next year on 2099-01-01"] = contractx.Extraction{MoveDate: ptr("2099-01-01")}
	sess := newSession()

	res := h.step(t, sess, "from Austin", TextPolicy)
	if res.Reply != "I still need your destination, move size, move date to provide an estimate." {
		t.Fatalf("reply = %q", res.Reply)
	}
	if sess.State != statex.StateCollectingMoveSize || res.Outcome != OutcomeCollecting {
		t.Fatalf("unexpected %+v", res)
	}

	// Re-submitting the same origin does not change the prompt.
	again := h.step(t, sess, "from Austin", TextPolicy)
	if again.Reply != res.Reply {
		t.Fatalf("prompt changed: %q vs %q", again.Reply, res.Reply)
	}

	res = h.step(t, sess, "to Dallas, 2 bedroom", TextPolicy)
	if res.Reply != "I still need your move date to provide an estimate." || sess.State != statex.StateCollectingMoveDate {
		t.Fatalf("unexpected %+v state %s", res, sess.State)
	}
	if len(h.pricing.quotes) != 0 {
		t.Fatal("priced before all core slots were filled")
	}

	h.step(t, sess, "next year on 2099-01-01", TextPolicy)
	if sess.State != statex.StateCostEstimated || len(h.pricing.quotes) != 1 {
		t.Fatalf("state %s quotes %d", sess.State, len(h.pricing.quotes))
	}
}

func TestPricingFailureKeepsState(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.pricing.err = contractx.ErrPricingUnavailable
	text := "move from Austin to Dallas, 2 bedroom, on 2099-01-01"
	h.lang.extractions[text] = fullExtraction()
	sess := newSession()

	res := h.step(t, sess, text, TextPolicy)
	if res.Outcome != OutcomeOracleFailure || res.Reply != replyPricingFailed || res.Oracle != OraclePricing {
		t.Fatalf("unexpected %+v", res)
	}
	if sess.State != statex.StateInitial || sess.EstimatedCostMin != nil {
		t.Fatalf("state advanced on pricing failure: %s", sess.State)
	}
}

func TestExtractionFailureIsSoft(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.lang.extractErr = contractx.ErrModelInvoke
	sess := newSession()

	res := h.step(t, sess, "move me", TextPolicy)
	if res.Outcome != OutcomeOracleFailure || res.Oracle != OracleExtractor || sess.State != statex.StateInitial {
		t.Fatalf("unexpected %+v", res)
	}
	if sess.Detail != nil {
		t.Fatal("detail created on failed extraction")
	}
}

func TestNoCoreFieldFallsBackToFreeform(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := newSession()
	history := []statex.Message{{Sender: statex.RoleAssistant, Text: "Hello!"}}

	res, err := h.engine.Step(context.Background(), Turn{Session: sess, Text: "who are you?", History: history, Language: "fr", Now: today}, TextPolicy)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if res.Outcome != OutcomeFreeform || res.Reply != h.lang.reply {
		t.Fatalf("unexpected %+v", res)
	}
	if h.lang.lastReply.AssistantName != "Ava" || h.lang.lastReply.Language != "fr" || len(h.lang.lastReply.History) != 1 {
		t.Fatalf("unexpected reply request %+v", h.lang.lastReply)
	}

	h.lang.replyErr = errors.New("model down")
	res = h.step(t, sess, "who are you?", TextPolicy)
	if res.Outcome != OutcomeOracleFailure || res.Reply != replyApology || sess.State != statex.StateInitial {
		t.Fatalf("unexpected %+v", res)
	}
}

func TestServicesStep(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateAwaitingServices)

	res := h.step(t, sess, "hmm", TextPolicy)
	if res.Outcome != OutcomeReprompt || sess.State != statex.StateAwaitingServices {
		t.Fatalf("unknown services must re-prompt on text: %+v", res)
	}

	res = h.step(t, sess, "yes storage and packing please", TextPolicy)
	if sess.State != statex.StateAwaitingEmail || res.Reply != replyAskEmail {
		t.Fatalf("unexpected %+v", res)
	}
	if got := strings.Join(sess.Detail.AdditionalServices, ","); got != "packing,storage" {
		t.Fatalf("services = %q", got)
	}
	if *sess.EstimatedCostMin != 1040 || *sess.EstimatedCostMax != 1410 {
		t.Fatalf("estimate not recomputed: %v-%v", *sess.EstimatedCostMin, *sess.EstimatedCostMax)
	}

	sess = sessionIn(statex.StateAwaitingServices)
	sess.Detail.AdditionalServices = []string{"packing"}
	h.step(t, sess, "none", TextPolicy)
	if len(sess.Detail.AdditionalServices) != 0 || sess.State != statex.StateAwaitingEmail {
		t.Fatalf("decline not applied: %+v", sess.Detail.AdditionalServices)
	}

	// A failed re-price keeps the previous estimate and still advances.
	h.pricing.err = errors.New("maps down")
	sess = sessionIn(statex.StateAwaitingServices)
	h.step(t, sess, "packing", TextPolicy)
	if sess.State != statex.StateAwaitingEmail || *sess.EstimatedCostMin != 840 {
		t.Fatalf("unexpected state %s min %v", sess.State, *sess.EstimatedCostMin)
	}
}

func TestVoiceServicesAssumeNone(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateAwaitingServices)

	res := h.step(t, sess, "umm I am not sure", VoicePolicy)
	if sess.State != statex.StateAwaitingEmail {
		t.Fatalf("state = %s", sess.State)
	}
	if !strings.HasPrefix(res.Reply, "I didn't catch any specific additional service.") {
		t.Fatalf("reply = %q", res.Reply)
	}

	sess = sessionIn(statex.StateAwaitingServices)
	res = h.step(t, sess, "I'd like packing.", VoicePolicy)
	if !strings.HasPrefix(res.Reply, "Noted. You chose additional services: packing.") {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestEmailStep(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateAwaitingEmail)

	res := h.step(t, sess, "jane@gmial.com", TextPolicy)
	if res.Outcome != OutcomeReprompt || !strings.Contains(res.Reply, "Did you mean gmail.com?") {
		t.Fatalf("unexpected %+v", res)
	}
	res = h.step(t, sess, "not an email", TextPolicy)
	if res.Reply != replyBadEmail || sess.State != statex.StateAwaitingEmail {
		t.Fatalf("unexpected %+v", res)
	}

	res = h.step(t, sess, "Jane@Gmail.com", TextPolicy)
	if sess.State != statex.StateAwaitingName || res.Reply != replyAskName {
		t.Fatalf("unexpected %+v", res)
	}
	if sess.Detail.Email != "Jane@gmail.com" {
		t.Fatalf("email = %q", sess.Detail.Email)
	}

	pass := sessionIn(statex.StateAwaitingEmail)
	h.step(t, pass, "jane at example dot com", VoicePassThroughPolicy)
	if pass.Detail.Email != "jane at example dot com" || pass.State != statex.StateAwaitingName {
		t.Fatalf("pass-through email not stored: %q", pass.Detail.Email)
	}

	strictVoice := sessionIn(statex.StateAwaitingEmail)
	h.step(t, strictVoice, "jane at example dot com", VoicePolicy)
	if strictVoice.State != statex.StateAwaitingEmail {
		t.Fatal("strict voice policy accepted a spoken address")
	}
}

func TestEmailStepWithoutDetails(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := newSession()
	sess.SetState(statex.StateAwaitingEmail)

	res := h.step(t, sess, "jane@gmail.com", TextPolicy)
	if res.Reply != replyNoDetails || sess.State != statex.StateAwaitingEmail {
		t.Fatalf("unexpected %+v", res)
	}
}

func TestNameStep(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateAwaitingName)

	res := h.step(t, sess, "   ", VoicePolicy)
	if res.Outcome != OutcomeReprompt || !strings.HasPrefix(res.Reply, "I didn't catch your name.") {
		t.Fatalf("unexpected %+v", res)
	}

	h.step(t, sess, "Jane Doe", TextPolicy)
	if sess.State != statex.StateAwaitingContact || sess.Username != "Jane Doe" || sess.Detail.Username != "Jane Doe" {
		t.Fatalf("name not stored: %+v", sess)
	}
}

func TestVoicePassThroughContact(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateAwaitingContact)

	res := h.step(t, sess, "five five five one two", VoicePassThroughPolicy)
	if sess.State != statex.StateAwaitingFinalConfirmation || sess.ContactNo != "five five five one two" {
		t.Fatalf("unexpected state %s contact %q", sess.State, sess.ContactNo)
	}
	if !strings.HasSuffix(res.Reply, "Please say Yes or No.") || strings.Contains(res.Reply, "📞") {
		t.Fatalf("spoken summary expected, got %q", res.Reply)
	}

	strict := sessionIn(statex.StateAwaitingContact)
	h.step(t, strict, "five five five one two", VoicePolicy)
	if strict.State != statex.StateAwaitingContact {
		t.Fatal("strict voice policy accepted an invalid contact")
	}
}

func TestFinalConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness()
	sess := sessionIn(statex.StateAwaitingFinalConfirmation)

	res := h.step(t, sess, "sure thing", TextPolicy)
	if res.Outcome != OutcomeReprompt || sess.State != statex.StateAwaitingFinalConfirmation {
		t.Fatalf("unexpected %+v", res)
	}

	res = h.step(t, sess, "yes", TextPolicy)
	if sess.State != statex.StateConfirmed || !sess.Confirmed || sess.Active {
		t.Fatalf("not confirmed: %+v", sess)
	}
	if !strings.Contains(res.Reply, "successfully confirmed") {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestVoiceYesNoMatchesWords(t *testing.T) {
	t.Parallel()

	cases := map[string]answer{
		"yes":                answerYes,
		"Yeah, let's do it.": answerYes,
		"no thanks":          answerNo,
		"I know what I want": answerUnknown,
		"yes no":             answerUnknown,
		"nope":               answerNo,
		"I don't think so":   answerUnknown,
	}
	for text, want := range cases {
		if got := VoicePolicy.answer(text); got != want {
			t.Fatalf("VoicePolicy.answer(%q) = %v, want %v", text, got, want)
		}
	}
	if TextPolicy.answer("yes please") != answerUnknown {
		t.Fatal("text policy must match exact answers only")
	}
	if TextPolicy.answer(" Y ") != answerYes {
		t.Fatal("text policy should accept trimmed y")
	}
}

func TestTextWalkThroughToConfirmed(t *testing.T) {
	t.Parallel()

	h := newHarness()
	text := "move from Austin to Dallas, 2 bedroom, on 2099-01-01"
	h.lang.extractions[text] = fullExtraction()
	sess := newSession()

	steps := []struct {
		text string
		want statex.DialogueState
	}{
		{text, statex.StateCostEstimated},
		{"yes", statex.StateAwaitingServices},
		{"packing", statex.StateAwaitingEmail},
		{"jane@gmail.com", statex.StateAwaitingName},
		{"Jane", statex.StateAwaitingContact},
		{"512-555-0100", statex.StateAwaitingFinalConfirmation},
		{"yes", statex.StateConfirmed},
	}
	for _, s := range steps {
		res := h.step(t, sess, s.text, TextPolicy)
		if sess.State != s.want {
			t.Fatalf("after %q state = %s, want %s (reply %q)", s.text, sess.State, s.want, res.Reply)
		}
		if sess.Detail != nil && sess.Detail.State != sess.State {
			t.Fatalf("detail state %s differs from session %s", sess.Detail.State, sess.State)
		}
	}
	if !sess.UpdatedAt.Equal(today) {
		t.Fatalf("UpdatedAt = %v", sess.UpdatedAt)
	}
}

func TestStepRejectsBadInput(t *testing.T) {
	t.Parallel()

	h := newHarness()
	if _, err := h.engine.Step(context.Background(), Turn{}, TextPolicy); !errors.Is(err, statex.ErrNilSession) {
		t.Fatalf("nil session error = %v", err)
	}
	sess := newSession()
	sess.State = "BOGUS"
	if _, err := h.engine.Step(context.Background(), Turn{Session: sess}, TextPolicy); !errors.Is(err, statex.ErrUnknownState) {
		t.Fatalf("unknown state error = %v", err)
	}
}

func TestPolicyFor(t *testing.T) {
	t.Parallel()

	if PolicyFor(statex.ChannelText, false).Name != TextPolicy.Name {
		t.Fatal("text channel must use TextPolicy")
	}
	if PolicyFor(statex.ChannelVoice, true).Name != VoicePolicy.Name {
		t.Fatal("strict voice must use VoicePolicy")
	}
	if p := PolicyFor(statex.ChannelVoice, false); p.StrictContact || p.StrictEmail {
		t.Fatal("pass-through voice must not validate")
	}
}

func TestParseServicesMatchesWholeWords(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text     string
		want     string
		declined bool
	}{
		{text: "packing please", want: "packing"},
		{text: "pack and store everything", want: "packing,storage"},
		{text: "yes storage and packing please", want: "packing,storage"},
		{text: "no, I'll unpack myself", declined: true},
		{text: "just my backpack and a package"},
		{text: "restore the bookstore"},
		{text: "no packing", declined: true},
		{text: "no packing please", declined: true},
		{text: "no storage needed", declined: true},
		{text: "I don't need storage, packing yes", want: "packing"},
		{text: "none", declined: true},
	}
	for _, tc := range cases {
		got, declined := parseServices(tc.text)
		if strings.Join(got, ",") != tc.want || declined != tc.declined {
			t.Errorf("parseServices(%q) = %v, %v; want %q, %v", tc.text, got, declined, tc.want, tc.declined)
		}
	}
}

func TestDateWithoutYearIsPriced(t *testing.T) {
	t.Parallel()

	h := newHarness()
	text := "Austin to Dallas, 2 bedroom, Dec 25"
	ext := fullExtraction()
	ext.MoveDate = ptr("Dec 25")
	h.lang.extractions[text] = ext
	sess := newSession()

	res := h.step(t, sess, text, TextPolicy)

	if sess.State != statex.StateCostEstimated || res.Outcome != OutcomeAdvanced {
		t.Fatalf("state = %s, result %+v", sess.State, res)
	}
	if sess.MoveDate != "2026-12-25" || h.pricing.quotes[0].MoveDate != "2026-12-25" {
		t.Fatalf("move date = %q", sess.MoveDate)
	}
}
