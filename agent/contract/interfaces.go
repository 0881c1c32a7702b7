package contract

import "context"

// FieldExtractor turns a free-text utterance into booking fields.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (Extraction, error)
}

// Responder produces a free-form conversational reply.
type Responder interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}

// LanguageDetector guesses the language of an utterance. Implementations return
// DefaultLanguage when unsure.
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
}

type LanguageOracle interface {
	FieldExtractor
	Responder
	LanguageDetector
}

type PricingOracle interface {
	Estimate(ctx context.Context, q Quote) (Estimate, error)
	ServiceCosts(ctx context.Context, moveSize string) (ServiceCosts, error)
	Distance(ctx context.Context, origin, destination string) (float64, error)
}

// FAQMatcher returns the stored answer closest to text, ok=false when nothing clears the threshold.
type FAQMatcher interface {
	Match(ctx context.Context, text string) (answer string, ok bool, err error)
}

type BookingNotifier interface {
	BookingConfirmed(ctx context.Context, ev BookingEvent) error
}
