package assistant

import (
	"context"
	"strings"

	"github.com/abadojack/whatlanggo"

	contractx "github.com/tanpawarit/movebot/agent/contract"
)

// Detector guesses the language with trigram statistics. Short or ambiguous text falls back.
type Detector struct {
	Fallback string
}

var _ contractx.LanguageDetector = Detector{}

func (d Detector) DetectLanguage(_ context.Context, text string) (string, error) {
	fallback := d.Fallback
	if fallback == "" {
		fallback = contractx.DefaultLanguage
	}
	if strings.TrimSpace(text) == "" {
		return fallback, nil
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return fallback, nil
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return fallback, nil
	}
	return code, nil
}
