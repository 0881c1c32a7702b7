package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
)

// DetectLanguage only runs under policies that ask for it. Failures fall back to the default.
func DetectLanguage(ctx context.Context, in *GraphState, detector contractx.LanguageDetector) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if !in.Policy.DetectLanguage || detector == nil || in.Text == "" {
		return in, nil
	}

	lang, err := detector.DetectLanguage(ctx, in.Text)
	if err != nil || lang == "" {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("language detection failed")
		return in, nil
	}
	in.Language = lang
	return in, nil
}
