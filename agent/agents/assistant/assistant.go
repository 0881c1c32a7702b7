package assistant

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	llmx "github.com/tanpawarit/movebot/agent/llm"
	promptx "github.com/tanpawarit/movebot/agent/prompt"
)

// Assistant is the language oracle: field extraction, free-form replies and language detection.
type Assistant struct {
	*Extractor
	*Responder
	Detector
}

var _ contractx.LanguageOracle = (*Assistant)(nil)

func New(ctx context.Context, cfg llmx.Config) (*Assistant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	extractorCfg := cfg.OpenRouterFor(contractx.AgentTypeExtractor)
	extractorModel, err := extractorCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create extractor model: %v", contractx.ErrModelInvoke, err)
	}
	responderCfg := cfg.OpenRouterFor(contractx.AgentTypeResponder)
	responderModel, err := responderCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create responder model: %v", contractx.ErrModelInvoke, err)
	}

	return newAssistant(ctx, extractorModel, responderModel, promptx.LoadPromptSet())
}

func newAssistant(
	ctx context.Context,
	extractorModel einomodel.BaseChatModel,
	responderModel einomodel.BaseChatModel,
	prompts promptx.PromptSet,
) (*Assistant, error) {
	extractor, err := newExtractor(ctx, extractorModel, prompts.Extract)
	if err != nil {
		return nil, err
	}
	responder, err := newResponder(ctx, responderModel, prompts.Reply)
	if err != nil {
		return nil, err
	}
	return &Assistant{
		Extractor: extractor,
		Responder: responder,
		Detector:  Detector{Fallback: contractx.DefaultLanguage},
	}, nil
}
