package faq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	contractx "github.com/tanpawarit/movebot/agent/contract"
)

// Embedder turns text into a vector. Model names the embedding space so cached
// vectors from another model are never mixed in.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

type OpenAIConfig struct {
	APIKey  string `envconfig:"API_KEY" split_words:"true"`
	BaseURL string `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	Model   string `envconfig:"MODEL" split_words:"true" default:"text-embedding-ada-002"`
}

type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("%w: openai embedding api key is required", contractx.ErrValidation)
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbeddingAda002)
	}
	return &OpenAIEmbedder{client: openai.NewClient(opts...), model: model}, nil
}

func (e *OpenAIEmbedder) Model() string { return "openai/" + e.model }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty openai response", contractx.ErrEmbedding)
	}
	return resp.Data[0].Embedding, nil
}

type GeminiConfig struct {
	Project  string `envconfig:"PROJECT" split_words:"true"`
	Location string `envconfig:"LOCATION" split_words:"true" default:"us-central1"`
	Model    string `envconfig:"MODEL" split_words:"true" default:"gemini-embedding-001"`
}

type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if strings.TrimSpace(cfg.Project) == "" {
		return nil, fmt.Errorf("%w: gemini project is required", contractx.ErrValidation)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: cfg.Model}, nil
}

func (g *GeminiEmbedder) Model() string { return "gemini/" + g.model }

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrEmbedding, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("%w: empty gemini response", contractx.ErrEmbedding)
	}
	values := resp.Embeddings[0].Values
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out, nil
}

var ErrUnknownProvider = errors.New("unknown embedding provider")

// NewEmbedder picks the provider by name: "openai" or "gemini".
func NewEmbedder(ctx context.Context, provider string, openaiCfg OpenAIConfig, geminiCfg GeminiConfig) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return NewOpenAIEmbedder(openaiCfg)
	case "gemini":
		return NewGeminiEmbedder(ctx, geminiCfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
