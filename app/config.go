package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tanpawarit/movebot/agent/faq"
	llmx "github.com/tanpawarit/movebot/agent/llm"
	pricingx "github.com/tanpawarit/movebot/agent/pricing"
	statex "github.com/tanpawarit/movebot/agent/state"
	configx "github.com/tanpawarit/movebot/pkg/config"
	qstashx "github.com/tanpawarit/movebot/pkg/qstash"
)

const (
	StoreSQL     = "sql"
	StoreUpstash = "upstash"
	StoreMemory  = "memory"
)

type Config struct {
	BindAddr          string        `split_words:"true" default:":5001"`
	ShutdownTimeout   time.Duration `split_words:"true" default:"10s"`
	SessionIdleWindow time.Duration `split_words:"true" default:"24h"`
	SweepInterval     time.Duration `split_words:"true" default:"1h"`
	StoreDriver       string        `split_words:"true" default:"sql"`
	DatabaseURL       string        `split_words:"true" default:"file:movebot.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"`
	UpstashTTL        time.Duration `envconfig:"UPSTASH_TTL" default:"0"`

	FAQPath           string  `envconfig:"FAQ_PATH" default:"data/faq.jsonl"`
	FAQCachePath      string  `envconfig:"FAQ_CACHE_PATH"`
	FAQThreshold      float64 `envconfig:"FAQ_THRESHOLD" default:"0.75"`
	EmbeddingProvider string  `split_words:"true" default:"openai"`

	VoiceStrictValidation bool     `split_words:"true" default:"true"`
	EmailDNSCheck         bool     `envconfig:"EMAIL_DNS_CHECK" default:"true"`
	CORSAllowedOrigins    []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	PublicURL             string   `split_words:"true"`
	MetricsNamespace      string   `split_words:"true" default:"movebot"`
	HistoryLimit          int      `split_words:"true" default:"50"`
	AssistantNames        []string `split_words:"true"`
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.StoreDriver)) {
	case StoreSQL, StoreUpstash, StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.SessionIdleWindow <= 0 || c.SweepInterval <= 0 {
		return errors.New("session idle window and sweep interval must be > 0")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("history limit must be > 0")
	}
	if c.FAQThreshold <= 0 || c.FAQThreshold > 1 {
		return fmt.Errorf("faq threshold %.2f out of range (0,1]", c.FAQThreshold)
	}
	return nil
}

type TwilioConfig struct {
	AccountSID string `envconfig:"ACCOUNT_SID"`
	AuthToken  string `split_words:"true"`
}

// Configs groups every config section the service reads at startup.
type Configs struct {
	App     Config
	LLM     llmx.Config
	Pricing pricingx.Config
	OpenAI  faq.OpenAIConfig
	Gemini  faq.GeminiConfig
	Upstash statex.UpstashRedisConfig
	QStash  qstashx.Config
	Twilio  TwilioConfig
}

func LoadConfigs() (*Configs, error) {
	var out Configs
	steps := []func() error{
		func() error { return loadInto(&out.App, "APP") },
		func() error { return loadInto(&out.LLM, "OPENROUTER") },
		func() error { return loadInto(&out.Pricing, "PRICING") },
		func() error { return loadInto(&out.OpenAI, "EMBEDDING_OPENAI") },
		func() error { return loadInto(&out.Gemini, "EMBEDDING_GEMINI") },
		func() error { return loadInto(&out.Upstash, "UPSTASH_REDIS") },
		func() error { return loadInto(&out.QStash, "QSTASH") },
		func() error { return loadInto(&out.Twilio, "TWILIO") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

func loadInto[T any](dst *T, prefix string) error {
	v, err := configx.New[T](prefix)
	if err != nil {
		return err
	}
	*dst = *v
	return nil
}
