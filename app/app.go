package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/movebot/agent/agents/assistant"
	"github.com/tanpawarit/movebot/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/movebot/agent/contract"
	"github.com/tanpawarit/movebot/agent/dialogue"
	"github.com/tanpawarit/movebot/agent/faq"
	"github.com/tanpawarit/movebot/agent/notify"
	pricingx "github.com/tanpawarit/movebot/agent/pricing"
	statex "github.com/tanpawarit/movebot/agent/state"
	"github.com/tanpawarit/movebot/agent/sweeper"
	"github.com/tanpawarit/movebot/agent/validate"
	metricsx "github.com/tanpawarit/movebot/pkg/metrics"
	qstashx "github.com/tanpawarit/movebot/pkg/qstash"
	"github.com/tanpawarit/movebot/server"
)

// App is the wired service: one store, one orchestrator, and the transports on top.
type App struct {
	Config       Config
	Store        statex.Store
	Orchestrator *orchestrator.Orchestrator
	Sweeper      *sweeper.Sweeper
	Metrics      *metricsx.Metrics
	Handler      http.Handler

	closers []func() error
}

func Build(ctx context.Context, cfgs *Configs) (*App, error) {
	if cfgs == nil {
		return nil, errors.New("configs are required")
	}
	a := &App{Config: cfgs.App, Metrics: metricsx.New(cfgs.App.MetricsNamespace)}

	store, closeStore, err := OpenStore(ctx, cfgs.App, cfgs.Upstash)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	lang, err := assistant.New(ctx, cfgs.LLM)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build assistant: %w", err)
	}

	pricing, err := pricingx.New(cfgs.Pricing)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build pricing: %w", err)
	}

	var resolver validate.Resolver
	if cfgs.App.EmailDNSCheck {
		resolver = net.DefaultResolver
	}
	engine := dialogue.NewEngine(lang, pricing, buildFAQ(ctx, cfgs), validate.NewEmailValidator(resolver))

	qstash, err := qstashx.NewClient(cfgs.QStash)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build qstash client: %w", err)
	}
	var notifier contractx.BookingNotifier = notify.Noop{}
	if cfgs.QStash.Enabled() && strings.TrimSpace(cfgs.QStash.BookingDestination) != "" {
		notifier = notify.NewQStash(qstash, cfgs.QStash.BookingDestination)
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Deps{
		Store:    store,
		Engine:   engine,
		Detector: lang,
		Pricing:  pricing,
		Notifier: notifier,
		Metrics:  a.Metrics,
	}, orchestrator.Config{
		StrictVoice:    cfgs.App.VoiceStrictValidation,
		HistoryLimit:   cfgs.App.HistoryLimit,
		AssistantNames: cfgs.App.AssistantNames,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Sweeper, err = sweeper.New(store, cfgs.App.SessionIdleWindow, cfgs.App.SweepInterval, a.Metrics)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var verifier server.SignatureVerifier
	if cfgs.QStash.CurrentSigningKey != "" || cfgs.QStash.NextSigningKey != "" {
		verifier = qstash
	}
	a.Handler = server.New(server.Config{
		AllowedOrigins:  cfgs.App.CORSAllowedOrigins,
		TwilioAuthToken: cfgs.Twilio.AuthToken,
		PublicURL:       cfgs.App.PublicURL,
	}, a.Orchestrator, a.Sweeper, verifier, a.Metrics).Router()

	return a, nil
}

// OpenStore opens the configured session store. The returned closer is never nil.
func OpenStore(ctx context.Context, cfg Config, upstash statex.UpstashRedisConfig) (statex.Store, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case StoreMemory:
		return statex.NewMemoryStore(), noop, nil
	case StoreUpstash:
		var opts []statex.StoreOption
		if cfg.UpstashTTL > 0 {
			opts = append(opts, statex.WithTTL(cfg.UpstashTTL))
		}
		store, err := statex.NewUpstashRedisStore(upstash, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open upstash store: %w", err)
		}
		return store, noop, nil
	default:
		store, err := statex.OpenSQL(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open sql store: %w", err)
		}
		return store, store.Close, nil
	}
}

// buildFAQ returns nil when the FAQ is not configured or cannot be built; the dialogue
// then runs without the FAQ short-circuit.
func buildFAQ(ctx context.Context, cfgs *Configs) contractx.FAQMatcher {
	if strings.TrimSpace(cfgs.App.FAQPath) == "" {
		return nil
	}
	m, err := BuildFAQIndex(ctx, cfgs)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", cfgs.App.FAQPath).Msg("faq disabled")
		return nil
	}
	return m
}

// BuildFAQIndex loads the dataset and embeds it, reusing the cache when it is current.
func BuildFAQIndex(ctx context.Context, cfgs *Configs) (*faq.Matcher, error) {
	entries, err := faq.LoadDataset(cfgs.App.FAQPath)
	if err != nil {
		return nil, err
	}
	embedder, err := faq.NewEmbedder(ctx, cfgs.App.EmbeddingProvider, cfgs.OpenAI, cfgs.Gemini)
	if err != nil {
		return nil, err
	}
	cachePath := cfgs.App.FAQCachePath
	if cachePath == "" {
		cachePath = faq.CachePathFor(cfgs.App.FAQPath)
	}
	return faq.NewMatcher(ctx, embedder, entries, cachePath, faq.WithThreshold(cfgs.App.FAQThreshold))
}

// Serve runs the HTTP server and the sweeper until ctx is cancelled, then drains
// in-flight requests within the shutdown timeout.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.BindAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return log.Logger.WithContext(context.Background()) },
	}

	sweepCtx, stopSweep := context.WithCancel(log.Logger.WithContext(ctx))
	defer stopSweep()
	go func() { _ = a.Sweeper.Run(sweepCtx) }()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	log.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
