package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	"github.com/tanpawarit/movebot/agent/dialogue"
	nodex "github.com/tanpawarit/movebot/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/movebot/agent/state"
	logx "github.com/tanpawarit/movebot/pkg/logger"
	metricsx "github.com/tanpawarit/movebot/pkg/metrics"
)

var (
	ErrInvalidSession = nodex.ErrInvalidSession
	ErrInvalidChannel = nodex.ErrInvalidChannel
	ErrSessionEnded   = nodex.ErrSessionEnded
	ErrInvalidQuote   = errors.New("invalid quote request")
)

const (
	EndedReply    = "Chat session is already ended. Please start a new chat."
	FarewellReply = "Chat ended successfully. Thank you for choosing My Good Movers! 👋"
)

const lockStripes = 64

// DefaultAssistantNames is the roster a new session draws its assistant name from.
var DefaultAssistantNames = []string{"MoveBot", "Max", "Ava", "Leo", "Mia", "Sam"}

type Config struct {
	// StrictVoice validates email and phone on the voice channel like on text.
	StrictVoice    bool
	HistoryLimit   int
	AssistantNames []string
}

type Deps struct {
	Store    statex.Store
	Engine   *dialogue.Engine
	Detector contractx.LanguageDetector
	Pricing  contractx.PricingOracle
	Notifier contractx.BookingNotifier
	Metrics  *metricsx.Metrics
}

type Orchestrator struct {
	store    statex.Store
	engine   *dialogue.Engine
	detector contractx.LanguageDetector
	pricing  contractx.PricingOracle
	notifier contractx.BookingNotifier
	metrics  *metricsx.Metrics

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	strictVoice  bool
	historyLimit int
	names        []string
	locks        [lockStripes]sync.Mutex

	now    func() time.Time
	newID  func() string
	pickFn func(n int) int
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("session store is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("dialogue engine is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("pricing oracle is required")
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 50
	}
	names := make([]string, 0, len(cfg.AssistantNames))
	for _, n := range cfg.AssistantNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = DefaultAssistantNames
	}

	o := &Orchestrator{
		store:        deps.Store,
		engine:       deps.Engine,
		detector:     deps.Detector,
		pricing:      deps.Pricing,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		strictVoice:  cfg.StrictVoice,
		historyLimit: historyLimit,
		names:        names,
		now:          time.Now,
		newID:        uuid.NewString,
		pickFn:       rand.IntN,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

type Request struct {
	SessionID       string
	Text            string
	Channel         statex.Channel
	CreateIfMissing bool
}

type Reply struct {
	SessionID string               `json:"chat_id"`
	Text      string               `json:"reply"`
	State     statex.DialogueState `json:"state"`
	Outcome   dialogue.Outcome     `json:"outcome,omitempty"`
}

// HandleMessage runs one utterance through the dialogue graph. Turns on the same session
// are serialized.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (Reply, error) {
	started := time.Now()
	ctx = logx.WithSession(ctx, req.SessionID)

	unlock := o.lock(req.SessionID)
	defer unlock()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID:       req.SessionID,
		Text:            req.Text,
		Channel:         req.Channel,
		CreateIfMissing: req.CreateIfMissing,
	})
	if err != nil {
		return Reply{}, err
	}

	channel := string(req.Channel)
	if channel == "" {
		channel = string(statex.ChannelText)
	}
	res := out.Result
	o.metrics.Turn(channel, string(res.Outcome), string(res.From), string(res.To), res.Oracle, time.Since(started))
	if out.Created {
		o.metrics.SessionStarted()
	}
	if res.From != statex.StateConfirmed && res.To == statex.StateConfirmed {
		o.metrics.Booking()
	}

	return Reply{SessionID: out.SessionID, Text: out.Reply, State: out.State, Outcome: res.Outcome}, nil
}

// StartSession opens a text session and stores the welcome as its first message.
func (o *Orchestrator) StartSession(ctx context.Context) (Reply, error) {
	id := o.newID()
	ctx = logx.WithSession(ctx, id)

	now := o.now()
	sess := statex.NewSession(id, statex.ChannelText, o.pickName(), now)
	welcome := fmt.Sprintf("Hello! I'm %s 🤖. How can I assist you with your move today? 📦🚚", sess.AssistantName)
	msg := statex.Message{SessionID: id, Sender: statex.RoleAssistant, Text: welcome, CreatedAt: now.UTC()}
	if err := o.store.Commit(ctx, sess, []statex.Message{msg}); err != nil {
		return Reply{}, err
	}

	o.metrics.SessionStarted()
	zerolog.Ctx(ctx).Info().Str("assistant", sess.AssistantName).Msg("chat started")
	return Reply{SessionID: id, Text: welcome, State: sess.State}, nil
}

// Greet answers an incoming call. The session is keyed by the call id and created on
// first contact; later greetings reuse its assistant name.
func (o *Orchestrator) Greet(ctx context.Context, callID string) (Reply, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		callID = o.newID()
	}
	ctx = logx.WithSession(ctx, callID)

	unlock := o.lock(callID)
	defer unlock()

	sess, err := o.store.Load(ctx, callID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrSessionNotFound):
		sess = statex.NewSession(callID, statex.ChannelVoice, o.pickName(), o.now())
		created = true
	default:
		return Reply{}, err
	}

	greeting := fmt.Sprintf("Hello, this is %s. How can I assist you with your move today?", sess.AssistantName)
	if created {
		msg := statex.Message{SessionID: callID, Sender: statex.RoleAssistant, Text: greeting, CreatedAt: sess.CreatedAt}
		if err := o.store.Commit(ctx, sess, []statex.Message{msg}); err != nil {
			return Reply{}, err
		}
		o.metrics.SessionStarted()
		zerolog.Ctx(ctx).Info().Str("assistant", sess.AssistantName).Msg("call answered")
	}
	return Reply{SessionID: callID, Text: greeting, State: sess.State}, nil
}

func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) (Reply, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Reply{}, ErrInvalidSession
	}
	ctx = logx.WithSession(ctx, sessionID)

	unlock := o.lock(sessionID)
	defer unlock()

	sess, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}

	now := o.now()
	sess.Deactivate()
	sess.Touch(now)
	msg := statex.Message{SessionID: sessionID, Sender: statex.RoleAssistant, Text: FarewellReply, CreatedAt: now.UTC()}
	if err := o.store.Commit(ctx, sess, []statex.Message{msg}); err != nil {
		return Reply{}, err
	}

	o.metrics.SessionEnded()
	zerolog.Ctx(ctx).Info().Str("state", string(sess.State)).Msg("chat ended")
	return Reply{SessionID: sessionID, Text: FarewellReply, State: sess.State}, nil
}

type Transcript struct {
	Session  *statex.Session  `json:"session"`
	Messages []statex.Message `json:"messages"`
}

func (o *Orchestrator) Transcript(ctx context.Context, sessionID string) (Transcript, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Transcript{}, ErrInvalidSession
	}
	sess, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return Transcript{}, err
	}
	msgs, err := o.store.History(ctx, sessionID, 0)
	if err != nil {
		return Transcript{}, err
	}
	return Transcript{Session: sess, Messages: msgs}, nil
}

func (o *Orchestrator) Distance(ctx context.Context, origin, destination string) (float64, error) {
	if strings.TrimSpace(origin) == "" || strings.TrimSpace(destination) == "" {
		return 0, fmt.Errorf("%w: origin and destination are required", ErrInvalidQuote)
	}
	return o.pricing.Distance(ctx, origin, destination)
}

func (o *Orchestrator) lock(sessionID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	mu := &o.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (o *Orchestrator) pickName() string {
	return o.names[o.pickFn(len(o.names))]
}
