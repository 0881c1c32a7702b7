package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/movebot/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
	metricsx "github.com/tanpawarit/movebot/pkg/metrics"
)

const (
	apologyReply = "Sorry, something went wrong. Please try again later."
	maxBodyBytes = 1 << 20
)

// Dialogue is the orchestrator surface the transports drive.
type Dialogue interface {
	StartSession(ctx context.Context) (orchestrator.Reply, error)
	Greet(ctx context.Context, callID string) (orchestrator.Reply, error)
	HandleMessage(ctx context.Context, req orchestrator.Request) (orchestrator.Reply, error)
	EndSession(ctx context.Context, sessionID string) (orchestrator.Reply, error)
	Transcript(ctx context.Context, sessionID string) (orchestrator.Transcript, error)
	Quote(ctx context.Context, req orchestrator.QuoteRequest) (orchestrator.QuoteResult, error)
	Distance(ctx context.Context, origin, destination string) (float64, error)
}

type Sweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

// SignatureVerifier checks a QStash-signed request.
type SignatureVerifier interface {
	Verify(signature string, body []byte, url string) error
}

type Config struct {
	AllowedOrigins []string
	// TwilioAuthToken enables X-Twilio-Signature checks on the voice webhooks.
	TwilioAuthToken string
	// PublicURL is the externally visible base URL used when checking signatures.
	PublicURL string
}

type Server struct {
	cfg      Config
	dialogue Dialogue
	sweeper  Sweeper
	verifier SignatureVerifier
	metrics  *metricsx.Metrics
	upgrader websocket.Upgrader
}

// New builds the HTTP transport. sweeper and verifier may be nil; the sweep trigger then
// answers 503.
func New(cfg Config, dialogue Dialogue, sweeper Sweeper, verifier SignatureVerifier, metrics *metricsx.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		dialogue: dialogue,
		sweeper:  sweeper,
		verifier: verifier,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Post("/start_chat", s.handleStartChat)
	r.Post("/end_chat", s.handleEndChat)
	r.Post("/general_query", s.handleGeneralQuery)
	r.Get("/sessions/{id}", s.handleTranscript)
	r.Post("/calculate_distance", s.handleDistance)
	r.Post("/estimate_cost", s.handleEstimate)
	r.Get("/ws/{id}", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(s.twilioSignature)
		r.Post("/voice", s.handleVoice)
		r.Post("/voice/handle_input", s.handleVoiceInput)
	})

	r.Post("/internal/sweep", s.handleSweep)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startChatResponse struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	reply, err := s.dialogue.StartSession(r.Context())
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, startChatResponse{ChatID: reply.SessionID, Message: reply.Text})
}

type chatRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

func (s *Server) handleEndChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ChatID) == "" {
		respondError(w, http.StatusBadRequest, "missing_chat_id", "No chat_id provided")
		return
	}

	reply, err := s.dialogue.EndSession(r.Context(), req.ChatID)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": reply.Text})
}

type queryResponse struct {
	Reply  string               `json:"reply"`
	ChatID string               `json:"chat_id"`
	State  statex.DialogueState `json:"state"`
}

func (s *Server) handleGeneralQuery(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ChatID) == "" {
		respondError(w, http.StatusBadRequest, "missing_chat_id", "Missing chat_id")
		return
	}

	reply, err := s.dialogue.HandleMessage(r.Context(), orchestrator.Request{
		SessionID: req.ChatID,
		Text:      req.Message,
		Channel:   statex.ChannelText,
	})
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, queryResponse{Reply: reply.Text, ChatID: reply.SessionID, State: reply.State})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	tr, err := s.dialogue.Transcript(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tr)
}

type distanceRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	var req distanceRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "Missing origin/destination")
		return
	}

	miles, err := s.dialogue.Distance(r.Context(), req.Origin, req.Destination)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]float64{"distance": miles})
}

type estimateResponse struct {
	EstimatedCost string `json:"estimated_cost"`
	ChatID        string `json:"chat_id"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.dialogue.Quote(r.Context(), req)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, estimateResponse{
		EstimatedCost: money(res.Estimate.Min) + " - " + money(res.Estimate.Max),
		ChatID:        res.SessionID,
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil || s.verifier == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "sweep trigger not configured")
		return
	}

	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.verifier.Verify(r.Header.Get("Upstash-Signature"), body, s.publicURL(r)); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("sweep trigger rejected")
		respondError(w, http.StatusUnauthorized, "invalid_signature", "invalid signature")
		return
	}

	n, err := s.sweeper.SweepOnce(r.Context())
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deactivated": n})
}

// publicURL rebuilds the URL the caller signed. Without a configured base URL the
// request's own host is used.
func (s *Server) publicURL(r *http.Request) string {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + r.URL.RequestURI()
}

// respondFailure maps dialogue errors onto status codes. Internal failures are logged
// and answered with a generic apology.
func respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, statex.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "Chat session not found")
	case errors.Is(err, orchestrator.ErrSessionEnded):
		respondError(w, http.StatusBadRequest, "session_ended", orchestrator.EndedReply)
	case errors.Is(err, orchestrator.ErrInvalidSession),
		errors.Is(err, orchestrator.ErrInvalidChannel),
		errors.Is(err, orchestrator.ErrInvalidQuote):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, contractx.ErrPricingUnavailable):
		respondError(w, http.StatusBadRequest, "pricing_unavailable", "Unable to calculate the cost for this move.")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal", apologyReply)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func money(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("$%.0f", v)
	}
	return fmt.Sprintf("$%.2f", v)
}
