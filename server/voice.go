package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"github.com/tanpawarit/movebot/agent/agents/orchestrator"
	statex "github.com/tanpawarit/movebot/agent/state"
)

const (
	voiceErrorReply  = "An error occurred. Please try again later."
	voiceInputAction = "/voice/handle_input"
	gatherTimeout    = "4"
)

// twilioSignature rejects webhook calls whose X-Twilio-Signature does not match. It is a
// pass-through when no auth token is configured.
func (s *Server) twilioSignature(next http.Handler) http.Handler {
	if strings.TrimSpace(s.cfg.TwilioAuthToken) == "" {
		return next
	}
	validator := client.NewRequestValidator(s.cfg.TwilioAuthToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !validator.Validate(s.publicURL(r), params, r.Header.Get("X-Twilio-Signature")) {
			hlog.FromRequest(r).Warn().Msg("twilio signature rejected")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callID keys a voice session: the call sid, else the caller, else a fresh id.
func callID(r *http.Request) string {
	if v := strings.TrimSpace(r.FormValue("CallSid")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.FormValue("From")); v != "" {
		return v
	}
	return uuid.NewString()
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	reply, err := s.dialogue.Greet(r.Context(), callID(r))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("voice greeting failed")
		respondTwiML(w, r, say(voiceErrorReply))
		return
	}
	respondTwiML(w, r, gather(reply.Text))
}

func (s *Server) handleVoiceInput(w http.ResponseWriter, r *http.Request) {
	reply, err := s.dialogue.HandleMessage(r.Context(), orchestrator.Request{
		SessionID:       callID(r),
		Text:            r.FormValue("SpeechResult"),
		Channel:         statex.ChannelVoice,
		CreateIfMissing: true,
	})
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("voice turn failed")
		respondTwiML(w, r, say(voiceErrorReply))
		return
	}
	respondTwiML(w, r, gather(reply.Text))
}

// gather speaks message and keeps the call open for the next utterance.
func gather(message string) []twiml.Element {
	return []twiml.Element{&twiml.VoiceGather{
		Input:   "speech",
		Action:  voiceInputAction,
		Method:  http.MethodPost,
		Timeout: gatherTimeout,
		InnerElements: []twiml.Element{
			&twiml.VoiceSay{Message: message},
		},
	}}
}

func say(message string) []twiml.Element {
	return []twiml.Element{&twiml.VoiceSay{Message: message}}
}

func respondTwiML(w http.ResponseWriter, r *http.Request, elements []twiml.Element) {
	doc, err := twiml.Voice(elements)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("render twiml")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
