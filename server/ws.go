package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"github.com/tanpawarit/movebot/agent/agents/orchestrator"
	statex "github.com/tanpawarit/movebot/agent/state"
)

const (
	wsReadTimeout  = 10 * time.Minute
	wsWriteTimeout = 10 * time.Second
)

type wsFrame struct {
	Reply  string               `json:"reply,omitempty"`
	ChatID string               `json:"chat_id"`
	State  statex.DialogueState `json:"state,omitempty"`
	Error  string               `json:"error,omitempty"`
	Code   string               `json:"code,omitempty"`
}

// handleWS treats every text frame as one utterance and answers with one JSON frame.
// The connection closes once the session has ended.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if _, err := s.dialogue.Transcript(r.Context(), sessionID); err != nil {
		respondFailure(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := hlog.FromRequest(r)
	conn.SetReadLimit(maxBodyBytes)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		frame := wsFrame{ChatID: sessionID}
		reply, err := s.dialogue.HandleMessage(r.Context(), orchestrator.Request{
			SessionID: sessionID,
			Text:      string(data),
			Channel:   statex.ChannelText,
		})
		switch {
		case err == nil:
			frame.Reply, frame.State = reply.Text, reply.State
		case errors.Is(err, orchestrator.ErrSessionEnded):
			frame.Error, frame.Code = orchestrator.EndedReply, "session_ended"
		default:
			log.Error().Err(err).Msg("websocket turn failed")
			frame.Error, frame.Code = apologyReply, "internal"
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
		if frame.Code == "session_ended" {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			return
		}
	}
}
