package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	"github.com/tanpawarit/movebot/agent/dialogue"
	statex "github.com/tanpawarit/movebot/agent/state"
	"github.com/tanpawarit/movebot/agent/validate"
)

var (
	ErrInvalidSession = statex.ErrInvalidSession
	ErrInvalidChannel = errors.New("unknown channel")
	ErrSessionEnded   = errors.New("chat session is already ended")
)

type GraphInput struct {
	SessionID string
	Text      string
	Channel   statex.Channel
	// CreateIfMissing starts a session on first contact (voice calls keyed by call id).
	CreateIfMissing bool
}

type GraphOutput struct {
	SessionID string
	Reply     string
	State     statex.DialogueState
	Result    dialogue.Result
	Created   bool
}

type GraphState struct {
	SessionID       string
	Text            string
	Channel         statex.Channel
	CreateIfMissing bool
	Now             time.Time
	Policy          dialogue.Policy

	Session  *statex.Session
	Created  bool
	History  []statex.Message
	Language string

	Result dialogue.Result
}

func ValidateRequest(in GraphInput, nowFn func() time.Time, strictVoice bool) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	channel := in.Channel
	switch channel {
	case "":
		channel = statex.ChannelText
	case statex.ChannelText, statex.ChannelVoice:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}

	return &GraphState{
		SessionID:       sessionID,
		Text:            validate.Sanitize(in.Text),
		Channel:         channel,
		CreateIfMissing: in.CreateIfMissing,
		Now:             nowFn().UTC(),
		Policy:          dialogue.PolicyFor(channel, strictVoice),
		Language:        contractx.DefaultLanguage,
	}, nil
}
