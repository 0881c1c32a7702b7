package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
)

func LoadOrCreateSession(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	pickName func() string,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	sess, err := store.Load(ctx, in.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrSessionNotFound) && in.CreateIfMissing:
		sess = statex.NewSession(in.SessionID, in.Channel, pickName(), in.Now)
		in.Created = true
		zerolog.Ctx(ctx).Info().Str("channel", string(in.Channel)).Msg("session created on first message")
	default:
		return nil, err
	}

	if sess.Ended() {
		return nil, ErrSessionEnded
	}
	in.Session = sess
	return in, nil
}
