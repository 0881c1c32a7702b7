package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
)

// LoadHistory reads the tail of the transcript for the free-form responder.
func LoadHistory(ctx context.Context, in *GraphState, store statex.Store, limit int) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if in.Created {
		return in, nil
	}

	msgs, err := store.History(ctx, in.SessionID, limit)
	if err != nil {
		return nil, err
	}
	in.History = msgs
	return in, nil
}
