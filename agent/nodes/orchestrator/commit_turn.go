package orchestratornode

import (
	"context"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
)

// CommitTurn persists the session together with the user and assistant messages.
// The assistant message is stamped a microsecond later so the pair keeps its order.
func CommitTurn(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if err := in.Session.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}

	msgs := []statex.Message{
		{SessionID: in.SessionID, Sender: statex.RoleUser, Text: in.Text, CreatedAt: in.Now},
		{SessionID: in.SessionID, Sender: statex.RoleAssistant, Text: in.Result.Reply, CreatedAt: in.Now.Add(time.Microsecond)},
	}
	if err := store.Commit(ctx, in.Session, msgs); err != nil {
		return nil, err
	}
	return in, nil
}
