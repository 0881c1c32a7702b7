package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/movebot/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Session == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Result.Reply)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: dialogue returned empty reply", contractx.ErrValidation)
	}
	return GraphOutput{
		SessionID: in.SessionID,
		Reply:     reply,
		State:     in.Session.State,
		Result:    in.Result,
		Created:   in.Created,
	}, nil
}
