package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	"github.com/tanpawarit/movebot/agent/dialogue"
)

func RunDialogue(ctx context.Context, in *GraphState, engine *dialogue.Engine) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	res, err := engine.Step(ctx, dialogue.Turn{
		Session:  in.Session,
		Text:     in.Text,
		Language: in.Language,
		History:  in.History,
		Now:      in.Now,
	}, in.Policy)
	if err != nil {
		return nil, err
	}
	in.Result = res
	return in, nil
}
