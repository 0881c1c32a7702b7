package assistant

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
)

const defaultAssistantName = "MoveBot"

type Responder struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

var _ contractx.Responder = (*Responder)(nil)

func newResponder(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Responder, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: reply prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileReplyGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile reply graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Responder{runner: runner}, nil
}

func (r *Responder) GenerateReply(ctx context.Context, req contractx.ReplyRequest) (string, error) {
	name := strings.TrimSpace(req.AssistantName)
	if name == "" {
		name = defaultAssistantName
	}

	msg, err := r.runner.Invoke(ctx, map[string]any{
		"bot_name":      name,
		"language_hint": languageHint(req.Language),
		"input":         renderHistory(req.History, req.Text),
	})
	if err != nil {
		return "", fmt.Errorf("%w: responder invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: empty reply", contractx.ErrSchemaViolation)
	}
	return strings.TrimSpace(msg.Content), nil
}

func renderHistory(history []statex.Message, text string) string {
	senderTitle := cases.Title(language.English)
	var b strings.Builder
	b.WriteString("Chat History:\n")
	for _, m := range history {
		b.WriteString(senderTitle.String(string(m.Sender)))
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(text)
	return b.String()
}

func languageHint(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || code == contractx.DefaultLanguage {
		return ""
	}
	tag, err := language.Parse(code)
	name := ""
	if err == nil {
		name = display.English.Languages().Name(tag)
	}
	if name == "" {
		name = strings.ToUpper(code)
	}
	return "Please respond in " + name + " language. "
}
