package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/extract.txt
	extractRaw string

	//go:embed template/reply.txt
	replyRaw string
)

// PromptSet holds loaded prompt content.
// Extract takes the {today} variable; Reply takes {bot_name} and {language_hint}.
type PromptSet struct {
	Extract string
	Reply   string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Extract: strings.TrimSpace(extractRaw),
		Reply:   strings.TrimSpace(replyRaw),
	}
}
