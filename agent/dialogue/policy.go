package dialogue

import (
	"strings"
	"unicode"

	statex "github.com/tanpawarit/movebot/agent/state"
)

// Policy holds the per-channel differences of the conversation. The transport picks one;
// the transition table itself is shared.
type Policy struct {
	Name string
	// Spoken phrases replies for text-to-speech and matches yes/no on words of a transcript.
	Spoken bool
	// StrictEmail runs syntax, typo and deliverability checks; otherwise the answer is stored as given.
	StrictEmail bool
	// StrictContact requires exactly ten digits; otherwise the answer is stored as given.
	StrictContact bool
	// RepromptUnknownServices asks again when no known service is named. When false the
	// answer is taken as "no additional services".
	RepromptUnknownServices bool
	// DetectLanguage asks the language oracle for a reply language on every turn.
	DetectLanguage bool
}

var (
	TextPolicy = Policy{
		Name:                    "text",
		StrictEmail:             true,
		StrictContact:           true,
		RepromptUnknownServices: true,
	}

	VoicePolicy = Policy{
		Name:           "voice",
		Spoken:         true,
		StrictEmail:    true,
		StrictContact:  true,
		DetectLanguage: true,
	}

	// VoicePassThroughPolicy stores spoken email and contact answers without validation.
	VoicePassThroughPolicy = Policy{
		Name:           "voice-pass-through",
		Spoken:         true,
		DetectLanguage: true,
	}
)

// PolicyFor returns the policy for a channel. strictVoice=false selects VoicePassThroughPolicy.
func PolicyFor(channel statex.Channel, strictVoice bool) Policy {
	if channel != statex.ChannelVoice {
		return TextPolicy
	}
	if strictVoice {
		return VoicePolicy
	}
	return VoicePassThroughPolicy
}

type answer int

const (
	answerUnknown answer = iota
	answerYes
	answerNo
)

var (
	spokenYes = map[string]bool{"yes": true, "yeah": true, "yep": true, "yup": true, "sure": true, "correct": true}
	spokenNo  = map[string]bool{"no": true, "nope": true, "nah": true}
)

func (p Policy) answer(text string) answer {
	lower := strings.ToLower(strings.TrimSpace(text))
	if !p.Spoken {
		switch lower {
		case "yes", "y", "👍":
			return answerYes
		case "no", "n", "👎":
			return answerNo
		}
		return answerUnknown
	}

	var yes, no bool
	for _, w := range words(lower) {
		yes = yes || spokenYes[w]
		no = no || spokenNo[w]
	}
	switch {
	case yes && !no:
		return answerYes
	case no && !yes:
		return answerNo
	default:
		return answerUnknown
	}
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

var (
	declineWords = map[string]bool{"no": true, "none": true, "nope": true, "nothing": true, "nah": true}
	negators     = map[string]bool{"no": true, "not": true, "don't": true, "without": true, "never": true}
	serviceWords = map[string]string{
		"packing": statex.ServicePacking,
		"pack":    statex.ServicePacking,
		"storage": statex.ServiceStorage,
		"store":   statex.ServiceStorage,
	}
)

// parseServices finds the known services named in text as whole words. A service preceded
// by a negation ("no packing", "don't need storage") is not selected. declined is true when
// nothing was selected and the user said no.
func parseServices(text string) (services []string, declined bool) {
	ws := words(strings.ToLower(text))
	var found []string
	negated := false
	for i, w := range ws {
		svc, ok := serviceWords[w]
		if !ok {
			continue
		}
		if negatedAt(ws, i) {
			negated = true
			continue
		}
		found = append(found, svc)
	}
	if len(found) > 0 {
		return statex.NormalizeServices(found), false
	}
	if negated {
		return nil, true
	}
	for _, w := range ws {
		if declineWords[w] {
			return nil, true
		}
	}
	return nil, false
}

func negatedAt(ws []string, i int) bool {
	if i > 0 && negators[ws[i-1]] {
		return true
	}
	if i > 1 && (ws[i-1] == "need" || ws[i-1] == "want") && negators[ws[i-2]] {
		return true
	}
	return false
}
