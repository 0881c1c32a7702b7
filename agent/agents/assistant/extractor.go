package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/movebot/agent/contract"
)

// looseString accepts a JSON string, number or bool. Models sometimes emit phone numbers
// and sizes as bare numbers.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = looseString(str)
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		return nil
	}
	*s = looseString(b)
	return nil
}

// looseList accepts either a list of strings or a single comma separated string.
type looseList []string

func (l *looseList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		for _, part := range strings.Split(str, ",") {
			if p := strings.TrimSpace(part); p != "" {
				*l = append(*l, p)
			}
		}
		return nil
	}
	var items []looseString
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	for _, it := range items {
		if p := strings.TrimSpace(string(it)); p != "" {
			*l = append(*l, p)
		}
	}
	return nil
}

type extractionOutput struct {
	Origin             *looseString `json:"origin"`
	Destination        *looseString `json:"destination"`
	MoveSize           *looseString `json:"move_size"`
	MoveDate           *looseString `json:"move_date"`
	AdditionalServices looseList    `json:"additional_services"`
	Username           *looseString `json:"username"`
	ContactNo          *looseString `json:"contact_no"`
}

func (o extractionOutput) toExtraction() contractx.Extraction {
	return contractx.Extraction{
		Origin:             field(o.Origin),
		Destination:        field(o.Destination),
		MoveSize:           field(o.MoveSize),
		MoveDate:           field(o.MoveDate),
		AdditionalServices: []string(o.AdditionalServices),
		Username:           field(o.Username),
		ContactNo:          field(o.ContactNo),
	}
}

func field(v *looseString) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(string(*v))
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return nil
	}
	return &s
}

type Extractor struct {
	runner compose.Runnable[map[string]any, extractionOutput]
	now    func() time.Time
}

var _ contractx.FieldExtractor = (*Extractor)(nil)

func newExtractor(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Extractor, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: extract prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileExtractGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile extract graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Extractor{runner: runner, now: time.Now}, nil
}

// ExtractFields returns the fields the utterance mentions. Empty text extracts nothing
// without calling the model.
func (e *Extractor) ExtractFields(ctx context.Context, text string) (contractx.Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return contractx.Extraction{}, nil
	}

	out, err := e.runner.Invoke(ctx, map[string]any{
		"input": text,
		"today": e.now().Format(time.DateOnly),
	})
	if err != nil {
		return contractx.Extraction{}, fmt.Errorf("%w: extractor invoke: %v", contractx.ErrModelInvoke, err)
	}
	return out.toExtraction(), nil
}
