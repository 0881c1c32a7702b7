package faq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
)

// DefaultThreshold is the minimum cosine similarity for an answer to be returned.
const DefaultThreshold = 0.75

var triggerKeywords = []string{
	"modify booking",
	"hidden charge",
	"refund",
	"cancel",
	"policy",
	"charges",
	"payment",
	"change booking",
}

// IsTrigger reports whether text mentions one of the FAQ keywords.
func IsTrigger(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range triggerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Matcher is a linear nearest-neighbour index over FAQ question embeddings.
type Matcher struct {
	embedder  Embedder
	entries   []Entry
	vectors   [][]float64
	threshold float64
}

var _ contractx.FAQMatcher = (*Matcher)(nil)

type Option func(*Matcher)

func WithThreshold(v float64) Option {
	return func(m *Matcher) {
		if v > 0 && v <= 1 {
			m.threshold = v
		}
	}
}

type cacheFile struct {
	Model   string      `json:"model"`
	Hash    string      `json:"hash"`
	Vectors [][]float64 `json:"vectors"`
}

// NewMatcher embeds every question, reusing cachePath when it was built by the same
// model over the same questions. An empty cachePath disables the cache.
func NewMatcher(ctx context.Context, embedder Embedder, entries []Entry, cachePath string, opts ...Option) (*Matcher, error) {
	if embedder == nil {
		return nil, errors.New("faq embedder is nil")
	}
	if len(entries) == 0 {
		return nil, ErrEmptyDataset
	}

	m := &Matcher{embedder: embedder, entries: entries, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(m)
	}

	hash := questionsHash(entries)
	if cachePath != "" {
		if vectors, ok := readCache(cachePath, embedder.Model(), hash, len(entries)); ok {
			m.vectors = vectors
			zerolog.Ctx(ctx).Debug().Str("path", cachePath).Msg("faq embeddings loaded from cache")
			return m, nil
		}
	}

	m.vectors = make([][]float64, len(entries))
	for i, e := range entries {
		v, err := embedder.Embed(ctx, e.Question)
		if err != nil {
			return nil, fmt.Errorf("embed faq question %d: %w", i, err)
		}
		m.vectors[i] = v
	}

	if cachePath != "" {
		if err := writeCache(cachePath, cacheFile{Model: embedder.Model(), Hash: hash, Vectors: m.vectors}); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("path", cachePath).Msg("write faq cache")
		}
	}
	return m, nil
}

// Match embeds text once and returns the best answer scoring above the threshold.
func (m *Matcher) Match(ctx context.Context, text string) (string, bool, error) {
	query, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return "", false, err
	}

	best, bestScore := -1, -1.0
	for i, v := range m.vectors {
		if s := cosine(query, v); s > bestScore {
			best, bestScore = i, s
		}
	}
	zerolog.Ctx(ctx).Debug().Float64("score", bestScore).Int("entry", best).Msg("faq match")
	if best < 0 || bestScore <= m.threshold {
		return "", false, nil
	}
	return m.entries[best].Answer, true, nil
}

func (m *Matcher) Len() int { return len(m.entries) }

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func questionsHash(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.Question))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func readCache(path, model, hash string, n int) ([][]float64, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var c cacheFile
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false
	}
	if c.Model != model || c.Hash != hash || len(c.Vectors) != n {
		return nil, false
	}
	return c.Vectors, true
}

func writeCache(path string, c cacheFile) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// CachePathFor places the embedding cache next to the dataset.
func CachePathFor(datasetPath string) string {
	ext := filepath.Ext(datasetPath)
	return strings.TrimSuffix(datasetPath, ext) + ".embeddings.json"
}
