package pricing

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rates.yaml
var defaultRatesRaw []byte

var ErrUnknownSize = errors.New("unknown move size")

type SizeRate struct {
	Name       string   `yaml:"name"`
	Bedrooms   int      `yaml:"bedrooms"`
	Aliases    []string `yaml:"aliases"`
	BaseMin    float64  `yaml:"base_min"`
	BaseMax    float64  `yaml:"base_max"`
	PerMileMin float64  `yaml:"per_mile_min"`
	PerMileMax float64  `yaml:"per_mile_max"`
	Packing    float64  `yaml:"packing"`
	Storage    float64  `yaml:"storage"`
}

type RateTable struct {
	Currency       string     `yaml:"currency"`
	PeakMonths     []int      `yaml:"peak_months"`
	PeakMultiplier float64    `yaml:"peak_multiplier"`
	Sizes          []SizeRate `yaml:"sizes"`
}

// DefaultRates returns the embedded rate table.
func DefaultRates() (*RateTable, error) {
	return parseRates(defaultRatesRaw)
}

// LoadRates reads a rate table from a YAML file.
func LoadRates(path string) (*RateTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates: %w", err)
	}
	return parseRates(raw)
}

func parseRates(raw []byte) (*RateTable, error) {
	var t RateTable
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if len(t.Sizes) == 0 {
		return nil, errors.New("rate table has no sizes")
	}
	for _, s := range t.Sizes {
		if s.BaseMin > s.BaseMax || s.PerMileMin > s.PerMileMax {
			return nil, fmt.Errorf("rate %q: min exceeds max", s.Name)
		}
	}
	if t.PeakMultiplier <= 0 {
		t.PeakMultiplier = 1
	}
	return &t, nil
}

var (
	bedroomPattern = regexp.MustCompile(`(\d+)\s*(?:bedroom|bedrooms|bed|beds|br|bhk|bdr|bdrm)\b`)
	wordNumbers    = strings.NewReplacer(
		"one", "1", "two", "2", "three", "3", "four", "4", "five", "5", "six", "6",
		"-", " ",
	)
)

// Lookup maps free-form size text ("2 bedroom", "two-bedroom", "2br", "studio") to a bracket.
func (t *RateTable) Lookup(size string) (SizeRate, error) {
	text := wordNumbers.Replace(strings.ToLower(strings.TrimSpace(size)))

	if m := bedroomPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		var best *SizeRate
		for i := range t.Sizes {
			s := &t.Sizes[i]
			if s.Bedrooms == n {
				return *s, nil
			}
			if s.Bedrooms > 0 && (best == nil || s.Bedrooms > best.Bedrooms) {
				best = s
			}
		}
		if best != nil && n > best.Bedrooms {
			return *best, nil
		}
	}

	for _, s := range t.Sizes {
		if text == s.Name {
			return s, nil
		}
		for _, alias := range s.Aliases {
			if strings.Contains(text, alias) {
				return s, nil
			}
		}
	}
	return SizeRate{}, fmt.Errorf("%w: %q", ErrUnknownSize, size)
}

func (t *RateTable) peak(month int) bool {
	for _, m := range t.PeakMonths {
		if m == month {
			return true
		}
	}
	return false
}
