package pricing

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	contractx "github.com/tanpawarit/movebot/agent/contract"
)

func newTestOracle(t *testing.T, miles float64) *Oracle {
	t.Helper()
	rates, err := DefaultRates()
	if err != nil {
		t.Fatalf("DefaultRates() error = %v", err)
	}
	return NewOracle(rates, FixedDistance(miles))
}

func TestLookupNormalizesSizeText(t *testing.T) {
	t.Parallel()

	rates, err := DefaultRates()
	if err != nil {
		t.Fatalf("DefaultRates() error = %v", err)
	}

	cases := map[string]string{
		"2 bedroom":         "2 bedroom",
		"two-bedroom":       "2 bedroom",
		"2BR":               "2 bedroom",
		"3 bhk apartment":   "3 bedroom",
		"Studio apartment":  "studio",
		"small office":      "office",
		"9 bedroom mansion": "5 bedroom",
		"1 bedroom":         "1 bedroom",
	}
	for in, want := range cases {
		got, err := rates.Lookup(in)
		if err != nil {
			t.Fatalf("Lookup(%q) error = %v", in, err)
		}
		if got.Name != want {
			t.Fatalf("Lookup(%q) = %q, want %q", in, got.Name, want)
		}
	}

	if _, err := rates.Lookup("a boat"); !errors.Is(err, ErrUnknownSize) {
		t.Fatalf("Lookup(boat) error = %v, want ErrUnknownSize", err)
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()

	o := newTestOracle(t, 100)
	ctx := context.Background()

	base, err := o.Estimate(ctx, contractx.Quote{Origin: "Austin", Destination: "Dallas", MoveSize: "2 bedroom", MoveDate: "2026-11-20"})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	// 700 + 100*1.4, 1000 + 100*2.1
	if base.Min != 840 || base.Max != 1210 || base.DistanceMiles != 100 {
		t.Fatalf("unexpected estimate %+v", base)
	}

	withServices, err := o.Estimate(ctx, contractx.Quote{
		Origin: "Austin", Destination: "Dallas", MoveSize: "2 bedroom",
		Services: []string{"storage", "packing", "packing"}, MoveDate: "2026-11-20",
	})
	if err != nil {
		t.Fatalf("Estimate(services) error = %v", err)
	}
	if withServices.Min != base.Min+600 || withServices.Max != base.Max+600 {
		t.Fatalf("services not added once each: %+v", withServices)
	}

	peak, err := o.Estimate(ctx, contractx.Quote{Origin: "Austin", Destination: "Dallas", MoveSize: "2 bedroom", MoveDate: "2027-07-01"})
	if err != nil {
		t.Fatalf("Estimate(peak) error = %v", err)
	}
	if math.Abs(peak.Min-966) > 1 || math.Abs(peak.Max-1391.5) > 1 {
		t.Fatalf("unexpected peak estimate %+v", peak)
	}
	if peak.Min > peak.Max {
		t.Fatalf("min above max: %+v", peak)
	}
}

func TestEstimateFailuresWrapPricingUnavailable(t *testing.T) {
	t.Parallel()

	o := newTestOracle(t, 10)
	ctx := context.Background()

	if _, err := o.Estimate(ctx, contractx.Quote{Origin: "A", Destination: "B", MoveSize: "castle"}); !errors.Is(err, contractx.ErrPricingUnavailable) {
		t.Fatalf("unknown size error = %v", err)
	}
	if _, err := o.Estimate(ctx, contractx.Quote{Origin: "", Destination: "B", MoveSize: "studio"}); !errors.Is(err, contractx.ErrPricingUnavailable) {
		t.Fatalf("missing origin error = %v", err)
	}
	if _, err := o.ServiceCosts(ctx, "castle"); !errors.Is(err, contractx.ErrPricingUnavailable) {
		t.Fatalf("service costs error = %v", err)
	}
}

func TestServiceCostsAndDistance(t *testing.T) {
	t.Parallel()

	o := newTestOracle(t, 12.345)
	ctx := context.Background()

	costs, err := o.ServiceCosts(ctx, "studio")
	if err != nil {
		t.Fatalf("ServiceCosts() error = %v", err)
	}
	if costs.Packing != 150 || costs.Storage != 100 {
		t.Fatalf("unexpected costs %+v", costs)
	}

	miles, err := o.Distance(ctx, "Austin", "Dallas")
	if err != nil {
		t.Fatalf("Distance() error = %v", err)
	}
	if miles != 12.3 {
		t.Fatalf("Distance() = %v, want 12.3", miles)
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without key or fallback")
	}

	path := filepath.Join(t.TempDir(), "rates.yaml")
	raw := []byte(`
peak_months: []
sizes:
  - name: studio
    bedrooms: 0
    aliases: [studio]
    base_min: 100
    base_max: 200
    per_mile_min: 1
    per_mile_max: 2
    packing: 10
    storage: 20
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write rates: %v", err)
	}

	o, err := New(Config{RatesPath: path, FallbackMiles: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	est, err := o.Estimate(context.Background(), contractx.Quote{Origin: "A", Destination: "B", MoveSize: "studio"})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if est.Min != 105 || est.Max != 210 {
		t.Fatalf("unexpected estimate %+v", est)
	}
}

func TestLoadRatesRejectsInvertedRange(t *testing.T) {
	t.Parallel()

	_, err := parseRates([]byte(`
sizes:
  - name: studio
    base_min: 500
    base_max: 100
`))
	if err == nil {
		t.Fatal("expected error for inverted range")
	}
}
