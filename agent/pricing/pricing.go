package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/movebot/agent/contract"
	statex "github.com/tanpawarit/movebot/agent/state"
)

type Config struct {
	MapsAPIKey    string  `envconfig:"MAPS_API_KEY"`
	RatesPath     string  `split_words:"true"`
	FallbackMiles float64 `split_words:"true" default:"0"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.MapsAPIKey) == "" && c.FallbackMiles <= 0 {
		return errors.New("either MAPS_API_KEY or FALLBACK_MILES must be set")
	}
	if c.FallbackMiles < 0 {
		return errors.New("fallback miles must be >= 0")
	}
	return nil
}

// Oracle prices moves from a rate table and a distance source.
type Oracle struct {
	rates    *RateTable
	distance DistanceSource
}

var _ contractx.PricingOracle = (*Oracle)(nil)

func NewOracle(rates *RateTable, distance DistanceSource) *Oracle {
	return &Oracle{rates: rates, distance: distance}
}

// New builds an Oracle from config: the Maps API when a key is set, the fixed mileage otherwise.
func New(cfg Config) (*Oracle, error) {
	var (
		rates *RateTable
		err   error
	)
	if cfg.RatesPath != "" {
		rates, err = LoadRates(cfg.RatesPath)
	} else {
		rates, err = DefaultRates()
	}
	if err != nil {
		return nil, err
	}

	var distance DistanceSource
	if strings.TrimSpace(cfg.MapsAPIKey) != "" {
		distance, err = NewMapsDistance(cfg.MapsAPIKey)
		if err != nil {
			return nil, err
		}
	} else {
		distance = FixedDistance(cfg.FallbackMiles)
	}
	return NewOracle(rates, distance), nil
}

func (o *Oracle) Distance(ctx context.Context, origin, destination string) (float64, error) {
	miles, err := o.distance.Miles(ctx, origin, destination)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", contractx.ErrPricingUnavailable, err)
	}
	return round1(miles), nil
}

func (o *Oracle) ServiceCosts(_ context.Context, moveSize string) (contractx.ServiceCosts, error) {
	rate, err := o.rates.Lookup(moveSize)
	if err != nil {
		return contractx.ServiceCosts{}, fmt.Errorf("%w: %w", contractx.ErrPricingUnavailable, err)
	}
	return contractx.ServiceCosts{Packing: rate.Packing, Storage: rate.Storage}, nil
}

// Estimate returns a whole-dollar range. Selected services add their flat price to both bounds;
// moves dated in a peak month are scaled by the peak multiplier.
func (o *Oracle) Estimate(ctx context.Context, q contractx.Quote) (contractx.Estimate, error) {
	rate, err := o.rates.Lookup(q.MoveSize)
	if err != nil {
		return contractx.Estimate{}, fmt.Errorf("%w: %w", contractx.ErrPricingUnavailable, err)
	}
	miles, err := o.Distance(ctx, q.Origin, q.Destination)
	if err != nil {
		return contractx.Estimate{}, err
	}

	lo := rate.BaseMin + miles*rate.PerMileMin
	hi := rate.BaseMax + miles*rate.PerMileMax
	for _, s := range statex.NormalizeServices(q.Services) {
		switch s {
		case statex.ServicePacking:
			lo += rate.Packing
			hi += rate.Packing
		case statex.ServiceStorage:
			lo += rate.Storage
			hi += rate.Storage
		}
	}

	if q.MoveDate != "" {
		if d, err := time.Parse(time.DateOnly, q.MoveDate); err == nil && o.rates.peak(int(d.Month())) {
			lo *= o.rates.PeakMultiplier
			hi *= o.rates.PeakMultiplier
		}
	}

	est := contractx.Estimate{DistanceMiles: miles, Min: math.Round(lo), Max: math.Round(hi)}
	zerolog.Ctx(ctx).Debug().
		Str("size", rate.Name).
		Float64("miles", miles).
		Float64("min", est.Min).
		Float64("max", est.Max).
		Msg("priced move")
	return est, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
