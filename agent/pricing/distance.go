package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"
)

const metersPerMile = 1609.344

// DistanceSource returns the driving distance between two places in miles.
type DistanceSource interface {
	Miles(ctx context.Context, origin, destination string) (float64, error)
}

// MapsDistance asks the Google Distance Matrix API for the driving distance.
type MapsDistance struct {
	client *maps.Client
}

func NewMapsDistance(apiKey string) (*MapsDistance, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("maps api key is required")
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &MapsDistance{client: client}, nil
}

func (m *MapsDistance) Miles(ctx context.Context, origin, destination string) (float64, error) {
	resp, err := m.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{destination},
		Units:        maps.UnitsImperial,
	})
	if err != nil {
		return 0, fmt.Errorf("distance matrix: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, errors.New("distance matrix: empty response")
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("distance matrix: element status %s", el.Status)
	}
	return float64(el.Distance.Meters) / metersPerMile, nil
}

// FixedDistance answers every pair with the same mileage. Used offline and in tests.
type FixedDistance float64

func (f FixedDistance) Miles(_ context.Context, origin, destination string) (float64, error) {
	if strings.TrimSpace(origin) == "" || strings.TrimSpace(destination) == "" {
		return 0, errors.New("origin and destination are required")
	}
	return float64(f), nil
}
