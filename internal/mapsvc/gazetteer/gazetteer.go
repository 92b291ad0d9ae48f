// Package gazetteer is an offline map provider backed by a fixed list of
// places. It serves local development without a Google key and backs tests.
package gazetteer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
)

// MaxPredictions caps the suggestions returned for one query.
const MaxPredictions = 5

// Place is one entry of the gazetteer.
type Place struct {
	Name    string  `yaml:"name"`
	PlaceID string  `yaml:"placeId"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
}

// File is the YAML layout of a places file.
type File struct {
	Places []Place `yaml:"places"`
}

// Loader hands out gazetteer services. Any non-blank key is accepted.
type Loader struct {
	places []Place
	// Loaded, when set, is called before Load returns. Tests use it to hold
	// a load in flight.
	Loaded func(ctx context.Context) error
}

// New creates a loader over places.
func New(places ...Place) *Loader {
	return &Loader{places: places}
}

// Default returns a loader with a small built-in list of cities.
func Default() *Loader {
	return New(
		Place{Name: "Zurich, Switzerland", PlaceID: "gz-zurich", Lat: 47.3769, Lng: 8.5417},
		Place{Name: "Bern, Switzerland", PlaceID: "gz-bern", Lat: 46.9480, Lng: 7.4474},
		Place{Name: "Geneva, Switzerland", PlaceID: "gz-geneva", Lat: 46.2044, Lng: 6.1432},
		Place{Name: "Basel, Switzerland", PlaceID: "gz-basel", Lat: 47.5596, Lng: 7.5886},
		Place{Name: "Lausanne, Switzerland", PlaceID: "gz-lausanne", Lat: 46.5197, Lng: 6.6323},
		Place{Name: "Berlin, Germany", PlaceID: "gz-berlin", Lat: 52.5200, Lng: 13.4050},
		Place{Name: "Paris, France", PlaceID: "gz-paris", Lat: 48.8566, Lng: 2.3522},
		Place{Name: "London, United Kingdom", PlaceID: "gz-london", Lat: 51.5072, Lng: -0.1276},
		Place{Name: "New York, NY, USA", PlaceID: "gz-new-york", Lat: 40.7128, Lng: -74.0060},
		Place{Name: "Tokyo, Japan", PlaceID: "gz-tokyo", Lat: 35.6762, Lng: 139.6503},
	)
}

// LoadFile reads a YAML places file.
func LoadFile(path string) (*Loader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing places %s: %w", path, err)
	}
	return New(f.Places...), nil
}

// Load returns a service over the loader's places.
func (l *Loader) Load(ctx context.Context, apiKey string) (mapsvc.Service, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, mapsvc.ErrNoAPIKey
	}
	if l.Loaded != nil {
		if err := l.Loaded(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &service{places: l.places}, nil
}

type service struct {
	places []Place
}

func (s *service) NewMap(size mapsvc.Size, initial mapsvc.Viewport) mapsvc.Map {
	return mapsvc.NewFrame(size, initial)
}

// Autocomplete matches places whose name contains the input, prefix
// matches first.
func (s *service) Autocomplete(ctx context.Context, input string) ([]mapsvc.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(input))
	if q == "" {
		return []mapsvc.Prediction{}, nil
	}

	matches := lo.Filter(s.places, func(p Place, _ int) bool {
		return strings.Contains(strings.ToLower(p.Name), q)
	})
	prefix, rest := lo.FilterReject(matches, func(p Place, _ int) bool {
		return strings.HasPrefix(strings.ToLower(p.Name), q)
	})
	ordered := append(prefix, rest...)
	if len(ordered) > MaxPredictions {
		ordered = ordered[:MaxPredictions]
	}

	return lo.Map(ordered, func(p Place, _ int) mapsvc.Prediction {
		return mapsvc.Prediction{Description: p.Name, PlaceID: p.PlaceID}
	}), nil
}

func (s *service) PlaceDetails(ctx context.Context, placeID string) (block.Location, error) {
	if err := ctx.Err(); err != nil {
		return block.Location{}, err
	}
	p, ok := lo.Find(s.places, func(p Place) bool { return p.PlaceID == placeID })
	if !ok {
		return block.Location{}, fmt.Errorf("%q: %w", placeID, mapsvc.ErrPlaceNotFound)
	}
	return block.Location{Name: p.Name, PlaceID: p.PlaceID, Lat: p.Lat, Lng: p.Lng}, nil
}

var _ mapsvc.Loader = (*Loader)(nil)
