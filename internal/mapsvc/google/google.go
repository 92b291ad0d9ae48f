// Package google provides the map service backed by Google Maps Platform
// (Places Autocomplete and Place Details).
package google

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"googlemaps.github.io/maps"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
)

// Loader creates Google backed services, one client per API key.
type Loader struct {
	// Language biases suggestions, e.g. "en". Empty uses the provider default.
	Language string
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
}

// Load creates a client for apiKey.
func (l Loader) Load(ctx context.Context, apiKey string) (mapsvc.Service, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, mapsvc.ErrNoAPIKey
	}
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if l.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(l.BaseURL))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("google maps client: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Service{
		client:   client,
		language: l.Language,
		session:  maps.NewPlaceAutocompleteSessionToken(),
	}, nil
}

// Service talks to the Places API. Autocomplete and details calls share a
// session token until a place is resolved, which is how Google bills a
// search as one session.
type Service struct {
	client   *maps.Client
	language string

	mu      sync.Mutex
	session maps.PlaceAutocompleteSessionToken
}

// NewMap creates the frame the browser map mirrors.
func (s *Service) NewMap(size mapsvc.Size, initial mapsvc.Viewport) mapsvc.Map {
	return mapsvc.NewFrame(size, initial)
}

// Autocomplete returns place suggestions for input.
func (s *Service) Autocomplete(ctx context.Context, input string) ([]mapsvc.Prediction, error) {
	if strings.TrimSpace(input) == "" {
		return []mapsvc.Prediction{}, nil
	}
	resp, err := s.client.PlaceAutocomplete(ctx, &maps.PlaceAutocompleteRequest{
		Input:        input,
		Language:     s.language,
		SessionToken: s.token(false),
	})
	if err != nil {
		return nil, fmt.Errorf("place autocomplete: %w", err)
	}
	return lo.Map(resp.Predictions, func(p maps.AutocompletePrediction, _ int) mapsvc.Prediction {
		return mapsvc.Prediction{Description: p.Description, PlaceID: p.PlaceID}
	}), nil
}

// PlaceDetails resolves placeID into a location and ends the session.
func (s *Service) PlaceDetails(ctx context.Context, placeID string) (block.Location, error) {
	res, err := s.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
		PlaceID:      placeID,
		Language:     s.language,
		SessionToken: s.token(true),
		Fields: []maps.PlaceDetailsFieldMask{
			maps.PlaceDetailsFieldMaskName,
			maps.PlaceDetailsFieldMaskFormattedAddress,
			maps.PlaceDetailsFieldMaskGeometry,
			maps.PlaceDetailsFieldMaskPlaceID,
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "NOT_FOUND") || strings.Contains(err.Error(), "ZERO_RESULTS") {
			return block.Location{}, fmt.Errorf("%q: %w", placeID, mapsvc.ErrPlaceNotFound)
		}
		return block.Location{}, fmt.Errorf("place details: %w", err)
	}

	name := res.FormattedAddress
	if name == "" {
		name = res.Name
	}
	log.Debug().Str("placeId", placeID).Str("name", name).Msg("Place resolved")

	return block.Location{
		Name:    name,
		PlaceID: placeID,
		Lat:     res.Geometry.Location.Lat,
		Lng:     res.Geometry.Location.Lng,
	}, nil
}

// token returns the current session token, starting a new session
// afterwards when end is set.
func (s *Service) token(end bool) maps.PlaceAutocompleteSessionToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.session
	if end {
		s.session = maps.NewPlaceAutocompleteSessionToken()
	}
	return t
}

var (
	_ mapsvc.Loader  = Loader{}
	_ mapsvc.Service = (*Service)(nil)
)
