// Package mapsvc is the map rendering and geocoding capability the map
// canvas is built on. Providers are injected through Loader so the canvas
// never reaches into SDK globals, and tests can swap in the gazetteer.
package mapsvc

import (
	"context"
	"errors"
	"slices"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-mapblock/internal/block"
)

var (
	// ErrNoAPIKey is returned by loaders when the key is blank.
	ErrNoAPIKey = errors.New("map service: api key required")
	// ErrPlaceNotFound is returned when a place id cannot be resolved.
	ErrPlaceNotFound = errors.New("map service: place not found")
)

// Size is a map container size in CSS pixels.
type Size struct {
	Width  int `json:"width" minimum:"1" doc:"Container width in pixels"`
	Height int `json:"height" minimum:"1" doc:"Container height in pixels"`
}

// DefaultSize is assumed until the browser reports the real container size.
var DefaultSize = Size{Width: 960, Height: 540}

// DefaultPadding is the fit-to-bounds padding in pixels.
const DefaultPadding = 40

// Viewport is the framing of a map.
type Viewport struct {
	Zoom   float64      `json:"zoom" doc:"Zoom level"`
	Center block.LatLng `json:"center" doc:"Map center"`
}

// Prediction is one autocomplete suggestion.
type Prediction struct {
	Description string `json:"description" doc:"Suggested place text" example:"Zurich, Switzerland"`
	PlaceID     string `json:"placeId" doc:"Provider place identifier"`
}

// Loader loads the provider for an API key. Loading may be slow; callers
// gate every map operation on its completion.
type Loader interface {
	Load(ctx context.Context, apiKey string) (Service, error)
}

// Service is a loaded provider.
type Service interface {
	// NewMap creates a map instance framed at initial.
	NewMap(size Size, initial Viewport) Map
	// Autocomplete suggests places for free text.
	Autocomplete(ctx context.Context, input string) ([]Prediction, error)
	// PlaceDetails resolves a suggestion into a geocoded location.
	PlaceDetails(ctx context.Context, placeID string) (block.Location, error)
}

// Map is one live map instance.
type Map interface {
	Viewport() Viewport
	SetViewport(Viewport)
	// FitBounds frames b inside the map with padding pixels on every side.
	FitBounds(b orb.Bound, padding int)
	// Bound is the region currently visible.
	Bound() orb.Bound
	Size() Size
	Resize(Size)
}

// Bounds returns the smallest bound covering points. It reports false when
// there are no points. A bound that crosses the antimeridian has
// Min.Lon() > Max.Lon(); orb's own predicates do not understand that form,
// FitBounds does.
func Bounds(points ...orb.Point) (orb.Bound, bool) {
	if len(points) == 0 {
		return orb.Bound{}, false
	}
	b := points[0].Bound()
	for _, p := range points[1:] {
		b = b.Extend(p)
	}
	b.Min[0], b.Max[0] = lonSpan(points)
	return b, true
}

// lonSpan returns the narrowest longitude interval, read west to east,
// covering all points: the circle minus its widest empty gap. The gap
// across the antimeridian wins only when strictly wider.
func lonSpan(points []orb.Point) (west, east float64) {
	lons := make([]float64, len(points))
	for i, p := range points {
		lons[i] = p.Lon()
	}
	slices.Sort(lons)

	n := len(lons)
	west, east = lons[0], lons[n-1]
	gap := lons[0] + 360 - lons[n-1]
	for i := 1; i < n; i++ {
		if g := lons[i] - lons[i-1]; g > gap {
			gap = g
			west, east = lons[i], lons[i-1]
		}
	}
	return west, east
}
