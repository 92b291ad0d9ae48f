package editor

import (
	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/humastar"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
)

// Signal names set by the fragments. Datastar sends every signal of the page
// with each request, so handlers only read the ones they own.
const (
	sigSession     = "session"
	sigEditing     = "editing"
	sigZoom        = "zoom"
	sigLat         = "lat"
	sigLng         = "lng"
	sigWidth       = "width"
	sigHeight      = "height"
	sigMarker      = "marker"
	sigDraft       = "draft"
	sigLabelDraft  = "labeldraft"
	sigPlaceID     = "placeid"
	sigDescription = "description"
	sigValue       = "value"
)

// PageSignals returns the initial signals of a block page. session names
// the page; its canvas, mode and framing are kept apart from other pages.
func PageSignals(session string, editing bool) map[string]any {
	return map[string]any{
		sigSession:     session,
		sigEditing:     editing,
		sigZoom:        0,
		sigLat:         0,
		sigLng:         0,
		sigWidth:       0,
		sigHeight:      0,
		sigMarker:      "",
		sigDraft:       "",
		sigLabelDraft:  "",
		sigPlaceID:     "",
		sigDescription: "",
		sigValue:       "",
		"error":        "",
		"success":      "",
	}
}

// sessionOf returns the page session a request came from.
func sessionOf(s humastar.Signals) string {
	return s.String(sigSession)
}

// ParseViewportSignals reads the framing the browser map reported.
func ParseViewportSignals(s humastar.Signals) mapsvc.Viewport {
	return mapsvc.Viewport{
		Zoom:   s.Float(sigZoom),
		Center: block.LatLng{Lat: s.Float(sigLat), Lng: s.Float(sigLng)},
	}
}

// ParseSizeSignals reads the container size. ok is false until the browser
// measured the container.
func ParseSizeSignals(s humastar.Signals) (mapsvc.Size, bool) {
	size := mapsvc.Size{Width: s.Int(sigWidth), Height: s.Int(sigHeight)}
	return size, size.Width > 0 && size.Height > 0
}

// ParsePredictionSignals reads the suggestion the user picked.
func ParsePredictionSignals(s humastar.Signals) mapsvc.Prediction {
	return mapsvc.Prediction{
		PlaceID:     s.String(sigPlaceID),
		Description: s.String(sigDescription),
	}
}
