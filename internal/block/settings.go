// Package block holds the persisted configuration of a map block: its
// settings, markers and the settings schema the editor renders.
package block

import (
	_ "embed"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

const (
	// DefaultMapZoom is the zoom of a freshly inserted block.
	DefaultMapZoom = 10
	// MaxZoom bounds fit-to-bounds and restored viewports.
	MaxZoom = 16
	// MarkerWidth is the rendered width of a marker icon in pixels.
	MarkerWidth = 24
	// DefaultMarkerIcon is used when no custom icon is enabled.
	// The {width} placeholder is replaced with MarkerWidth.
	DefaultMarkerIcon = "https://cdn-assets-eu.frontify.com/s3/frontify-enterprise-files-eu/eyJwYXRoIjoibGlpcFwvZmlsZVwvRTdINUd4azQzQkJKZXVyMVdZc3Muc3ZnIn0:liip:qmnSd5vZ7AFR_fK8UkQJhae6jxYmlwoPQyPd5qwgrtY?width={width}"
)

// DefaultMapCenter is the center of a freshly inserted block (Zurich).
var DefaultMapCenter = LatLng{Lat: 47.376888, Lng: 8.541694}

//go:embed default_style.json
var defaultMapStyle []byte

// DefaultMapStyle returns the built-in style rules.
func DefaultMapStyle() json.RawMessage {
	return json.RawMessage(defaultMapStyle)
}

// FormatPreset selects the aspect ratio of the map container.
type FormatPreset string

const (
	Format16to9 FormatPreset = "16to9"
	Format4to3  FormatPreset = "4to3"
	Format1to1  FormatPreset = "1to1"
)

// Valid reports whether f is a known preset.
func (f FormatPreset) Valid() bool {
	switch f {
	case Format16to9, Format4to3, Format1to1:
		return true
	}
	return false
}

// Ratio returns the width and height parts of the preset.
// Unknown presets fall back to 16:9.
func (f FormatPreset) Ratio() (w, h int) {
	switch f {
	case Format4to3:
		return 4, 3
	case Format1to1:
		return 1, 1
	default:
		return 16, 9
	}
}

// Label is the human readable form used by the slider.
func (f FormatPreset) Label() string {
	w, h := f.Ratio()
	return strconv.Itoa(w) + " / " + strconv.Itoa(h)
}

// LatLng is a geographic coordinate.
type LatLng struct {
	Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude"`
	Lng float64 `json:"lng" minimum:"-180" maximum:"180" doc:"Longitude"`
}

// Point returns the coordinate as an orb point (lng, lat).
func (ll LatLng) Point() orb.Point {
	return orb.Point{ll.Lng, ll.Lat}
}

// LatLngOf converts an orb point back to a coordinate.
func LatLngOf(p orb.Point) LatLng {
	return LatLng{Lat: p.Lat(), Lng: p.Lon()}
}

// Settings is the persisted configuration of one block instance.
// The JSON field names are the wire contract with the host.
type Settings struct {
	APIKey            string       `json:"apiKey" doc:"Google Maps API key; empty renders the empty state"`
	AllowMapControls  bool         `json:"allowMapControls" default:"true" doc:"Show zoom and pan controls"`
	MarkerIcon        string       `json:"markerIcon,omitempty" doc:"URL of the custom marker icon"`
	MarkerIconEnabled bool         `json:"markerIconEnabled" doc:"Use the custom marker icon"`
	MapStyle          string       `json:"mapStyle,omitempty" doc:"Serialized map style rules (JSON)"`
	MapStyleEnabled   bool         `json:"mapStyleEnabled" doc:"Use the custom map style"`
	CustomMapFormat   bool         `json:"customMapFormat" doc:"Use a fixed height instead of an aspect ratio"`
	FormatPreset      FormatPreset `json:"formatPreset" enum:"16to9,4to3,1to1" default:"16to9" doc:"Aspect ratio preset"`
	FixedHeight       string       `json:"fixedHeight,omitempty" doc:"Container height when customMapFormat is on" example:"500px"`
	Markers           Markers      `json:"markers" doc:"Markers keyed by id"`
	MapZoom           float64      `json:"mapZoom" minimum:"0" maximum:"22" doc:"Persisted zoom level"`
	MapCenter         LatLng       `json:"mapCenter" doc:"Persisted map center"`
}

// Defaults returns the settings of a freshly inserted block.
func Defaults() Settings {
	return Settings{
		AllowMapControls: true,
		MapStyle:         "[]",
		FormatPreset:     Format16to9,
		MapZoom:          DefaultMapZoom,
		MapCenter:        DefaultMapCenter,
	}
}

// Configured reports whether an API key is present. Nothing else is
// interpreted when it is not.
func (s Settings) Configured() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// Apply merges a patch into s and returns the next settings value.
// Fields the patch leaves unset are kept.
func (s Settings) Apply(p Patch) Settings {
	if p.APIKey != nil {
		s.APIKey = *p.APIKey
	}
	if p.AllowMapControls != nil {
		s.AllowMapControls = *p.AllowMapControls
	}
	if p.MarkerIcon != nil {
		s.MarkerIcon = *p.MarkerIcon
	}
	if p.MarkerIconEnabled != nil {
		s.MarkerIconEnabled = *p.MarkerIconEnabled
	}
	if p.MapStyle != nil {
		s.MapStyle = *p.MapStyle
	}
	if p.MapStyleEnabled != nil {
		s.MapStyleEnabled = *p.MapStyleEnabled
	}
	if p.CustomMapFormat != nil {
		s.CustomMapFormat = *p.CustomMapFormat
	}
	if p.FormatPreset != nil {
		s.FormatPreset = *p.FormatPreset
	}
	if p.FixedHeight != nil {
		s.FixedHeight = *p.FixedHeight
	}
	if p.Markers != nil {
		s.Markers = *p.Markers
	}
	if p.MapZoom != nil {
		s.MapZoom = *p.MapZoom
	}
	if p.MapCenter != nil {
		s.MapCenter = *p.MapCenter
	}
	return s
}

// MarkerIconURL returns the icon pins are drawn with.
func (s Settings) MarkerIconURL() string {
	icon := DefaultMarkerIcon
	if s.MarkerIconEnabled && s.MarkerIcon != "" {
		icon = s.MarkerIcon
	}
	return strings.ReplaceAll(icon, "{width}", strconv.Itoa(MarkerWidth))
}

// EffectiveMapStyle returns the custom style when it is enabled and valid,
// the built-in style otherwise.
func (s Settings) EffectiveMapStyle() json.RawMessage {
	if s.MapStyleEnabled && json.Valid([]byte(s.MapStyle)) {
		return json.RawMessage(s.MapStyle)
	}
	return DefaultMapStyle()
}

// Container describes how the map container is sized.
type Container struct {
	FixedHeight string `json:"fixedHeight,omitempty" doc:"CSS height when a fixed height is used"`
	AspectClass string `json:"aspectClass,omitempty" doc:"CSS class selecting the aspect ratio"`
}

// Style returns the inline CSS for the container.
func (c Container) Style() string {
	if c.FixedHeight == "" {
		return ""
	}
	return "height: " + c.FixedHeight
}

// Container returns the container sizing. It does not depend on map state.
func (s Settings) Container() Container {
	if s.CustomMapFormat {
		h := NormalizeHeight(s.FixedHeight)
		if h != "" {
			return Container{FixedHeight: h}
		}
	}
	preset := s.FormatPreset
	if !preset.Valid() {
		preset = Format16to9
	}
	return Container{AspectClass: "aspect-" + string(preset)}
}

// Patch is a partial Settings. Nil fields are left untouched by Apply.
type Patch struct {
	APIKey            *string       `json:"apiKey,omitempty"`
	AllowMapControls  *bool         `json:"allowMapControls,omitempty"`
	MarkerIcon        *string       `json:"markerIcon,omitempty"`
	MarkerIconEnabled *bool         `json:"markerIconEnabled,omitempty"`
	MapStyle          *string       `json:"mapStyle,omitempty"`
	MapStyleEnabled   *bool         `json:"mapStyleEnabled,omitempty"`
	CustomMapFormat   *bool         `json:"customMapFormat,omitempty"`
	FormatPreset      *FormatPreset `json:"formatPreset,omitempty" enum:"16to9,4to3,1to1"`
	FixedHeight       *string       `json:"fixedHeight,omitempty"`
	Markers           *Markers      `json:"markers,omitempty"`
	MapZoom           *float64      `json:"mapZoom,omitempty" minimum:"0" maximum:"22"`
	MapCenter         *LatLng       `json:"mapCenter,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Merge returns p overlaid with next; fields set in next win.
func (p Patch) Merge(next Patch) Patch {
	if next.APIKey != nil {
		p.APIKey = next.APIKey
	}
	if next.AllowMapControls != nil {
		p.AllowMapControls = next.AllowMapControls
	}
	if next.MarkerIcon != nil {
		p.MarkerIcon = next.MarkerIcon
	}
	if next.MarkerIconEnabled != nil {
		p.MarkerIconEnabled = next.MarkerIconEnabled
	}
	if next.MapStyle != nil {
		p.MapStyle = next.MapStyle
	}
	if next.MapStyleEnabled != nil {
		p.MapStyleEnabled = next.MapStyleEnabled
	}
	if next.CustomMapFormat != nil {
		p.CustomMapFormat = next.CustomMapFormat
	}
	if next.FormatPreset != nil {
		p.FormatPreset = next.FormatPreset
	}
	if next.FixedHeight != nil {
		p.FixedHeight = next.FixedHeight
	}
	if next.Markers != nil {
		p.Markers = next.Markers
	}
	if next.MapZoom != nil {
		p.MapZoom = next.MapZoom
	}
	if next.MapCenter != nil {
		p.MapCenter = next.MapCenter
	}
	return p
}

// ViewportPatch builds the patch that persists a viewport.
func ViewportPatch(zoom float64, center LatLng) Patch {
	return Patch{MapZoom: &zoom, MapCenter: &center}
}

// MarkersPatch builds the patch that persists a marker collection.
func MarkersPatch(m Markers) Patch {
	return Patch{Markers: &m}
}
