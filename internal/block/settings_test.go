package block

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestDefaults(t *testing.T) {
	s := Defaults()

	assert.False(t, s.Configured())
	assert.True(t, s.AllowMapControls)
	assert.Equal(t, Format16to9, s.FormatPreset)
	assert.Equal(t, float64(DefaultMapZoom), s.MapZoom)
	assert.Equal(t, DefaultMapCenter, s.MapCenter)
	assert.Equal(t, 0, s.Markers.Len())
}

func TestSettings_Configured(t *testing.T) {
	assert.False(t, Settings{APIKey: "   "}.Configured())
	assert.True(t, Settings{APIKey: "key"}.Configured())
}

func TestSettings_Apply(t *testing.T) {
	s := Defaults()
	markers := NewMarkers(Marker{ID: "a"})

	next := s.Apply(Patch{
		APIKey:  ptr("key"),
		MapZoom: ptr(4.0),
		Markers: &markers,
	})

	assert.Equal(t, "key", next.APIKey)
	assert.Equal(t, 4.0, next.MapZoom)
	assert.Equal(t, 1, next.Markers.Len())
	assert.Equal(t, s.MapCenter, next.MapCenter, "unset fields are kept")
	assert.True(t, next.AllowMapControls)
	assert.Empty(t, s.APIKey, "receiver is a value")
}

func TestSettings_Apply_EmptyPatch(t *testing.T) {
	s := Defaults()
	assert.Equal(t, s, s.Apply(Patch{}))
}

func TestPatch_Merge(t *testing.T) {
	a := Patch{APIKey: ptr("one"), MapZoom: ptr(3.0)}
	b := Patch{APIKey: ptr("two"), FixedHeight: ptr("10px")}

	m := a.Merge(b)
	assert.Equal(t, "two", *m.APIKey)
	assert.Equal(t, 3.0, *m.MapZoom)
	assert.Equal(t, "10px", *m.FixedHeight)
}

func TestPatch_IsEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())
	assert.False(t, ViewportPatch(3, LatLng{}).IsEmpty())
}

func TestPatch_JSON_OmitsUnset(t *testing.T) {
	data, err := json.Marshal(Patch{AllowMapControls: ptr(false)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowMapControls":false}`, string(data))
}

func TestSettings_MarkerIconURL(t *testing.T) {
	def := Settings{}.MarkerIconURL()
	assert.True(t, strings.HasSuffix(def, "?width=24"))
	assert.NotContains(t, def, "{width}")

	custom := Settings{MarkerIconEnabled: true, MarkerIcon: "https://example.com/pin.svg?w={width}"}
	assert.Equal(t, "https://example.com/pin.svg?w=24", custom.MarkerIconURL())

	disabled := Settings{MarkerIconEnabled: false, MarkerIcon: "https://example.com/pin.svg"}
	assert.Equal(t, def, disabled.MarkerIconURL())

	empty := Settings{MarkerIconEnabled: true}
	assert.Equal(t, def, empty.MarkerIconURL())
}

func TestSettings_EffectiveMapStyle(t *testing.T) {
	custom := `[{"elementType":"geometry","stylers":[{"color":"#000000"}]}]`

	assert.JSONEq(t, string(DefaultMapStyle()), string(Settings{MapStyle: custom}.EffectiveMapStyle()))
	assert.JSONEq(t, custom, string(Settings{MapStyleEnabled: true, MapStyle: custom}.EffectiveMapStyle()))
	assert.JSONEq(t, string(DefaultMapStyle()), string(Settings{MapStyleEnabled: true, MapStyle: "{broken"}.EffectiveMapStyle()))
}

func TestDefaultMapStyle_IsValidJSON(t *testing.T) {
	assert.True(t, json.Valid(DefaultMapStyle()))
}

func TestSettings_Container(t *testing.T) {
	tests := []struct {
		name  string
		s     Settings
		want  Container
		style string
	}{
		{"preset", Settings{FormatPreset: Format4to3}, Container{AspectClass: "aspect-4to3"}, ""},
		{"unknown preset", Settings{FormatPreset: "7to2"}, Container{AspectClass: "aspect-16to9"}, ""},
		{"fixed height", Settings{CustomMapFormat: true, FixedHeight: "500"}, Container{FixedHeight: "500px"}, "height: 500px"},
		{"invalid height falls back", Settings{CustomMapFormat: true, FixedHeight: "tall", FormatPreset: Format1to1}, Container{AspectClass: "aspect-1to1"}, ""},
		{"height ignored without custom format", Settings{FixedHeight: "500px", FormatPreset: Format16to9}, Container{AspectClass: "aspect-16to9"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.s.Container()
			assert.Equal(t, tt.want, c)
			assert.Equal(t, tt.style, c.Style())
		})
	}
}

func TestFormatPreset(t *testing.T) {
	assert.True(t, Format1to1.Valid())
	assert.False(t, FormatPreset("").Valid())
	assert.Equal(t, "4 / 3", Format4to3.Label())

	w, h := FormatPreset("bogus").Ratio()
	assert.Equal(t, []int{16, 9}, []int{w, h})
}

func TestSettings_JSON_WireNames(t *testing.T) {
	s := Defaults()
	s.APIKey = "k"
	s.Markers = NewMarkers(Marker{ID: "a", Label: "A"})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"apiKey", "allowMapControls", "markerIconEnabled", "mapStyleEnabled", "customMapFormat", "formatPreset", "markers", "mapZoom", "mapCenter"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "16to9", raw["formatPreset"])
}
