package templates

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
	"github.com/joeblew999/plat-mapblock/internal/service"
	"github.com/joeblew999/plat-mapblock/internal/widget"
)

func renderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New()
	require.NoError(t, err)
	return r
}

func TestRender_EmptyState(t *testing.T) {
	empty := widget.DefaultEmptyState
	html, err := renderer(t).Render("block", map[string]any{
		"ID":   "b1",
		"Base": "/api/v1/editor/blocks/b1",
		"View": widget.View{Empty: &empty},
	})
	require.NoError(t, err)

	assert.Contains(t, html, `id="block-b1"`)
	assert.Contains(t, html, "How to get started")
	assert.Contains(t, html, empty.LinkURL)
	assert.NotContains(t, html, "map-container")
}

func TestRender_Canvas(t *testing.T) {
	canvas := &widget.CanvasView{
		Mode:      "edit",
		Viewport:  mapsvc.Viewport{Zoom: 10, Center: block.DefaultMapCenter},
		Container: block.Container{AspectClass: "aspect-4to3"},
		Pins: []widget.Pin{
			{MarkerID: "m1", Label: "Office", Position: block.LatLng{Lat: 47.37, Lng: 8.54}},
		},
		InfoWindow: &widget.InfoWindow{MarkerID: "m1", Label: "Office", Address: "Zurich, Switzerland"},
		Controls:   widget.Controls{MapControls: true, Fit: true, AddMarker: true, DeleteMarker: true},
		Inputs: []widget.InputState{
			{MarkerID: "m1", Address: "Zurich, Switzerland", Label: "Office", Located: true},
			{MarkerID: "m2", Address: "Zur", Warning: widget.AddressWarning},
		},
	}
	html, err := renderer(t).Render("block", map[string]any{
		"ID":   "b1",
		"Base": "/api/v1/editor/blocks/b1",
		"View": widget.View{Editing: true, Canvas: canvas, Unsaved: true, SaveError: "disk full"},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "is-editing")
	assert.Contains(t, html, "aspect-4to3")
	assert.Contains(t, html, `id="map-canvas"`)
	assert.Contains(t, html, "info-window")
	assert.Contains(t, html, "Fit to markers")
	assert.Contains(t, html, `id="marker-m1"`)
	assert.Contains(t, html, `id="marker-m2"`)
	assert.Contains(t, html, widget.AddressWarning)
	assert.Contains(t, html, "Delete marker")
	assert.Contains(t, html, "Changes not saved yet: disk full")
}

func TestRender_CanvasLoading(t *testing.T) {
	html, err := renderer(t).Render("canvas", map[string]any{
		"ID":     "b1",
		"Base":   "/x",
		"Canvas": &widget.CanvasView{Loading: true, LoadError: "no key", Container: block.Container{FixedHeight: "300px"}},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Map could not be loaded: no key")
	assert.Contains(t, html, "height: 300px")
	assert.NotContains(t, html, "map-canvas")
}

func TestRender_Suggestions(t *testing.T) {
	html, err := renderer(t).Render("suggestions", map[string]any{
		"MarkerID":    "m1",
		"Base":        "/x",
		"Suggestions": []mapsvc.Prediction{{PlaceID: "gz-bern", Description: "Bern, Switzerland"}},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Bern, Switzerland")
	assert.Contains(t, html, "gz-bern")
}

func TestRender_SettingsForm(t *testing.T) {
	s := block.Defaults()
	fields := block.DefaultStructure(nil).Visible(s)

	html, err := renderer(t).Render("settings-form", map[string]any{
		"ID":     "b1",
		"Base":   "/x",
		"Fields": fields,
		"Errors": map[string]string{"apiKey": "Required"},
	})
	require.NoError(t, err)

	assert.Contains(t, html, `class="settings"`)
	assert.Contains(t, html, "Google Maps API Key")
	assert.Contains(t, html, "apiKey")
	assert.Contains(t, html, `<p class="error">Required</p>`)
}

func TestRender_Index(t *testing.T) {
	records := []service.Record{
		{ID: "b1", Name: "Offices", Created: time.Now(), Settings: block.Defaults()},
		{ID: "b2", Settings: block.Defaults()},
	}
	html, err := renderer(t).Render("index", records)
	require.NoError(t, err)

	assert.Contains(t, html, `href="/blocks/b1"`)
	assert.Contains(t, html, "Offices")
	assert.Contains(t, html, `id="card-b2"`)
	assert.Contains(t, html, "0 markers")

	html, err = renderer(t).Render("index", []service.Record{})
	require.NoError(t, err)
	assert.Contains(t, html, "No blocks yet")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := renderer(t).Render("nope", nil)
	assert.Error(t, err)
}

func TestNewFS(t *testing.T) {
	r, err := NewFS(fstest.MapFS{
		"fragments/hello.html": {Data: []byte(`{{define "hello"}}Hi {{.}}{{end}}`)},
	})
	require.NoError(t, err)

	html, err := r.Render("hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", html)
}

func TestRenderer_Reload(t *testing.T) {
	r := renderer(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fragments"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fragments", "x.html"),
		[]byte(`{{define "block"}}reloaded {{.ID}}{{end}}`), 0o644))

	require.NoError(t, r.Reload(dir))
	html, err := r.Render("block", map[string]any{"ID": "b1"})
	require.NoError(t, err)
	assert.Equal(t, "reloaded b1", html)

	assert.Error(t, r.Reload(t.TempDir()), "a directory without fragments fails and keeps the old set")
	html, err = r.Render("block", map[string]any{"ID": "b1"})
	require.NoError(t, err)
	assert.Equal(t, "reloaded b1", html)
}

func TestFuncMap_Dict(t *testing.T) {
	dict := funcMap["dict"].(func(...any) map[string]any)

	assert.Equal(t, map[string]any{"a": 1, "b": "x"}, dict("a", 1, "b", "x"))
	assert.Nil(t, dict("odd"))
	assert.Equal(t, map[string]any{"b": 2}, dict(3, 1, "b", 2))
}
