package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/debounce"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
)

var (
	// ErrNotLoaded is returned for map operations before the provider loaded.
	ErrNotLoaded = errors.New("map not loaded")
	// ErrReadOnly is returned for editing operations in view mode.
	ErrReadOnly = errors.New("block is not in edit mode")
)

// Mode is the presentation state of a block.
type Mode int

const (
	ModeView Mode = iota
	ModeEdit
)

// ModeOf maps the host's editing flag to a mode.
func ModeOf(editing bool) Mode {
	if editing {
		return ModeEdit
	}
	return ModeView
}

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "view"
}

// Pin is one marker drawn on the map.
type Pin struct {
	MarkerID string       `json:"markerId"`
	Label    string       `json:"label"`
	Position block.LatLng `json:"position"`
	Icon     string       `json:"icon"`
}

// InfoWindow is the popup of the clicked marker.
type InfoWindow struct {
	MarkerID string       `json:"markerId"`
	Label    string       `json:"label"`
	Address  string       `json:"address"`
	Position block.LatLng `json:"position"`
}

// Controls lists the controls the canvas shows.
type Controls struct {
	MapControls  bool `json:"mapControls" doc:"Zoom and pan controls of the map itself"`
	Fit          bool `json:"fit" doc:"Fit to markers button"`
	AddMarker    bool `json:"addMarker"`
	DeleteMarker bool `json:"deleteMarker"`
}

// CanvasView is the render state of the canvas.
type CanvasView struct {
	Loading    bool            `json:"loading"`
	LoadError  string          `json:"loadError,omitempty"`
	Mode       string          `json:"mode" enum:"edit,view"`
	Viewport   mapsvc.Viewport `json:"viewport"`
	Size       mapsvc.Size     `json:"size"`
	Container  block.Container `json:"container"`
	Style      json.RawMessage `json:"style,omitempty"`
	Pins       []Pin           `json:"pins"`
	InfoWindow *InfoWindow     `json:"infoWindow,omitempty"`
	Controls   Controls        `json:"controls"`
	Inputs     []InputState    `json:"inputs,omitempty"`
}

// CanvasConfig wires a canvas to its collaborators.
type CanvasConfig struct {
	Loader mapsvc.Loader
	// Delay is the debounce window of marker inputs.
	Delay time.Duration
	Size  mapsvc.Size
	// OnChange receives every settings change the canvas makes.
	OnChange func(block.Patch)
	Logger   zerolog.Logger
}

// Canvas owns the map instance of one mounted block. It plots located
// markers, keeps the viewport in step with edit/view transitions and hosts
// the marker inputs.
type Canvas struct {
	cfg CanvasConfig

	mu       sync.Mutex
	settings block.Settings
	mode     Mode
	svc      mapsvc.Service
	m        mapsvc.Map
	loaded   bool
	loadErr  error
	openInfo string
	inputs   map[string]*MarkerInput
}

// NewCanvas creates an unloaded canvas.
func NewCanvas(cfg CanvasConfig, s block.Settings, mode Mode) *Canvas {
	if cfg.Delay <= 0 {
		cfg.Delay = debounce.DefaultDelay
	}
	if cfg.Size.Width <= 0 || cfg.Size.Height <= 0 {
		cfg.Size = mapsvc.DefaultSize
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func(block.Patch) {}
	}
	return &Canvas{
		cfg:      cfg,
		settings: s,
		mode:     mode,
		inputs:   map[string]*MarkerInput{},
	}
}

// Load loads the map provider for the canvas' API key and creates the map
// at the persisted viewport. Calling it again after success is a no-op.
func (c *Canvas) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	key := c.settings.APIKey
	c.mu.Unlock()

	svc, err := c.cfg.Loader.Load(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.loadErr = err
		return fmt.Errorf("loading map: %w", err)
	}
	c.svc = svc
	c.m = svc.NewMap(c.cfg.Size, c.persistedViewport())
	c.loaded = true
	c.loadErr = nil
	c.syncInputs()
	c.cfg.Logger.Debug().Int("markers", c.settings.Markers.Len()).Msg("Map loaded")
	return nil
}

// Loaded reports whether map operations are available.
func (c *Canvas) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Mode returns the current mode.
func (c *Canvas) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Settings returns the canvas' view of the settings.
func (c *Canvas) Settings() block.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Update replaces the settings with a freshly read value. The live viewport
// is not touched; it only follows mode transitions and explicit moves.
func (c *Canvas) Update(s block.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
	if _, ok := c.settings.Markers.Get(c.openInfo); !ok {
		c.openInfo = ""
	}
	c.syncInputs()
}

// SetMode switches between edit and view. Leaving edit mode flushes pending
// input updates, then captures the live viewport and persists it. Entering
// edit mode restores the persisted viewport. Any info window closes.
func (c *Canvas) SetMode(mode Mode) {
	c.mu.Lock()
	prev := c.mode
	c.mu.Unlock()
	if prev == mode {
		return
	}

	if prev == ModeEdit {
		c.flushInputs()
	}

	c.mu.Lock()
	c.mode = mode
	c.openInfo = ""
	var patch block.Patch
	if c.loaded {
		switch mode {
		case ModeView:
			vp := c.m.Viewport()
			patch = block.ViewportPatch(vp.Zoom, vp.Center)
			c.settings = c.settings.Apply(patch)
		case ModeEdit:
			c.m.SetViewport(c.persistedViewport())
		}
	}
	c.mu.Unlock()

	c.cfg.Logger.Debug().Str("from", prev.String()).Str("to", mode.String()).Msg("Mode changed")
	if !patch.IsEmpty() {
		c.cfg.OnChange(patch)
	}
}

// MoveViewport records a pan or zoom made in the browser.
func (c *Canvas) MoveViewport(vp mapsvc.Viewport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return ErrNotLoaded
	}
	c.m.SetViewport(vp)
	return nil
}

// Resize records the container size reported by the browser.
func (c *Canvas) Resize(s mapsvc.Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Size = s
	if c.loaded {
		c.m.Resize(s)
	}
}

// Viewport returns the live viewport.
func (c *Canvas) Viewport() (mapsvc.Viewport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return mapsvc.Viewport{}, ErrNotLoaded
	}
	return c.m.Viewport(), nil
}

// FitBounds frames all located markers. It reports whether the viewport was
// changed; with no located markers nothing happens.
func (c *Canvas) FitBounds() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return false, ErrNotLoaded
	}
	return c.fit(), nil
}

// fit is FitBounds with mu held.
func (c *Canvas) fit() bool {
	var points []orb.Point
	for mk := range c.settings.Markers.Located() {
		points = append(points, mk.Location.Point())
	}
	b, ok := mapsvc.Bounds(points...)
	if !ok {
		return false
	}
	c.m.FitBounds(b, mapsvc.DefaultPadding)
	return true
}

// ClickMarker opens the info window of a marker, closing any other.
// Markers with an empty label have nothing to show and are ignored.
func (c *Canvas) ClickMarker(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return false, ErrNotLoaded
	}
	mk, ok := c.settings.Markers.Get(id)
	if !ok {
		return false, fmt.Errorf("click %q: %w", id, block.ErrMarkerNotFound)
	}
	if mk.Label == "" || !mk.HasLocation() {
		return false, nil
	}
	c.openInfo = id
	return true, nil
}

// CloseInfoWindow closes the open info window, if any.
func (c *Canvas) CloseInfoWindow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openInfo = ""
}

// AddMarker appends an empty marker.
func (c *Canvas) AddMarker() (block.Marker, error) {
	c.mu.Lock()
	if err := c.editable(); err != nil {
		c.mu.Unlock()
		return block.Marker{}, err
	}
	markers, mk := c.settings.Markers.Add()
	c.settings.Markers = markers
	c.syncInputs()
	c.mu.Unlock()

	c.cfg.OnChange(block.MarkersPatch(markers))
	return mk, nil
}

// DeleteMarker removes a marker and drops its pending input updates.
func (c *Canvas) DeleteMarker(id string) error {
	c.mu.Lock()
	if err := c.editable(); err != nil {
		c.mu.Unlock()
		return err
	}
	if _, ok := c.settings.Markers.Get(id); !ok {
		c.mu.Unlock()
		return fmt.Errorf("delete %q: %w", id, block.ErrMarkerNotFound)
	}
	in := c.inputs[id]
	delete(c.inputs, id)
	markers := c.settings.Markers.Delete(id)
	c.settings.Markers = markers
	if c.openInfo == id {
		c.openInfo = ""
	}
	c.mu.Unlock()

	if in != nil {
		in.Stop()
	}
	c.cfg.OnChange(block.MarkersPatch(markers))
	return nil
}

// UpdateMarker sets a marker's label and, when given, its location.
func (c *Canvas) UpdateMarker(mk block.Marker) error {
	return c.applyMarkerChange(MarkerChange{ID: mk.ID, Label: &mk.Label, Location: mk.Location}, false)
}

// Input returns the editing surface of a marker.
func (c *Canvas) Input(id string) (*MarkerInput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	if err := c.editable(); err != nil {
		return nil, err
	}
	in, ok := c.inputs[id]
	if !ok {
		return nil, fmt.Errorf("input %q: %w", id, block.ErrMarkerNotFound)
	}
	return in, nil
}

// View returns the render state.
func (c *Canvas) View() CanvasView {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := CanvasView{
		Loading:   !c.loaded,
		Mode:      c.mode.String(),
		Size:      c.cfg.Size,
		Container: c.settings.Container(),
		Pins:      []Pin{},
	}
	if c.loadErr != nil {
		v.LoadError = c.loadErr.Error()
	}
	if !c.loaded {
		return v
	}

	v.Viewport = c.m.Viewport()
	v.Size = c.m.Size()
	v.Style = c.settings.EffectiveMapStyle()
	icon := c.settings.MarkerIconURL()
	for mk := range c.settings.Markers.Located() {
		v.Pins = append(v.Pins, Pin{
			MarkerID: mk.ID,
			Label:    mk.Label,
			Position: mk.Location.LatLng(),
			Icon:     icon,
		})
		if mk.ID == c.openInfo {
			v.InfoWindow = &InfoWindow{
				MarkerID: mk.ID,
				Label:    mk.Label,
				Address:  mk.Location.Name,
				Position: mk.Location.LatLng(),
			}
		}
	}

	edit := c.mode == ModeEdit
	v.Controls = Controls{
		MapControls:  c.settings.AllowMapControls,
		Fit:          edit,
		AddMarker:    edit,
		DeleteMarker: edit,
	}
	if edit {
		for mk := range c.settings.Markers.All() {
			if in, ok := c.inputs[mk.ID]; ok {
				v.Inputs = append(v.Inputs, in.State())
			}
		}
	}
	return v
}

// Close flushes pending input updates. The canvas can not be used after.
func (c *Canvas) Close() {
	c.flushInputs()
}

// applyMarkerChange merges a field change into the marker. A marker that
// gains its first location triggers a fit. Changes for deleted markers are
// dropped so they never reappear.
func (c *Canvas) applyMarkerChange(ch MarkerChange, fromInput bool) error {
	c.mu.Lock()
	old, ok := c.settings.Markers.Get(ch.ID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("update %q: %w", ch.ID, block.ErrMarkerNotFound)
	}
	next := ch.applyTo(old)
	markers, err := c.settings.Markers.Update(next)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.settings.Markers = markers
	if in, ok := c.inputs[ch.ID]; ok && !fromInput {
		in.Sync(next)
	}
	if c.loaded && !old.HasLocation() && next.HasLocation() {
		c.fit()
	}
	c.mu.Unlock()

	c.cfg.OnChange(block.MarkersPatch(markers))
	return nil
}

func (c *Canvas) onInputChange(ch MarkerChange) {
	if err := c.applyMarkerChange(ch, true); err != nil {
		c.cfg.Logger.Debug().Err(err).Str("marker", ch.ID).Msg("Dropped input change")
	}
}

// syncInputs keeps one input per marker. Callers hold mu.
func (c *Canvas) syncInputs() {
	if !c.loaded {
		return
	}
	seen := make(map[string]bool, c.settings.Markers.Len())
	for mk := range c.settings.Markers.All() {
		seen[mk.ID] = true
		if in, ok := c.inputs[mk.ID]; ok {
			in.Sync(mk)
			continue
		}
		c.inputs[mk.ID] = NewMarkerInput(mk, c.svc, c.cfg.Delay, c.onInputChange)
	}
	for id, in := range c.inputs {
		if !seen[id] {
			in.Stop()
			delete(c.inputs, id)
		}
	}
}

func (c *Canvas) flushInputs() {
	c.mu.Lock()
	inputs := make([]*MarkerInput, 0, len(c.inputs))
	for _, in := range c.inputs {
		inputs = append(inputs, in)
	}
	c.mu.Unlock()

	for _, in := range inputs {
		in.Flush()
	}
}

func (c *Canvas) editable() error {
	if c.mode != ModeEdit {
		return ErrReadOnly
	}
	return nil
}

func (c *Canvas) persistedViewport() mapsvc.Viewport {
	return mapsvc.Viewport{Zoom: c.settings.MapZoom, Center: c.settings.MapCenter}
}
