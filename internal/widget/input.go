package widget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/debounce"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
)

// AddressWarning is shown when the address text was typed but never picked
// from the suggestions.
const AddressWarning = "Please select a suggested place"

// MarkerChange is a partial update of one marker. Label and location travel
// separately so that one field's debounce never overwrites the other.
type MarkerChange struct {
	ID       string
	Label    *string
	Location *block.Location
}

func (c MarkerChange) applyTo(m block.Marker) block.Marker {
	if c.Label != nil {
		m.Label = *c.Label
	}
	if c.Location != nil {
		loc := *c.Location
		m.Location = &loc
	}
	return m
}

// InputState is what the editor renders for one marker input.
type InputState struct {
	MarkerID    string              `json:"markerId"`
	Address     string              `json:"address" doc:"Address text as typed"`
	Label       string              `json:"label"`
	Located     bool                `json:"located" doc:"Whether a place has been selected"`
	Warning     string              `json:"warning,omitempty"`
	Suggestions []mapsvc.Prediction `json:"suggestions,omitempty"`
}

// MarkerInput is the editing surface of one marker: an address lookup and
// a free text label, each debounced on its own.
type MarkerInput struct {
	id  string
	svc mapsvc.Service

	mu          sync.Mutex
	draft       string
	selected    string
	label       string
	located     bool
	warning     bool
	suggestions []mapsvc.Prediction

	location *debounce.Debouncer[block.Location]
	labels   *debounce.Debouncer[string]
}

// NewMarkerInput creates the input for m. onChange receives the debounced
// field updates.
func NewMarkerInput(m block.Marker, svc mapsvc.Service, delay time.Duration, onChange func(MarkerChange)) *MarkerInput {
	in := &MarkerInput{
		id:    m.ID,
		svc:   svc,
		label: m.Label,
	}
	if m.Location != nil {
		in.draft = m.Location.Name
		in.selected = m.Location.Name
		in.located = true
	}
	in.location = debounce.New(delay, func(loc block.Location) {
		onChange(MarkerChange{ID: in.id, Location: &loc})
	})
	in.labels = debounce.New(delay, func(label string) {
		onChange(MarkerChange{ID: in.id, Label: &label})
	})
	return in
}

// ID returns the marker id the input edits.
func (in *MarkerInput) ID() string {
	return in.id
}

// TypeAddress updates the local draft. Nothing is sent upstream.
func (in *MarkerInput) TypeAddress(text string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.draft = text
}

// Suggest asks the provider for places matching the current draft.
func (in *MarkerInput) Suggest(ctx context.Context) ([]mapsvc.Prediction, error) {
	in.mu.Lock()
	draft := in.draft
	in.mu.Unlock()

	preds, err := in.svc.Autocomplete(ctx, draft)
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.draft == draft {
		in.suggestions = preds
	}
	return preds, nil
}

// SelectPlace resolves a suggestion and propagates the location. This is
// the only way a marker gets a location.
func (in *MarkerInput) SelectPlace(ctx context.Context, p mapsvc.Prediction) (block.Location, error) {
	loc, err := in.svc.PlaceDetails(ctx, p.PlaceID)
	if err != nil {
		return block.Location{}, fmt.Errorf("select %q: %w", p.Description, err)
	}
	if p.Description != "" {
		loc.Name = p.Description
	}
	loc.PlaceID = p.PlaceID

	in.mu.Lock()
	in.draft = loc.Name
	in.selected = loc.Name
	in.located = true
	in.warning = false
	in.suggestions = nil
	in.mu.Unlock()

	in.location.Submit(loc)
	return loc, nil
}

// BlurAddress closes the suggestions and raises the warning when the text
// differs from the last selected place. The location is left untouched.
func (in *MarkerInput) BlurAddress() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.suggestions = nil
	in.warning = in.draft != in.selected
	return in.warning
}

// TypeLabel sets the label and propagates it after the debounce window.
func (in *MarkerInput) TypeLabel(text string) {
	in.mu.Lock()
	in.label = text
	in.mu.Unlock()

	in.labels.Submit(text)
}

// Sync adopts upstream values for fields that have no local edit pending.
func (in *MarkerInput) Sync(m block.Marker) {
	_, labelPending := in.labels.Pending()
	_, locPending := in.location.Pending()

	in.mu.Lock()
	defer in.mu.Unlock()
	if !labelPending {
		in.label = m.Label
	}
	if !locPending && m.Location != nil && m.Location.Name != in.selected {
		in.selected = m.Location.Name
		in.draft = m.Location.Name
		in.located = true
		in.warning = false
	}
}

// State returns the render state of the input.
func (in *MarkerInput) State() InputState {
	in.mu.Lock()
	defer in.mu.Unlock()

	st := InputState{
		MarkerID:    in.id,
		Address:     in.draft,
		Label:       in.label,
		Located:     in.located,
		Suggestions: in.suggestions,
	}
	if in.warning {
		st.Warning = AddressWarning
	}
	return st
}

// Flush sends pending field updates now.
func (in *MarkerInput) Flush() {
	in.location.Flush()
	in.labels.Flush()
}

// Stop drops pending updates. Used when the marker is deleted.
func (in *MarkerInput) Stop() {
	in.location.Stop()
	in.labels.Stop()
}
