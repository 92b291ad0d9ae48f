package block

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"reflect"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrMarkerNotFound is returned when a marker id is not in the collection.
var ErrMarkerNotFound = errors.New("marker not found")

// newID generates marker ids. Tests swap it for deterministic ids.
var newID = uuid.NewString

// Location is a geocoded point. It is only ever produced by place
// autocomplete, never from hand-typed coordinates.
type Location struct {
	Name    string  `json:"name" doc:"Place name or formatted address" example:"Zurich, Switzerland"`
	PlaceID string  `json:"placeId" doc:"Provider specific place identifier" example:"ChIJGaK-SZcLkEcRA9wf5_GNbuY"`
	Lat     float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude" example:"47.3769"`
	Lng     float64 `json:"lng" minimum:"-180" maximum:"180" doc:"Longitude" example:"8.5417"`
}

// Point returns the location as an orb point (lng, lat).
func (l Location) Point() orb.Point {
	return orb.Point{l.Lng, l.Lat}
}

// LatLng returns the coordinates of the location.
func (l Location) LatLng() LatLng {
	return LatLng{Lat: l.Lat, Lng: l.Lng}
}

// Marker is a labeled, optionally located point of interest.
// A marker without a location is editable but not drawn on the map.
type Marker struct {
	ID       string    `json:"id" doc:"Stable marker identifier"`
	Label    string    `json:"label" doc:"Free text shown in the info window"`
	Location *Location `json:"location,omitempty" doc:"Resolved place, absent until one is selected"`
}

// HasLocation reports whether the marker can be drawn.
func (m Marker) HasLocation() bool {
	return m.Location != nil
}

func (m Marker) clone() Marker {
	if m.Location != nil {
		loc := *m.Location
		m.Location = &loc
	}
	return m
}

// Markers is the id-keyed marker collection of one block.
// Iteration follows insertion order. The zero value is an empty collection.
// Every mutating method returns a new collection and leaves the receiver as is.
type Markers struct {
	order []string
	byID  map[string]Marker
}

// NewMarkers builds a collection from markers in the given order.
// Markers without an id get one; later duplicates of an id are dropped.
func NewMarkers(ms ...Marker) Markers {
	out := Markers{byID: make(map[string]Marker, len(ms))}
	for _, mk := range ms {
		if mk.ID == "" {
			mk.ID = out.freshID()
		}
		if _, exists := out.byID[mk.ID]; exists {
			continue
		}
		out.put(mk.clone())
	}
	return out
}

// Len returns the number of markers.
func (m Markers) Len() int {
	return len(m.order)
}

// Get returns the marker with the given id.
func (m Markers) Get(id string) (Marker, bool) {
	mk, ok := m.byID[id]
	if !ok {
		return Marker{}, false
	}
	return mk.clone(), true
}

// All yields every marker in insertion order.
func (m Markers) All() iter.Seq[Marker] {
	return func(yield func(Marker) bool) {
		for _, id := range m.order {
			if !yield(m.byID[id].clone()) {
				return
			}
		}
	}
}

// Located yields the markers that have a resolved location, in collection
// order. The sequence is lazy and can be ranged over any number of times.
func (m Markers) Located() iter.Seq[Marker] {
	return func(yield func(Marker) bool) {
		for mk := range m.All() {
			if !mk.HasLocation() {
				continue
			}
			if !yield(mk) {
				return
			}
		}
	}
}

// Slice returns the markers in insertion order.
func (m Markers) Slice() []Marker {
	out := make([]Marker, 0, len(m.order))
	for mk := range m.All() {
		out = append(out, mk)
	}
	return out
}

// Add appends a marker with a fresh id, an empty label and no location.
func (m Markers) Add() (Markers, Marker) {
	out := m.clone()
	mk := Marker{ID: out.freshID()}
	out.put(mk)
	return out, mk
}

// Update replaces the marker that has the same id.
// An unknown id leaves the collection unchanged and returns ErrMarkerNotFound.
func (m Markers) Update(mk Marker) (Markers, error) {
	if _, ok := m.byID[mk.ID]; !ok {
		return m, fmt.Errorf("update %q: %w", mk.ID, ErrMarkerNotFound)
	}
	out := m.clone()
	out.byID[mk.ID] = mk.clone()
	return out, nil
}

// Delete removes the marker with the given id. Unknown ids are ignored.
func (m Markers) Delete(id string) Markers {
	if _, ok := m.byID[id]; !ok {
		return m
	}
	out := Markers{
		order: make([]string, 0, len(m.order)-1),
		byID:  make(map[string]Marker, len(m.byID)-1),
	}
	for _, k := range m.order {
		if k == id {
			continue
		}
		out.order = append(out.order, k)
		out.byID[k] = m.byID[k]
	}
	return out
}

// FeatureCollection exports the located markers as GeoJSON points.
func (m Markers) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for mk := range m.Located() {
		f := geojson.NewFeature(mk.Location.Point())
		f.ID = mk.ID
		f.Properties["id"] = mk.ID
		f.Properties["label"] = mk.Label
		f.Properties["name"] = mk.Location.Name
		f.Properties["placeId"] = mk.Location.PlaceID
		fc.Append(f)
	}
	return fc
}

func (m Markers) clone() Markers {
	out := Markers{
		order: make([]string, len(m.order), len(m.order)+1),
		byID:  make(map[string]Marker, len(m.byID)+1),
	}
	copy(out.order, m.order)
	for k, v := range m.byID {
		out.byID[k] = v
	}
	return out
}

func (m *Markers) put(mk Marker) {
	if m.byID == nil {
		m.byID = make(map[string]Marker)
	}
	if _, exists := m.byID[mk.ID]; !exists {
		m.order = append(m.order, mk.ID)
	}
	m.byID[mk.ID] = mk
}

func (m Markers) freshID() string {
	for {
		id := newID()
		if _, taken := m.byID[id]; !taken {
			return id
		}
	}
}

// MarshalJSON writes the markers as an object keyed by id, in insertion order.
func (m Markers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.byID[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an id-keyed object and keeps the document order.
// Arrays written by the old index-keyed format are migrated to fresh ids.
func (m *Markers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("markers: %w", err)
	}

	switch tok {
	case nil:
		*m = Markers{}
		return nil
	case json.Delim('['):
		return m.decodeLegacy(dec)
	case json.Delim('{'):
	default:
		return fmt.Errorf("markers: unexpected token %v", tok)
	}

	out := Markers{byID: make(map[string]Marker)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("markers: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("markers: unexpected key %v", keyTok)
		}
		var mk Marker
		if err := dec.Decode(&mk); err != nil {
			return fmt.Errorf("markers[%s]: %w", key, err)
		}
		// The key is the identity.
		mk.ID = key
		out.put(mk)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("markers: %w", err)
	}

	*m = out
	return nil
}

type legacyMarker struct {
	Label    string `json:"label"`
	Location *struct {
		Address string   `json:"address"`
		Lat     *float64 `json:"lat"`
		Lng     *float64 `json:"lng"`
	} `json:"location"`
}

func (m *Markers) decodeLegacy(dec *json.Decoder) error {
	out := Markers{byID: make(map[string]Marker)}
	for dec.More() {
		var lm legacyMarker
		if err := dec.Decode(&lm); err != nil {
			return fmt.Errorf("legacy markers: %w", err)
		}
		mk := Marker{ID: out.freshID(), Label: lm.Label}
		if loc := lm.Location; loc != nil && loc.Lat != nil && loc.Lng != nil {
			mk.Location = &Location{Name: loc.Address, Lat: *loc.Lat, Lng: *loc.Lng}
		}
		out.put(mk)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("legacy markers: %w", err)
	}
	*m = out
	return nil
}

// Schema describes Markers in the OpenAPI document as a map of Marker.
func (Markers) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type:                 huma.TypeObject,
		Description:          "Markers keyed by marker id, in insertion order",
		AdditionalProperties: r.Schema(reflect.TypeOf(Marker{}), true, "Marker"),
	}
}
