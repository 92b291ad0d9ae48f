package block

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequentialIDs makes newID deterministic for the duration of a test.
func sequentialIDs(t *testing.T) {
	t.Helper()
	n := 0
	prev := newID
	newID = func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
	t.Cleanup(func() { newID = prev })
}

func ids(m Markers) []string {
	var out []string
	for mk := range m.All() {
		out = append(out, mk.ID)
	}
	return out
}

func TestMarkers_Add(t *testing.T) {
	sequentialIDs(t)

	var m Markers
	m, first := m.Add()
	m, second := m.Add()

	assert.Equal(t, "m1", first.ID)
	assert.Equal(t, "m2", second.ID)
	assert.Empty(t, first.Label)
	assert.Nil(t, first.Location)
	assert.Equal(t, []string{"m1", "m2"}, ids(m))
}

func TestMarkers_Add_LeavesReceiverUnchanged(t *testing.T) {
	sequentialIDs(t)

	base, _ := Markers{}.Add()
	next, _ := base.Add()

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, next.Len())
}

func TestMarkers_Add_SkipsTakenIDs(t *testing.T) {
	sequentialIDs(t)

	m := NewMarkers(Marker{ID: "m1"})
	m, added := m.Add()

	assert.Equal(t, "m2", added.ID)
	assert.Equal(t, []string{"m1", "m2"}, ids(m))
}

func TestMarkers_Update(t *testing.T) {
	m := NewMarkers(Marker{ID: "a", Label: "A"}, Marker{ID: "b", Label: "B"})
	loc := &Location{Name: "Zurich", Lat: 47.37, Lng: 8.54}

	next, err := m.Update(Marker{ID: "a", Label: "Office", Location: loc})
	require.NoError(t, err)

	got, ok := next.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Office", got.Label)
	require.NotNil(t, got.Location)
	assert.Equal(t, "Zurich", got.Location.Name)
	assert.Equal(t, []string{"a", "b"}, ids(next), "update keeps the position")

	old, _ := m.Get("a")
	assert.Equal(t, "A", old.Label, "receiver is not modified")
}

func TestMarkers_Update_NotFound(t *testing.T) {
	m := NewMarkers(Marker{ID: "a"})

	next, err := m.Update(Marker{ID: "missing", Label: "x"})
	assert.ErrorIs(t, err, ErrMarkerNotFound)
	assert.Equal(t, []string{"a"}, ids(next))
}

func TestMarkers_Update_CopiesLocation(t *testing.T) {
	m := NewMarkers(Marker{ID: "a"})
	loc := &Location{Name: "Bern"}

	next, err := m.Update(Marker{ID: "a", Location: loc})
	require.NoError(t, err)
	loc.Name = "changed"

	got, _ := next.Get("a")
	assert.Equal(t, "Bern", got.Location.Name)
}

func TestMarkers_Delete(t *testing.T) {
	m := NewMarkers(Marker{ID: "a"}, Marker{ID: "b"}, Marker{ID: "c"})

	next := m.Delete("b")
	assert.Equal(t, []string{"a", "c"}, ids(next))
	assert.Equal(t, 3, m.Len())

	_, ok := next.Get("b")
	assert.False(t, ok)
}

func TestMarkers_Delete_Unknown(t *testing.T) {
	m := NewMarkers(Marker{ID: "a"})

	assert.Equal(t, []string{"a"}, ids(m.Delete("zzz")))
}

func TestMarkers_Located(t *testing.T) {
	m := NewMarkers(
		Marker{ID: "a", Location: &Location{Lat: 1, Lng: 2}},
		Marker{ID: "b"},
		Marker{ID: "c", Location: &Location{Lat: 3, Lng: 4}},
	)

	var got []string
	for mk := range m.Located() {
		got = append(got, mk.ID)
	}
	assert.Equal(t, []string{"a", "c"}, got)

	// The sequence can be consumed again.
	count := 0
	for range m.Located() {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestNewMarkers_DropsDuplicates(t *testing.T) {
	m := NewMarkers(Marker{ID: "a", Label: "first"}, Marker{ID: "a", Label: "second"})

	require.Equal(t, 1, m.Len())
	got, _ := m.Get("a")
	assert.Equal(t, "first", got.Label)
}

func TestMarkers_MarshalJSON_KeepsOrder(t *testing.T) {
	m := NewMarkers(Marker{ID: "b", Label: "B"}, Marker{ID: "a", Label: "A"})

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":{"id":"b","label":"B"},"a":{"id":"a","label":"A"}}`, string(data))
	assert.Less(t, indexOf(string(data), `"b"`), indexOf(string(data), `"a"`))

	var back Markers
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"b", "a"}, ids(back))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestMarkers_MarshalJSON_Empty(t *testing.T) {
	data, err := json.Marshal(Markers{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestMarkers_UnmarshalJSON_KeyIsIdentity(t *testing.T) {
	var m Markers
	require.NoError(t, json.Unmarshal([]byte(`{"x":{"id":"other","label":"L"}}`), &m))

	got, ok := m.Get("x")
	require.True(t, ok)
	assert.Equal(t, "x", got.ID)
	assert.Equal(t, "L", got.Label)
}

func TestMarkers_UnmarshalJSON_Null(t *testing.T) {
	m := NewMarkers(Marker{ID: "a"})
	require.NoError(t, json.Unmarshal([]byte(`null`), &m))
	assert.Equal(t, 0, m.Len())
}

func TestMarkers_UnmarshalJSON_Legacy(t *testing.T) {
	sequentialIDs(t)

	data := `[
		{"label": "HQ", "location": {"address": "Zurich", "lat": 47.37, "lng": 8.54}},
		{"label": "Draft", "location": {"address": "typed only"}},
		{"label": "Bare"}
	]`
	var m Markers
	require.NoError(t, json.Unmarshal([]byte(data), &m))

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(m))

	hq, _ := m.Get("m1")
	require.NotNil(t, hq.Location)
	assert.Equal(t, "Zurich", hq.Location.Name)
	assert.InDelta(t, 47.37, hq.Location.Lat, 1e-9)

	draft, _ := m.Get("m2")
	assert.Equal(t, "Draft", draft.Label)
	assert.Nil(t, draft.Location, "addresses without coordinates are not locations")
}

func TestMarkers_UnmarshalJSON_Invalid(t *testing.T) {
	var m Markers
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"a": 5}`), &m))
}

func TestMarkers_FeatureCollection(t *testing.T) {
	m := NewMarkers(
		Marker{ID: "a", Label: "HQ", Location: &Location{Name: "Zurich", PlaceID: "p1", Lat: 47.37, Lng: 8.54}},
		Marker{ID: "b", Label: "no place"},
	)

	fc := m.FeatureCollection()
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, "a", f.ID)
	assert.Equal(t, "HQ", f.Properties["label"])
	assert.Equal(t, "p1", f.Properties["placeId"])
	assert.Equal(t, m.Slice()[0].Location.Point(), f.Geometry)
}
