package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
)

// placesAPI serves canned Places API responses and records the requests.
type placesAPI struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (p *placesAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests = append(p.requests, r)
	p.mu.Unlock()

	q := r.URL.Query()
	var body any
	switch r.URL.Path {
	case "/maps/api/place/autocomplete/json":
		body = map[string]any{
			"status": "OK",
			"predictions": []map[string]any{
				{"description": "Zurich, Switzerland", "place_id": "ChIJzurich"},
				{"description": "Zurich Airport, Kloten, Switzerland", "place_id": "ChIJairport"},
			},
		}
	case "/maps/api/place/details/json":
		switch q.Get("place_id") {
		case "missing":
			body = map[string]any{"status": "NOT_FOUND"}
		case "empty":
			body = map[string]any{"status": "ZERO_RESULTS"}
		case "broken":
			body = map[string]any{"status": "INVALID_REQUEST", "error_message": "bad place"}
		case "unnamed":
			body = map[string]any{"status": "OK", "result": map[string]any{
				"name":     "Kunsthaus",
				"place_id": "unnamed",
				"geometry": map[string]any{"location": map[string]any{"lat": 47.3703, "lng": 8.5481}},
			}}
		default:
			body = map[string]any{"status": "OK", "result": map[string]any{
				"name":              "Zürich",
				"formatted_address": "Zurich, Switzerland",
				"place_id":          q.Get("place_id"),
				"geometry":          map[string]any{"location": map[string]any{"lat": 47.3769, "lng": 8.5417}},
			}}
		}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// tokens returns the session tokens sent to path, in order.
func (p *placesAPI) tokens(path string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, r := range p.requests {
		if r.URL.Path == path {
			out = append(out, r.URL.Query().Get("sessiontoken"))
		}
	}
	return out
}

func (p *placesAPI) last() *http.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func newService(t *testing.T, language string) (*Service, *placesAPI) {
	t.Helper()
	api := &placesAPI{}
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	svc, err := Loader{BaseURL: ts.URL, Language: language}.Load(context.Background(), "test-key")
	require.NoError(t, err)
	return svc.(*Service), api
}

const (
	autocompletePath = "/maps/api/place/autocomplete/json"
	detailsPath      = "/maps/api/place/details/json"
)

func TestLoader_Load(t *testing.T) {
	_, err := Loader{}.Load(context.Background(), " ")
	assert.ErrorIs(t, err, mapsvc.ErrNoAPIKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Loader{}.Load(ctx, "key")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_Autocomplete(t *testing.T) {
	svc, api := newService(t, "de")

	preds, err := svc.Autocomplete(context.Background(), "Zur")
	require.NoError(t, err)
	assert.Equal(t, []mapsvc.Prediction{
		{Description: "Zurich, Switzerland", PlaceID: "ChIJzurich"},
		{Description: "Zurich Airport, Kloten, Switzerland", PlaceID: "ChIJairport"},
	}, preds)

	q := api.last().URL.Query()
	assert.Equal(t, "Zur", q.Get("input"))
	assert.Equal(t, "de", q.Get("language"))
	assert.Equal(t, "test-key", q.Get("key"))
}

func TestService_Autocomplete_BlankInput(t *testing.T) {
	svc, api := newService(t, "")

	preds, err := svc.Autocomplete(context.Background(), "  ")
	require.NoError(t, err)
	assert.NotNil(t, preds)
	assert.Empty(t, preds)
	assert.Empty(t, api.tokens(autocompletePath), "blank input makes no request")
}

func TestService_SessionTokens(t *testing.T) {
	svc, api := newService(t, "")
	ctx := context.Background()

	_, err := svc.Autocomplete(ctx, "Zu")
	require.NoError(t, err)
	_, err = svc.Autocomplete(ctx, "Zur")
	require.NoError(t, err)
	_, err = svc.PlaceDetails(ctx, "ChIJzurich")
	require.NoError(t, err)
	_, err = svc.Autocomplete(ctx, "Ber")
	require.NoError(t, err)

	searches := api.tokens(autocompletePath)
	details := api.tokens(detailsPath)
	require.Len(t, searches, 3)
	require.Len(t, details, 1)
	assert.NotEmpty(t, searches[0])
	assert.Equal(t, searches[0], searches[1], "one search shares a session")
	assert.Equal(t, searches[0], details[0], "details close the session")
	assert.NotEqual(t, searches[0], searches[2], "the next search starts a new session")
}

func TestService_PlaceDetails(t *testing.T) {
	svc, _ := newService(t, "")

	loc, err := svc.PlaceDetails(context.Background(), "ChIJzurich")
	require.NoError(t, err)
	assert.Equal(t, block.Location{Name: "Zurich, Switzerland", PlaceID: "ChIJzurich", Lat: 47.3769, Lng: 8.5417}, loc)

	loc, err = svc.PlaceDetails(context.Background(), "unnamed")
	require.NoError(t, err)
	assert.Equal(t, "Kunsthaus", loc.Name, "falls back to the place name")
}

func TestService_PlaceDetails_Errors(t *testing.T) {
	svc, _ := newService(t, "")

	tests := []struct {
		placeID  string
		notFound bool
	}{
		{placeID: "missing", notFound: true},
		{placeID: "empty", notFound: true},
		{placeID: "broken", notFound: false},
	}
	for _, tt := range tests {
		t.Run(tt.placeID, func(t *testing.T) {
			_, err := svc.PlaceDetails(context.Background(), tt.placeID)
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, mapsvc.ErrPlaceNotFound))
		})
	}
}

func TestService_NewMap(t *testing.T) {
	svc, _ := newService(t, "")
	vp := mapsvc.Viewport{Zoom: 7, Center: block.LatLng{Lat: 46.8, Lng: 8.2}}

	m := svc.NewMap(mapsvc.Size{Width: 640, Height: 480}, vp)
	assert.Equal(t, vp, m.Viewport())
}
