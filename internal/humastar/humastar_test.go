package humastar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapblock/internal/templates"
)

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"zoom": 7.5, "width": "640", "editing": true, "draft": "Zur"}`))
	require.NoError(t, err)

	assert.Equal(t, 7.5, s.Float("zoom"))
	assert.Equal(t, 640, s.Int("width"))
	assert.Equal(t, 640.0, s.Float("width"))
	assert.True(t, s.Bool("editing"))
	assert.Equal(t, "Zur", s.String("draft"))
	assert.Equal(t, 7, s.Int("zoom"))

	assert.Empty(t, s.String("zoom"))
	assert.False(t, s.Bool("missing"))
	assert.Zero(t, s.Float("missing"))
	assert.False(t, s.Has("missing"))
	assert.True(t, s.Has("draft"))

	v, ok := s.Get("editing")
	assert.True(t, ok)
	assert.Equal(t, true, v)
}

func TestParseSignals_Empty(t *testing.T) {
	s, err := ParseSignals(nil)
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = ParseSignals([]byte("{"))
	assert.Error(t, err)
}

func TestSignalsInput_MustParse(t *testing.T) {
	in := &SignalsInput{RawBody: []byte("not json")}
	_, err := in.MustParse()

	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.GetStatus())
}

func TestAction_LinkHeader(t *testing.T) {
	a := Action{Rel: "fit", Href: "/api/v1/blocks/42/fit", Method: "POST", Title: "Fit to markers"}
	assert.Equal(t, `</api/v1/blocks/42/fit>; rel="fit"; method="POST"; title="Fit to markers"`, a.LinkHeader())

	assert.Equal(t, `</x>; rel="self"`, Action{Rel: "self", Href: "/x"}.LinkHeader())
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor("42",
		ActionDef{Rel: "edit", Pattern: "/blocks/%s/edit", Method: "GET"},
		ActionDef{Rel: "delete", Pattern: "/api/v1/blocks/%s", Method: "DELETE", Title: "Delete"},
	)

	require.Len(t, actions, 2)
	assert.Equal(t, "/blocks/42/edit", actions[0].Href)
	assert.Equal(t, Action{Rel: "delete", Href: "/api/v1/blocks/42", Method: "DELETE", Title: "Delete"}, actions[1])
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p := Page(items, PageInput{Offset: 2, Limit: 2})
	assert.Equal(t, PageBody[int]{Total: 5, Offset: 2, Limit: 2, Data: []int{3, 4}}, p)

	p = Page(items, PageInput{Offset: 10, Limit: 2})
	assert.Empty(t, p.Data)
	assert.NotNil(t, p.Data)

	p = Page(items, PageInput{})
	assert.Equal(t, 20, p.Limit)
	assert.Len(t, p.Data, 5)
}

func TestPageBody_PaginationLinks(t *testing.T) {
	p := PageBody[int]{Total: 5, Offset: 2, Limit: 2}

	assert.Equal(t, []string{
		`</b?offset=0&limit=2>; rel="first"`,
		`</b?offset=0&limit=2>; rel="prev"`,
		`</b?offset=4&limit=2>; rel="next"`,
		`</b?offset=4&limit=2>; rel="last"`,
	}, p.PaginationLinks("/b"))

	empty := PageBody[int]{Limit: 20}
	assert.Equal(t, []string{
		`</b?offset=0&limit=20>; rel="first"`,
		`</b?offset=0&limit=20>; rel="last"`,
	}, empty.PaginationLinks("/b"))
}

func TestHandler_Stream(t *testing.T) {
	r, err := templates.NewFS(fstest.MapFS{
		"fragments/x.html": {Data: []byte(`{{define "greeting"}}<p>Hi {{.}}</p>{{end}}`)},
	})
	require.NoError(t, err)
	h := &Handler{Renderer: r}

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("test", "1.0.0"))
	huma.Get(api, "/stream", func(ctx context.Context, _ *struct{}) (*huma.StreamResponse, error) {
		return h.Stream(func(ctx context.Context, sse SSE) {
			sse.Patch(h.Render("greeting", "Ada"), "#hello")
			sse.Replace(h.Render("missing", nil), "#gone")
			sse.Error("boom")
		}), nil
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream"))
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, "selector #hello")
	assert.Contains(t, body, "elements <p>Hi Ada</p>")
	assert.Contains(t, body, "mode inner")
	assert.Contains(t, body, "datastar-patch-signals")
	assert.Contains(t, body, `"error":"boom"`)
}
