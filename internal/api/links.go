package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapblock/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/blocks>; rel="blocks"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/blocks>; rel="blocks"`,
	},
	"/api/v1/blocks/{id}": {
		`</api/v1/blocks>; rel="collection"`,
	},
	"/api/v1/blocks/{id}/settings": {
		`</api/v1/blocks/{id}/schema>; rel="describedby"`,
		`</api/v1/blocks/{id}>; rel="up"`,
	},
	"/api/v1/blocks/{id}/schema": {
		`</api/v1/blocks/{id}/settings>; rel="settings"`,
	},
	"/api/v1/blocks/{id}/markers": {
		`</api/v1/blocks/{id}/markers.geojson>; rel="alternate"; type="application/geo+json"`,
		`</api/v1/blocks/{id}>; rel="up"`,
	},
	"/api/v1/blocks/{id}/view": {
		`</api/v1/blocks/{id}/ready>; rel="status"`,
		`</api/v1/blocks/{id}>; rel="up"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		id := ctx.Param("id")
		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", strings.ReplaceAll(link, "{id}", id))
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if actor, ok := v.(humastar.Actor); ok {
			for _, a := range actor.Actions() {
				ctx.AppendHeader("Link", a.LinkHeader())
			}
		}
		if pager, ok := v.(humastar.Pager); ok {
			for _, link := range pager.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		return v, nil
	}
}
