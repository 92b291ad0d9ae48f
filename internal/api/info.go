package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir  string
	store    string
	provider string
}

func NewInfoHandler(dataDir, store, provider string) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, store: store, provider: provider}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	Store    string   `json:"store" doc:"Settings store backend" enum:"file,duckdb"`
	Provider string   `json:"provider" doc:"Map provider" enum:"google,gazetteer"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-mapblock",
		Version:  Version,
		DataDir:  h.dataDir,
		Store:    h.store,
		Provider: h.provider,
		Features: []string{"markers", "autocomplete", "geojson", "assets", "datastar"},
	}}, nil
}
