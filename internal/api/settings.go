package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
	"github.com/joeblew999/plat-mapblock/internal/widget"
)

type SettingsOutput struct {
	Body block.Settings
}

type PatchSettingsInput struct {
	IDInput
	Body block.Patch
}

type SchemaOutput struct {
	Body struct {
		Fields []block.VisibleField `json:"fields" doc:"Fields shown for the current settings, in display order"`
	}
}

type ViewInput struct {
	IDInput
	Editing bool `query:"editing" doc:"Render in edit mode"`
}

type ViewOutput struct {
	Body widget.View
}

type FitOutput struct {
	Body struct {
		Fitted   bool            `json:"fitted" doc:"False when no marker has a location"`
		Viewport mapsvc.Viewport `json:"viewport"`
	}
}

type ReadyOutput struct {
	Body struct {
		Ready bool `json:"ready" doc:"The map loaded and the block can be printed"`
	}
}

type PlacesInput struct {
	IDInput
	Input string `query:"input" required:"true" minLength:"1" doc:"Free text to complete" example:"Zur"`
}

type PlacesOutput struct {
	Body []mapsvc.Prediction
}

// RegisterSettings registers settings, schema and rendering routes.
func (h *APIHandler) RegisterSettings(api huma.API) {
	huma.Get(api, "/api/v1/blocks/{id}/settings", h.GetSettings, huma.OperationTags("settings"))
	huma.Patch(api, "/api/v1/blocks/{id}/settings", h.PatchSettings, huma.OperationTags("settings"))
	huma.Get(api, "/api/v1/blocks/{id}/schema", h.GetSchema, huma.OperationTags("settings"))
	huma.Get(api, "/api/v1/blocks/{id}/view", h.GetView, huma.OperationTags("view"))
	huma.Post(api, "/api/v1/blocks/{id}/fit", h.Fit, huma.OperationTags("view"))
	huma.Get(api, "/api/v1/blocks/{id}/ready", h.GetReady, huma.OperationTags("view"))
	huma.Get(api, "/api/v1/blocks/{id}/places", h.GetPlaces, huma.OperationTags("places"))
}

func (h *APIHandler) GetSettings(ctx context.Context, input *IDInput) (*SettingsOutput, error) {
	r, err := h.svc.Blocks.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &SettingsOutput{Body: r.Settings}, nil
}

// PatchSettings merges a partial change. Fields with a change handler
// (fixedHeight) are normalized the same way the editor does it.
func (h *APIHandler) PatchSettings(ctx context.Context, input *PatchSettingsInput) (*SettingsOutput, error) {
	st := h.svc.Blocks.Structure(input.ID)
	p := input.Body
	if err := st.ValidatePatch(p); err != nil {
		return nil, apiError(err)
	}
	if p.FixedHeight != nil {
		height := block.NormalizeHeight(*p.FixedHeight)
		p.FixedHeight = &height
	}

	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Apply(ctx, p); err != nil {
		return nil, apiError(err)
	}
	return &SettingsOutput{Body: ctrl.Settings()}, nil
}

func (h *APIHandler) GetSchema(ctx context.Context, input *IDInput) (*SchemaOutput, error) {
	r, err := h.svc.Blocks.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	out := &SchemaOutput{}
	out.Body.Fields = h.svc.Blocks.Structure(input.ID).Visible(r.Settings)
	return out, nil
}

// GetView renders the block. The first render of a configured block starts
// loading the map; later renders report it loaded.
func (h *APIHandler) GetView(ctx context.Context, input *ViewInput) (*ViewOutput, error) {
	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	v, err := ctrl.Render(ctx, widget.APISession, input.Editing)
	if err != nil {
		return nil, apiError(err)
	}
	return &ViewOutput{Body: v}, nil
}

// Fit frames all located markers, waiting for a pending map load.
func (h *APIHandler) Fit(ctx context.Context, input *IDInput) (*FitOutput, error) {
	cv, err := h.loadedCanvas(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	fitted, err := cv.FitBounds()
	if err != nil {
		return nil, apiError(err)
	}
	vp, err := cv.Viewport()
	if err != nil {
		return nil, apiError(err)
	}
	out := &FitOutput{}
	out.Body.Fitted = fitted
	out.Body.Viewport = vp
	return out, nil
}

func (h *APIHandler) GetReady(ctx context.Context, input *IDInput) (*ReadyOutput, error) {
	if _, err := h.svc.Blocks.Get(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	out := &ReadyOutput{}
	out.Body.Ready = h.svc.Blocks.Ready(input.ID)
	return out, nil
}

// GetPlaces completes an address with the block's map provider.
func (h *APIHandler) GetPlaces(ctx context.Context, input *PlacesInput) (*PlacesOutput, error) {
	svc, err := h.places(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	preds, err := svc.Autocomplete(ctx, input.Input)
	if err != nil {
		return nil, apiError(err)
	}
	return &PlacesOutput{Body: preds}, nil
}

// places loads the map provider with the block's API key.
func (h *APIHandler) places(ctx context.Context, id string) (mapsvc.Service, error) {
	r, err := h.svc.Blocks.Get(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	if h.svc.Places == nil {
		return nil, huma.Error503ServiceUnavailable("no map provider configured")
	}
	svc, err := h.svc.Places.Load(ctx, r.Settings.APIKey)
	if err != nil {
		return nil, apiError(err)
	}
	return svc, nil
}

// loadedCanvas mounts the API session's canvas if needed and waits for its
// map.
func (h *APIHandler) loadedCanvas(ctx context.Context, id string) (*widget.Canvas, error) {
	ctrl, err := h.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := ctrl.Render(ctx, widget.APISession, ctrl.Editing(widget.APISession)); err != nil {
		return nil, apiError(err)
	}
	wait, cancel := context.WithTimeout(ctx, h.svc.LoadTimeout)
	defer cancel()
	if err := ctrl.WaitLoaded(wait, widget.APISession); err != nil {
		return nil, apiError(err)
	}
	cv, err := ctrl.Canvas(widget.APISession)
	if err != nil {
		return nil, apiError(err)
	}
	return cv, nil
}
