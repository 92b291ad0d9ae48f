// Package editor contains Datastar SSE handlers for the block UI.
package editor

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/humastar"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
	"github.com/joeblew999/plat-mapblock/internal/service"
	"github.com/joeblew999/plat-mapblock/internal/templates"
	"github.com/joeblew999/plat-mapblock/internal/widget"
)

// BlockEditor serves the Datastar surface of a block: rendering, the map
// canvas interactions, marker inputs and the settings sidebar.
type BlockEditor struct {
	humastar.Handler
	blocks *service.BlockService
	// loadWait bounds how long a render stream waits for the map to load.
	loadWait time.Duration
}

// NewBlockEditor creates the editor handler.
func NewBlockEditor(blocks *service.BlockService, renderer *templates.Renderer, loadWait time.Duration) *BlockEditor {
	if loadWait <= 0 {
		loadWait = 5 * time.Second
	}
	return &BlockEditor{
		Handler:  humastar.Handler{Renderer: renderer},
		blocks:   blocks,
		loadWait: loadWait,
	}
}

// Base returns the editor route prefix of a block.
func Base(id string) string {
	return "/api/v1/editor/blocks/" + id
}

// RegisterRoutes registers the editor routes with Huma.
func (h *BlockEditor) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("editor")
	huma.Get(api, "/api/v1/editor/blocks/{id}/render", h.RenderBlock, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/mode", h.SetMode, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/viewport", h.MoveViewport, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/fit", h.Fit, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/click", h.ClickMarker, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/info/close", h.CloseInfo, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/markers", h.AddMarker, tags)
	huma.Delete(api, "/api/v1/editor/blocks/{id}/markers/{marker}", h.DeleteMarker, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/markers/{marker}/address", h.TypeAddress, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/markers/{marker}/select", h.SelectPlace, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/markers/{marker}/blur", h.BlurAddress, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/markers/{marker}/label", h.TypeLabel, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/settings/{field}", h.ChangeSetting, tags)
	huma.Post(api, "/api/v1/editor/blocks/{id}/assets/{field}", h.UploadAsset, tags)
	huma.Get(api, "/api/v1/editor/blocks/{id}/events", h.Events, tags)
}

// Inputs

type BlockInput struct {
	ID string `path:"id" doc:"Block ID"`
}

type SessionInput struct {
	BlockInput
	Session string `query:"session" doc:"Page session"`
}

type RenderInput struct {
	SessionInput
	Editing bool `query:"editing" doc:"Render in edit mode"`
}

type BlockSignalsInput struct {
	BlockInput
	humastar.SignalsInput
}

type MarkerSignalsInput struct {
	BlockSignalsInput
	MarkerID string `path:"marker" doc:"Marker ID"`
}

type FieldSignalsInput struct {
	BlockSignalsInput
	Field string `path:"field" doc:"Settings field ID"`
}

// Fragment data

type blockData struct {
	ID   string
	View widget.View
	Base string
}

type settingsData struct {
	ID      string
	Session string
	Fields  []block.VisibleField
	Errors  map[string]string
	Base    string
}

type inputData struct {
	Input  widget.InputState
	Base   string
	Delete bool
}

type suggestionsData struct {
	MarkerID    string
	Suggestions []mapsvc.Prediction
	Base        string
}

// controller resolves the block before streaming so unknown blocks get a
// plain 404.
func (h *BlockEditor) controller(ctx context.Context, id string) (*widget.Controller, error) {
	ctrl, err := h.blocks.Controller(ctx, id)
	if err != nil {
		if service.IsNotFound(err) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError("mounting block failed", err)
	}
	return ctrl, nil
}

// editing picks the editor state of the requesting page, falling back to
// the state of the page's last render.
func editing(ctrl *widget.Controller, s humastar.Signals) bool {
	if s.Has(sigEditing) {
		return s.Bool(sigEditing)
	}
	return ctrl.Editing(sessionOf(s))
}

// patchBlock renders the block and, in edit mode, the settings sidebar.
// It returns the view so callers can follow up on a pending load.
func (h *BlockEditor) patchBlock(ctx context.Context, sse humastar.SSE, id, sid string, ctrl *widget.Controller, edit bool, fieldErrs map[string]string) (widget.View, bool) {
	view, err := ctrl.Render(ctx, sid, edit)
	if err != nil {
		log.Warn().Err(err).Str("block", id).Msg("Rendering block failed")
		sse.Error(err.Error())
		return widget.View{}, false
	}
	sse.Patch(h.Render("block", blockData{ID: id, View: view, Base: Base(id)}), "#block")
	if edit {
		h.patchSettings(sse, id, sid, ctrl.Settings(), fieldErrs)
	}
	return view, true
}

// patchSettings renders the fields visible for s.
func (h *BlockEditor) patchSettings(sse humastar.SSE, id, sid string, s block.Settings, fieldErrs map[string]string) {
	sse.Patch(h.Render("settings-form", settingsData{
		ID:      id,
		Session: sid,
		Fields:  h.blocks.Structure(id).Visible(s),
		Errors:  fieldErrs,
		Base:    Base(id),
	}), "#settings")
}

// renderUntilLoaded patches the block and, while its map is loading, waits
// for the load and patches it again.
func (h *BlockEditor) renderUntilLoaded(ctx context.Context, sse humastar.SSE, id, sid string, ctrl *widget.Controller, edit bool) {
	view, ok := h.patchBlock(ctx, sse, id, sid, ctrl, edit, nil)
	if !ok || view.Canvas == nil || !view.Canvas.Loading {
		return
	}
	wait, cancel := context.WithTimeout(ctx, h.loadWait)
	defer cancel()
	if err := ctrl.WaitLoaded(wait, sid); err != nil && !errors.Is(err, widget.ErrNotLoaded) {
		log.Debug().Err(err).Str("block", id).Str("session", sid).Msg("Map still loading")
		return
	}
	h.patchBlock(ctx, sse, id, sid, ctrl, edit, nil)
}

// withCanvas runs fn against the loaded canvas of a page and re-renders.
func (h *BlockEditor) withCanvas(ctx context.Context, sse humastar.SSE, id, sid string, ctrl *widget.Controller, edit bool, fn func(*widget.Canvas) error) {
	cv, err := ctrl.Canvas(sid)
	if err == nil && !cv.Loaded() {
		err = widget.ErrNotLoaded
	}
	if err == nil {
		err = fn(cv)
	}
	if err != nil {
		sse.Error(err.Error())
	}
	h.patchBlock(ctx, sse, id, sid, ctrl, edit, nil)
}
