package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapblock/internal/humastar"
	"github.com/joeblew999/plat-mapblock/internal/widget"
)

// RenderBlock streams the block, then the loaded map once it is ready.
func (h *BlockEditor) RenderBlock(ctx context.Context, input *RenderInput) (*huma.StreamResponse, error) {
	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		h.renderUntilLoaded(ctx, sse, input.ID, input.Session, ctrl, input.Editing)
	}), nil
}

// SetMode switches the requesting page between edit and view. Leaving edit
// mode stores the framing the editor left the map in; other pages keep
// their mode.
func (h *BlockEditor) SetMode(ctx context.Context, input *BlockSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	edit := signals.Bool(sigEditing)
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		h.renderUntilLoaded(ctx, sse, input.ID, sessionOf(signals), ctrl, edit)
		sse.Signals(map[string]any{sigEditing: edit})
	}), nil
}

// MoveViewport records a pan or zoom made in the browser. Nothing is
// patched back so the live map is left alone.
func (h *BlockEditor) MoveViewport(ctx context.Context, input *BlockSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		cv, err := ctrl.Canvas(sessionOf(signals))
		if err != nil {
			return
		}
		if size, ok := ParseSizeSignals(signals); ok {
			cv.Resize(size)
		}
		if err := cv.MoveViewport(ParseViewportSignals(signals)); err != nil {
			sse.Error(err.Error())
		}
	}), nil
}

// Fit frames all located markers.
func (h *BlockEditor) Fit(ctx context.Context, input *BlockSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		h.withCanvas(ctx, sse, input.ID, sessionOf(signals), ctrl, editing(ctrl, signals), func(cv *widget.Canvas) error {
			_, err := cv.FitBounds()
			return err
		})
	}), nil
}

// ClickMarker opens the info window of a marker that has a label.
func (h *BlockEditor) ClickMarker(ctx context.Context, input *BlockSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := signals.String(sigMarker)
	if id == "" {
		return nil, huma.Error400BadRequest("marker is required")
	}
	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		h.withCanvas(ctx, sse, input.ID, sessionOf(signals), ctrl, editing(ctrl, signals), func(cv *widget.Canvas) error {
			_, err := cv.ClickMarker(id)
			return err
		})
	}), nil
}

// CloseInfo closes the open info window.
func (h *BlockEditor) CloseInfo(ctx context.Context, input *BlockSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		h.withCanvas(ctx, sse, input.ID, sessionOf(signals), ctrl, editing(ctrl, signals), func(cv *widget.Canvas) error {
			cv.CloseInfoWindow()
			return nil
		})
	}), nil
}
