package editor

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapblock/internal/humastar"
	"github.com/joeblew999/plat-mapblock/internal/service"
	"github.com/joeblew999/plat-mapblock/internal/widget"
)

// AddMarker appends an empty marker in edit mode.
func (h *BlockEditor) AddMarker(ctx context.Context, input *BlockSignalsInput) (*huma.StreamResponse, error) {
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
			_, err := cv.AddMarker()
			return err
		})
	}), nil
}

// DeleteMarker removes a marker in edit mode.
func (h *BlockEditor) DeleteMarker(ctx context.Context, input *MarkerSignalsInput) (*huma.StreamResponse, error) {
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
			return cv.DeleteMarker(input.MarkerID)
		})
	}), nil
}

// TypeAddress updates the address draft and streams fresh suggestions.
// Only the suggestion list is patched so the focused input keeps its caret.
func (h *BlockEditor) TypeAddress(ctx context.Context, input *MarkerSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	in, err := h.input(ctx, input.ID, sessionOf(signals), input.MarkerID)
	if err != nil {
		return nil, err
	}
	draft := signals.String(sigDraft)
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		in.TypeAddress(draft)
		preds, err := in.Suggest(ctx)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(h.Render("suggestions", suggestionsData{
			MarkerID:    input.MarkerID,
			Suggestions: preds,
			Base:        Base(input.ID),
		}), "#suggestions-"+input.MarkerID)
	}), nil
}

// SelectPlace resolves the picked suggestion. The marker's location is
// written once the debounce window passes; the event stream then redraws
// the map.
func (h *BlockEditor) SelectPlace(ctx context.Context, input *MarkerSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	pred := ParsePredictionSignals(signals)
	if pred.PlaceID == "" {
		return nil, huma.Error400BadRequest("placeid is required")
	}
	in, err := h.input(ctx, input.ID, sessionOf(signals), input.MarkerID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		if _, err := in.SelectPlace(ctx, pred); err != nil {
			sse.Error(err.Error())
		}
		h.patchInput(sse, input.ID, in)
	}), nil
}

// BlurAddress closes the suggestions and warns about an unpicked address.
func (h *BlockEditor) BlurAddress(ctx context.Context, input *MarkerSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	in, err := h.input(ctx, input.ID, sessionOf(signals), input.MarkerID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		in.BlurAddress()
		h.patchInput(sse, input.ID, in)
	}), nil
}

// TypeLabel updates a marker label; it is written after the debounce window.
func (h *BlockEditor) TypeLabel(ctx context.Context, input *MarkerSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	in, err := h.input(ctx, input.ID, sessionOf(signals), input.MarkerID)
	if err != nil {
		return nil, err
	}
	in.TypeLabel(signals.String(sigLabelDraft))
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {}), nil
}

// input returns the marker input of a page's loaded canvas in edit mode.
func (h *BlockEditor) input(ctx context.Context, id, sid, markerID string) (*widget.MarkerInput, error) {
	ctrl, err := h.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	cv, err := ctrl.Canvas(sid)
	if err != nil {
		return nil, huma.Error412PreconditionFailed(err.Error())
	}
	in, err := cv.Input(markerID)
	if err != nil {
		return nil, inputError(err)
	}
	return in, nil
}

func inputError(err error) error {
	switch {
	case service.IsNotFound(err):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, widget.ErrReadOnly):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error412PreconditionFailed(err.Error())
	}
}

// patchInput replaces one marker input.
func (h *BlockEditor) patchInput(sse humastar.SSE, id string, in *widget.MarkerInput) {
	sse.Replace(h.Render("marker-input", inputData{
		Input:  in.State(),
		Base:   Base(id),
		Delete: true,
	}), "#marker-"+in.ID())
}
