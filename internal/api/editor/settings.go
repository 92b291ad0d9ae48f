package editor

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/humastar"
)

type uploadForm struct {
	File huma.FormFile `form:"file" required:"true"`
}

type UploadInput struct {
	SessionInput
	Field   string `path:"field" doc:"Asset field ID"`
	RawBody huma.MultipartFormFiles[uploadForm]
}

// ChangeSetting writes one sidebar field. Invalid values are reported next
// to the field and nothing is written.
func (h *BlockEditor) ChangeSetting(ctx context.Context, input *FieldSignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	value, ok := signals.Get(sigValue)
	if !ok {
		return nil, huma.Error400BadRequest("value is required")
	}
	if _, err := h.controller(ctx, input.ID); err != nil {
		return nil, err
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		h.applyField(ctx, sse, input.ID, sessionOf(signals), input.Field, value)
	}), nil
}

// UploadAsset stores an uploaded icon and selects it for the field.
func (h *BlockEditor) UploadAsset(ctx context.Context, input *UploadInput) (*huma.StreamResponse, error) {
	if _, err := h.controller(ctx, input.ID); err != nil {
		return nil, err
	}
	assets := h.blocks.Assets()
	if assets == nil {
		return nil, huma.Error503ServiceUnavailable("asset storage not configured")
	}
	form := input.RawBody.Data()
	defer form.File.Close()

	asset, err := assets.Save(input.ID, input.Field, form.File.Filename, form.File)
	if err != nil {
		return nil, huma.Error415UnsupportedMediaType(err.Error())
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		h.applyField(ctx, sse, input.ID, input.Session, input.Field, asset.URL)
		sse.Success("Uploaded " + asset.Name)
	}), nil
}

// applyField runs the field's change handler, persists the result and
// re-renders the block and sidebar.
func (h *BlockEditor) applyField(ctx context.Context, sse humastar.SSE, id, sid, field string, value any) {
	ctrl, err := h.blocks.Controller(ctx, id)
	if err != nil {
		sse.Error(err.Error())
		return
	}

	p, err := h.blocks.Structure(id).Change(ctx, field, value)
	if err != nil {
		var ve *block.ValidationError
		msg := err.Error()
		if errors.As(err, &ve) {
			msg = ve.Message
		}
		sse.Error(msg)
		h.patchSettings(sse, id, sid, ctrl.Settings(), map[string]string{field: msg})
		return
	}
	if err := ctrl.Apply(ctx, p); err != nil {
		sse.Error("Saving failed, changes are kept: " + err.Error())
	} else {
		sse.Signals(map[string]any{"error": ""})
	}
	h.renderUntilLoaded(ctx, sse, id, sid, ctrl, true)
}
