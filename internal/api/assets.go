package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapblock/internal/service"
)

// UploadForm is the multipart body of an asset upload.
type UploadForm struct {
	File huma.FormFile `form:"file" required:"true" doc:"Icon file"`
}

type UploadAssetInput struct {
	IDInput
	Field   string `path:"field" enum:"markerIcon" doc:"Asset field of the settings"`
	RawBody huma.MultipartFormFiles[UploadForm]
}

type AssetOutput struct {
	Body service.Asset
}

// RegisterAssets registers asset upload routes.
func (h *APIHandler) RegisterAssets(api huma.API) {
	huma.Post(api, "/api/v1/blocks/{id}/assets/{field}", h.UploadAsset, huma.OperationTags("assets"))
}

// UploadAsset stores an icon and points the field at it through the field's
// change handler, like picking the asset in the editor does.
func (h *APIHandler) UploadAsset(ctx context.Context, input *UploadAssetInput) (*AssetOutput, error) {
	if _, err := h.svc.Blocks.Get(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	assets := h.svc.Blocks.Assets()
	if assets == nil {
		return nil, huma.Error503ServiceUnavailable("asset storage not configured")
	}

	form := input.RawBody.Data()
	defer form.File.Close()

	asset, err := assets.Save(input.ID, input.Field, form.File.Filename, form.File)
	if err != nil {
		return nil, apiError(err)
	}

	if err := h.applyField(ctx, input.ID, input.Field, asset.URL); err != nil {
		return nil, err
	}
	return &AssetOutput{Body: asset}, nil
}

// applyField runs a settings field change and persists the result.
func (h *APIHandler) applyField(ctx context.Context, id, field string, value any) error {
	p, err := h.svc.Blocks.Structure(id).Change(ctx, field, value)
	if err != nil {
		return apiError(err)
	}
	ctrl, err := h.controller(ctx, id)
	if err != nil {
		return err
	}
	if err := ctrl.Apply(ctx, p); err != nil {
		return apiError(err)
	}
	return nil
}
