// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/humastar"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
	"github.com/joeblew999/plat-mapblock/internal/service"
	"github.com/joeblew999/plat-mapblock/internal/widget"
)

// Version is reported by /health and /api/v1/info.
const Version = "1.0.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Blocks *service.BlockService
	// Places loads the map provider for place lookups outside a mounted map.
	Places mapsvc.Loader
	// LoadTimeout bounds how long map operations wait for a pending load.
	LoadTimeout time.Duration
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Block ID" example:"7f1c0a2e-6a1d-4d8e-9a57-1c0f2a9b3d44"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// BlockBody is a stored block with its state-dependent actions.
type BlockBody struct {
	service.Record
}

var blockActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/blocks/%s/edit", Method: "GET", Title: "Open editor"},
	{Rel: "settings", Pattern: "/api/v1/blocks/%s/settings", Method: "PATCH", Title: "Change settings"},
	{Rel: "markers", Pattern: "/api/v1/blocks/%s/markers", Method: "POST", Title: "Add marker"},
}

var fitAction = humastar.ActionDef{Rel: "fit", Pattern: "/api/v1/blocks/%s/fit", Method: "POST", Title: "Fit to markers"}

// Actions lists what can be done with the block; fitting needs a key and
// at least one located marker.
func (b BlockBody) Actions() []humastar.Action {
	defs := blockActions
	if b.Settings.Configured() && hasLocated(b.Settings.Markers) {
		defs = append(slices.Clip(defs), fitAction)
	}
	return humastar.ActionsFor(b.ID, defs...)
}

func hasLocated(m block.Markers) bool {
	for range m.Located() {
		return true
	}
	return false
}

type BlockOutput struct {
	Body BlockBody
}

type BlocksOutput struct {
	Body humastar.PageBody[service.Record]
}

type CreateBlockInput struct {
	Body struct {
		Name     string      `json:"name,omitempty" maxLength:"100" doc:"Display name" example:"Office locations"`
		Settings block.Patch `json:"settings,omitempty" doc:"Initial settings on top of the defaults"`
	}
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc.LoadTimeout <= 0 {
		svc.LoadTimeout = 5 * time.Second
	}
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route of the handler.
func RegisterRoutes(api huma.API, svc *Services) *APIHandler {
	h := NewAPIHandler(svc)
	huma.AutoRegister(api, h)
	return h
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterBlocks registers block CRUD routes.
func (h *APIHandler) RegisterBlocks(api huma.API) {
	huma.Get(api, "/api/v1/blocks", h.ListBlocks, huma.OperationTags("blocks"))
	huma.Post(api, "/api/v1/blocks", h.CreateBlock, huma.OperationTags("blocks"))
	huma.Get(api, "/api/v1/blocks/{id}", h.GetBlock, huma.OperationTags("blocks"))
	huma.Delete(api, "/api/v1/blocks/{id}", h.DeleteBlock, huma.OperationTags("blocks"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) ListBlocks(ctx context.Context, input *humastar.PageInput) (*BlocksOutput, error) {
	records, err := h.svc.Blocks.List(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &BlocksOutput{Body: humastar.Page(records, *input)}, nil
}

func (h *APIHandler) CreateBlock(ctx context.Context, input *CreateBlockInput) (*BlockOutput, error) {
	if err := block.DefaultStructure(nil).ValidatePatch(input.Body.Settings); err != nil {
		return nil, apiError(err)
	}
	created, err := h.svc.Blocks.Create(ctx, input.Body.Name, input.Body.Settings)
	if err != nil {
		return nil, apiError(err)
	}
	return &BlockOutput{Body: BlockBody{created}}, nil
}

func (h *APIHandler) GetBlock(ctx context.Context, input *IDInput) (*BlockOutput, error) {
	r, err := h.svc.Blocks.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &BlockOutput{Body: BlockBody{r}}, nil
}

func (h *APIHandler) DeleteBlock(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Blocks.Delete(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Block deleted"}}, nil
}

// controller returns the mounted controller of a block.
func (h *APIHandler) controller(ctx context.Context, id string) (*widget.Controller, error) {
	ctrl, err := h.svc.Blocks.Controller(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	return ctrl, nil
}

// apiError maps domain errors to Huma status errors.
func apiError(err error) error {
	var se huma.StatusError
	if errors.As(err, &se) {
		return err
	}
	if details := validationDetails(err); len(details) > 0 {
		return huma.Error422UnprocessableEntity("invalid settings", details...)
	}
	switch {
	case service.IsNotFound(err):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, block.ErrUnknownField):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrBlockExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, widget.ErrReadOnly):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, widget.ErrNotConfigured), errors.Is(err, widget.ErrNotLoaded), errors.Is(err, mapsvc.ErrNoAPIKey):
		return huma.Error412PreconditionFailed(err.Error())
	case errors.Is(err, mapsvc.ErrPlaceNotFound), errors.Is(err, service.ErrNoAsset):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrAssetType):
		return huma.Error415UnsupportedMediaType(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(err.Error())
	}
	log.Error().Err(err).Msg("Request failed")
	return huma.Error500InternalServerError("internal error", err)
}

// validationDetails flattens (joined) validation errors into Huma details.
func validationDetails(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		var ve *block.ValidationError
		if errors.As(e, &ve) {
			out = append(out, &huma.ErrorDetail{
				Location: "body." + ve.Field,
				Message:  ve.Message,
			})
		}
	}
	walk(err)
	return out
}
