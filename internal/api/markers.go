package api

import (
	"context"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
	"github.com/joeblew999/plat-mapblock/internal/widget"
)

type MarkerIDInput struct {
	IDInput
	MarkerID string `path:"marker" doc:"Marker ID"`
}

type MarkersOutput struct {
	Body []block.Marker
}

type MarkerOutput struct {
	Body block.Marker
}

// UpdateMarkerInput changes a marker's label and, by naming a place of the
// block's map provider, its location. Coordinates are never taken from the
// client.
type UpdateMarkerInput struct {
	MarkerIDInput
	Body struct {
		Label       string `json:"label" doc:"Free text shown in the info window"`
		PlaceID     string `json:"placeId,omitempty" doc:"Place to resolve with the block's map provider; omit to keep the current location" example:"gz-zurich"`
		Description string `json:"description,omitempty" doc:"Suggestion text used as the place name" example:"Zurich, Switzerland"`
	}
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// RegisterMarkers registers marker routes.
func (h *APIHandler) RegisterMarkers(api huma.API) {
	huma.Get(api, "/api/v1/blocks/{id}/markers", h.ListMarkers, huma.OperationTags("markers"))
	huma.Post(api, "/api/v1/blocks/{id}/markers", h.AddMarker, huma.OperationTags("markers"))
	huma.Put(api, "/api/v1/blocks/{id}/markers/{marker}", h.UpdateMarker, huma.OperationTags("markers"))
	huma.Delete(api, "/api/v1/blocks/{id}/markers/{marker}", h.DeleteMarker, huma.OperationTags("markers"))
	huma.Get(api, "/api/v1/blocks/{id}/markers.geojson", h.MarkersGeoJSON, huma.OperationTags("markers"))
}

func (h *APIHandler) ListMarkers(ctx context.Context, input *IDInput) (*MarkersOutput, error) {
	r, err := h.svc.Blocks.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &MarkersOutput{Body: r.Settings.Markers.Slice()}, nil
}

func (h *APIHandler) AddMarker(ctx context.Context, input *IDInput) (*MarkerOutput, error) {
	var added block.Marker
	err := h.mutateMarkers(ctx, input.ID, func(m block.Markers) (block.Markers, error) {
		var next block.Markers
		next, added = m.Add()
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return &MarkerOutput{Body: added}, nil
}

// UpdateMarker replaces a marker. A place id is resolved the way picking a
// suggestion in the editor does. When the API session's map is mounted the
// change goes through it, so a first location frames the markers.
func (h *APIHandler) UpdateMarker(ctx context.Context, input *UpdateMarkerInput) (*MarkerOutput, error) {
	mk := block.Marker{ID: input.MarkerID, Label: input.Body.Label}

	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	r, err := h.svc.Blocks.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	_, stored := r.Settings.Markers.Get(mk.ID)
	_, staged := ctrl.Settings().Markers.Get(mk.ID)
	if !stored && !staged {
		return nil, apiError(block.ErrMarkerNotFound)
	}
	if input.Body.PlaceID != "" {
		loc, err := h.resolvePlace(ctx, input.ID, mapsvc.Prediction{
			PlaceID:     input.Body.PlaceID,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, err
		}
		mk.Location = &loc
	}

	if cv, err := ctrl.Canvas(widget.APISession); err == nil && cv.Loaded() {
		if err := cv.UpdateMarker(mk); err != nil {
			return nil, apiError(err)
		}
		if got, ok := cv.Settings().Markers.Get(mk.ID); ok {
			mk = got
		}
		return &MarkerOutput{Body: mk}, nil
	}

	err = h.mutateMarkers(ctx, input.ID, func(m block.Markers) (block.Markers, error) {
		if old, ok := m.Get(mk.ID); ok && mk.Location == nil {
			mk.Location = old.Location
		}
		return m.Update(mk)
	})
	if err != nil {
		return nil, err
	}
	return &MarkerOutput{Body: mk}, nil
}

func (h *APIHandler) DeleteMarker(ctx context.Context, input *MarkerIDInput) (*struct{ Body MessageBody }, error) {
	err := h.mutateMarkers(ctx, input.ID, func(m block.Markers) (block.Markers, error) {
		if _, ok := m.Get(input.MarkerID); !ok {
			return m, block.ErrMarkerNotFound
		}
		return m.Delete(input.MarkerID), nil
	})
	if err != nil {
		return nil, err
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Marker deleted"}}, nil
}

// MarkersGeoJSON exports the located markers as a FeatureCollection.
func (h *APIHandler) MarkersGeoJSON(ctx context.Context, input *IDInput) (*GeoJSONOutput, error) {
	r, err := h.svc.Blocks.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	data, err := json.Marshal(r.Settings.Markers.FeatureCollection())
	if err != nil {
		return nil, apiError(err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

// resolvePlace turns a suggestion into a location with the block's map
// provider.
func (h *APIHandler) resolvePlace(ctx context.Context, id string, p mapsvc.Prediction) (block.Location, error) {
	svc, err := h.places(ctx, id)
	if err != nil {
		return block.Location{}, err
	}
	loc, err := svc.PlaceDetails(ctx, p.PlaceID)
	if err != nil {
		return block.Location{}, apiError(err)
	}
	if p.Description != "" {
		loc.Name = p.Description
	}
	loc.PlaceID = p.PlaceID
	return loc, nil
}

// mutateMarkers applies fn to the controller's markers and persists the
// result through the controller, keeping a mounted canvas in step.
func (h *APIHandler) mutateMarkers(ctx context.Context, id string, fn func(block.Markers) (block.Markers, error)) error {
	ctrl, err := h.controller(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ctrl.Render(ctx, widget.APISession, ctrl.Editing(widget.APISession)); err != nil {
		return apiError(err)
	}
	next, err := fn(ctrl.Settings().Markers)
	if err != nil {
		return apiError(err)
	}
	if err := ctrl.Apply(ctx, block.MarkersPatch(next)); err != nil {
		return apiError(err)
	}
	return nil
}
