package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapblock/internal/humastar"
	"github.com/joeblew999/plat-mapblock/internal/service"
)

// Events streams the changes of one block to a page and re-renders the
// page's own canvas for each of them, so edits made elsewhere (REST, another
// tab, debounced marker writes) show up. Each re-render uses the mode the
// page last asked for. The page session is released when the stream ends.
func (h *BlockEditor) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	ctrl, err := h.controller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(ctx context.Context, sse humastar.SSE) {
		bus := h.blocks.Bus()
		ch := bus.Subscribe(input.ID)
		defer bus.Unsubscribe(ch)
		defer ctrl.Release(input.Session)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if ev.Action == service.ActionDeleted {
					sse.RemoveElementByID("block-" + input.ID)
					sse.Error("This block was deleted")
					return
				}
				h.patchBlock(ctx, sse, input.ID, input.Session, ctrl, ctrl.Editing(input.Session), nil)
				sse.DispatchCustomEvent("block-changed", map[string]any{
					"action": ev.Action,
					"block":  ev.Block,
				})
			}
		}
	}), nil
}
