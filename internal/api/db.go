package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"
)

// StoreHandler reports on the DuckDB settings store.
type StoreHandler struct {
	db *sql.DB
}

// NewStoreHandler creates the handler. db is nil for the file store.
func NewStoreHandler(db *sql.DB) *StoreHandler {
	return &StoreHandler{db: db}
}

// RegisterRoutes registers store routes with Huma.
func (h *StoreHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/store", h.GetStore, huma.OperationTags("health"))
}

// StoreOutput is the response of the store report.
type StoreOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"DuckDB tables"`
		Blocks int      `json:"blocks" doc:"Number of stored blocks"`
	}
}

// GetStore lists the tables and counts the stored blocks.
func (h *StoreHandler) GetStore(ctx context.Context, input *struct{}) (*StoreOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	out := &StoreOutput{}
	out.Body.Tables = []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			out.Body.Tables = append(out.Body.Tables, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}

	if err := h.db.QueryRowContext(ctx, "SELECT count(*) FROM block_settings").Scan(&out.Body.Blocks); err != nil {
		return nil, huma.Error500InternalServerError("Failed to count blocks", err)
	}
	return out, nil
}
