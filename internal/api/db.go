package api

import (
	"context"
	"database/sql"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-assets/internal/db"
)

// DBHandler exposes read-only database introspection.
type DBHandler struct {
	db *sql.DB
}

// NewDBHandler creates a new database handler.
func NewDBHandler(conn *sql.DB) *DBHandler {
	return &DBHandler{db: conn}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("db"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("db"))
}

type TablesBody struct {
	Tables []string `json:"tables" doc:"List of table names"`
}

// ListTables returns all DuckDB tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*struct{ Body TablesBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	tables, err := db.Tables(ctx, h.db)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	return &struct{ Body TablesBody }{Body: TablesBody{Tables: tables}}, nil
}

type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" minLength:"1" doc:"Read-only SQL (SELECT, WITH, SHOW, DESCRIBE, SUMMARIZE)" example:"SELECT condition, count(*) FROM assets GROUP BY condition"`
	}
}

type QueryBody struct {
	Columns []string         `json:"columns" doc:"Column names"`
	Rows    []map[string]any `json:"rows" doc:"Query results"`
	Count   int              `json:"count" doc:"Number of rows returned"`
}

var readOnlyPrefixes = []string{"select", "with", "show", "describe", "summarize", "from"}

func readOnly(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if strings.Contains(strings.TrimRight(q, "; \n\t"), ";") {
		return false
	}
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}

// Query runs a single read-only statement against DuckDB.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body QueryBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	if !readOnly(input.Body.Query) {
		return nil, huma.Error400BadRequest("Only single read-only statements are allowed")
	}

	rows, err := h.db.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, huma.Error500InternalServerError("Failed to read row", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, huma.Error500InternalServerError("Failed to read rows", err)
	}

	return &struct{ Body QueryBody }{Body: QueryBody{Columns: columns, Rows: results, Count: len(results)}}, nil
}
