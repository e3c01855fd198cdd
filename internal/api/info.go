package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// Version is the API version reported by /health and /api/v1/info.
const Version = "1.0.0"

type InfoHandler struct {
	info InfoBody
}

// NewInfoHandler reports the running configuration. backendURL is empty when
// the page persists to the local registry.
func NewInfoHandler(dataDir, backendURL string, dbOK, mapConfigured bool) *InfoHandler {
	backend := "local"
	if backendURL != "" {
		backend = "remote"
	}
	features := []string{"assets", "consumables", "geojson", "gis"}
	if dbOK {
		features = append(features, "duckdb")
	}
	return &InfoHandler{info: InfoBody{
		Name:          "plat-assets",
		Version:       Version,
		DataDir:       dataDir,
		DB:            dbOK,
		Backend:       backend,
		BackendURL:    backendURL,
		MapConfigured: mapConfigured,
		Features:      features,
	}}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name          string   `json:"name" doc:"Service name"`
	Version       string   `json:"version" doc:"Service version"`
	DataDir       string   `json:"data_dir" doc:"Data directory path"`
	DB            bool     `json:"db" doc:"Whether database is available"`
	Backend       string   `json:"backend" enum:"local,remote" doc:"Where the GIS page persists assets"`
	BackendURL    string   `json:"backend_url,omitempty" doc:"Remote backend base URL"`
	MapConfigured bool     `json:"map_configured" doc:"Whether a map provider API key is set"`
	Features      []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: h.info}, nil
}
