package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-assets/internal/humastar"
)

// crossLinks are the hand-written relations AutoLinks cannot infer.
var crossLinks = []struct{ from, to, rel string }{
	{"/api/v1/assets", "/api/v1/assets.geojson", "alternate"},
	{"/api/v1/assets", "/api/v1/assets/stats", "stats"},
	{"/api/v1/assets.geojson", "/api/v1/assets", "collection"},
	{"/api/v1/assets/stats", "/api/v1/assets", "collection"},
	{"/api/v1/consumables", "/api/v1/panchayats", "panchayats"},
	{"/api/v1/info", "/health", "health"},
	{"/health", "/gis", "gis"},
	{"/api/v1/tables", "/api/v1/query", "search"},
}

// PopulateLinks fills ls from the registered routes. Call it after every
// route is registered; ls.Transformer() must already be in the API config.
func PopulateLinks(api huma.API, ls *humastar.LinkSet) {
	ls.AutoLinks(api, "/health", "gis")
	for _, l := range crossLinks {
		ls.Add(l.from, l.to, l.rel)
	}
}
