// Package api defines the Huma REST routes of the asset registry.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-assets/internal/humastar"
	"github.com/joeblew999/plat-assets/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Asset      *service.AssetService
	Consumable *service.ConsumableService
}

// assetActions are the actions every stored asset offers.
var assetActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/v1/assets/%s", Method: http.MethodPut, Title: "Replace asset",
		Schema: "/schemas/Asset.json"},
	{Rel: "delete", Pattern: "/api/v1/assets/%s", Method: http.MethodDelete, Title: "Delete asset"},
}

// AssetBody is an asset response carrying its action links.
type AssetBody struct {
	service.Asset
}

// Actions implements humastar.Actor.
func (b AssetBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, assetActions)
}

type AssetOutput struct {
	Body AssetBody
}

type IDInput struct {
	ID string `path:"id" doc:"Asset ID" example:"a1"`
}

type ListAssetsInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds the REST handlers. Methods named Register* are
// discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

func created(o *huma.Operation) { o.DefaultStatus = http.StatusCreated }

// RegisterHealth registers the health check.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterAssets registers asset CRUD, export, and stats routes.
func (h *APIHandler) RegisterAssets(api huma.API) {
	tags := huma.OperationTags("assets")
	huma.Get(api, "/api/v1/assets", h.ListAssets, tags)
	huma.Post(api, "/api/v1/assets", h.CreateAsset, tags, created)
	huma.Get(api, "/api/v1/assets.geojson", h.ExportGeoJSON, tags)
	huma.Get(api, "/api/v1/assets/stats", h.AssetStats, tags)
	huma.Get(api, "/api/v1/assets/{id}", h.GetAsset, tags)
	huma.Put(api, "/api/v1/assets/{id}", h.PutAsset, tags)
	huma.Delete(api, "/api/v1/assets/{id}", h.DeleteAsset, tags)
}

// toHumaError maps service errors onto HTTP problems.
func toHumaError(err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make([]error, len(verr.Fields))
		for i, f := range verr.Fields {
			details[i] = &huma.ErrorDetail{Location: "body." + f.Field, Message: f.Message}
		}
		return huma.Error422UnprocessableEntity("validation failed", details...)
	case errors.Is(err, service.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrExists):
		return huma.Error409Conflict(err.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) ListAssets(ctx context.Context, input *ListAssetsInput) (*struct {
	Body humastar.PageBody[service.Asset]
}, error) {
	assets, total, err := h.svc.Asset.ListPage(ctx, input.Offset, input.Limit)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct {
		Body humastar.PageBody[service.Asset]
	}{Body: humastar.PageBody[service.Asset]{
		Total: total, Offset: input.Offset, Limit: input.Limit, Data: assets,
	}}, nil
}

func (h *APIHandler) CreateAsset(ctx context.Context, input *struct{ Body service.Asset }) (*AssetOutput, error) {
	a, err := h.svc.Asset.CreateAsset(ctx, input.Body)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &AssetOutput{Body: AssetBody{a}}, nil
}

func (h *APIHandler) GetAsset(ctx context.Context, input *IDInput) (*AssetOutput, error) {
	a, err := h.svc.Asset.GetAsset(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &AssetOutput{Body: AssetBody{a}}, nil
}

// PutAsset replaces a whole asset. The body ID must match the path.
func (h *APIHandler) PutAsset(ctx context.Context, input *struct {
	IDInput
	Body service.Asset
}) (*AssetOutput, error) {
	if input.Body.ID != input.ID {
		return nil, huma.Error422UnprocessableEntity("body id does not match path",
			&huma.ErrorDetail{Location: "body.id", Message: "must equal the path id", Value: input.Body.ID})
	}
	a, err := h.svc.Asset.UpdateAsset(ctx, input.Body)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &AssetOutput{Body: AssetBody{a}}, nil
}

func (h *APIHandler) DeleteAsset(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Asset.DeleteAsset(ctx, input.ID); err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Asset deleted"}}, nil
}

func (h *APIHandler) AssetStats(ctx context.Context, input *struct{}) (*struct{ Body service.AssetStats }, error) {
	stats, err := h.svc.Asset.Stats(ctx)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body service.AssetStats }{Body: stats}, nil
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// ExportGeoJSON returns every asset as a GeoJSON point feature.
func (h *APIHandler) ExportGeoJSON(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	assets, err := h.svc.Asset.ListAssets(ctx)
	if err != nil {
		return nil, toHumaError(err)
	}
	fc := AssetsFeatureCollection(assets)
	b, err := fc.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encode geojson", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: b}, nil
}

// AssetsFeatureCollection converts assets into GeoJSON point features whose
// properties are the non-spatial asset fields.
func AssetsFeatureCollection(assets []service.Asset) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, a := range assets {
		f := geojson.NewFeature(a.Point())
		f.ID = a.ID
		f.Properties = geojson.Properties{
			"id":               a.ID,
			"type":             string(a.Type),
			"installationDate": a.InstallationDate,
			"manufacturer":     a.Manufacturer,
			"model":            a.Model,
			"capacity":         a.Capacity,
			"condition":        string(a.Condition),
		}
		fc.Append(f)
	}
	return fc
}
