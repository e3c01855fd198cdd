package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-assets/internal/service"
)

type ListConsumablesInput struct {
	Expand string `query:"expand" doc:"Set to panchayat to resolve panchayat names"`
}

type ConsumableIDInput struct {
	ID string `path:"id" doc:"Consumable ID"`
}

type PanchayatIDInput struct {
	ID string `path:"id" doc:"Panchayat ID" example:"p-17"`
}

// RegisterConsumables registers consumable and panchayat routes.
func (h *APIHandler) RegisterConsumables(api huma.API) {
	tags := huma.OperationTags("consumables")
	huma.Get(api, "/api/v1/consumables", h.ListConsumables, tags)
	huma.Post(api, "/api/v1/consumables", h.CreateConsumable, tags, created)
	huma.Delete(api, "/api/v1/consumables/{id}", h.DeleteConsumable, tags)
	huma.Post(api, "/api/v1/panchayats", h.PutPanchayat, tags)
	huma.Get(api, "/api/v1/panchayats/{id}", h.GetPanchayat, tags)
}

func (h *APIHandler) ListConsumables(ctx context.Context, input *ListConsumablesInput) (*struct{ Body []service.Consumable }, error) {
	list := h.svc.Consumable.List
	if input.Expand == "panchayat" {
		list = h.svc.Consumable.ListExpanded
	}
	items, err := list(ctx)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body []service.Consumable }{Body: items}, nil
}

func (h *APIHandler) CreateConsumable(ctx context.Context, input *struct{ Body service.Consumable }) (*struct{ Body service.Consumable }, error) {
	c, err := h.svc.Consumable.Create(ctx, input.Body)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body service.Consumable }{Body: c}, nil
}

func (h *APIHandler) DeleteConsumable(ctx context.Context, input *ConsumableIDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Consumable.Delete(ctx, input.ID); err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Consumable deleted"}}, nil
}

func (h *APIHandler) PutPanchayat(ctx context.Context, input *struct{ Body service.Panchayat }) (*struct{ Body service.Panchayat }, error) {
	p, err := h.svc.Consumable.PutPanchayat(ctx, input.Body)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body service.Panchayat }{Body: p}, nil
}

func (h *APIHandler) GetPanchayat(ctx context.Context, input *PanchayatIDInput) (*struct{ Body service.Panchayat }, error) {
	p, err := h.svc.Consumable.Panchayat(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body service.Panchayat }{Body: p}, nil
}
