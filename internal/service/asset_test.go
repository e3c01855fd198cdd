package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-assets/internal/db"
	"github.com/joeblew999/plat-assets/internal/service"
)

func newAssetService(t *testing.T) (*service.AssetService, chan service.Event) {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	bus := service.NewEventBus()
	ch := bus.Subscribe()
	return service.NewAssetService(conn, bus), ch
}

func sample(id string, lat, lon float64) service.Asset {
	return service.Asset{
		ID:               id,
		Type:             service.Pump,
		Latitude:         lat,
		Longitude:        lon,
		InstallationDate: "2021-04-12",
		Manufacturer:     "Grundfos",
		Model:            "CR 45",
		Capacity:         "45 m3/h",
		Condition:        service.Good,
	}
}

func TestAssetServiceCRUD(t *testing.T) {
	svc, events := newAssetService(t)
	ctx := context.Background()

	created, err := svc.CreateAsset(ctx, sample("a1", 28.69, 77.29))
	require.NoError(t, err)
	assert.Equal(t, service.Event{Resource: service.ResourceAssets, Action: service.ActionCreated, ID: "a1"}, <-events)

	got, err := svc.GetAsset(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = svc.CreateAsset(ctx, sample("a1", 1, 1))
	assert.ErrorIs(t, err, service.ErrExists)

	upd := sample("a1", 28.70, 77.29)
	upd.Type = "Treatment Plant"
	upd.Condition = service.Poor
	_, err = svc.UpdateAsset(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, service.ActionUpdated, (<-events).Action)

	got, err = svc.GetAsset(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, service.TreatmentPlant, got.Type)
	assert.Equal(t, 28.70, got.Latitude)
	assert.Equal(t, "2021-04-12", got.InstallationDate)

	_, err = svc.UpdateAsset(ctx, sample("missing", 1, 1))
	assert.ErrorIs(t, err, service.ErrNotFound)

	require.NoError(t, svc.DeleteAsset(ctx, "a1"))
	assert.Equal(t, service.ActionDeleted, (<-events).Action)
	_, err = svc.GetAsset(ctx, "a1")
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteAsset(ctx, "a1"), service.ErrNotFound)
}

func TestAssetServiceRejectsInvalid(t *testing.T) {
	svc, _ := newAssetService(t)
	_, err := svc.CreateAsset(context.Background(), sample("a1", 100, 0))
	assert.True(t, service.IsValidation(err))

	list, err := svc.ListAssets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAssetServicePaging(t *testing.T) {
	svc, _ := newAssetService(t)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "e", "b", "d"} {
		_, err := svc.CreateAsset(ctx, sample(id, 1, 1))
		require.NoError(t, err)
	}

	page, total, err := svc.ListPage(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].ID)
	assert.Equal(t, "c", page[1].ID)

	page, _, err = svc.ListPage(ctx, 4, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "e", page[0].ID)
}

func TestAssetServiceStats(t *testing.T) {
	svc, _ := newAssetService(t)
	ctx := context.Background()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Nil(t, stats.Bounds)

	v := sample("v1", 28.60, 77.10)
	v.Type = service.Valve
	v.Condition = service.Fair
	for _, a := range []service.Asset{sample("p1", 28.69, 77.29), sample("p2", 28.70, 77.30), v} {
		_, err := svc.CreateAsset(ctx, a)
		require.NoError(t, err)
	}

	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"Pump": 2, "Valve": 1}, stats.ByType)
	assert.Equal(t, map[string]int{"Good": 2, "Fair": 1}, stats.ByCondition)
	assert.Equal(t, []float64{77.10, 28.60, 77.30, 28.70}, stats.Bounds)
}

func TestAssetServiceNilBus(t *testing.T) {
	conn, err := db.Open(context.Background(), db.Config{InMemory: true})
	require.NoError(t, err)
	defer conn.Close()

	svc := service.NewAssetService(conn, nil)
	_, err = svc.CreateAsset(context.Background(), sample("a1", 1, 1))
	require.NoError(t, err)
}
