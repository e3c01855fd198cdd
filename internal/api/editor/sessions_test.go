package editor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-assets/internal/db"
	"github.com/joeblew999/plat-assets/internal/logger"
	"github.com/joeblew999/plat-assets/internal/mapsync"
	"github.com/joeblew999/plat-assets/internal/service"
)

func pump(id string, lat float64) service.Asset {
	return service.Asset{
		ID:               id,
		Type:             service.Pump,
		Latitude:         lat,
		Longitude:        77.29,
		InstallationDate: "2021-04-12",
		Manufacturer:     "Grundfos",
		Model:            "CR 45",
		Capacity:         "45 m3/h",
		Condition:        service.Good,
	}
}

// newRegistry returns an asset service over an in-memory database.
func newRegistry(t *testing.T, bus *service.EventBus, assets ...service.Asset) *service.AssetService {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	svc := service.NewAssetService(conn, bus)
	for _, a := range assets {
		_, err := svc.CreateAsset(context.Background(), a)
		require.NoError(t, err)
	}
	return svc
}

func nextOp(t *testing.T, s *streamSurface) surfaceOp {
	t.Helper()
	select {
	case op := <-s.ops:
		return op
	case <-time.After(2 * time.Second):
		t.Fatal("no surface operation")
		return surfaceOp{}
	}
}

func TestSessionsMountDefersMapUntilAttach(t *testing.T) {
	reg := newRegistry(t, nil, pump("a1", 28.69))
	sessions := NewSessions(reg, mapsync.Options{APIKey: "key"}, logger.Discard())

	ps := sessions.Mount(context.Background())
	t.Cleanup(sessions.CloseAll)
	assert.Equal(t, 1, sessions.Len())
	got, ok := sessions.Get(ps.ID)
	require.True(t, ok)
	assert.Same(t, ps, got)

	assert.NoError(t, ps.LoadError())
	assert.NoError(t, ps.MapError())
	assert.Empty(t, ps.Tracked())
	assert.Zero(t, len(ps.surface.ops), "nothing is sent before the stream attaches")

	require.True(t, ps.surface.attach())
	go ps.ContainerReady()

	op := nextOp(t, ps.surface)
	require.Equal(t, EventMapInit, op.Event)
	opts := op.Payload.(mapsync.SurfaceOptions)
	assert.Equal(t, MapContainerID, opts.Container)
	assert.Equal(t, "key", opts.APIKey)

	op = nextOp(t, ps.surface)
	require.Equal(t, EventMarkerAdd, op.Event)
	assert.Equal(t, "a1", op.Payload.(mapsync.MarkerSpec).AssetID)
	assert.Equal(t, EventMarkerPopup, nextOp(t, ps.surface).Event)

	require.Eventually(t, func() bool { return len(ps.Tracked()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSessionsWithoutMapKey(t *testing.T) {
	sessions := NewSessions(newRegistry(t, nil), mapsync.Options{}, logger.Discard())
	ps := sessions.Mount(context.Background())
	t.Cleanup(sessions.CloseAll)

	var ierr *mapsync.SurfaceInitError
	assert.ErrorAs(t, ps.MapError(), &ierr)
}

func TestSessionsSweepUnattached(t *testing.T) {
	sessions := NewSessions(newRegistry(t, nil), mapsync.Options{APIKey: "key"}, logger.Discard())
	stale := sessions.Mount(context.Background())
	live := sessions.Mount(context.Background())
	require.True(t, live.surface.attach())

	assert.Zero(t, sessions.Sweep(time.Now()))
	assert.Equal(t, 1, sessions.Sweep(time.Now().Add(attachTimeout+time.Second)))

	_, ok := sessions.Get(stale.ID)
	assert.False(t, ok)
	assert.True(t, stale.Closed())
	_, ok = sessions.Get(live.ID)
	assert.True(t, ok)

	sessions.CloseAll()
	assert.Zero(t, sessions.Len())
	assert.True(t, live.Closed())
	assert.False(t, live.surface.Mounted())
}

func TestSessionsRunClosesOnCancel(t *testing.T) {
	sessions := NewSessions(newRegistry(t, nil), mapsync.Options{}, logger.Discard())
	ps := sessions.Mount(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sessions.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	<-done

	assert.Zero(t, sessions.Len())
	assert.True(t, ps.Closed())
}
