package editor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-assets/internal/mapsync"
)

func TestStreamSurfaceAttachOnce(t *testing.T) {
	s := newStreamSurface(MapContainerID)
	assert.Equal(t, "map", s.ID())
	assert.False(t, s.Mounted())
	assert.False(t, s.everAttached())

	require.True(t, s.attach())
	assert.True(t, s.Mounted())
	assert.False(t, s.attach(), "a second stream must not take over")

	s.detach()
	s.detach()
	assert.False(t, s.Mounted())
	assert.True(t, s.everAttached())
	assert.False(t, s.attach(), "a detached surface stays detached")
}

func TestStreamSurfaceSendQueuesOps(t *testing.T) {
	s := newStreamSurface(MapContainerID)
	assert.ErrorIs(t, s.AddPopup("k1", "<b>x</b>"), errNotAttached)

	require.True(t, s.attach())
	require.NoError(t, s.Init(mapsync.SurfaceOptions{Container: "map", Zoom: 16}))
	require.NoError(t, s.RemoveMarker("k1"))

	op := <-s.ops
	assert.Equal(t, EventMapInit, op.Event)
	assert.Equal(t, "map", op.Payload.(mapsync.SurfaceOptions).Container)
	op = <-s.ops
	assert.Equal(t, EventMarkerRemove, op.Event)
	assert.Equal(t, removePayload{Key: "k1"}, op.Payload)
}

func TestStreamSurfaceStalls(t *testing.T) {
	s := newStreamSurface(MapContainerID)
	s.sendTimeout = 20 * time.Millisecond
	require.True(t, s.attach())
	for len(s.ops) < cap(s.ops) {
		s.ops <- surfaceOp{Event: "filler"}
	}
	assert.ErrorIs(t, s.AddMarker(mapsync.MarkerSpec{Key: "k"}), errStalled)
}

func TestStreamSurfaceDetachUnblocksSend(t *testing.T) {
	s := newStreamSurface(MapContainerID)
	s.sendTimeout = time.Minute
	require.True(t, s.attach())
	for len(s.ops) < cap(s.ops) {
		s.ops <- surfaceOp{Event: "filler"}
	}

	errc := make(chan error, 1)
	go func() { errc <- s.RemoveMarker("k") }()
	time.Sleep(10 * time.Millisecond)
	s.detach()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, errNotAttached)
	case <-time.After(time.Second):
		t.Fatal("send still blocked after detach")
	}
}
