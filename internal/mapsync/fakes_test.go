package mapsync

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joeblew999/plat-assets/internal/service"
)

// recordingAdapter is a MarkerAdapter that records every call.
type recordingAdapter struct {
	ready   bool
	calls   []string
	seq     int
	failAdd map[string]int // asset id -> remaining failures

	// UpdateMarker is a remove followed by an add, like Adapter's. These
	// fail one half; a failed remove keeps the old handle, a failed add
	// returns an invalid one.
	failUpdateRemove map[string]int
	failUpdateAdd    map[string]int

	closed  bool
	closeOn string // a successful add of this asset closes the surface
}

func newRecordingAdapter() *recordingAdapter {
	return &recordingAdapter{
		ready:            true,
		failAdd:          map[string]int{},
		failUpdateRemove: map[string]int{},
		failUpdateAdd:    map[string]int{},
	}
}

func (r *recordingAdapter) Ready() bool { return r.ready }

func (r *recordingAdapter) AddMarker(a service.Asset) (MarkerHandle, error) {
	r.calls = append(r.calls, "add:"+a.ID)
	if r.closed {
		return MarkerHandle{}, ErrSurfaceClosed
	}
	if r.failAdd[a.ID] > 0 {
		r.failAdd[a.ID]--
		return MarkerHandle{}, errors.New("surface busy")
	}
	if a.ID == r.closeOn {
		r.closed = true
	}
	return r.handle(a.ID), nil
}

func (r *recordingAdapter) UpdateMarker(h MarkerHandle, a service.Asset) (MarkerHandle, error) {
	r.calls = append(r.calls, "update:"+a.ID)
	if r.closed {
		return h, ErrSurfaceClosed
	}
	if r.failUpdateRemove[a.ID] > 0 {
		r.failUpdateRemove[a.ID]--
		return h, errors.New("surface busy")
	}
	if r.failUpdateAdd[a.ID] > 0 {
		r.failUpdateAdd[a.ID]--
		return MarkerHandle{}, errors.New("surface busy")
	}
	return r.handle(a.ID), nil
}

func (r *recordingAdapter) RemoveMarker(h MarkerHandle) error {
	r.calls = append(r.calls, "remove:"+h.assetID)
	if r.closed {
		return ErrSurfaceClosed
	}
	return nil
}

func (r *recordingAdapter) handle(id string) MarkerHandle {
	r.seq++
	return MarkerHandle{key: fmt.Sprintf("m%d", r.seq), assetID: id}
}

func (r *recordingAdapter) reset() { r.calls = nil }

// fakeSurface records surface primitives and can be told to fail.
type fakeSurface struct {
	mu       sync.Mutex
	inits    []SurfaceOptions
	markers  map[string]MarkerSpec
	popups   map[string]string
	initErr  error
	popupErr error
	ops      []string
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{markers: map[string]MarkerSpec{}, popups: map[string]string{}}
}

func (f *fakeSurface) Init(opts SurfaceOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits = append(f.inits, opts)
	f.ops = append(f.ops, "init")
	return f.initErr
}

func (f *fakeSurface) AddMarker(spec MarkerSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers[spec.Key] = spec
	f.ops = append(f.ops, "marker:"+spec.AssetID)
	return nil
}

func (f *fakeSurface) AddPopup(key, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.popupErr != nil {
		return f.popupErr
	}
	f.popups[key] = html
	f.ops = append(f.ops, "popup")
	return nil
}

func (f *fakeSurface) RemoveMarker(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	spec := f.markers[key]
	delete(f.markers, key)
	delete(f.popups, key)
	f.ops = append(f.ops, "remove:"+spec.AssetID)
	return nil
}

func (f *fakeSurface) markerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markers)
}

// fakeContainer is a map container whose mount state tests control.
type fakeContainer struct {
	id      string
	mounted bool
}

func (c *fakeContainer) ID() string    { return c.id }
func (c *fakeContainer) Mounted() bool { return c.mounted }

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
