package mapsync

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-assets/internal/metrics"
	"github.com/joeblew999/plat-assets/internal/service"
)

// Surface is the capability set of an externally owned map rendering
// library: initialize once, then add popups and markers and remove markers.
// Implementations need not support moving or relabelling a marker.
type Surface interface {
	Init(opts SurfaceOptions) error
	AddMarker(spec MarkerSpec) error
	AddPopup(key, html string) error
	RemoveMarker(key string) error
}

// Container is the page element the map renders into. It may not exist yet
// when the page asks for the map.
type Container interface {
	ID() string
	Mounted() bool
}

// SurfaceOptions are passed to Surface.Init.
type SurfaceOptions struct {
	APIKey    string    `json:"apiKey"`
	Style     string    `json:"style"`
	Container string    `json:"container"`
	Center    orb.Point `json:"center"`
	Zoom      float64   `json:"zoom"`
}

// MarkerSpec describes one marker to draw.
type MarkerSpec struct {
	Key     string    `json:"key"`
	AssetID string    `json:"assetId"`
	At      orb.Point `json:"lngLat"`
	Color   string    `json:"color"`
	Anchor  string    `json:"anchor"`
	Offset  [2]int    `json:"offset"`
}

// SurfaceHandle identifies an initialized (or pending) map surface.
type SurfaceHandle struct {
	Container string
	Center    orb.Point
	Zoom      float64
	Ready     bool
}

// MarkerHandle is an opaque reference to one rendered marker and its popup.
type MarkerHandle struct {
	key     string
	assetID string
}

// AssetID returns the asset the marker was drawn for.
func (h MarkerHandle) AssetID() string { return h.assetID }

// Valid reports whether h refers to a marker.
func (h MarkerHandle) Valid() bool { return h.key != "" }

type surfaceState int

const (
	surfaceNew surfaceState = iota
	surfacePending
	surfaceReady
	surfaceFailed
	surfaceClosed
)

// AdapterConfig carries the map provider settings.
type AdapterConfig struct {
	APIKey string
	Style  string
}

// Adapter owns the map surface of one page session: it initializes it at
// most once and creates and tears down marker+popup pairs.
type Adapter struct {
	surface Surface
	cfg     AdapterConfig
	log     *slog.Logger

	mu        sync.Mutex
	state     surfaceState
	container Container
	handle    SurfaceHandle
	initErr   error
	onReady   []func()
}

// NewAdapter wraps surface.
func NewAdapter(surface Surface, cfg AdapterConfig, log *slog.Logger) *Adapter {
	return &Adapter{surface: surface, cfg: cfg, log: log}
}

// OnReady registers fn to run once the surface finishes initializing.
func (a *Adapter) OnReady(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onReady = append(a.onReady, fn)
}

// Initialize asks for the map to be drawn into c. Calling it again while
// initialized or pending is a no-op. When c is not mounted yet the request is
// kept and carried out by ContainerReady.
func (a *Adapter) Initialize(c Container, center orb.Point, zoom float64) (SurfaceHandle, error) {
	a.mu.Lock()
	switch a.state {
	case surfaceReady, surfacePending:
		h := a.handle
		a.mu.Unlock()
		return h, nil
	case surfaceFailed:
		h, err := a.handle, a.initErr
		a.mu.Unlock()
		return h, err
	case surfaceClosed:
		a.mu.Unlock()
		return SurfaceHandle{}, ErrSurfaceClosed
	}

	a.container = c
	a.handle = SurfaceHandle{Container: c.ID(), Center: center, Zoom: zoom}

	if a.cfg.APIKey == "" {
		a.state = surfaceFailed
		a.initErr = &SurfaceInitError{Reason: "map API key is not configured"}
		h, err := a.handle, a.initErr
		a.mu.Unlock()
		a.log.Warn("map surface disabled", "error", err)
		return h, err
	}

	if !c.Mounted() {
		a.state = surfacePending
		h := a.handle
		a.mu.Unlock()
		a.log.Debug("map container not mounted, deferring init", "container", c.ID())
		return h, nil
	}

	return a.initAndUnlock()
}

// ContainerReady is the readiness signal for a deferred Initialize. It does
// nothing unless an initialization is pending.
func (a *Adapter) ContainerReady() error {
	a.mu.Lock()
	if a.state != surfacePending || !a.container.Mounted() {
		var err error
		if a.state == surfaceFailed {
			err = a.initErr
		}
		a.mu.Unlock()
		return err
	}
	_, err := a.initAndUnlock()
	return err
}

// initAndUnlock runs Surface.Init. Called with a.mu held; releases it.
func (a *Adapter) initAndUnlock() (SurfaceHandle, error) {
	opts := SurfaceOptions{
		APIKey:    a.cfg.APIKey,
		Style:     a.cfg.Style,
		Container: a.handle.Container,
		Center:    a.handle.Center,
		Zoom:      a.handle.Zoom,
	}
	if err := a.surface.Init(opts); err != nil {
		a.state = surfaceFailed
		a.initErr = &SurfaceInitError{Reason: "map provider rejected initialization", Err: err}
		h, ierr := a.handle, a.initErr
		a.mu.Unlock()
		a.log.Error("map surface init failed", "container", h.Container, "error", err)
		return h, ierr
	}

	a.state = surfaceReady
	a.handle.Ready = true
	h := a.handle
	callbacks := append([]func(){}, a.onReady...)
	a.mu.Unlock()

	a.log.Info("map surface ready", "container", h.Container)
	for _, fn := range callbacks {
		fn()
	}
	return h, nil
}

// Ready reports whether markers can be drawn.
func (a *Adapter) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == surfaceReady
}

// InitError returns the initialization failure, if any.
func (a *Adapter) InitError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initErr
}

// Close releases the surface. Marker calls fail afterwards.
func (a *Adapter) Close() {
	a.mu.Lock()
	a.state = surfaceClosed
	a.onReady = nil
	a.mu.Unlock()
}

func (a *Adapter) usable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case surfaceReady:
		return nil
	case surfaceClosed:
		return ErrSurfaceClosed
	}
	return ErrSurfaceNotReady
}

// AddMarker draws a marker at the asset location with a popup showing its
// label.
func (a *Adapter) AddMarker(asset service.Asset) (h MarkerHandle, err error) {
	defer func() { metrics.MarkerOpsTotal.WithLabelValues("add", metrics.Result(err)).Inc() }()
	return a.addMarker(asset)
}

func (a *Adapter) addMarker(asset service.Asset) (MarkerHandle, error) {
	if err := a.usable(); err != nil {
		return MarkerHandle{}, err
	}
	if !service.ValidCoordinates(asset.Latitude, asset.Longitude) {
		return MarkerHandle{}, fmt.Errorf("asset %q has invalid coordinates (%v, %v)",
			asset.ID, asset.Latitude, asset.Longitude)
	}

	key := uuid.NewString()
	spec := MarkerSpec{
		Key:     key,
		AssetID: asset.ID,
		At:      asset.Point(),
		Color:   ConditionColor(asset.Condition),
		Anchor:  "bottom",
		Offset:  [2]int{0, 6},
	}
	if err := a.surface.AddMarker(spec); err != nil {
		return MarkerHandle{}, fmt.Errorf("add marker for %q: %w", asset.ID, err)
	}
	if err := a.surface.AddPopup(key, PopupHTML(asset)); err != nil {
		if rerr := a.surface.RemoveMarker(key); rerr != nil {
			a.log.Warn("orphaned marker after popup failure", "asset", asset.ID, "error", rerr)
		}
		return MarkerHandle{}, fmt.Errorf("add popup for %q: %w", asset.ID, err)
	}
	return MarkerHandle{key: key, assetID: asset.ID}, nil
}

// UpdateMarker replaces the marker behind h with a fresh one for asset and
// returns the new handle. Map libraries cannot move and relabel a marker in
// one step, so this is a remove followed by an add.
func (a *Adapter) UpdateMarker(h MarkerHandle, asset service.Asset) (next MarkerHandle, err error) {
	defer func() { metrics.MarkerOpsTotal.WithLabelValues("update", metrics.Result(err)).Inc() }()

	if err := a.removeMarker(h); err != nil {
		return h, err
	}
	next, err = a.addMarker(asset)
	if err != nil {
		return MarkerHandle{}, err
	}
	return next, nil
}

// RemoveMarker deletes the marker and popup behind h.
func (a *Adapter) RemoveMarker(h MarkerHandle) (err error) {
	defer func() { metrics.MarkerOpsTotal.WithLabelValues("remove", metrics.Result(err)).Inc() }()
	return a.removeMarker(h)
}

func (a *Adapter) removeMarker(h MarkerHandle) error {
	if err := a.usable(); err != nil {
		return err
	}
	if !h.Valid() {
		return fmt.Errorf("remove marker: invalid handle")
	}
	if err := a.surface.RemoveMarker(h.key); err != nil {
		return fmt.Errorf("remove marker for %q: %w", h.assetID, err)
	}
	return nil
}

// ConditionColor picks the marker colour for a condition.
func ConditionColor(c service.Condition) string {
	switch c {
	case service.Excellent:
		return "#2e7d32"
	case service.Good:
		return "#1976d2"
	case service.Fair:
		return "#f9a825"
	case service.Poor:
		return "#d32f2f"
	}
	return "#757575"
}

// FormatLabel renders the one-line display label of an asset,
// e.g. "Pump a1 · Grundfos CR 45".
func FormatLabel(a service.Asset) string {
	label := a.Type.DisplayName() + " " + a.ID
	switch {
	case a.Manufacturer != "" && a.Model != "":
		label += " · " + a.Manufacturer + " " + a.Model
	case a.Manufacturer != "":
		label += " · " + a.Manufacturer
	case a.Model != "":
		label += " · " + a.Model
	}
	return label
}

var popupTmpl = template.Must(template.New("popup").Parse(
	`<div class="font-semibold text-xl">{{.Label}}</div>` +
		`<div class="text-sm">{{.Condition}}{{if .Capacity}} · {{.Capacity}}{{end}}{{if .Installed}} · installed {{.Installed}}{{end}}</div>`))

// PopupHTML renders the popup body for an asset. Every value is escaped.
func PopupHTML(a service.Asset) string {
	var buf bytes.Buffer
	data := struct {
		Label, Condition, Capacity, Installed string
	}{FormatLabel(a), string(a.Condition), a.Capacity, a.InstallationDate}
	if err := popupTmpl.Execute(&buf, data); err != nil {
		return template.HTMLEscapeString(FormatLabel(a))
	}
	return buf.String()
}
