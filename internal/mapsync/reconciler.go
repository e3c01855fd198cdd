package mapsync

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/joeblew999/plat-assets/internal/metrics"
	"github.com/joeblew999/plat-assets/internal/service"
)

// MarkerAdapter is the part of Adapter the reconciler drives.
type MarkerAdapter interface {
	Ready() bool
	AddMarker(asset service.Asset) (MarkerHandle, error)
	UpdateMarker(h MarkerHandle, asset service.Asset) (MarkerHandle, error)
	RemoveMarker(h MarkerHandle) error
}

// rendered is what a marker shows; two assets with equal rendered values
// look identical on the map.
type rendered struct {
	lat, lon float64
	color    string
	popup    string
}

func renderedOf(a service.Asset) rendered {
	return rendered{
		lat:   a.Latitude,
		lon:   a.Longitude,
		color: ConditionColor(a.Condition),
		popup: PopupHTML(a),
	}
}

type trackedMarker struct {
	handle MarkerHandle
	last   rendered
}

// Reconciler keeps one marker per stored asset. After every store change it
// diffs the store against the markers it drew and applies only the adds,
// updates, and removes needed. Passes never overlap: a change that arrives
// during a pass is handled by one more pass once the current one finishes.
type Reconciler struct {
	store   *Store
	adapter MarkerAdapter
	log     *slog.Logger

	mu      sync.Mutex // guards the fields below
	running bool
	pending bool
	stopped bool
	touched map[string]struct{}
	unsub   func()

	stateMu sync.RWMutex
	markers map[string]trackedMarker
}

// NewReconciler subscribes to store changes.
func NewReconciler(store *Store, adapter MarkerAdapter, log *slog.Logger) *Reconciler {
	r := &Reconciler{
		store:   store,
		adapter: adapter,
		log:     log,
		touched: make(map[string]struct{}),
		markers: make(map[string]trackedMarker),
	}
	r.unsub = store.Subscribe(r.onChange)
	return r
}

func (r *Reconciler) onChange(c Change) {
	r.mu.Lock()
	if c.Op == OpUpsert {
		r.touched[c.ID] = struct{}{}
	}
	r.mu.Unlock()
	r.Run()
}

// Run reconciles now, or queues one more pass if a pass is in progress.
// It returns once the queue is drained or handed to the running goroutine.
func (r *Reconciler) Run() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.running {
		r.pending = true
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	for {
		r.mu.Lock()
		if r.stopped {
			r.running = false
			r.mu.Unlock()
			return
		}
		touched := r.touched
		r.touched = make(map[string]struct{})
		r.pending = false
		r.mu.Unlock()

		r.pass(touched)

		r.mu.Lock()
		if !r.pending || r.stopped {
			r.running = false
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
	}
}

// Stop unsubscribes from the store and forgets all markers. No adapter call
// is made after Stop returns, except by a pass already in flight.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	unsub := r.unsub
	r.mu.Unlock()

	unsub()

	r.stateMu.Lock()
	r.markers = make(map[string]trackedMarker)
	r.stateMu.Unlock()
}

// Tracked returns the asset IDs that currently have a marker, sorted.
func (r *Reconciler) Tracked() []string {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	ids := make([]string, 0, len(r.markers))
	for id := range r.markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Handle returns the marker drawn for id.
func (r *Reconciler) Handle(id string) (MarkerHandle, bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	m, ok := r.markers[id]
	return m.handle, ok
}

func (r *Reconciler) pass(touched map[string]struct{}) {
	if !r.adapter.Ready() {
		return
	}

	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	assets := r.store.List()
	desired := make(map[string]service.Asset, len(assets))
	for _, a := range assets {
		desired[a.ID] = a
	}

	var gone []string
	for id := range r.markers {
		if _, ok := desired[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		m := r.markers[id]
		err := retryOnce(func() error { return r.adapter.RemoveMarker(m.handle) })
		if errors.Is(err, ErrSurfaceClosed) {
			return
		}
		if err != nil {
			r.log.Warn("marker left on map after remove failed", "asset", id, "error", err)
		}
		delete(r.markers, id)
	}

	for _, a := range assets {
		want := renderedOf(a)
		m, ok := r.markers[a.ID]
		if !ok {
			var h MarkerHandle
			err := retryOnce(func() (err error) {
				h, err = r.adapter.AddMarker(a)
				return err
			})
			if errors.Is(err, ErrSurfaceClosed) {
				return
			}
			if err != nil {
				r.unrendered(a.ID, "add", err)
				continue
			}
			r.markers[a.ID] = trackedMarker{handle: h, last: want}
			continue
		}

		if _, explicit := touched[a.ID]; m.last == want && !explicit {
			continue
		}
		h, err := r.update(m.handle, a)
		if errors.Is(err, ErrSurfaceClosed) {
			return
		}
		if err != nil {
			r.unrendered(a.ID, "update", err)
			if h.Valid() {
				// The old marker is still up; keep it so the next pass retries.
				r.markers[a.ID] = trackedMarker{handle: h, last: m.last}
			} else {
				delete(r.markers, a.ID)
			}
			continue
		}
		r.markers[a.ID] = trackedMarker{handle: h, last: want}
	}

	metrics.ReconcilePassesTotal.Inc()
}

// update retries a failed UpdateMarker once. A failed update that still
// returns a valid handle never removed the old marker; one that returns an
// invalid handle removed it, so the retry only needs to add.
func (r *Reconciler) update(old MarkerHandle, a service.Asset) (MarkerHandle, error) {
	h, err := r.adapter.UpdateMarker(old, a)
	if err == nil || errors.Is(err, ErrSurfaceClosed) {
		return h, err
	}
	if h.Valid() {
		return r.adapter.UpdateMarker(h, a)
	}
	return r.adapter.AddMarker(a)
}

func (r *Reconciler) unrendered(id, op string, err error) {
	metrics.UnrenderedMarkersTotal.Inc()
	r.log.Error("asset not rendered", "asset", id, "op", op, "error", err)
}

// retryOnce retries fn once unless the surface is gone.
func retryOnce(fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, ErrSurfaceClosed) {
		return err
	}
	return fn()
}
