package mapsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-assets/internal/service"
)

// Map defaults used when the page does not pick a view.
var (
	DefaultCenter = orb.Point{77.2881183, 28.690229}
	DefaultStyle  = "https://api.olamaps.io/tiles/vector/v1/styles/default-light-standard/style.json"
)

// DefaultZoom is the initial zoom level.
const DefaultZoom = 16.0

// ErrSessionClosed is returned by every Session method after Close.
var ErrSessionClosed = errors.New("page session closed")

// Backend is the REST boundary the page persists through.
type Backend interface {
	ListAssets(ctx context.Context) ([]service.Asset, error)
	GetAsset(ctx context.Context, id string) (service.Asset, error)
	CreateAsset(ctx context.Context, a service.Asset) (service.Asset, error)
	UpdateAsset(ctx context.Context, a service.Asset) (service.Asset, error)
	DeleteAsset(ctx context.Context, id string) error
}

// Options configure a page session.
type Options struct {
	APIKey string
	Style  string
	// Center is the initial view. When zero the session centres on the loaded
	// assets, or DefaultCenter when there are none.
	Center orb.Point
	Zoom   float64
}

// Session is one mounted GIS page: its asset store, map adapter, reconciler,
// and selection. Methods are serialized, standing in for the page's event
// loop.
type Session struct {
	ID        string
	CreatedAt time.Time

	backend Backend
	log     *slog.Logger

	mu         sync.Mutex
	closed     bool
	store      *Store
	adapter    *Adapter
	reconciler *Reconciler
	selection  *Selection
	loadErr    error
}

// Mount builds a session, loads the backend's assets, and asks for the map.
// Backend failures do not fail the mount: the page opens with an empty
// collection and LoadError reports why.
func Mount(ctx context.Context, id string, surface Surface, container Container, backend Backend, opts Options, log *slog.Logger) *Session {
	log = log.With("session", id)
	if opts.Style == "" {
		opts.Style = DefaultStyle
	}
	if opts.Zoom == 0 {
		opts.Zoom = DefaultZoom
	}

	store := NewStore()
	adapter := NewAdapter(surface, AdapterConfig{APIKey: opts.APIKey, Style: opts.Style}, log)
	s := &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		backend:    backend,
		log:        log,
		store:      store,
		adapter:    adapter,
		reconciler: NewReconciler(store, adapter, log),
		selection:  NewSelection(store, log),
	}
	adapter.OnReady(s.reconciler.Run)

	if backend != nil {
		assets, err := backend.ListAssets(ctx)
		if err != nil {
			s.loadErr = err
			log.Error("loading assets failed", "error", err)
		} else if err := store.Load(validOnly(assets, log)); err != nil {
			s.loadErr = err
		}
	}

	center := opts.Center
	if center == (orb.Point{}) {
		center = centerOf(store.List())
	}
	if _, err := adapter.Initialize(container, center, opts.Zoom); err != nil {
		log.Warn("map unavailable", "error", err)
	}
	return s
}

func validOnly(assets []service.Asset, log *slog.Logger) []service.Asset {
	out := make([]service.Asset, 0, len(assets))
	for _, a := range assets {
		if err := a.Normalize().Validate(); err != nil {
			log.Warn("skipping invalid asset", "asset", a.ID, "error", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

func centerOf(assets []service.Asset) orb.Point {
	if len(assets) == 0 {
		return DefaultCenter
	}
	mp := make(orb.MultiPoint, len(assets))
	for i, a := range assets {
		mp[i] = a.Point()
	}
	return mp.Bound().Center()
}

func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	return nil
}

// ContainerReady tells the session the map container is now in the page.
func (s *Session) ContainerReady() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.adapter.ContainerReady()
}

// MapError returns the *SurfaceInitError that disabled the map, if any.
func (s *Session) MapError() error {
	return s.adapter.InitError()
}

// LoadError returns the backend error from mount, if any.
func (s *Session) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Assets lists the session's assets.
func (s *Session) Assets() []service.Asset {
	return s.store.List()
}

// Tracked lists the asset IDs with a marker on the map.
func (s *Session) Tracked() []string {
	return s.reconciler.Tracked()
}

// State returns the selection state and the draft, if any.
func (s *Session) State() (State, Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.selection.Draft()
	return s.selection.State(), d, ok
}

// SelectFromMap handles a marker click.
func (s *Session) SelectFromMap(id string) (Draft, error) {
	if err := s.lock(); err != nil {
		return Draft{}, err
	}
	defer s.mu.Unlock()
	if err := s.selection.SelectFromMap(id); err != nil {
		return Draft{}, err
	}
	d, _ := s.selection.Draft()
	return d, nil
}

// Edit applies form field values to the draft.
func (s *Session) Edit(values map[string]string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, f := range FormFields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if err := s.selection.Edit(f.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// Commit writes the draft to the store and then persists it. A
// *service.ValidationError means nothing changed. Any other error means the
// page state changed but the backend did not take it; the result is valid.
func (s *Session) Commit(ctx context.Context) (CommitResult, error) {
	if err := s.lock(); err != nil {
		return CommitResult{}, err
	}
	defer s.mu.Unlock()

	res, err := s.selection.Commit()
	if err != nil {
		return CommitResult{}, err
	}
	if s.backend == nil {
		return res, nil
	}
	if err := s.persist(ctx, res); err != nil {
		s.log.Error("saving asset failed", "asset", res.Asset.ID, "error", err)
		return res, fmt.Errorf("save asset %q: %w", res.Asset.ID, err)
	}
	return res, nil
}

func (s *Session) persist(ctx context.Context, res CommitResult) error {
	if res.Created {
		_, err := s.backend.CreateAsset(ctx, res.Asset)
		if errors.Is(err, service.ErrExists) {
			_, err = s.backend.UpdateAsset(ctx, res.Asset)
		}
		return err
	}
	_, err := s.backend.UpdateAsset(ctx, res.Asset)
	if errors.Is(err, service.ErrNotFound) {
		_, err = s.backend.CreateAsset(ctx, res.Asset)
	}
	return err
}

// Cancel discards the draft.
func (s *Session) Cancel() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.selection.Cancel()
	return nil
}

// Delete removes an asset from the backend and then from the page. It
// reports whether the page had the asset. When the backend refuses, the page
// is left as it was.
func (s *Session) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.DeleteAsset(ctx, id); err != nil && !errors.Is(err, service.ErrNotFound) {
			return false, fmt.Errorf("delete asset %q: %w", id, err)
		}
	}
	removed := s.store.Remove(id)
	s.selection.Forget(id)
	return removed, nil
}

// Refresh pulls one changed asset from the backend after an external
// mutation. Unchanged assets are left alone so nothing is redrawn. When the
// asset being edited was deleted elsewhere the selection is dropped and a
// *StaleSelectionError is returned; the store is already up to date.
func (s *Session) Refresh(ctx context.Context, ev service.Event) error {
	if ev.Resource != service.ResourceAssets || s.backend == nil {
		return nil
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if ev.Action == service.ActionDeleted {
		return s.removed(ev.ID)
	}

	a, err := s.backend.GetAsset(ctx, ev.ID)
	if errors.Is(err, service.ErrNotFound) {
		return s.removed(ev.ID)
	}
	if err != nil {
		return err
	}
	if cur, ok := s.store.Get(a.ID); ok && cur == a.Normalize() {
		return nil
	}
	_, err = s.store.Upsert(a)
	return err
}

func (s *Session) removed(id string) error {
	s.store.Remove(id)
	if !s.selection.Forget(id) {
		return nil
	}
	err := &StaleSelectionError{ID: id}
	s.log.Warn("selection dropped after external delete", "error", err)
	return err
}

// Close unmounts the page: change notifications stop and the map surface is
// released.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.reconciler.Stop()
	s.adapter.Close()
	s.log.Debug("session closed")
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
