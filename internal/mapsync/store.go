// Package mapsync keeps an asset collection and the markers rendered for it
// on a map surface consistent, and routes selection and form edits between
// the map and the asset form.
//
// Data flows one way through the package:
//
//	form edits -> Selection (draft) -> commit -> Store -> Reconciler -> Adapter -> Surface
//	marker click -> Selection.SelectFromMap -> Draft -> form
package mapsync

import (
	"sync"

	"github.com/joeblew999/plat-assets/internal/service"
)

// ChangeOp identifies the kind of store mutation.
type ChangeOp int

const (
	OpUpsert ChangeOp = iota
	OpRemove
	OpLoad
)

func (o ChangeOp) String() string {
	switch o {
	case OpUpsert:
		return "upsert"
	case OpRemove:
		return "remove"
	case OpLoad:
		return "load"
	}
	return "unknown"
}

// Change is delivered to subscribers after each successful mutation.
// ID is empty for OpLoad.
type Change struct {
	Op ChangeOp
	ID string
}

// Store is the authoritative in-memory asset collection of one page session.
// It knows nothing about rendering.
type Store struct {
	mu     sync.RWMutex
	assets map[string]service.Asset
	order  []string

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		assets: make(map[string]service.Asset),
		subs:   make(map[int]func(Change)),
	}
}

// List returns the assets in insertion order.
func (s *Store) List() []service.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]service.Asset, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.assets[id])
	}
	return out
}

// Get returns the asset with id.
func (s *Store) Get(id string) (service.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	return a, ok
}

// Has reports whether id is registered.
func (s *Store) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Len returns the number of assets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Upsert inserts the asset when its ID is unused and replaces it otherwise.
// Invalid assets are rejected with a *service.ValidationError and leave the
// store untouched.
func (s *Store) Upsert(a service.Asset) (service.Asset, error) {
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return service.Asset{}, err
	}

	s.mu.Lock()
	if _, ok := s.assets[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.assets[a.ID] = a
	s.mu.Unlock()

	s.notify(Change{Op: OpUpsert, ID: a.ID})
	return a, nil
}

// Remove deletes the asset with id. It returns false when there was none.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	if _, ok := s.assets[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.assets, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify(Change{Op: OpRemove, ID: id})
	return true
}

// Load replaces the whole collection, typically with the backend's assets on
// page mount. Invalid records are returned as an error and nothing changes.
// Later duplicates of an ID replace earlier ones.
func (s *Store) Load(assets []service.Asset) error {
	next := make(map[string]service.Asset, len(assets))
	order := make([]string, 0, len(assets))
	for _, a := range assets {
		a = a.Normalize()
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := next[a.ID]; !dup {
			order = append(order, a.ID)
		}
		next[a.ID] = a
	}

	s.mu.Lock()
	s.assets = next
	s.order = order
	s.mu.Unlock()

	s.notify(Change{Op: OpLoad})
	return nil
}

// Subscribe registers fn for change notifications and returns a function
// that stops delivery. fn runs on the mutating goroutine, after the store
// lock is released.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
