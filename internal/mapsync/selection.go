package mapsync

import (
	"log/slog"

	"github.com/joeblew999/plat-assets/internal/metrics"
	"github.com/joeblew999/plat-assets/internal/service"
)

// State of the selection controller.
type State int

const (
	// Idle: no asset selected; the form is the blank new-asset template.
	Idle State = iota
	// Editing: the draft holds a copy of a stored asset.
	Editing
)

func (s State) String() string {
	if s == Editing {
		return "editing"
	}
	return "idle"
}

// CommitResult reports what a successful commit did.
type CommitResult struct {
	Asset   service.Asset
	Created bool
}

// Selection tracks the active asset and its draft. It is not safe for
// concurrent use; Session serializes access.
type Selection struct {
	store *Store
	log   *slog.Logger

	state    State
	selected string
	draft    *Draft
}

// NewSelection starts Idle with no draft.
func NewSelection(store *Store, log *slog.Logger) *Selection {
	return &Selection{store: store, log: log}
}

// State returns the current state.
func (s *Selection) State() State { return s.state }

// Selected returns the ID picked on the map while Editing.
func (s *Selection) Selected() (string, bool) {
	return s.selected, s.state == Editing
}

// Draft returns a copy of the draft, if there is one.
func (s *Selection) Draft() (Draft, bool) {
	if s.draft == nil {
		return Draft{}, false
	}
	return *s.draft, true
}

// SelectFromMap starts editing the asset a marker was drawn for. An unknown
// ID resets to Idle and returns a *StaleSelectionError.
func (s *Selection) SelectFromMap(id string) error {
	a, ok := s.store.Get(id)
	if !ok {
		s.reset()
		err := &StaleSelectionError{ID: id}
		s.log.Warn("marker selection ignored", "error", err)
		return err
	}
	d := DraftFromAsset(a)
	s.state = Editing
	s.selected = id
	s.draft = &d
	return nil
}

// Edit changes one draft field. It never touches the store and never changes
// state; in Idle the first edit starts a blank draft.
func (s *Selection) Edit(field, value string) error {
	d := Draft{}
	if s.draft != nil {
		d = *s.draft
	}
	if err := d.Set(field, value); err != nil {
		return err
	}
	s.draft = &d
	return nil
}

// Commit validates the draft and writes it to the store. It creates the
// asset when the draft ID is not stored yet and replaces it otherwise. On
// failure the state and the draft are kept so no edits are lost.
func (s *Selection) Commit() (CommitResult, error) {
	d := Draft{}
	if s.draft != nil {
		d = *s.draft
	}

	a, err := ParseDraft(d)
	if err != nil {
		metrics.CommitsTotal.WithLabelValues("unknown", "invalid").Inc()
		return CommitResult{}, err
	}

	created := !s.store.Has(a.ID)
	kind := "update"
	if created {
		kind = "create"
	}

	stored, err := s.store.Upsert(a)
	if err != nil {
		metrics.CommitsTotal.WithLabelValues(kind, "invalid").Inc()
		return CommitResult{}, err
	}
	metrics.CommitsTotal.WithLabelValues(kind, "ok").Inc()

	if s.state == Editing && s.selected != stored.ID {
		s.log.Info("draft committed under a new id", "selected", s.selected, "id", stored.ID)
	}
	s.reset()
	return CommitResult{Asset: stored, Created: created}, nil
}

// Cancel discards the draft and returns to Idle without touching the store.
func (s *Selection) Cancel() {
	s.reset()
}

// Forget drops the selection if it refers to id, e.g. after a delete.
func (s *Selection) Forget(id string) bool {
	if s.state == Editing && s.selected == id {
		s.reset()
		return true
	}
	return false
}

func (s *Selection) reset() {
	s.state = Idle
	s.selected = ""
	s.draft = nil
}
