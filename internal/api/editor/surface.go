// Package editor serves the GIS page: a server-held page session whose map
// surface is the browser, driven over one Datastar SSE stream.
package editor

import (
	"errors"
	"sync"
	"time"

	"github.com/joeblew999/plat-assets/internal/mapsync"
)

// Browser events carrying surface operations. gis.js listens for them.
const (
	EventMapInit      = "map-init"
	EventMarkerAdd    = "marker-add"
	EventMarkerPopup  = "marker-popup"
	EventMarkerRemove = "marker-remove"
)

var (
	errNotAttached = errors.New("map stream not attached")
	errStalled     = errors.New("map stream stalled")
)

// surfaceOp is one operation queued for the browser.
type surfaceOp struct {
	Event   string
	Payload any
}

type popupPayload struct {
	Key  string `json:"key"`
	HTML string `json:"html"`
}

type removePayload struct {
	Key string `json:"key"`
}

// streamSurface is a mapsync.Surface and mapsync.Container backed by the
// page's SSE stream. The container counts as mounted while a stream is
// attached; operations block until the stream writes them or sendTimeout
// passes.
type streamSurface struct {
	id          string
	sendTimeout time.Duration
	ops         chan surfaceOp

	mu       sync.Mutex
	attached bool
	used     bool
	done     chan struct{}
}

func newStreamSurface(containerID string) *streamSurface {
	return &streamSurface{
		id:          containerID,
		sendTimeout: 5 * time.Second,
		ops:         make(chan surfaceOp, 256),
		done:        make(chan struct{}),
	}
}

// attach marks the container mounted. A surface attaches once.
func (s *streamSurface) attach() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used {
		return false
	}
	s.used, s.attached = true, true
	return true
}

// detach unmounts the container and fails pending sends.
func (s *streamSurface) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		s.attached = false
		close(s.done)
	}
}

// everAttached reports whether a stream ever attached.
func (s *streamSurface) everAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *streamSurface) ID() string { return s.id }

func (s *streamSurface) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

func (s *streamSurface) send(event string, payload any) error {
	if !s.Mounted() {
		return errNotAttached
	}
	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()
	select {
	case s.ops <- surfaceOp{Event: event, Payload: payload}:
		return nil
	case <-s.done:
		return errNotAttached
	case <-timer.C:
		return errStalled
	}
}

func (s *streamSurface) Init(opts mapsync.SurfaceOptions) error {
	return s.send(EventMapInit, opts)
}

func (s *streamSurface) AddMarker(spec mapsync.MarkerSpec) error {
	return s.send(EventMarkerAdd, spec)
}

func (s *streamSurface) AddPopup(key, html string) error {
	return s.send(EventMarkerPopup, popupPayload{Key: key, HTML: html})
}

func (s *streamSurface) RemoveMarker(key string) error {
	return s.send(EventMarkerRemove, removePayload{Key: key})
}
