package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-assets/internal/mapsync"
	"github.com/joeblew999/plat-assets/internal/metrics"
)

// MapContainerID is the DOM id of the map element.
const MapContainerID = "map"

// attachTimeout is how long a mounted page may go without opening its stream.
const attachTimeout = 2 * time.Minute

// PageSession is a mounted page session and the stream surface its map draws on.
type PageSession struct {
	*mapsync.Session
	surface *streamSurface
}

// Sessions owns the mounted GIS page sessions.
type Sessions struct {
	backend mapsync.Backend
	opts    mapsync.Options
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*PageSession
}

// NewSessions creates an empty session registry.
func NewSessions(backend mapsync.Backend, opts mapsync.Options, log *slog.Logger) *Sessions {
	return &Sessions{
		backend:  backend,
		opts:     opts,
		log:      log,
		sessions: make(map[string]*PageSession),
	}
}

// Mount creates a page session. Its map waits for the page's stream.
func (s *Sessions) Mount(ctx context.Context) *PageSession {
	id := uuid.NewString()
	surface := newStreamSurface(MapContainerID)
	ps := &PageSession{
		Session: mapsync.Mount(ctx, id, surface, surface, s.backend, s.opts, s.log),
		surface: surface,
	}

	s.mu.Lock()
	s.sessions[id] = ps
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	s.log.Debug("page session mounted", "session", id, "assets", len(ps.Assets()))
	return ps
}

// Get returns a mounted session.
func (s *Sessions) Get(id string) (*PageSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.sessions[id]
	return ps, ok
}

// Close unmounts and forgets a session.
func (s *Sessions) Close(id string) {
	s.mu.Lock()
	ps, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return
	}

	ps.surface.detach()
	ps.Close()
	metrics.ActiveSessions.Set(float64(n))
}

// Len returns the number of mounted sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions whose page never opened its stream within
// attachTimeout of now. It returns how many were closed.
func (s *Sessions) Sweep(now time.Time) int {
	s.mu.Lock()
	var stale []string
	for id, ps := range s.sessions {
		if !ps.surface.everAttached() && now.Sub(ps.CreatedAt) > attachTimeout {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Close(id)
	}
	if len(stale) > 0 {
		s.log.Info("swept unattached page sessions", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done, then closes every session.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// CloseAll unmounts every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Close(id)
	}
}
