// Package server wires the asset registry, the GIS page, and the REST API
// into one HTTP handler.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-assets/internal/api"
	"github.com/joeblew999/plat-assets/internal/api/editor"
	"github.com/joeblew999/plat-assets/internal/backend"
	"github.com/joeblew999/plat-assets/internal/db"
	"github.com/joeblew999/plat-assets/internal/humastar"
	"github.com/joeblew999/plat-assets/internal/mapsync"
	"github.com/joeblew999/plat-assets/internal/metrics"
	"github.com/joeblew999/plat-assets/internal/service"
	"github.com/joeblew999/plat-assets/internal/templates"
)

// sweepInterval is how often unattached page sessions are looked for.
const sweepInterval = 30 * time.Second

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and template overrides

	MapAPIKey string
	MapStyle  string
	// BackendURL points GIS pages at a remote registry instead of the local
	// database.
	BackendURL string

	// InMemory keeps the database in memory (tests).
	InMemory bool
	Logger   *slog.Logger
}

// Server is the asset registry HTTP server.
type Server struct {
	config   Config
	log      *slog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	bus      *service.EventBus
	services *api.Services
	renderer *templates.Renderer
	sessions *editor.Sessions
	gis      *editor.GISHandler

	cancel context.CancelFunc
	done   chan struct{}
}

// New opens the database, builds the services, and registers every route.
// The page session sweeper runs until Close.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	conn, err := db.Open(context.Background(), db.Config{
		DataDir:  cfg.DataDir,
		DBName:   "assets",
		InMemory: cfg.InMemory,
	})
	if err != nil {
		return nil, err
	}

	renderer, err := templates.New(templateDir(cfg.WebDir))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}

	bus := service.NewEventBus()
	services := &api.Services{
		Asset:      service.NewAssetService(conn, bus),
		Consumable: service.NewConsumableService(conn, bus),
	}

	var pageBackend mapsync.Backend = services.Asset
	pageBus := bus
	if cfg.BackendURL != "" {
		client, err := backend.NewClient(cfg.BackendURL, nil, log)
		if err != nil {
			conn.Close()
			return nil, err
		}
		pageBackend = client
		// Changes made on the remote registry are not published here.
		pageBus = nil
		log.Info("gis pages use remote backend", "url", client.BaseURL())
	}

	links := humastar.NewLinkSet()
	humaConfig := huma.DefaultConfig("plat-assets API", api.Version)
	humaConfig.Info.Description = "Geospatial asset registry with a live GIS page."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	mux := http.NewServeMux()
	humaAPI := humago.New(mux, humaConfig)

	sessions := editor.NewSessions(pageBackend, mapsync.Options{
		APIKey: cfg.MapAPIKey,
		Style:  cfg.MapStyle,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		log:      log,
		mux:      mux,
		humaAPI:  humaAPI,
		db:       conn,
		bus:      bus,
		services: services,
		renderer: renderer,
		sessions: sessions,
		gis:      editor.NewGISHandler(sessions, pageBus, renderer, log),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.routes(links)

	go func() {
		defer close(s.done)
		sessions.Run(ctx, sweepInterval)
	}()
	return s, nil
}

func templateDir(webDir string) string {
	if webDir == "" {
		return ""
	}
	return filepath.Join(webDir, "templates")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Sessions returns the mounted GIS page sessions.
func (s *Server) Sessions() *editor.Sessions {
	return s.sessions
}

// Close unmounts every page session and closes the database.
func (s *Server) Close() error {
	s.cancel()
	<-s.done
	return s.db.Close()
}

func (s *Server) routes(links *humastar.LinkSet) {
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.config.BackendURL, s.db != nil, s.config.MapAPIKey != "").
		RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)
	s.gis.RegisterRoutes(s.humaAPI)
	api.PopulateLinks(s.humaAPI, links)

	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /gis", s.gis.Page)

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		if _, err := os.Stat(staticDir); err != nil {
			s.log.Warn("static assets missing; the map will not load", "dir", staticDir)
		}
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/gis", http.StatusFound)
}
