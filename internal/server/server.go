// Package server wires the stores, map provider, REST API, Datastar editor
// and pages into one HTTP handler.
package server

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-mapblock/internal/api"
	"github.com/joeblew999/plat-mapblock/internal/api/editor"
	"github.com/joeblew999/plat-mapblock/internal/db"
	"github.com/joeblew999/plat-mapblock/internal/logging"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc/gazetteer"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc/google"
	"github.com/joeblew999/plat-mapblock/internal/service"
	"github.com/joeblew999/plat-mapblock/internal/templates"
	"github.com/joeblew999/plat-mapblock/internal/widget"
)

//go:embed static
var static embed.FS

// Store backends.
const (
	StoreFile   = "file"
	StoreDuckDB = "duckdb"
)

// Map providers.
const (
	ProviderGoogle    = "google"
	ProviderGazetteer = "gazetteer"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	// Store selects the settings backend: file or duckdb.
	Store string
	// Provider selects the map provider: google or gazetteer.
	Provider string
	// PlacesFile is a YAML place list for the gazetteer; empty uses the
	// built-in places.
	PlacesFile string
	// Language biases Google suggestions.
	Language string
	// Delay is the debounce window of marker edits.
	Delay time.Duration
	// LoadTimeout bounds how long requests wait for a map to load.
	LoadTimeout time.Duration
	// TemplateDir, when set, is a checkout of internal/templates whose
	// fragments are re-read before every page render.
	TemplateDir string
	// Extensions are DuckDB extensions loaded by the duckdb store.
	Extensions []string
	// Loader overrides the provider selection (tests).
	Loader mapsvc.Loader
}

// Server is the map block HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	db       *sql.DB
	blocks   *service.BlockService
	services *api.Services
	renderer *templates.Renderer
}

// New creates the server and opens its store.
func New(cfg Config) (*Server, error) {
	if cfg.Store == "" {
		cfg.Store = StoreFile
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderGoogle
	}

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-mapblock API", api.Version)
	humaConfig.Info.Description = "Map content blocks: settings, markers, place lookup and a Datastar editor."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
	}

	store, err := s.openStore()
	if err != nil {
		return nil, err
	}
	loader, err := s.loader()
	if err != nil {
		return nil, err
	}

	assets := service.NewAssetService(cfg.DataDir, "/assets")
	s.blocks = service.NewBlockService(store, assets, service.NewEventBus(), widget.Config{
		Loader: loader,
		Delay:  cfg.Delay,
		Retry:  widget.DefaultRetry,
		Logger: log.Logger,
	})
	s.services = &api.Services{
		Blocks:      s.blocks,
		Places:      loader,
		LoadTimeout: cfg.LoadTimeout,
	}

	renderer, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	s.renderer = renderer

	s.routes()
	s.handler = logging.RequestLogger(mux)
	return s, nil
}

// openStore opens the configured settings backend.
func (s *Server) openStore() (service.Store, error) {
	switch s.config.Store {
	case StoreFile:
		return service.NewFileStore(s.config.DataDir), nil
	case StoreDuckDB:
		conn, err := db.Get(db.Config{DataDir: s.config.DataDir, DBName: "mapblock", Extensions: s.config.Extensions})
		if err != nil {
			return nil, fmt.Errorf("opening duckdb: %w", err)
		}
		s.db = conn
		return db.NewSettingsStore(context.Background(), conn)
	default:
		return nil, fmt.Errorf("unknown store %q", s.config.Store)
	}
}

// loader selects the map provider.
func (s *Server) loader() (mapsvc.Loader, error) {
	if s.config.Loader != nil {
		return s.config.Loader, nil
	}
	switch s.config.Provider {
	case ProviderGoogle:
		return google.Loader{Language: s.config.Language}, nil
	case ProviderGazetteer:
		if s.config.PlacesFile == "" {
			return gazetteer.Default(), nil
		}
		return gazetteer.LoadFile(s.config.PlacesFile)
	default:
		return nil, fmt.Errorf("unknown provider %q", s.config.Provider)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the API description.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Blocks returns the block service.
func (s *Server) Blocks() *service.BlockService {
	return s.blocks
}

// Close flushes pending edits and closes server resources.
func (s *Server) Close() error {
	s.blocks.Close()
	if s.db != nil {
		return db.Close()
	}
	return nil
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.config.Store, s.config.Provider).RegisterRoutes(s.humaAPI)
	api.NewStoreHandler(s.db).RegisterRoutes(s.humaAPI)

	// Register Editor SSE routes using Huma + Datastar SDK
	editor.NewBlockEditor(s.blocks, s.renderer, s.config.LoadTimeout).RegisterRoutes(s.humaAPI)

	// Static files and uploaded assets
	staticFS, _ := fs.Sub(static, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))
	if assets := s.blocks.Assets(); assets != nil {
		s.mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(assets.Dir()))))
	}

	// Page routes
	s.mux.HandleFunc("GET /blocks/{id}", s.handleBlock(false))
	s.mux.HandleFunc("GET /blocks/{id}/edit", s.handleBlock(true))
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	records, err := s.blocks.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.page(w, "index", records)
}

// pageData is the data of the block page template.
type pageData struct {
	Name    string
	ID      string
	Session string
	Editing bool
	Base    string
	Signals map[string]any
}

func (s *Server) handleBlock(editing bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.blocks.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			if service.IsNotFound(err) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		name := rec.Name
		if name == "" {
			name = "Map"
		}
		// Every page load is its own session with its own map state.
		session := uuid.NewString()
		s.page(w, "page", pageData{
			Name:    name,
			ID:      rec.ID,
			Session: session,
			Editing: editing,
			Base:    editor.Base(rec.ID),
			Signals: editor.PageSignals(session, editing),
		})
	}
}

func (s *Server) page(w http.ResponseWriter, name string, data any) {
	if s.config.TemplateDir != "" {
		if err := s.renderer.Reload(s.config.TemplateDir); err != nil {
			log.Warn().Err(err).Str("dir", s.config.TemplateDir).Msg("Template reload failed, keeping previous")
		}
	}
	html, err := s.renderer.Render(name, data)
	if err != nil {
		log.Error().Err(err).Str("template", name).Msg("Rendering page failed")
		http.Error(w, "rendering page failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}
