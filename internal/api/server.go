package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/texview/docview/internal/config"
	"github.com/texview/docview/internal/document"
	"github.com/texview/docview/internal/expand"
	"github.com/texview/docview/internal/pipeline"
	"github.com/texview/docview/internal/typeset"
)

// Server is the HTTP API for the document viewer.
type Server struct {
	router   chi.Router
	loader   *document.Loader
	engine   typeset.Engine
	registry *expand.Registry
	styles   *typeset.StyleRegistry
	cfg      config.Config
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one document's render surface and its pipeline.
type session struct {
	surface *pipeline.MemorySurface
	orch    *pipeline.Orchestrator
}

// NewServer creates and configures the HTTP server.
func NewServer(loader *document.Loader, engine typeset.Engine, registry *expand.Registry, styles *typeset.StyleRegistry, cfg config.Config, log *slog.Logger) *Server {
	s := &Server{
		loader:   loader,
		engine:   engine,
		registry: registry,
		styles:   styles,
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*session),
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/api/manifest", s.handleManifest)
	r.Get("/api/documents/{file}", s.handleRenderDocument)
	r.Post("/api/documents/{file}/retry", s.handleRetryDocument)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// session returns the render session for a document, creating it on first
// use. The cache is bounded; when full, an arbitrary idle session is evicted.
func (s *Server) session(file string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[file]; ok {
		return sess
	}
	if len(s.sessions) >= s.cfg.MaxSurfaces {
		for k, old := range s.sessions {
			old.orch.Stop()
			delete(s.sessions, k)
			break
		}
	}

	surface := pipeline.NewMemorySurface()
	expander := expand.NewExpander(s.registry, s.log.With("document", file))
	orch := pipeline.NewOrchestrator(pipeline.Options{
		Location:       "/docs/" + file,
		Surface:        surface,
		Engine:         s.engine,
		Expander:       expander,
		Styles:         s.styles,
		DynamicContent: s.cfg.DynamicContent,
		Debounce:       s.cfg.DebounceInterval,
		Logger:         s.log.With("document", file),
	})
	sess := &session{surface: surface, orch: orch}
	s.sessions[file] = sess
	return sess
}
