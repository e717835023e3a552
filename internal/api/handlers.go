package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/texview/docview/internal/document"
	"github.com/texview/docview/internal/manifest"
	"github.com/texview/docview/internal/pipeline"
)

// handleManifest returns the document index, sorted for display.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m, err := manifest.Load(s.cfg.ManifestPath)
	if err != nil {
		jsonError(w, "failed to load manifest: "+err.Error(), http.StatusInternalServerError)
		return
	}
	m.Sort(s.cfg.Locale)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// renderResponse is the per-document render payload.
type renderResponse struct {
	HTML     string             `json:"html"`
	CSS      string             `json:"css"`
	State    pipeline.State     `json:"state"`
	Units    int                `json:"units"`
	Metadata *document.Metadata `json:"metadata,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// handleRenderDocument loads a document and runs the content pipeline on it,
// returning whatever the surface holds afterwards.
func (s *Server) handleRenderDocument(w http.ResponseWriter, r *http.Request) {
	s.renderDocument(w, r, false)
}

// handleRetryDocument resets the typesetting engine before reprocessing.
// This is the user-initiated retry path after a failed render.
func (s *Server) handleRetryDocument(w http.ResponseWriter, r *http.Request) {
	s.renderDocument(w, r, true)
}

func (s *Server) renderDocument(w http.ResponseWriter, r *http.Request, reset bool) {
	file := path.Base(chi.URLParam(r, "file"))
	if file == "" || file == "." {
		jsonError(w, "document name is required", http.StatusBadRequest)
		return
	}

	doc, err := s.loader.Load(r.Context(), file)
	if err != nil {
		var loadErr *document.LoadError
		status := http.StatusBadGateway
		if errors.As(err, &loadErr) && errors.Is(loadErr.Cause, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		jsonError(w, err.Error(), status)
		return
	}

	if reset {
		s.engine.Reset()
	}

	sess := s.session(file)
	sess.orch.SetOverride(doc.Metadata.TypesetOverride())
	procErr := sess.orch.Process(r.Context(), doc.Body)

	resp := renderResponse{
		HTML:     sess.surface.HTML(),
		CSS:      sess.surface.CSS(),
		State:    sess.orch.State(),
		Units:    sess.orch.UnitCount(),
		Metadata: doc.Metadata,
	}
	if procErr != nil {
		resp.Error = procErr.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
