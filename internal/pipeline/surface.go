package pipeline

import "sync"

// Surface is the display target the pipeline commits output to.
type Surface interface {
	// Commit replaces the surface's HTML wholesale.
	Commit(html string)
	// SetStylesheet replaces the surface's stylesheet.
	SetStylesheet(css string)
	// Clear empties the surface.
	Clear()
}

// MemorySurface holds committed output in memory for serving over HTTP.
type MemorySurface struct {
	mu   sync.Mutex
	html string
	css  string
}

func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

func (s *MemorySurface) Commit(html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.html = html
}

func (s *MemorySurface) SetStylesheet(css string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.css = css
}

func (s *MemorySurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.html = ""
	s.css = ""
}

// HTML returns the last committed HTML.
func (s *MemorySurface) HTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.html
}

// CSS returns the active stylesheet.
func (s *MemorySurface) CSS() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.css
}
