package typeset

import "sync"

// StyleRegistry tracks the active stylesheet for each render surface.
// At most one stylesheet is active per surface: setting a new one drops the
// previous declaration before the replacement is stored, and surfaces never
// mutate each other's entries.
type StyleRegistry struct {
	mu     sync.Mutex
	sheets map[string]string
}

func NewStyleRegistry() *StyleRegistry {
	return &StyleRegistry{sheets: make(map[string]string)}
}

// Set replaces the stylesheet for a surface.
func (r *StyleRegistry) Set(surface, css string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sheets, surface)
	r.sheets[surface] = css
}

// Get returns the active stylesheet for a surface, or "".
func (r *StyleRegistry) Get(surface string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sheets[surface]
}

// Remove drops the surface's stylesheet. Safe when none is set.
func (r *StyleRegistry) Remove(surface string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sheets, surface)
}
