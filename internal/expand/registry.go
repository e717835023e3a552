package expand

import (
	"sync"

	"golang.org/x/net/html"
)

// Widget is one live interactive unit rendered into a host element.
type Widget interface {
	// Mount renders the widget's content as children of host.
	Mount(host *html.Node) error
	// Destroy detaches the widget's content from its host. Widgets are
	// never torn down implicitly; the owning Expander calls this.
	Destroy()
}

// Factory builds a widget from the decoded placeholder props.
type Factory func(props map[string]any) (Widget, error)

// Registry maps capability names to widget factories. It is populated at
// startup and looked up at expansion time; there is no runtime codegen.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a capability name to a factory, replacing any previous
// binding for the same name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Lookup returns the factory for a capability name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}
