package expand

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PlaceholderTag is the sentinel element standing in for a dynamic widget.
// It carries a "name" attribute (capability identifier) and a "props"
// attribute (JSON-encoded object of initial property values).
const PlaceholderTag = "doc-widget"

// InstanceAttr addresses a widget's container after expansion.
const InstanceAttr = "data-widget-instance"

// Unit is one instantiated widget. Units are owned by the Expander that
// created them and destroyed only through TeardownAll.
type Unit struct {
	Name       string
	Props      map[string]any
	Host       *html.Node
	InstanceID string

	widget Widget
}

// Expander converts placeholder markup into live widgets and tracks them for
// later teardown. An Expander manages one render surface and is not safe for
// concurrent use.
type Expander struct {
	registry *Registry
	log      *slog.Logger

	units     []*Unit
	onCreated []func(*Unit)
}

func NewExpander(registry *Registry, log *slog.Logger) *Expander {
	return &Expander{registry: registry, log: log}
}

// OnUnitCreated registers a callback fired for each unit as it is created,
// in document order.
func (e *Expander) OnUnitCreated(fn func(*Unit)) {
	e.onCreated = append(e.onCreated, fn)
}

// Units returns the tracked units in creation (document) order.
func (e *Expander) Units() []*Unit {
	return e.units
}

// Expand replaces every placeholder under root with a live widget. A
// malformed or unknown placeholder becomes an inline error marker; it never
// aborts expansion of the rest of the document.
func (e *Expander) Expand(root *html.Node) {
	for _, ph := range collectPlaceholders(root) {
		e.expandOne(ph)
	}
}

func (e *Expander) expandOne(ph *html.Node) {
	name := attrValue(ph, "name")
	if name == "" {
		e.log.Warn("placeholder without name attribute, skipping")
		return
	}

	props := map[string]any{}
	if raw := attrValue(ph, "props"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			e.log.Warn("malformed widget props", "widget", name, "error", err)
			replaceNode(ph, errorMarker(name, "invalid props"))
			return
		}
	}

	factory, ok := e.registry.Lookup(name)
	if !ok {
		e.log.Warn("unknown widget", "widget", name)
		replaceNode(ph, errorMarker(name, "unknown widget"))
		return
	}

	widget, err := factory(props)
	if err != nil {
		e.log.Warn("widget construction failed", "widget", name, "error", err)
		replaceNode(ph, errorMarker(name, err.Error()))
		return
	}

	id := uuid.NewString()
	host := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: "widget-host"},
			{Key: InstanceAttr, Val: id},
		},
	}
	if err := widget.Mount(host); err != nil {
		e.log.Warn("widget mount failed", "widget", name, "error", err)
		replaceNode(ph, errorMarker(name, err.Error()))
		return
	}
	replaceNode(ph, host)

	unit := &Unit{Name: name, Props: props, Host: host, InstanceID: id, widget: widget}
	e.units = append(e.units, unit)
	for _, fn := range e.onCreated {
		fn(unit)
	}
}

// TeardownAll destroys every tracked unit and clears the tracking set. It is
// a no-op when no units exist and must run before a fresh Expand pass on the
// same surface, so reprocessed content cannot leak or duplicate units.
func (e *Expander) TeardownAll() {
	for _, u := range e.units {
		u.widget.Destroy()
		for c := u.Host.FirstChild; c != nil; {
			next := c.NextSibling
			u.Host.RemoveChild(c)
			c = next
		}
	}
	e.units = nil
}

// collectPlaceholders gathers placeholder elements in document order before
// any mutation, since expansion replaces nodes mid-walk.
func collectPlaceholders(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == PlaceholderTag {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func replaceNode(old, repl *html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	parent.InsertBefore(repl, old)
	parent.RemoveChild(old)
}

func errorMarker(name, msg string) *html.Node {
	marker := &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr:     []html.Attribute{{Key: "class", Val: "widget-error"}},
	}
	marker.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: fmt.Sprintf("widget %q: %s", name, msg),
	})
	return marker
}
