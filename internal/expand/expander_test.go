package expand

import (
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

type stubWidget struct {
	destroyed *int
}

func (w stubWidget) Mount(host *html.Node) error {
	host.AppendChild(&html.Node{Type: html.TextNode, Data: "stub content"})
	return nil
}

func (w stubWidget) Destroy() {
	if w.destroyed != nil {
		*w.destroyed++
	}
}

func testRegistry(destroyed *int) *Registry {
	r := NewRegistry()
	r.Register("stub", func(props map[string]any) (Widget, error) {
		return stubWidget{destroyed: destroyed}, nil
	})
	return r
}

func parseDoc(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func renderDoc(t *testing.T, n *html.Node) string {
	t.Helper()
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		t.Fatalf("render: %v", err)
	}
	return sb.String()
}

func TestExpand_OneUnitPerPlaceholderInDocumentOrder(t *testing.T) {
	root := parseDoc(t, `
		<p>intro</p>
		<doc-widget name="stub" props='{"idx": 1}'></doc-widget>
		<p>middle</p>
		<doc-widget name="stub" props='{"idx": 2}'></doc-widget>`)

	e := NewExpander(testRegistry(nil), slog.Default())
	var created []float64
	e.OnUnitCreated(func(u *Unit) {
		created = append(created, u.Props["idx"].(float64))
	})
	e.Expand(root)

	units := e.Units()
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if len(created) != 2 || created[0] != 1 || created[1] != 2 {
		t.Errorf("expected creation order [1 2], got %v", created)
	}
	for i, u := range units {
		if u.InstanceID == "" {
			t.Errorf("unit %d has no instance id", i)
		}
		if u.Host == nil {
			t.Fatalf("unit %d has no host", i)
		}
	}
	if units[0].InstanceID == units[1].InstanceID {
		t.Error("instance ids must be unique")
	}

	out := renderDoc(t, root)
	if strings.Contains(out, "<doc-widget") {
		t.Error("expected placeholders to be replaced")
	}
	if !strings.Contains(out, "data-widget-instance") {
		t.Error("expected addressable widget containers")
	}
	if strings.Count(out, "stub content") != 2 {
		t.Errorf("expected both widgets mounted, got: %s", out)
	}
}

func TestExpand_MalformedPropsIsLocalFailure(t *testing.T) {
	root := parseDoc(t, `
		<doc-widget name="stub" props='{not json'></doc-widget>
		<doc-widget name="stub" props='{}'></doc-widget>`)

	e := NewExpander(testRegistry(nil), slog.Default())
	e.Expand(root)

	if len(e.Units()) != 1 {
		t.Fatalf("expected the well-formed placeholder to expand, got %d units", len(e.Units()))
	}
	out := renderDoc(t, root)
	if strings.Count(out, "widget-error") != 1 {
		t.Errorf("expected exactly one inline error marker, got: %s", out)
	}
}

func TestExpand_UnknownCapabilityIsLocalFailure(t *testing.T) {
	root := parseDoc(t, `<doc-widget name="nope" props='{}'></doc-widget>`)

	e := NewExpander(testRegistry(nil), slog.Default())
	e.Expand(root)

	if len(e.Units()) != 0 {
		t.Fatalf("expected no units, got %d", len(e.Units()))
	}
	out := renderDoc(t, root)
	if !strings.Contains(out, "widget-error") {
		t.Errorf("expected inline error marker, got: %s", out)
	}
	if !strings.Contains(out, "unknown widget") {
		t.Errorf("expected the marker to name the failure, got: %s", out)
	}
}

func TestExpand_MissingNameIsSkipped(t *testing.T) {
	root := parseDoc(t, `<doc-widget props='{}'></doc-widget>`)

	e := NewExpander(testRegistry(nil), slog.Default())
	e.Expand(root)

	if len(e.Units()) != 0 {
		t.Fatalf("expected no units, got %d", len(e.Units()))
	}
	out := renderDoc(t, root)
	if strings.Contains(out, "widget-error") {
		t.Error("a nameless placeholder is skipped, not marked as error")
	}
}

func TestTeardownAll_SafeWhenEmptyAndRepeated(t *testing.T) {
	destroyed := 0
	e := NewExpander(testRegistry(&destroyed), slog.Default())

	e.TeardownAll() // zero units, no-op

	root := parseDoc(t, `<doc-widget name="stub" props='{}'></doc-widget>`)
	e.Expand(root)
	if len(e.Units()) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(e.Units()))
	}

	e.TeardownAll()
	e.TeardownAll() // second call is a no-op

	if destroyed != 1 {
		t.Errorf("expected exactly one destroy, got %d", destroyed)
	}
	if len(e.Units()) != 0 {
		t.Errorf("expected tracking cleared, got %d units", len(e.Units()))
	}
}

func TestTeardownBeforeReexpandPreventsDuplicates(t *testing.T) {
	destroyed := 0
	e := NewExpander(testRegistry(&destroyed), slog.Default())

	first := parseDoc(t, `<doc-widget name="stub" props='{}'></doc-widget>`)
	e.Expand(first)
	e.TeardownAll()

	second := parseDoc(t, `<doc-widget name="stub" props='{}'></doc-widget>`)
	e.Expand(second)

	if len(e.Units()) != 1 {
		t.Errorf("expected 1 tracked unit after reprocess, got %d", len(e.Units()))
	}
	if destroyed != 1 {
		t.Errorf("expected first-generation widget destroyed, got %d", destroyed)
	}
}
