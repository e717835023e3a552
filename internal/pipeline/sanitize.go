package pipeline

import "github.com/microcosm-cc/bluemonday"

// newPolicy builds the sanitization policy applied to every commit. On top
// of the usual user-content allowances it admits MathML output, the SVG
// emitted by plot widgets, widget containers, and unexpanded placeholders.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()

	p.AllowElements("span")
	p.AllowAttrs("class", "id").Globally()

	// MathML produced by the typesetting engine.
	p.AllowElements(
		"math", "semantics", "annotation", "mrow", "mi", "mo", "mn", "ms",
		"mtext", "mspace", "msup", "msub", "msubsup", "mfrac", "msqrt",
		"mroot", "mstyle", "merror", "mpadded", "mphantom", "mfenced",
		"menclose", "munder", "mover", "munderover", "mmultiscripts",
		"mtable", "mtr", "mtd", "mlabeledtr",
	)
	p.AllowAttrs("xmlns", "display").OnElements("math")
	p.AllowAttrs("mathvariant", "displaystyle", "scriptlevel").Globally()

	// SVG emitted by widgets.
	p.AllowElements("svg", "g", "polyline", "line", "path", "rect", "circle", "text")
	p.AllowAttrs("viewBox", "width", "height", "fill", "stroke", "stroke-width",
		"points", "d", "x", "y", "x1", "y1", "x2", "y2", "cx", "cy", "r",
		"transform", "font-size", "text-anchor").
		OnElements("svg", "g", "polyline", "line", "path", "rect", "circle", "text")

	// Widget containers and not-yet-expanded placeholders.
	p.AllowAttrs("data-widget-instance").OnElements("div")
	p.AllowElements("doc-widget")
	p.AllowAttrs("name", "props").OnElements("doc-widget")

	return p
}
