package expand

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/net/html"
)

// RegisterBuiltins populates the registry with the widgets shipped with the
// service.
func RegisterBuiltins(r *Registry) {
	r.Register("function-plot", newFunctionPlot)
	r.Register("code-sample", newCodeSample)
}

type plotProps struct {
	Points [][2]float64 `mapstructure:"points"`
	Width  int          `mapstructure:"width"`
	Height int          `mapstructure:"height"`
	Label  string       `mapstructure:"label"`
	Stroke string       `mapstructure:"stroke"`
}

// functionPlot renders a polyline plot of precomputed (x, y) samples as
// inline SVG.
type functionPlot struct {
	props plotProps
	host  *html.Node
}

func newFunctionPlot(props map[string]any) (Widget, error) {
	var p plotProps
	if err := mapstructure.Decode(props, &p); err != nil {
		return nil, fmt.Errorf("decode plot props: %w", err)
	}
	if len(p.Points) < 2 {
		return nil, fmt.Errorf("plot needs at least 2 points, got %d", len(p.Points))
	}
	if p.Width <= 0 {
		p.Width = 480
	}
	if p.Height <= 0 {
		p.Height = 300
	}
	if p.Stroke == "" {
		p.Stroke = "#1f77b4"
	}
	return &functionPlot{props: p}, nil
}

func (w *functionPlot) Mount(host *html.Node) error {
	w.host = host
	host.AppendChild(&html.Node{Type: html.RawNode, Data: w.svg()})
	return nil
}

func (w *functionPlot) Destroy() {
	w.host = nil
}

func (w *functionPlot) svg() string {
	p := w.props
	minX, maxX := p.Points[0][0], p.Points[0][0]
	minY, maxY := p.Points[0][1], p.Points[0][1]
	for _, pt := range p.Points {
		minX = min(minX, pt[0])
		maxX = max(maxX, pt[0])
		minY = min(minY, pt[1])
		maxY = max(maxY, pt[1])
	}
	spanX, spanY := maxX-minX, maxY-minY
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}

	const pad = 10.0
	sx := (float64(p.Width) - 2*pad) / spanX
	sy := (float64(p.Height) - 2*pad) / spanY

	var pts strings.Builder
	for i, pt := range p.Points {
		if i > 0 {
			pts.WriteByte(' ')
		}
		// SVG y grows downward.
		x := pad + (pt[0]-minX)*sx
		y := float64(p.Height) - pad - (pt[1]-minY)*sy
		fmt.Fprintf(&pts, "%.2f,%.2f", x, y)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg class="function-plot" viewBox="0 0 %d %d" width="%d" height="%d">`,
		p.Width, p.Height, p.Width, p.Height)
	fmt.Fprintf(&sb, `<polyline fill="none" stroke=%q stroke-width="1.5" points=%q></polyline>`,
		p.Stroke, pts.String())
	if p.Label != "" {
		fmt.Fprintf(&sb, `<text x="%d" y="%d" text-anchor="middle" font-size="12">%s</text>`,
			p.Width/2, p.Height-2, html.EscapeString(p.Label))
	}
	sb.WriteString(`</svg>`)
	return sb.String()
}

type codeProps struct {
	Language string `mapstructure:"language"`
	Source   string `mapstructure:"source"`
}

// codeSample renders an escaped source listing.
type codeSample struct {
	props codeProps
	host  *html.Node
}

func newCodeSample(props map[string]any) (Widget, error) {
	var p codeProps
	if err := mapstructure.Decode(props, &p); err != nil {
		return nil, fmt.Errorf("decode code props: %w", err)
	}
	if p.Source == "" {
		return nil, fmt.Errorf("code sample needs a source")
	}
	return &codeSample{props: p}, nil
}

func (w *codeSample) Mount(host *html.Node) error {
	w.host = host
	class := ""
	if w.props.Language != "" {
		class = fmt.Sprintf(` class="language-%s"`, html.EscapeString(w.props.Language))
	}
	content := fmt.Sprintf("<pre><code%s>%s</code></pre>", class, html.EscapeString(w.props.Source))
	host.AppendChild(&html.Node{Type: html.RawNode, Data: content})
	return nil
}

func (w *codeSample) Destroy() {
	w.host = nil
}
