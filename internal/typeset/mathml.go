package typeset

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"git.sr.ht/~mekyt/latex2mathml"
	"golang.org/x/net/html"
)

const mathmlNS = "http://www.w3.org/1998/Math/MathML"

// builtinPackages maps package names to the macros they provide. Enabling a
// package makes its macros available to every math run in the document.
var builtinPackages = map[string]map[string]string{
	"base": {
		"RR": `\mathbb{R}`,
		"NN": `\mathbb{N}`,
		"ZZ": `\mathbb{Z}`,
		"QQ": `\mathbb{Q}`,
		"CC": `\mathbb{C}`,
	},
	"ams": {
		"implies": `\Rightarrow`,
		"iff":     `\Leftrightarrow`,
		"to":      `\rightarrow`,
		"qed":     `\blacksquare`,
	},
	"physics": {
		"dd":   `\mathrm{d}`,
		"grad": `\nabla`,
		"veca": `\vec{a}`,
	},
}

var labelRe = regexp.MustCompile(`\\label\{([^}]*)\}`)
var refRe = regexp.MustCompile(`\\(?:eq)?ref\{([^}]*)\}`)

// inputProcessor scans HTML for LaTeX math runs and converts each one to
// MathML. A processor is built from one merged Config and is not safe to
// share between documents that carry different overrides.
type inputProcessor struct {
	cfg        Config
	macros     map[string]string
	macroNames []string // longest-first, for unambiguous expansion
}

func newInputProcessor(cfg Config) *inputProcessor {
	macros := make(map[string]string)
	enableAll := hasPackage(cfg.Packages, PackageAll)
	for name, set := range builtinPackages {
		if enableAll || hasPackage(cfg.Packages, name) {
			for k, v := range set {
				macros[k] = v
			}
		}
	}
	for k, v := range cfg.Macros {
		macros[k] = v
	}
	names := make([]string, 0, len(macros))
	for k := range macros {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return &inputProcessor{cfg: cfg, macros: macros, macroNames: names}
}

// Process parses the HTML, typesets every math run found in its text nodes,
// and renders the tree back to a string.
func (p *inputProcessor) Process(htmlIn string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlIn))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	body := findBody(doc)
	if body == nil {
		return "", fmt.Errorf("no body in parsed html")
	}

	eqCount := 0
	p.walk(body, &eqCount)

	var sb strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return sb.String(), nil
}

// walk replaces math-bearing text nodes in place. Code, preformatted and
// script content is left untouched.
func (p *inputProcessor) walk(n *html.Node, eqCount *int) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "code", "pre", "script", "style", "math":
			return
		}
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode {
			p.replaceTextNode(n, c, eqCount)
		} else {
			p.walk(c, eqCount)
		}
		c = next
	}
}

func (p *inputProcessor) replaceTextNode(parent, textNode *html.Node, eqCount *int) {
	segs := splitMath(textNode.Data)
	if len(segs) == 1 && segs[0].kind == segText && !refRe.MatchString(segs[0].body) {
		return
	}

	for _, seg := range segs {
		var node *html.Node
		switch seg.kind {
		case segText:
			if refRe.MatchString(seg.body) {
				node = &html.Node{Type: html.RawNode, Data: p.expandRefs(seg.body)}
			} else {
				node = &html.Node{Type: html.TextNode, Data: seg.body}
			}
		case segInline:
			node = &html.Node{Type: html.RawNode, Data: p.convertInline(seg.body)}
		case segDisplay:
			node = &html.Node{Type: html.RawNode, Data: p.convertDisplay(seg.body, eqCount)}
		}
		parent.InsertBefore(node, textNode)
	}
	parent.RemoveChild(textNode)
}

// expandRefs turns \ref{x} and \eqref{x} occurrences in plain text into
// fragment hyperlinks. The generated href knows nothing about the final page
// location; the adapter's anchor pass fixes that up.
func (p *inputProcessor) expandRefs(text string) string {
	return refRe.ReplaceAllStringFunc(html.EscapeString(text), func(m string) string {
		sub := refRe.FindStringSubmatch(m)
		if sub == nil {
			return m
		}
		name := sub[1]
		return `<a class="eq-ref" href="#` + name + `">(` + name + `)</a>`
	})
}

func (p *inputProcessor) convertInline(latex string) string {
	return latex2mathml.Convert(p.expandMacros(latex), mathmlNS, "inline", 0)
}

func (p *inputProcessor) convertDisplay(latex string, eqCount *int) string {
	label := ""
	if m := labelRe.FindStringSubmatch(latex); m != nil {
		label = m[1]
		latex = labelRe.ReplaceAllString(latex, "")
	}

	numbered := false
	switch p.cfg.Tags {
	case TagsAll:
		numbered = true
	case TagsAMS:
		numbered = label != ""
	}

	mathml := latex2mathml.Convert(p.expandMacros(latex), mathmlNS, "block", 0)

	var sb strings.Builder
	sb.WriteString(`<div class="math-display"`)
	if label != "" {
		sb.WriteString(` id="` + html.EscapeString(label) + `"`)
	}
	sb.WriteString(`>`)
	sb.WriteString(mathml)
	if numbered {
		*eqCount++
		sb.WriteString(`<span class="math-tag">(` + p.tagText(*eqCount) + `)</span>`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

func (p *inputProcessor) tagText(n int) string {
	if p.cfg.Section > 0 {
		return fmt.Sprintf("%d.%d", p.cfg.Section, n)
	}
	return fmt.Sprintf("%d", n)
}

// expandMacros substitutes \name occurrences in a single pass. A macro only
// matches when the following character cannot extend the command name, so
// \to never fires inside \top.
func (p *inputProcessor) expandMacros(latex string) string {
	var sb strings.Builder
	for i := 0; i < len(latex); {
		if latex[i] != '\\' {
			sb.WriteByte(latex[i])
			i++
			continue
		}
		expanded := false
		for _, name := range p.macroNames {
			if !strings.HasPrefix(latex[i+1:], name) {
				continue
			}
			end := i + 1 + len(name)
			if end < len(latex) && isCommandLetter(latex[end]) {
				continue
			}
			sb.WriteString(p.macros[name])
			i = end
			expanded = true
			break
		}
		if !expanded {
			sb.WriteByte(latex[i])
			i++
		}
	}
	return sb.String()
}

func isCommandLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

type segKind int

const (
	segText segKind = iota
	segInline
	segDisplay
)

type segment struct {
	kind segKind
	body string
}

// splitMath splits text into plain and math segments. Recognized delimiters:
// $$...$$ and \[...\] for display math, $...$ and \(...\) for inline math.
// Unterminated delimiters are kept as plain text.
func splitMath(text string) []segment {
	var segs []segment
	var plain strings.Builder

	flush := func() {
		if plain.Len() > 0 {
			segs = append(segs, segment{kind: segText, body: plain.String()})
			plain.Reset()
		}
	}

	i := 0
	for i < len(text) {
		switch {
		case strings.HasPrefix(text[i:], `\$`):
			plain.WriteString("$")
			i += 2
		case strings.HasPrefix(text[i:], "$$"):
			end := strings.Index(text[i+2:], "$$")
			if end < 0 {
				plain.WriteString(text[i:])
				i = len(text)
				break
			}
			flush()
			segs = append(segs, segment{kind: segDisplay, body: text[i+2 : i+2+end]})
			i += 2 + end + 2
		case strings.HasPrefix(text[i:], `\[`):
			end := strings.Index(text[i+2:], `\]`)
			if end < 0 {
				plain.WriteString(text[i:])
				i = len(text)
				break
			}
			flush()
			segs = append(segs, segment{kind: segDisplay, body: text[i+2 : i+2+end]})
			i += 2 + end + 2
		case strings.HasPrefix(text[i:], `\(`):
			end := strings.Index(text[i+2:], `\)`)
			if end < 0 {
				plain.WriteString(text[i:])
				i = len(text)
				break
			}
			flush()
			segs = append(segs, segment{kind: segInline, body: text[i+2 : i+2+end]})
			i += 2 + end + 2
		case text[i] == '$':
			end := strings.IndexByte(text[i+1:], '$')
			if end < 0 {
				plain.WriteString(text[i:])
				i = len(text)
				break
			}
			flush()
			segs = append(segs, segment{kind: segInline, body: text[i+1 : i+1+end]})
			i += 1 + end + 1
		default:
			plain.WriteByte(text[i])
			i++
		}
	}
	flush()

	if segs == nil {
		segs = []segment{{kind: segText, body: text}}
	}
	return segs
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// outputProcessor holds the font and layout state shared by every render.
// It is expensive to conceptually rebuild (the font resource is remote), so
// one instance is shared across all surfaces; it is read-only after creation.
type outputProcessor struct {
	fontURL string
}

func newOutputProcessor(fontURL string) *outputProcessor {
	return &outputProcessor{fontURL: fontURL}
}

// Stylesheet builds the per-render CSS for typeset output.
func (o *outputProcessor) Stylesheet(cfg Config) string {
	side := cfg.TagSide
	if side != "left" {
		side = "right"
	}
	indent := cfg.TagIndent
	if indent == "" {
		indent = "0.8em"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "@font-face { font-family: \"Latin Modern Math\"; src: url(%q); }\n", o.fontURL)
	sb.WriteString("math { font-family: \"Latin Modern Math\", math; }\n")
	sb.WriteString(".math-display { position: relative; text-align: center; margin: 1em 0; }\n")
	fmt.Fprintf(&sb, ".math-tag { position: absolute; %s: %s; top: 50%%; transform: translateY(-50%%); }\n", side, indent)
	sb.WriteString("a.eq-ref { text-decoration: none; }\n")
	return sb.String()
}
