package document

import (
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/texview/docview/internal/typeset"
)

// Metadata is the structured record a document can carry, either in a
// METADATA comment block, a leading front-matter block, or its head elements.
type Metadata struct {
	Title       string `json:"title" yaml:"title"`
	Author      string `json:"author" yaml:"author"`
	Date        string `json:"date" yaml:"date"`
	Section     int    `json:"section" yaml:"section"`
	Description string `json:"description" yaml:"description"`

	// Typesetting overrides.
	Packages  []string          `json:"packages" yaml:"packages"`
	Macros    map[string]string `json:"macros" yaml:"macros"`
	Tags      string            `json:"tags" yaml:"tags"`
	TagSide   string            `json:"tagSide" yaml:"tagSide"`
	TagIndent string            `json:"tagIndent" yaml:"tagIndent"`
}

// TypesetOverride returns the document's typesetting override, or nil when
// the metadata carries none.
func (m *Metadata) TypesetOverride() *typeset.Config {
	if m == nil {
		return nil
	}
	if len(m.Packages) == 0 && len(m.Macros) == 0 && m.Tags == "" &&
		m.TagSide == "" && m.TagIndent == "" && m.Section == 0 {
		return nil
	}
	return &typeset.Config{
		Packages:  m.Packages,
		Macros:    m.Macros,
		Tags:      typeset.Tags(m.Tags),
		TagSide:   m.TagSide,
		TagIndent: m.TagIndent,
		Section:   m.Section,
	}
}

const (
	metadataPrefix    = "<!-- METADATA:"
	frontMatterMarker = "---"

	// metadataScanWindow bounds how far into a document the comment form is
	// searched for, so a block quoted deep in body prose is not mistaken for
	// the document's own metadata.
	metadataScanWindow = 1024
)

// ExtractMetadata finds the document's metadata and returns it along with the
// displayable content. Precedence: METADATA comment block, then front matter,
// then head elements; the first matching form wins and forms are never
// merged. Comment and front-matter blocks are stripped from the content,
// head metadata lives outside the body and needs no stripping. A malformed
// block degrades to no metadata with the content unaffected.
func ExtractMetadata(raw string) (*Metadata, string) {
	if meta, body, ok := extractCommentBlock(raw); ok {
		return meta, body
	}
	if meta, body, ok := extractFrontMatter(raw); ok {
		return meta, body
	}
	if meta := scanHead(raw); meta != nil {
		return meta, raw
	}
	return nil, raw
}

func extractCommentBlock(raw string) (*Metadata, string, bool) {
	head := raw
	if len(head) > metadataScanWindow {
		head = head[:metadataScanWindow]
	}
	start := strings.Index(head, metadataPrefix)
	if start < 0 {
		return nil, "", false
	}
	rest := raw[start+len(metadataPrefix):]
	end := strings.Index(rest, "-->")
	if end < 0 {
		return nil, "", false
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &meta); err != nil {
		return nil, "", false
	}
	body := raw[:start] + rest[end+len("-->"):]
	return &meta, body, true
}

func extractFrontMatter(raw string) (*Metadata, string, bool) {
	trimmed := strings.TrimLeft(raw, "\n\r")
	if !strings.HasPrefix(trimmed, frontMatterMarker+"\n") {
		return nil, "", false
	}
	rest := trimmed[len(frontMatterMarker)+1:]
	end := frontMatterEnd(rest)
	if end < 0 {
		return nil, "", false
	}

	var meta Metadata
	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return nil, "", false
	}
	body := rest[end+1+len(frontMatterMarker):]
	body = strings.TrimPrefix(body, "\r")
	body = strings.TrimPrefix(body, "\n")
	return &meta, body, true
}

// frontMatterEnd locates the newline preceding the terminator, which must be
// a line consisting of exactly "---". A horizontal rule like "----" or any
// line merely starting with the marker does not terminate the block.
func frontMatterEnd(rest string) int {
	for search := 0; ; {
		i := strings.Index(rest[search:], "\n"+frontMatterMarker)
		if i < 0 {
			return -1
		}
		pos := search + i
		tail := rest[pos+1+len(frontMatterMarker):]
		if tail == "" || tail[0] == '\n' || tail[0] == '\r' {
			return pos
		}
		search = pos + 1
	}
}

// scanHead pulls metadata from standard head elements of an HTML document:
// the title element and named meta elements.
func scanHead(raw string) *Metadata {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil
	}

	meta := &Metadata{}
	found := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if t := textContent(n); t != "" {
					meta.Title = t
					found = true
				}
			case "meta":
				name := attrValue(n, "name")
				content := attrValue(n, "content")
				if content == "" {
					break
				}
				switch name {
				case "author":
					meta.Author = content
					found = true
				case "date":
					meta.Date = content
					found = true
				case "description":
					meta.Description = content
					found = true
				case "section":
					if sec, err := strconv.Atoi(content); err == nil {
						meta.Section = sec
						found = true
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if !found {
		return nil
	}
	return meta
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(sb.String())
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
