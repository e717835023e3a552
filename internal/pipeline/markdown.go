package pipeline

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/yuin/goldmark"
	ghtml "github.com/yuin/goldmark/renderer/html"
)

// markdown is the restricted document conversion used by the parsing stage:
// headings, emphasis, inline code, lists and paragraphs. Raw HTML passes
// through unchanged. The result is sanitized before it reaches any surface.
var markdown = goldmark.New(
	goldmark.WithRendererOptions(ghtml.WithUnsafe()),
)

// The placeholder tag is not on CommonMark's known-block-tag list, so a
// placeholder standing on its own line is treated as inline HTML and comes
// back wrapped in a paragraph. The container that later replaces it is a
// div, which must not be nested inside a <p>, so such paragraphs are
// unwrapped after conversion.
var wrappedPlaceholder = regexp.MustCompile(`(?s)<p>(<doc-widget\b.*?</doc-widget>)</p>`)

// ToHTML converts document markup to HTML.
func ToHTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("convert markup: %w", err)
	}
	return wrappedPlaceholder.ReplaceAllString(buf.String(), "$1"), nil
}
