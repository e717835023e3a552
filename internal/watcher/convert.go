package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Converter invokes the external document-conversion tool for one Markdown
// source file, producing an HTML file in the output directory.
type Converter struct {
	// Command is the converter binary, e.g. "pandoc".
	Command string
	// Args is the argv template. The placeholders {input}, {output} and
	// {bib} are substituted per file; arguments referencing {bib} are
	// dropped when no bibliography is present alongside the source.
	Args      []string
	OutputDir string
	Log       *slog.Logger

	// run executes the assembled command; replaceable in tests.
	run func(ctx context.Context, name string, args []string) error
}

// DefaultArgs is a pandoc-style argv template.
var DefaultArgs = []string{"-s", "--mathjax", "--citeproc", "--bibliography", "{bib}", "-o", "{output}", "{input}"}

func NewConverter(command string, args []string, outputDir string, log *slog.Logger) *Converter {
	if len(args) == 0 {
		args = DefaultArgs
	}
	return &Converter{
		Command:   command,
		Args:      args,
		OutputDir: outputDir,
		Log:       log,
		run: func(ctx context.Context, name string, args []string) error {
			out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
}

// Convert runs the conversion tool on srcPath and returns the produced
// output filename (relative to OutputDir).
func (c *Converter) Convert(ctx context.Context, srcPath string) (string, error) {
	outFile := OutputName(srcPath)
	outPath := filepath.Join(c.OutputDir, outFile)

	bib := bibliographyFor(srcPath)
	args := expandArgs(c.Args, srcPath, outPath, bib)

	c.Log.Info("converting document", "source", srcPath, "output", outPath, "bibliography", bib != "")
	if err := c.run(ctx, c.Command, args); err != nil {
		return "", fmt.Errorf("convert %s: %w", srcPath, err)
	}
	return outFile, nil
}

// OutputName maps a Markdown source filename to its HTML output filename.
func OutputName(srcPath string) string {
	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".html"
}

// bibliographyFor returns the path of a sibling .bib file, or "".
func bibliographyFor(srcPath string) string {
	ext := filepath.Ext(srcPath)
	bib := strings.TrimSuffix(srcPath, ext) + ".bib"
	if _, err := os.Stat(bib); err != nil {
		return ""
	}
	return bib
}

// expandArgs substitutes template placeholders. When bib is empty, each
// argument containing {bib} is dropped along with an immediately preceding
// flag, so "--bibliography {bib}" disappears as a pair.
func expandArgs(tmpl []string, input, output, bib string) []string {
	out := make([]string, 0, len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		arg := tmpl[i]
		if strings.Contains(arg, "{bib}") {
			if bib == "" {
				if len(out) > 0 && strings.HasPrefix(out[len(out)-1], "-") {
					out = out[:len(out)-1]
				}
				continue
			}
			arg = strings.ReplaceAll(arg, "{bib}", bib)
		}
		arg = strings.ReplaceAll(arg, "{input}", input)
		arg = strings.ReplaceAll(arg, "{output}", output)
		out = append(out, arg)
	}
	return out
}
