package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/texview/docview/internal/manifest"
)

const debounceDelay = 250 * time.Millisecond

// Watcher observes a directory of Markdown sources, converts changed files
// to HTML, and keeps the manifest current.
type Watcher struct {
	SourceDir    string
	ManifestPath string
	Converter    *Converter
	Log          *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer

	manifestMu sync.Mutex
}

func New(sourceDir, manifestPath string, conv *Converter, log *slog.Logger) *Watcher {
	return &Watcher{
		SourceDir:    sourceDir,
		ManifestPath: manifestPath,
		Converter:    conv,
		Log:          log,
		timers:       make(map[string]*time.Timer),
	}
}

// Run watches the source directory until the context is cancelled. Write
// and create events on Markdown files are debounced per file before
// conversion, since editors produce bursts of writes for a single save.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.SourceDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.SourceDir, err)
	}
	w.Log.Info("watching for changes", "dir", w.SourceDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if !isMarkdown(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceDelay, func() {
		if err := w.convertOne(ctx, path); err != nil {
			w.Log.Error("conversion failed", "source", path, "error", err)
		}
	})
}

// ConvertAll performs a single batch pass over every Markdown file in the
// source directory.
func (w *Watcher) ConvertAll(ctx context.Context) error {
	entries, err := os.ReadDir(w.SourceDir)
	if err != nil {
		return fmt.Errorf("read source dir: %w", err)
	}
	var failed int
	for _, e := range entries {
		if e.IsDir() || !isMarkdown(e.Name()) {
			continue
		}
		if err := w.convertOne(ctx, filepath.Join(w.SourceDir, e.Name())); err != nil {
			w.Log.Error("conversion failed", "source", e.Name(), "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d conversions failed", failed)
	}
	return nil
}

func (w *Watcher) convertOne(ctx context.Context, srcPath string) error {
	outFile, err := w.Converter.Convert(ctx, srcPath)
	if err != nil {
		return err
	}
	return w.updateManifest(manifest.Entry{
		File:        outFile,
		DisplayName: displayName(srcPath),
	})
}

// updateManifest adds or replaces the entry for one output file. Missing or
// unreadable manifests are rebuilt from scratch. Serialized, since debounce
// timers for different files may fire together.
func (w *Watcher) updateManifest(entry manifest.Entry) error {
	w.manifestMu.Lock()
	defer w.manifestMu.Unlock()
	m, err := manifest.Load(w.ManifestPath)
	if err != nil {
		m = &manifest.Manifest{OutputDir: w.Converter.OutputDir}
	}
	m.Add(entry)
	if err := w.Save(m); err != nil {
		return err
	}
	w.Log.Info("manifest updated", "file", entry.File, "display_name", entry.DisplayName)
	return nil
}

func (w *Watcher) Save(m *manifest.Manifest) error {
	return m.Save(w.ManifestPath)
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// displayName derives the manifest display name from the source's first
// top-level heading, falling back to the filename stem.
func displayName(srcPath string) string {
	fallback := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fallback
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			if title := strings.TrimSpace(line[2:]); title != "" {
				return title
			}
		}
	}
	return fallback
}
