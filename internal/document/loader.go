package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// LoadError wraps a failed fetch with its original cause.
type LoadError struct {
	Path  string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Path, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Loader fetches raw document content over HTTP or from the local document
// directory, and extracts metadata from it.
type Loader struct {
	client   *resty.Client
	baseDir  string
	maxBytes int64
	log      *slog.Logger
}

func NewLoader(baseDir string, timeout time.Duration, maxBytes int64, log *slog.Logger) *Loader {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "text/html, text/markdown, text/plain")
	return &Loader{client: client, baseDir: baseDir, maxBytes: maxBytes, log: log}
}

// Load fetches the document at path, extracts its metadata, and returns an
// immutable Document whose Body has any metadata block stripped. Fetch
// failures surface as a LoadError carrying the original cause.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	raw, err := l.fetch(ctx, path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}

	meta, body := ExtractMetadata(raw)
	if meta == nil {
		l.log.Debug("document carries no metadata", "path", path)
	}

	return &Document{
		Path:       path,
		RawContent: raw,
		Metadata:   meta,
		Body:       body,
	}, nil
}

func (l *Loader) fetch(ctx context.Context, path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		resp, err := l.client.R().SetContext(ctx).Get(path)
		if err != nil {
			return "", err
		}
		if resp.IsError() {
			return "", fmt.Errorf("status %d", resp.StatusCode())
		}
		return l.bounded(resp.Body())
	}

	full := filepath.Join(l.baseDir, filepath.Clean("/"+path))
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return l.bounded(data)
}

func (l *Loader) bounded(data []byte) (string, error) {
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return "", fmt.Errorf("document exceeds %d byte limit", l.maxBytes)
	}
	return string(data), nil
}
