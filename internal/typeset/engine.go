package typeset

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// RenderResult is the output of one typesetting pass. Results are replaced
// wholesale on every re-render, never patched.
type RenderResult struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
}

// Engine converts LaTeX math embedded in HTML into typeset output. The
// concrete engine behind this interface is swappable without touching the
// content pipeline.
type Engine interface {
	Initialize(ctx context.Context) error
	Render(ctx context.Context, documentLocation, htmlIn string, override *Config) (RenderResult, error)
	Reset()
	IsReady() bool
}

type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateInitializing
	stateReady
)

// processor turns HTML with embedded math into typeset HTML.
type processor interface {
	Process(htmlIn string) (string, error)
}

type processorFactory func(Config) processor

// Adapter owns the typesetting engine lifecycle and exposes the single
// render operation the pipeline needs. Engine failures are soft: Render logs
// the cause and returns an empty result instead of an error, so one broken
// document never takes the whole surface down.
type Adapter struct {
	base    Config
	fontURL string
	factory processorFactory
	log     *slog.Logger

	mu       sync.Mutex
	state    lifecycle
	initDone chan struct{}
	initErr  error
	in       processor        // built from the base config, reused across calls
	out      *outputProcessor // shared font/style state, read-only once built
}

func NewAdapter(base Config, fontURL string, log *slog.Logger) *Adapter {
	return &Adapter{
		base:    base,
		fontURL: fontURL,
		factory: func(cfg Config) processor { return newInputProcessor(cfg) },
		log:     log,
	}
}

// Initialize builds the input and output processors exactly once. Concurrent
// callers before completion await the in-flight initialization instead of
// constructing duplicate engine state.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case stateReady:
		a.mu.Unlock()
		return nil
	case stateInitializing:
		done := a.initDone
		a.mu.Unlock()
		select {
		case <-done:
			a.mu.Lock()
			err := a.initErr
			a.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.state = stateInitializing
	done := make(chan struct{})
	a.initDone = done
	a.mu.Unlock()

	in := a.factory(a.base)
	out := newOutputProcessor(a.fontURL)

	a.mu.Lock()
	defer a.mu.Unlock()
	defer close(done)
	if a.initDone != done {
		// Reset raced with this build; discard it rather than resurrecting
		// the state Reset just dropped.
		return nil
	}
	a.in = in
	a.out = out
	a.initErr = nil
	a.state = stateReady
	return nil
}

// IsReady reports whether the engine is initialized.
func (a *Adapter) IsReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == stateReady
}

// Reset drops all engine state. The next Render or Initialize rebuilds from
// scratch. Used for user-triggered retry after a failed render.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = stateUninitialized
	a.in = nil
	a.out = nil
	a.initDone = nil
	a.initErr = nil
}

// Render typesets math in htmlIn and rewrites fragment anchors to point at
// documentLocation. Blank input short-circuits without touching the engine.
// When an override config is supplied a fresh input processor is built for
// this call only, so one document's macros never leak into another's renders.
func (a *Adapter) Render(ctx context.Context, documentLocation, htmlIn string, override *Config) (RenderResult, error) {
	if strings.TrimSpace(htmlIn) == "" {
		return RenderResult{}, nil
	}
	if err := a.Initialize(ctx); err != nil {
		return RenderResult{}, err
	}

	a.mu.Lock()
	in := a.in
	out := a.out
	a.mu.Unlock()
	if in == nil || out == nil {
		// A Reset landed between initialization and this read; serve the
		// call with a one-off build.
		in = a.factory(a.base)
		out = newOutputProcessor(a.fontURL)
	}

	cfg := a.base
	if override != nil {
		cfg = Merge(a.base, override)
		in = a.factory(cfg)
	}

	typeset, err := in.Process(htmlIn)
	if err != nil {
		a.log.Error("typesetting failed", "location", documentLocation, "error", err)
		return RenderResult{}, nil
	}

	return RenderResult{
		HTML: rewriteAnchors(typeset, documentLocation),
		CSS:  out.Stylesheet(cfg),
	}, nil
}

var anchorRe = regexp.MustCompile(`href="[^"]*#([^"]*)"`)

// rewriteAnchors replaces every fragment hyperlink, whether bare ("#eq1") or
// carrying an origin ("https://old/doc#eq1"), with one rooted at location.
// The engine generates anchors without knowing where the document is served;
// left alone they break same-page navigation in a routed view.
func rewriteAnchors(htmlOut, location string) string {
	return anchorRe.ReplaceAllStringFunc(htmlOut, func(m string) string {
		frag := m[strings.IndexByte(m, '#')+1 : len(m)-1]
		return `href="` + location + `#` + frag + `"`
	})
}
