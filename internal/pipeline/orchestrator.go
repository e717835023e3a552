package pipeline

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/texview/docview/internal/expand"
	"github.com/texview/docview/internal/typeset"
)

// ErrEmptyRender reports a typesetting pass that produced no output for
// non-empty input. Empty output is a render failure, not "no math present".
var ErrEmptyRender = errors.New("typesetting produced no output")

// Options configures an Orchestrator for one render surface.
type Options struct {
	// Location is the document's final page location, used for anchor
	// rewriting and stylesheet scoping.
	Location string
	Surface  Surface
	Engine   typeset.Engine
	Expander *expand.Expander
	Styles   *typeset.StyleRegistry

	DynamicContent bool
	Debounce       time.Duration
	Logger         *slog.Logger
}

// Orchestrator sequences the content pipeline for one surface:
// parse, expand dynamic content, typeset, commit. Runs are serialized: a
// Process call issued while another is in flight queues behind it, so
// commits land on the surface in call order.
type Orchestrator struct {
	location string
	surface  Surface
	engine   typeset.Engine
	expander *expand.Expander
	styles   *typeset.StyleRegistry
	policy   *bluemonday.Policy
	dynamic  bool
	debounce time.Duration
	log      *slog.Logger

	runMu sync.Mutex // serializes pipeline runs

	mu         sync.Mutex // guards observable state
	state      State
	lastHash   string
	lastErr    error
	unitCount  int
	override   *typeset.Config
	onState    []func(State)
	onComplete []func()
	onError    []func(error)

	timerMu sync.Mutex
	timer   *time.Timer
}

func NewOrchestrator(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Orchestrator{
		location: opts.Location,
		surface:  opts.Surface,
		engine:   opts.Engine,
		expander: opts.Expander,
		styles:   opts.Styles,
		policy:   newPolicy(),
		dynamic:  opts.DynamicContent,
		debounce: debounce,
		log:      log,
		state:    StateIdle,
	}
}

// OnStateChange registers a callback fired on every state transition.
func (o *Orchestrator) OnStateChange(fn func(State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onState = append(o.onState, fn)
}

// OnComplete registers a callback fired after a successful pipeline run.
func (o *Orchestrator) OnComplete(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onComplete = append(o.onComplete, fn)
}

// OnError registers a callback fired with the causing error when a run fails.
func (o *Orchestrator) OnError(fn func(error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onError = append(o.onError, fn)
}

// State returns the current processing state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the error captured by the most recent failed run.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// UnitCount returns the number of dynamic units created by the last run.
func (o *Orchestrator) UnitCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unitCount
}

// SetOverride installs the document-level typesetting override for
// subsequent runs. Changing the override invalidates the processed-content
// guard, since the same content typesets differently under a new config.
func (o *Orchestrator) SetOverride(cfg *typeset.Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if reflect.DeepEqual(o.override, cfg) {
		return
	}
	o.override = cfg
	o.lastHash = ""
}

// Process runs the full pipeline on content. Blank content clears the
// surface and returns to idle without running any stage. Content identical
// to the last successfully processed content is deliberately skipped; a
// failed run leaves the guard untouched so retrying the same content is not
// treated as a no-op.
func (o *Orchestrator) Process(ctx context.Context, content string) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if strings.TrimSpace(content) == "" {
		o.expander.TeardownAll()
		o.surface.Clear()
		o.styles.Remove(o.location)
		o.mu.Lock()
		o.lastHash = ""
		o.unitCount = 0
		o.mu.Unlock()
		o.setState(StateIdle)
		return nil
	}

	hash := contentHash(content)
	o.mu.Lock()
	skip := hash == o.lastHash
	override := o.override
	o.mu.Unlock()
	if skip {
		return nil
	}

	o.setState(StateParsing)
	bodyHTML, err := ToHTML(content)
	if err != nil {
		return o.fail(err)
	}
	o.surface.Commit(o.policy.Sanitize(bodyHTML))

	unitCount := 0
	if o.dynamic {
		o.setState(StateExpanding)
		root, err := parseBody(bodyHTML)
		if err != nil {
			return o.fail(fmt.Errorf("parse expanded content: %w", err))
		}
		o.expander.TeardownAll()
		o.expander.Expand(root)
		unitCount = len(o.expander.Units())
		bodyHTML, err = renderBody(root)
		if err != nil {
			return o.fail(fmt.Errorf("render expanded content: %w", err))
		}
	}

	o.setState(StateTypesetting)
	result, err := o.engine.Render(ctx, o.location, bodyHTML, override)
	if err != nil {
		return o.fail(err)
	}
	if result.HTML == "" {
		return o.fail(ErrEmptyRender)
	}

	o.surface.Commit(o.policy.Sanitize(result.HTML))
	if result.CSS != "" {
		o.styles.Set(o.location, result.CSS)
		o.surface.SetStylesheet(result.CSS)
	}

	o.mu.Lock()
	o.lastHash = hash
	o.lastErr = nil
	o.unitCount = unitCount
	done := append([]func(){}, o.onComplete...)
	o.mu.Unlock()
	o.setState(StateComplete)
	for _, fn := range done {
		fn()
	}
	return nil
}

// DebouncedProcess schedules a Process call after a quiet period, cancelling
// any previously scheduled call. Only the last call within the window runs.
func (o *Orchestrator) DebouncedProcess(content string) {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.debounce, func() {
		if err := o.Process(context.Background(), content); err != nil {
			o.log.Error("deferred processing failed", "location", o.location, "error", err)
		}
	})
}

// Stop cancels any pending debounced call. In-flight runs are not
// interrupted; they complete on their own.
func (o *Orchestrator) Stop() {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	listeners := append([]func(State){}, o.onState...)
	o.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (o *Orchestrator) fail(err error) error {
	o.log.Error("pipeline failed", "location", o.location, "error", err)
	o.mu.Lock()
	o.lastErr = err
	listeners := append([]func(error){}, o.onError...)
	o.mu.Unlock()
	o.setState(StateError)
	for _, fn := range listeners {
		fn(err)
	}
	return err
}

func contentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h[:])
}

func parseBody(fragment string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}
	body := findBody(doc)
	if body == nil {
		return nil, errors.New("no body in parsed fragment")
	}
	return body, nil
}

func renderBody(body *html.Node) (string, error) {
	var sb strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
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
