package typeset

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

type fakeProcessor struct {
	mu    sync.Mutex
	calls int
	out   string
	err   error
}

func (f *fakeProcessor) Process(htmlIn string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.out == "" {
		return htmlIn, f.err
	}
	return f.out, f.err
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// testAdapter wires an adapter to a fake processor and counts how many
// processors get built.
func testAdapter(t *testing.T, proc *fakeProcessor) (*Adapter, *int) {
	t.Helper()
	a := NewAdapter(Config{Packages: []string{"base"}}, "https://fonts.example/lm.woff2", slog.Default())
	built := 0
	a.factory = func(Config) processor {
		built++
		return proc
	}
	return a, &built
}

func TestAdapter_EmptyInputShortCircuits(t *testing.T) {
	proc := &fakeProcessor{}
	a, _ := testAdapter(t, proc)

	res, err := a.Render(context.Background(), "https://x/doc", "   \n\t", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.HTML != "" || res.CSS != "" {
		t.Errorf("expected empty result, got %+v", res)
	}
	if proc.callCount() != 0 {
		t.Errorf("expected engine not to be invoked, got %d calls", proc.callCount())
	}
	if a.IsReady() {
		t.Error("expected adapter to stay uninitialized on short-circuit")
	}
}

func TestAdapter_RenderInitializesOnDemand(t *testing.T) {
	proc := &fakeProcessor{out: "<p>done</p>"}
	a, _ := testAdapter(t, proc)

	if a.IsReady() {
		t.Fatal("expected adapter to start uninitialized")
	}
	res, err := a.Render(context.Background(), "https://x/doc", "<p>$x$</p>", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.IsReady() {
		t.Error("expected adapter to be ready after render")
	}
	if res.HTML != "<p>done</p>" {
		t.Errorf("unexpected html: %q", res.HTML)
	}
	if !strings.Contains(res.CSS, "fonts.example") {
		t.Errorf("expected stylesheet to reference the font location, got %q", res.CSS)
	}
}

func TestAdapter_ConcurrentInitializeBuildsOnce(t *testing.T) {
	proc := &fakeProcessor{}
	a, built := testAdapter(t, proc)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Initialize(context.Background()); err != nil {
				t.Errorf("initialize: %v", err)
			}
		}()
	}
	wg.Wait()

	if *built != 1 {
		t.Errorf("expected exactly one processor build, got %d", *built)
	}
}

func TestAdapter_EngineFailureIsSoft(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("engine exploded")}
	a, _ := testAdapter(t, proc)

	res, err := a.Render(context.Background(), "https://x/doc", "<p>$x$</p>", nil)
	if err != nil {
		t.Fatalf("expected soft failure, got error: %v", err)
	}
	if res.HTML != "" || res.CSS != "" {
		t.Errorf("expected empty result on engine failure, got %+v", res)
	}
}

func TestAdapter_OverrideBuildsFreshProcessorPerCall(t *testing.T) {
	proc := &fakeProcessor{out: "<p>x</p>"}
	a, built := testAdapter(t, proc)

	ctx := context.Background()
	if _, err := a.Render(ctx, "https://x/doc", "<p>a</p>", nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	base := *built

	override := &Config{Macros: map[string]string{"foo": "bar"}}
	for i := 0; i < 3; i++ {
		if _, err := a.Render(ctx, "https://x/doc", "<p>a</p>", override); err != nil {
			t.Fatalf("render with override: %v", err)
		}
	}
	if *built != base+3 {
		t.Errorf("expected 3 fresh processors for override renders, got %d", *built-base)
	}

	// No override reuses the singleton.
	if _, err := a.Render(ctx, "https://x/doc", "<p>a</p>", nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if *built != base+3 {
		t.Errorf("expected no new processor without override, got %d builds", *built)
	}
}

func TestAdapter_ResetDuringInitializeIsSafe(t *testing.T) {
	proc := &fakeProcessor{}
	a, _ := testAdapter(t, proc)

	entered := make(chan struct{})
	release := make(chan struct{})
	a.factory = func(Config) processor {
		close(entered)
		<-release
		return proc
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Initialize(context.Background()) }()

	<-entered
	a.Reset()
	close(release)

	if err := <-errCh; err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if a.IsReady() {
		t.Error("expected the reset to win over the in-flight build")
	}

	// The adapter must stay fully usable afterwards.
	a.factory = func(Config) processor { return proc }
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	if !a.IsReady() {
		t.Error("expected ready after re-initialize")
	}
}

func TestAdapter_RenderSurvivesResetDuringInitialize(t *testing.T) {
	proc := &fakeProcessor{out: "<p>ok</p>"}
	a, _ := testAdapter(t, proc)

	entered := make(chan struct{})
	release := make(chan struct{})
	first := true
	a.factory = func(Config) processor {
		if first {
			first = false
			close(entered)
			<-release
		}
		return proc
	}

	go func() {
		<-entered
		a.Reset()
		close(release)
	}()

	res, err := a.Render(context.Background(), "https://x/doc", "<p>$x$</p>", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.HTML != "<p>ok</p>" {
		t.Errorf("expected render to complete despite the reset, got %+v", res)
	}
}

func TestAdapter_ResetDropsState(t *testing.T) {
	proc := &fakeProcessor{}
	a, built := testAdapter(t, proc)

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	a.Reset()
	if a.IsReady() {
		t.Error("expected adapter uninitialized after reset")
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	if *built != 2 {
		t.Errorf("expected rebuild after reset, got %d builds", *built)
	}
}

func TestRewriteAnchors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare fragment",
			in:   `<a href="#eq1">(1)</a>`,
			want: `<a href="https://x/doc#eq1">(1)</a>`,
		},
		{
			name: "qualified origin is stripped and replaced",
			in:   `<a href="https://old/doc#eq1">(1)</a>`,
			want: `<a href="https://x/doc#eq1">(1)</a>`,
		},
		{
			name: "non-fragment links untouched",
			in:   `<a href="https://elsewhere/page">link</a>`,
			want: `<a href="https://elsewhere/page">link</a>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewriteAnchors(tt.in, "https://x/doc")
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSplitMath(t *testing.T) {
	segs := splitMath(`before $a+b$ middle $$c=d$$ after`)
	want := []segment{
		{segText, "before "},
		{segInline, "a+b"},
		{segText, " middle "},
		{segDisplay, "c=d"},
		{segText, " after"},
	}
	if len(segs) != len(want) {
		t.Fatalf("expected %d segments, got %d: %+v", len(want), len(segs), segs)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Errorf("segment %d: expected %+v, got %+v", i, want[i], segs[i])
		}
	}
}

func TestSplitMath_UnterminatedStaysText(t *testing.T) {
	segs := splitMath(`costs $5 at most`)
	if len(segs) != 1 || segs[0].kind != segText {
		t.Fatalf("expected single text segment, got %+v", segs)
	}
	if segs[0].body != "costs $5 at most" {
		t.Errorf("unexpected body %q", segs[0].body)
	}
}

func TestSplitMath_EscapedDollar(t *testing.T) {
	segs := splitMath(`pay \$5 now`)
	if len(segs) != 1 || segs[0].body != "pay $5 now" {
		t.Fatalf("expected escaped dollar as text, got %+v", segs)
	}
}

func TestInputProcessor_MacroExpansion(t *testing.T) {
	p := newInputProcessor(Config{
		Packages: []string{"base"},
		Macros:   map[string]string{"half": `\frac{1}{2}`},
	})
	got := p.expandMacros(`\half + \RR`)
	want := `\frac{1}{2} + \mathbb{R}`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestInputProcessor_MacroExpansionRespectsNameBoundaries(t *testing.T) {
	p := newInputProcessor(Config{Packages: []string{"ams"}})

	tests := []struct {
		in   string
		want string
	}{
		{`\top + \iff`, `\top + \Leftrightarrow`},
		{`\iffalse x \fi`, `\iffalse x \fi`},
		{`x \to y`, `x \rightarrow y`},
		{`\to\to`, `\rightarrow\rightarrow`},
		{`a \to`, `a \rightarrow`},
	}
	for _, tt := range tests {
		if got := p.expandMacros(tt.in); got != tt.want {
			t.Errorf("expandMacros(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestInputProcessor_AllEnablesEveryPackage(t *testing.T) {
	p := newInputProcessor(Config{Packages: []string{PackageAll}})
	for _, name := range []string{"RR", "implies", "grad"} {
		if _, ok := p.macros[name]; !ok {
			t.Errorf("expected macro %q to be available", name)
		}
	}
}

func TestStyleRegistry_OneSheetPerSurface(t *testing.T) {
	r := NewStyleRegistry()
	r.Set("a", "first")
	r.Set("a", "second")
	r.Set("b", "other")

	if got := r.Get("a"); got != "second" {
		t.Errorf("expected replacement sheet, got %q", got)
	}
	if got := r.Get("b"); got != "other" {
		t.Errorf("expected independent surface sheet, got %q", got)
	}
	r.Remove("a")
	if got := r.Get("a"); got != "" {
		t.Errorf("expected removed sheet, got %q", got)
	}
	r.Remove("a") // safe when absent
}
