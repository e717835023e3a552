package typeset

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInputProcessor_TypesetsInlineMath(t *testing.T) {
	p := newInputProcessor(Config{})
	out, err := p.Process(`<p>Let $x$ be real.</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "<math") {
		t.Errorf("expected MathML output, got: %s", out)
	}
	if !strings.Contains(out, "Let ") || !strings.Contains(out, " be real.") {
		t.Errorf("expected surrounding text preserved, got: %s", out)
	}
}

func TestInputProcessor_NumbersDisplayEquations(t *testing.T) {
	p := newInputProcessor(Config{Tags: TagsAll, Section: 2})
	out, err := p.Process(`<p>$$E = mc^2$$</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "math-display") {
		t.Errorf("expected display wrapper, got: %s", out)
	}
	if !strings.Contains(out, "(2.1)") {
		t.Errorf("expected section-prefixed equation number, got: %s", out)
	}
}

func TestInputProcessor_AMSNumbersOnlyLabeled(t *testing.T) {
	p := newInputProcessor(Config{Tags: TagsAMS})
	out, err := p.Process(`<p>$$a = b \label{eq:ab}$$ and $$c = d$$</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `id="eq:ab"`) {
		t.Errorf("expected label anchor, got: %s", out)
	}
	if strings.Count(out, "math-tag") != 1 {
		t.Errorf("expected exactly one numbered equation, got: %s", out)
	}
}

func TestInputProcessor_RefsBecomeFragmentLinks(t *testing.T) {
	p := newInputProcessor(Config{})
	out, err := p.Process(`<p>See \eqref{eq:ab} above.</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `href="#eq:ab"`) {
		t.Errorf("expected fragment link, got: %s", out)
	}
}

func TestInputProcessor_CodeContentUntouched(t *testing.T) {
	p := newInputProcessor(Config{})
	in := `<pre><code>price = $x$</code></pre>`
	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "<math") {
		t.Errorf("math inside code must not be typeset, got: %s", out)
	}
}

func TestAdapter_EndToEndAnchorRewrite(t *testing.T) {
	a := NewAdapter(Config{Tags: TagsAMS}, "https://fonts.example/lm.woff2", slog.Default())

	in := `<p>$$a = b \label{eq:ab}$$ See \eqref{eq:ab}.</p>`
	res, err := a.Render(context.Background(), "https://x/doc", in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.HTML, `href="https://x/doc#eq:ab"`) {
		t.Errorf("expected rewritten anchor, got: %s", res.HTML)
	}
	if !strings.Contains(res.CSS, "fonts.example") {
		t.Errorf("expected font reference in stylesheet, got: %s", res.CSS)
	}
}
