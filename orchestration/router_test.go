package orchestration

import (
	"testing"

	"github.com/halcyonlabs/patternflow/core"
)

const overviewPatternDoc = `{
  "id": "portfolio_overview",
  "version": "1.0.0",
  "category": "performance",
  "description": "portfolio performance and allocation overview",
  "tags": ["portfolio", "overview", "performance"],
  "inputs": [],
  "outputs": {},
  "steps": []
}`

const macroPatternDoc = `{
  "id": "macro_regime",
  "version": "1.0.0",
  "category": "macro",
  "description": "detect the current macro regime and cycle position",
  "tags": ["macro", "regime", "cycle"],
  "inputs": [],
  "outputs": {},
  "steps": []
}`

func routerFixture(t *testing.T) *Loader {
	t.Helper()
	dir := t.TempDir()
	writePattern(t, dir, "overview.json", overviewPatternDoc)
	writePattern(t, dir, "macro.json", macroPatternDoc)

	l := NewLoader(dir, 100, allCaps{}, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return l
}

func TestKeywordRouterRoutes(t *testing.T) {
	router := NewKeywordRouter(routerFixture(t), 3, nil)

	id, err := router.Route("show me my portfolio performance overview")
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if id != "portfolio_overview" {
		t.Errorf("routed to %q, want portfolio_overview", id)
	}

	id, err = router.Route("what macro regime are we in")
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if id != "macro_regime" {
		t.Errorf("routed to %q, want macro_regime", id)
	}
}

func TestKeywordRouterUnresolvedIntent(t *testing.T) {
	router := NewKeywordRouter(routerFixture(t), 3, nil)

	_, err := router.Route("bake a chocolate cake")
	if core.KindOf(err) != core.KindUnresolvedIntent {
		t.Fatalf("expected UnresolvedIntent, got %v", err)
	}
}

func TestKeywordRouterDeterministicTieBreak(t *testing.T) {
	router := NewKeywordRouter(routerFixture(t), 1, nil)

	// A query with no stronger signal for either pattern must always pick
	// the same id.
	first, err := router.Route("performance cycle")
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := router.Route("performance cycle")
		if err != nil || again != first {
			t.Fatalf("routing is not deterministic: %q vs %q (%v)", first, again, err)
		}
	}
}
