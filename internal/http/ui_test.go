package http

import (
	"net/http"
	"strings"
	"testing"

	"go-avocado-analytics-ui/internal/dashboard"
)

func TestDashboardPage_RendersEveryWidget(t *testing.T) {
	s := newTestServer(t, testConfig())
	rr := do(t, s.Handler(), http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Fatalf("unexpected content type %q", got)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"<title>" + dashboard.PageTitle + "</title>",
		"🥑",
		`class="header-title">Avocado Analytics</h1>`,
		`id="region-filter"`,
		`id="type-filter"`,
		`<option value="Madrid" selected>`,
		`<option value="Big" selected>`,
		`id="price-chart"`,
		`id="volume-chart"`,
		`id="heatmap"`,
		`id="hitmap"`,
		`id="confusion-matrix"`,
		`id="bars"`,
		`id="textarea-example"`,
		`Here some text</textarea>`,
		`id="minibars"`,
		`id="progress"`,
		"plotly",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected page to contain %q", want)
		}
	}

	if strings.Count(body, "data-figure=") != len(dashboard.StaticFigures()) {
		t.Fatalf("expected one embedded figure per static chart, got %d", strings.Count(body, "data-figure="))
	}
	if !strings.Contains(body, `"every_ms":20`) {
		t.Fatalf("expected client config with the progress period")
	}
}

func TestDashboardPage_CardOrder(t *testing.T) {
	s := newTestServer(t, testConfig())
	body := do(t, s.Handler(), http.MethodGet, "/", "").Body.String()

	last := -1
	for _, id := range []string{"price-chart", "volume-chart", "heatmap", "hitmap", "confusion-matrix", "bars", "textarea-example", "minibars", "progress"} {
		i := strings.Index(body, `id="`+id+`"`)
		if i < last {
			t.Fatalf("%s rendered out of order", id)
		}
		last = i
	}
}

func TestDashboardPage_CachePolicy(t *testing.T) {
	s := newTestServer(t, testConfig())
	if got := do(t, s.Handler(), http.MethodGet, "/", "").Header().Get("Cache-Control"); !strings.Contains(got, "max-age") {
		t.Fatalf("expected cacheable page, got %q", got)
	}

	cfg := testConfig()
	cfg.Debug = true
	debug := newTestServer(t, cfg)
	if got := do(t, debug.Handler(), http.MethodGet, "/", "").Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store in debug, got %q", got)
	}
}

func TestDashboardPage_UnknownPath(t *testing.T) {
	s := newTestServer(t, testConfig())
	if rr := do(t, s.Handler(), http.MethodGet, "/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
	if rr := do(t, s.Handler(), http.MethodGet, "/favicon.ico", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
}
