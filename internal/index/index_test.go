package index_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/index"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep503"
	"github.com/nixpy/pylock/internal/pep508"
)

func TestURLShortCircuit(t *testing.T) {
	p := index.URLShortCircuit{Inner: index.Combined{}}
	dists, err := p.FindDistributions(context.Background(), pep508.Requirement{Name: "foo", URL: "https://example.com/foo.tar.gz"})
	if err != nil {
		t.Fatalf("FindDistributions returned error: %v", err)
	}
	if len(dists) != 1 {
		t.Fatalf("len(dists) = %d, want 1", len(dists))
	}
	if dists[0].URL != "https://example.com/foo.tar.gz" {
		t.Errorf("dists[0].URL = %q, want %q", dists[0].URL, "https://example.com/foo.tar.gz")
	}
}

func TestCombinedFirstHit(t *testing.T) {
	empty := stubProvider{}
	nonEmpty := stubProvider{dists: []distfile.Distribution{{URL: "https://example.com/pkg-1.0.0.tar.gz"}}}
	p := index.Combined{Providers: []index.Provider{empty, nonEmpty}, Mode: index.FirstHit}
	dists, err := p.FindDistributions(context.Background(), pep508.Requirement{Name: "pkg"})
	if err != nil {
		t.Fatalf("FindDistributions returned error: %v", err)
	}
	if len(dists) != 1 {
		t.Fatalf("len(dists) = %d, want 1", len(dists))
	}
}

func TestCombinedUnion(t *testing.T) {
	a := stubProvider{dists: []distfile.Distribution{{URL: "https://example.com/pkg-1.0.0.tar.gz"}}}
	b := stubProvider{dists: []distfile.Distribution{{URL: "https://example.com/pkg-2.0.0.tar.gz"}}}
	p := index.Combined{Providers: []index.Provider{a, b}, Mode: index.Union}
	dists, err := p.FindDistributions(context.Background(), pep508.Requirement{Name: "pkg"})
	if err != nil {
		t.Fatalf("FindDistributions returned error: %v", err)
	}
	if len(dists) != 2 {
		t.Fatalf("len(dists) = %d, want 2", len(dists))
	}
}

// TestCombinedUnionLocalShadowsNetwork exercises the local_only rule from
// distributions.py:101-117: once any result is a file:// distribution,
// every non-local result for that name is discarded.
func TestCombinedUnionLocalShadowsNetwork(t *testing.T) {
	network := stubProvider{dists: []distfile.Distribution{
		{URL: "https://example.com/pkg-1.0.0.tar.gz"},
		{URL: "https://example.com/pkg-2.0.0.tar.gz"},
	}}
	local := stubProvider{dists: []distfile.Distribution{
		{URL: "file:///tmp/pkg-9.0.0"},
	}}
	p := index.Combined{Providers: []index.Provider{network, local}, Mode: index.Union}
	dists, err := p.FindDistributions(context.Background(), pep508.Requirement{Name: "pkg"})
	if err != nil {
		t.Fatalf("FindDistributions returned error: %v", err)
	}
	if len(dists) != 1 {
		t.Fatalf("len(dists) = %d, want 1 (local-only shadow), got %v", len(dists), dists)
	}
	if !dists[0].Local() {
		t.Errorf("dists[0] = %+v, want the local distribution", dists[0])
	}
}

// TestCombinedFirstHitLocalShadowsNetworkWithinOneProvider exercises the
// same rule when a single provider's own result mixes schemes, which
// FirstHit mode returns without consulting any other provider.
func TestCombinedFirstHitLocalShadowsNetworkWithinOneProvider(t *testing.T) {
	mixed := stubProvider{dists: []distfile.Distribution{
		{URL: "https://example.com/pkg-1.0.0.tar.gz"},
		{URL: "file:///tmp/pkg-9.0.0"},
	}}
	p := index.Combined{Providers: []index.Provider{mixed}, Mode: index.FirstHit}
	dists, err := p.FindDistributions(context.Background(), pep508.Requirement{Name: "pkg"})
	if err != nil {
		t.Fatalf("FindDistributions returned error: %v", err)
	}
	if len(dists) != 1 || !dists[0].Local() {
		t.Errorf("dists = %v, want only the local distribution", dists)
	}
}

type stubProvider struct {
	dists []distfile.Distribution
}

func (s stubProvider) FindDistributions(ctx context.Context, req pep508.Requirement) ([]distfile.Distribution, error) {
	return s.dists, nil
}

func TestSimpleIndexPrefersWheelAndFiltersByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<!DOCTYPE html><html><body>
			<a href="/files/pkg-1.0.0.tar.gz">pkg-1.0.0.tar.gz</a>
			<a href="/files/pkg-1.0.0-py3-none-any.whl">pkg-1.0.0-py3-none-any.whl</a>
			<a href="/files/otherpkg-1.0.0.tar.gz">otherpkg-1.0.0.tar.gz</a>
		</body></html>`))
	}))
	defer srv.Close()

	p := index.SimpleIndex{Client: pep503.Client{BaseURL: srv.URL + "/simple/"}}
	dists, err := p.FindDistributions(context.Background(), pep508.Requirement{Name: "pkg"})
	if err != nil {
		t.Fatalf("FindDistributions returned error: %v", err)
	}
	if len(dists) != 1 {
		t.Fatalf("len(dists) = %d, want 1", len(dists))
	}
	if !strings.Contains(dists[0].URL, ".whl") {
		t.Errorf("dists[0].URL = %q, want it to contain %q", dists[0].URL, ".whl")
	}
}

func TestSimpleIndexFiltersBySpecifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<!DOCTYPE html><html><body>
			<a href="/files/pkg-1.0.0.tar.gz">pkg-1.0.0.tar.gz</a>
			<a href="/files/pkg-2.0.0.tar.gz">pkg-2.0.0.tar.gz</a>
		</body></html>`))
	}))
	defer srv.Close()

	spec, err := pep440.ParseSpecifier(">=2.0.0")
	if err != nil {
		t.Fatalf("ParseSpecifier returned error: %v", err)
	}

	p := index.SimpleIndex{Client: pep503.Client{BaseURL: srv.URL + "/simple/"}}
	dists, err := p.FindDistributions(context.Background(), pep508.Requirement{Name: "pkg", Specifier: spec})
	if err != nil {
		t.Fatalf("FindDistributions returned error: %v", err)
	}
	if len(dists) != 1 {
		t.Fatalf("len(dists) = %d, want 1", len(dists))
	}
	if !strings.Contains(dists[0].URL, "2.0.0") {
		t.Errorf("dists[0].URL = %q, want it to contain %q", dists[0].URL, "2.0.0")
	}
}
