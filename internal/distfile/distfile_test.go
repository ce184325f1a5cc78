package distfile_test

import (
	"strings"
	"testing"

	"github.com/nixpy/pylock/internal/distfile"
)

func TestFilenameAndWheel(t *testing.T) {
	d := distfile.Distribution{URL: "https://files.pythonhosted.org/packages/aa/requests-2.31.0-py3-none-any.whl"}
	if got, want := d.Filename(), "requests-2.31.0-py3-none-any.whl"; got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
	if !d.IsWheel() {
		t.Error("IsWheel() = false, want true")
	}
	if d.Local() {
		t.Error("Local() = true, want false")
	}
}

func TestLocalFileURL(t *testing.T) {
	d := distfile.Distribution{URL: "file:///tmp/mypkg"}
	if !d.Local() {
		t.Error("Local() = false, want true")
	}
}

func TestVersionFromWheelFilename(t *testing.T) {
	d := distfile.Distribution{URL: "https://example.com/requests-2.31.0-py3-none-any.whl"}
	ver, err := d.Version()
	if err != nil {
		t.Fatalf("Version() returned error: %v", err)
	}
	if ver == nil {
		t.Fatal("Version() = nil, want 2.31.0")
	}
	if got := ver.String(); got != "2.31.0" {
		t.Errorf("Version() = %q, want 2.31.0", got)
	}
}

func TestVersionFromSdistFilename(t *testing.T) {
	d := distfile.Distribution{URL: "https://example.com/requests-2.31.0.tar.gz"}
	ver, err := d.Version()
	if err != nil {
		t.Fatalf("Version() returned error: %v", err)
	}
	if ver == nil {
		t.Fatal("Version() = nil, want 2.31.0")
	}
	if got := ver.String(); got != "2.31.0" {
		t.Errorf("Version() = %q, want 2.31.0", got)
	}
}

func TestVersionPlaceholderCoercesToNil(t *testing.T) {
	d := distfile.Distribution{URL: "https://example.com/mypkg-0.0.0.tar.gz"}
	ver, err := d.Version()
	if err != nil {
		t.Fatalf("Version() returned error: %v", err)
	}
	if ver != nil {
		t.Errorf("Version() = %v, want nil", ver)
	}
}

func TestCacheKeyStableAfterResolve(t *testing.T) {
	d := distfile.Distribution{URL: "https://example.com/requests-2.31.0.tar.gz"}
	unresolvedKey := d.CacheKey()

	d.ContentHash = "deadbeef"
	resolvedKey := d.CacheKey()

	if unresolvedKey == resolvedKey {
		t.Errorf("CacheKey() unchanged after resolving ContentHash: %q", resolvedKey)
	}
	if !strings.Contains(resolvedKey, "deadbeef") {
		t.Errorf("CacheKey() = %q, want it to contain %q", resolvedKey, "deadbeef")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	d := distfile.Distribution{URL: "https://example.com/requests-2.31.0.tar.gz", ContentHash: "deadbeef"}
	got, err := distfile.FromJSON(d.AsJSON())
	if err != nil {
		t.Fatalf("FromJSON returned error: %v", err)
	}
	if got != d {
		t.Errorf("FromJSON(AsJSON()) = %+v, want %+v", got, d)
	}
}
