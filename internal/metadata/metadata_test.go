package metadata_test

import (
	"strings"
	"testing"

	"github.com/nixpy/pylock/internal/metadata"
)

const sampleMetadata = `Metadata-Version: 2.1
Name: requests
Version: 2.31.0
Requires-Python: >=3.7
Requires-Dist: charset-normalizer (<4,>=2)
Requires-Dist: idna (<4,>=2.5)
Requires-Dist: certifi ; extra == "security"
Provides-Extra: security
Provides-Extra: socks
Summary: Python HTTP for Humans.

This is the long description, which should be ignored.
Requires-Dist: not-a-real-dependency
`

func TestParse(t *testing.T) {
	m, err := metadata.Parse(strings.NewReader(sampleMetadata))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if m.Name != "requests" {
		t.Errorf("Name = %q, want requests", m.Name)
	}
	if m.Version != "2.31.0" {
		t.Errorf("Version = %q, want 2.31.0", m.Version)
	}
	if m.RequiresPython != ">=3.7" {
		t.Errorf("RequiresPython = %q, want >=3.7", m.RequiresPython)
	}
	if len(m.RequiresDist) != 3 {
		t.Fatalf("len(RequiresDist) = %d, want 3", len(m.RequiresDist))
	}
	if len(m.ProvidesExtra) != 2 {
		t.Fatalf("len(ProvidesExtra) = %d, want 2", len(m.ProvidesExtra))
	}
}

func TestParseStopsAtBlankLine(t *testing.T) {
	m, err := metadata.Parse(strings.NewReader(sampleMetadata))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	for _, dep := range m.RequiresDist {
		if dep == "not-a-real-dependency" {
			t.Errorf("RequiresDist leaked a header from after the body: %v", m.RequiresDist)
		}
	}
}

func TestParseContinuationLine(t *testing.T) {
	const withContinuation = "Name: foo\nRequires-Dist: bar\n  baz\n"
	m, err := metadata.Parse(strings.NewReader(withContinuation))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(m.RequiresDist) != 1 || m.RequiresDist[0] != "bar baz" {
		t.Errorf("RequiresDist = %v, want [\"bar baz\"]", m.RequiresDist)
	}
}
