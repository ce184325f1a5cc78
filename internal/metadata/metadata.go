// Package metadata parses the RFC-822-style "Key: value" header block
// used by wheel METADATA files, sdist PKG-INFO files, and pyproject.toml's
// legacy core-metadata mirror. Grounded on the teacher's bufio.Scanner
// line-prefix scan in wheel.go's extractDependencies, generalized to every
// field the resolver needs rather than Requires-Dist alone.
package metadata

import (
	"bufio"
	"io"
	"strings"

	"github.com/nixpy/pylock/internal/pylockerr"
)

// Metadata is the subset of core metadata fields the resolver consults.
type Metadata struct {
	Name           string
	Version        string
	RequiresDist   []string
	RequiresPython string
	ProvidesExtra  []string
}

// Parse reads a core-metadata document up to the first blank line (which
// begins the long description body and is not header data).
func Parse(r io.Reader) (*Metadata, error) {
	m := &Metadata{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastKey string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break // end of header block; description body follows
		}
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && lastKey != "" {
			// RFC-822 continuation line: folded onto the previous header's value.
			foldContinuation(m, lastKey, strings.TrimSpace(line))
			continue
		}

		key, value, ok := splitHeader(line)
		if !ok {
			continue
		}
		lastKey = strings.ToLower(key)
		appendValue(m, lastKey, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, pylockerr.AsParseError("METADATA", "scanning header block", err)
	}
	return m, nil
}

func splitHeader(line string) (key, value string, ok bool) {
	i := strings.Index(line, ":")
	if i < 0 {
		return "", "", false
	}
	return line[:i], strings.TrimSpace(line[i+1:]), true
}

func appendValue(m *Metadata, key, value string) {
	switch key {
	case "name":
		m.Name = value
	case "version":
		m.Version = value
	case "requires-python":
		m.RequiresPython = value
	case "requires-dist":
		m.RequiresDist = append(m.RequiresDist, value)
	case "provides-extra":
		m.ProvidesExtra = append(m.ProvidesExtra, value)
	default:
		// Summary, Author, Classifier, ... are not consulted by the resolver.
	}
}

func foldContinuation(m *Metadata, key, extra string) {
	switch key {
	case "name":
		m.Name = strings.TrimSpace(m.Name + " " + extra)
	case "version":
		m.Version = strings.TrimSpace(m.Version + " " + extra)
	case "requires-python":
		m.RequiresPython = strings.TrimSpace(m.RequiresPython + " " + extra)
	case "requires-dist":
		if n := len(m.RequiresDist); n > 0 {
			m.RequiresDist[n-1] = strings.TrimSpace(m.RequiresDist[n-1] + " " + extra)
		}
	case "provides-extra":
		if n := len(m.ProvidesExtra); n > 0 {
			m.ProvidesExtra[n-1] = strings.TrimSpace(m.ProvidesExtra[n-1] + " " + extra)
		}
	}
}
