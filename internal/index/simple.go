package index

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep503"
	"github.com/nixpy/pylock/internal/pep508"
)

// SimpleIndex crawls a PEP 503 simple index for a project's files. Grounded
// on the teacher's Index.FindPackage (XML-token href scanning) and
// checkCompatability (filename decomposition + name-mismatch rejection),
// reimplemented over internal/pep503's HTML crawler.
type SimpleIndex struct {
	Client pep503.Client
}

func (p SimpleIndex) FindDistributions(ctx context.Context, req pep508.Requirement) ([]distfile.Distribution, error) {
	links, err := p.Client.ListProjectFiles(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	byVersion := map[string][]distfile.Distribution{}
	var order []string
	for _, link := range links {
		d, ver, ok := decomposeLink(req.Name, link)
		if !ok {
			continue
		}
		if !req.Specifier.Match(*ver) {
			continue
		}
		key := ver.String()
		if _, seen := byVersion[key]; !seen {
			order = append(order, key)
		}
		byVersion[key] = append(byVersion[key], d)
	}

	var result []distfile.Distribution
	for _, key := range order {
		result = append(result, selectPreferred(byVersion[key]))
	}
	return sortDescending(result), nil
}

func decomposeLink(requestedName string, link pep503.Link) (distfile.Distribution, *pep440.Version, bool) {
	u, err := url.Parse(link.HRef)
	if err != nil {
		return distfile.Distribution{}, nil, false
	}
	filename := path.Base(u.Path)
	if !strings.HasSuffix(filename, ".whl") && !hasSourceArchiveSuffix(filename) {
		return distfile.Distribution{}, nil, false
	}

	d := distfile.Distribution{URL: link.HRef}
	if hash, ok := link.DataAttrs["data-sha256"]; ok {
		d.ContentHash = hash
	} else if hash := sha256Fragment(link.HRef); hash != "" {
		d.ContentHash = hash
	}

	ver, err := d.Version()
	if err != nil || ver == nil {
		return distfile.Distribution{}, nil, false
	}

	// A file-scheme link must decompose as {canonical-name}-{version}{ext};
	// reject on name mismatch per spec.md §4.3.
	if !strings.HasPrefix(strings.ToLower(filename), pep503.Normalize(requestedName)+"-") {
		return distfile.Distribution{}, nil, false
	}

	return d, ver, true
}

func hasSourceArchiveSuffix(filename string) bool {
	for _, ext := range []string{".tar.gz", ".tar.bz2", ".tgz", ".zip"} {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

func sha256Fragment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Fragment == "" {
		return ""
	}
	vals, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return ""
	}
	if v := vals.Get("sha256"); v != "" {
		return v
	}
	return ""
}

// selectPreferred implements preferred() from the teacher's index.go:
// wheels beat sdists; among same-kind candidates, one carrying a content
// hash beats one without.
func selectPreferred(candidates []distfile.Distribution) distfile.Distribution {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if isBetter(c, best) {
			best = c
		}
	}
	return best
}

func isBetter(a, b distfile.Distribution) bool {
	if a.IsWheel() != b.IsWheel() {
		return a.IsWheel()
	}
	if (a.ContentHash != "") != (b.ContentHash != "") {
		return a.ContentHash != ""
	}
	return false
}
