package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep503"
	"github.com/nixpy/pylock/internal/pep508"
)

// CustomDirectory scans a directory for entries named
// "{name}-{version}/" (or a bare file of the same form) and returns their
// file:// URLs, used to inject pre-built local packages via the CLI's
// --custom flag.
type CustomDirectory struct {
	Path string
}

func (p CustomDirectory) FindDistributions(ctx context.Context, req pep508.Requirement) ([]distfile.Distribution, error) {
	entries, err := os.ReadDir(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	prefix := pep503.Normalize(req.Name) + "-"
	var result []distfile.Distribution
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(strings.ToLower(name), prefix) {
			continue
		}
		var versionStr string
		if entry.IsDir() {
			versionStr = name[len(prefix):]
		} else {
			versionStr = stripKnownExtension(name[len(prefix):])
		}
		ver, err := pep440.ParseVersion(versionStr)
		if err != nil {
			continue
		}
		if !req.Specifier.Match(*ver) {
			continue
		}
		result = append(result, distfile.Distribution{URL: "file://" + filepath.Join(p.Path, name)})
	}
	return sortDescending(result), nil
}

func stripKnownExtension(name string) string {
	for _, ext := range []string{".tar.gz", ".tar.bz2", ".tgz", ".zip", ".whl"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}
