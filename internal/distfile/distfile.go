// Package distfile implements the URL-variant Distribution: a downloadable
// artifact (wheel or source archive) identified by URL and, once resolved,
// a content hash.
package distfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/nixpy/pylock/internal/pep440"
)

// archiveExtensions is tried longest-first so ".tar.gz" is stripped whole
// rather than leaving a dangling ".tar" (the naive-suffix-stripping open
// question from spec.md §9: implemented here as strict matching against
// this known set instead of a single blind TrimSuffix).
var archiveExtensions = []string{
	".tar.gz", ".tar.bz2", ".tar.xz", ".tar.lz", ".tgz", ".tbz2", ".zip", ".whl",
}

// Distribution is a URL plus an optional content hash. An empty ContentHash
// means the distribution is unresolved: its bytes have not yet been hashed,
// and it must not be recorded in a lockfile until resolve(ctx) is called
// (internal/fetch.Fetcher.Resolve).
type Distribution struct {
	URL         string
	ContentHash string // hex sha256, "" if unresolved
}

// Filename is the last path segment of the distribution's URL.
func (d Distribution) Filename() string {
	u, err := url.Parse(d.URL)
	if err != nil {
		return d.URL
	}
	return path.Base(u.Path)
}

// Local reports whether the distribution is a file:// URL.
func (d Distribution) Local() bool {
	u, err := url.Parse(d.URL)
	return err == nil && u.Scheme == "file"
}

// IsWheel reports whether the filename ends in ".whl".
func (d Distribution) IsWheel() bool {
	return strings.HasSuffix(d.Filename(), ".whl")
}

func stripArchiveExtension(filename string) (base, ext string) {
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(filename, ext) {
			return strings.TrimSuffix(filename, ext), ext
		}
	}
	return filename, ""
}

// Version attempts to parse the version from the distribution's filename,
// stripping a trailing archive extension first. For wheels the filename is
// "{name}-{version}(-{build})?-{tag}.whl"; for source archives it is
// "{name}-{version}{ext}". Returns nil if no version can be extracted --
// the caller should fall back to metadata parsing. The literal version
// string "0.0.0" is coerced to nil per spec.md §4.2's post-processing rule,
// so a caller-supplied hint can override an un-set placeholder version.
func (d Distribution) Version() (*pep440.Version, error) {
	base, _ := stripArchiveExtension(d.Filename())
	sep := strings.LastIndex(base, "-")
	if sep < 0 {
		return nil, nil //nolint:nilnil
	}
	versionStr := base[sep+1:]
	if d.IsWheel() {
		// wheel filenames may carry an extra "-{build}-{pytag}-{abitag}-{platformtag}"
		// tail; the version is always the second dash-delimited field.
		fields := strings.Split(strings.TrimSuffix(d.Filename(), ".whl"), "-")
		if len(fields) >= 2 {
			versionStr = fields[1]
		}
	}
	if versionStr == "0.0.0" {
		return nil, nil //nolint:nilnil
	}
	ver, err := pep440.ParseVersion(versionStr)
	if err != nil {
		return nil, nil //nolint:nilnil // unparseable version segment: treat as "unknown", not an error
	}
	return ver, nil
}

// processStartSalt distinguishes unresolved distributions from run to run so
// an unresolved cache_key never collides with a later-resolved one sharing
// the same filename. Set once by the process entrypoint; defaults to a
// fixed value so tests are deterministic.
var processStartSalt = "unresolved"

// SetProcessStartSalt overrides the salt used in unresolved CacheKeys,
// typically to the process start time rendered as a string.
func SetProcessStartSalt(salt string) { processStartSalt = salt }

// CacheKey is "{filename}-{content_hash}" once resolved. Grounded on
// nixpy's core.py URLDistribution.cache_key, which salts the key with the
// process start time when content_hash is unset so an unresolved
// distribution is never mistaken for a resolved one across runs.
func (d Distribution) CacheKey() string {
	if d.ContentHash != "" {
		return fmt.Sprintf("%s-%s", d.Filename(), d.ContentHash)
	}
	h := sha256.Sum256([]byte(processStartSalt + ":" + d.URL))
	return fmt.Sprintf("%s-unresolved-%s", d.Filename(), hex.EncodeToString(h[:]))
}

// AsJSON is the {"type":"url", ...} serialization used by on-disk caches
// and the lockfile.
func (d Distribution) AsJSON() map[string]any {
	var hash any
	if d.ContentHash != "" {
		hash = d.ContentHash
	}
	return map[string]any{"type": "url", "url": d.URL, "sha256": hash}
}

// FromJSON reconstructs a Distribution from its AsJSON form.
func FromJSON(j map[string]any) (Distribution, error) {
	typ, _ := j["type"].(string)
	if typ != "url" {
		return Distribution{}, fmt.Errorf("distfile: unexpected distribution type %q", typ)
	}
	u, _ := j["url"].(string)
	hash, _ := j["sha256"].(string)
	return Distribution{URL: u, ContentHash: hash}, nil
}
