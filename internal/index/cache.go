package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/pep508"
)

// Resolver resolves a Distribution's content hash, satisfied by
// fetch.Fetcher and fetch.CachingFetcher.
type Resolver interface {
	Resolve(ctx context.Context, d distfile.Distribution) (distfile.Distribution, error)
}

// Cached wraps a Provider, persisting per-name distribution lists to
// {CacheDir}/{name}.json. Grounded on
// _examples/original_source/src/nixpy/distributions.py's CachedProvider,
// adjusted to spec.md §4.3's local-shadow rule: a cached set containing
// any local distribution bypasses the cache entirely, since local
// directories mutate in place and a stale cache entry would hide that.
type Cached struct {
	Inner    Provider
	Resolve  Resolver
	CacheDir string
}

func (p Cached) cachePath(name string) string {
	return filepath.Join(p.CacheDir, name+".json")
}

func (p Cached) FindDistributions(ctx context.Context, req pep508.Requirement) ([]distfile.Distribution, error) {
	if req.URL != "" {
		return []distfile.Distribution{{URL: req.URL}}, nil
	}

	path := p.cachePath(req.Name)
	cached, err := loadCachedDistributions(path)
	if err == nil && !anyLocal(cached) {
		filtered := filterBySpecifier(cached, req)
		if len(filtered) > 0 {
			return sortDescending(filtered), nil
		}
	}

	nameOnly := pep508.Requirement{Name: req.Name}
	fresh, err := p.Inner.FindDistributions(ctx, nameOnly)
	if err != nil {
		return nil, err
	}

	resolved := make([]distfile.Distribution, 0, len(fresh))
	for _, d := range fresh {
		r, err := p.Resolve.Resolve(ctx, d)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}

	if err := saveCachedDistributions(path, resolved); err != nil {
		return nil, err
	}

	return sortDescending(filterBySpecifier(resolved, req)), nil
}

func anyLocal(dists []distfile.Distribution) bool {
	for _, d := range dists {
		if d.Local() {
			return true
		}
	}
	return false
}

func filterBySpecifier(dists []distfile.Distribution, req pep508.Requirement) []distfile.Distribution {
	if len(req.Specifier) == 0 {
		return dists
	}
	var out []distfile.Distribution
	for _, d := range dists {
		ver, err := d.Version()
		if err != nil || ver == nil || req.Specifier.Match(*ver) {
			out = append(out, d)
		}
	}
	return out
}

func loadCachedDistributions(path string) ([]distfile.Distribution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	dists := make([]distfile.Distribution, 0, len(raw))
	for _, j := range raw {
		d, err := distfile.FromJSON(j)
		if err != nil {
			return nil, err
		}
		dists = append(dists, d)
	}
	return dists, nil
}

func saveCachedDistributions(path string, dists []distfile.Distribution) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw := make([]map[string]any, 0, len(dists))
	for _, d := range dists {
		raw = append(raw, d.AsJSON())
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
