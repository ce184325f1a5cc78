// Package registry implements the Project Provider: it bridges
// requirements to parsed Projects, bridging the Distribution Provider and
// Project Parser with an in-memory identity cache and an on-disk negative
// cache for parse failures. Grounded on
// _examples/original_source/src/nixpy/core.py's ProjectProvider
// (_project/find_projects) and the teacher's cache.go on-disk cache file
// layout conventions.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/index"
	"github.com/nixpy/pylock/internal/pep508"
	"github.com/nixpy/pylock/internal/projectparse"
)

// ProjectParser is the subset of *projectparse.Parser the registry needs.
type ProjectParser interface {
	Parse(ctx context.Context, d distfile.Distribution) (*projectparse.Project, error)
}

// Registry deduplicates Projects in memory by (name, version) and persists
// parse results (including negative entries) to disk keyed by a
// distribution's cache_key.
type Registry struct {
	Distributions index.Provider
	Resolve       index.Resolver
	Parser        ProjectParser
	CacheDir      string

	mu     sync.Mutex
	loaded map[string]map[string]*projectparse.Project // name -> version string -> Project
}

// New builds a Registry. CacheDir may be empty to disable the on-disk
// negative/positive cache.
func New(distributions index.Provider, resolve index.Resolver, parser ProjectParser, cacheDir string) *Registry {
	return &Registry{
		Distributions: distributions,
		Resolve:       resolve,
		Parser:        parser,
		CacheDir:      cacheDir,
		loaded:        make(map[string]map[string]*projectparse.Project),
	}
}

// FindProjects returns every already-parsed Project satisfying req, or
// else queries the Distribution Provider and parses candidates. When req
// carries no specifier, only the newest distribution is fetched, matching
// nixpy's "don't waste time solving for every possible version" shortcut.
func (r *Registry) FindProjects(ctx context.Context, req pep508.Requirement) ([]*projectparse.Project, error) {
	if projects := r.matchLoaded(req); len(projects) > 0 {
		return projects, nil
	}

	dists, err := r.Distributions.FindDistributions(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(dists) == 0 {
		return nil, nil
	}
	if len(req.Specifier) == 0 {
		dists = dists[:1]
	}

	projects, err := r.parseAll(ctx, dists)
	if err != nil {
		return nil, err
	}

	var matched []*projectparse.Project
	for _, p := range projects {
		if p == nil {
			continue
		}
		if len(req.Specifier) == 0 || req.Specifier.Match(*p.Version) {
			matched = append(matched, p)
		}
	}

	r.mu.Lock()
	versions := r.loaded[req.Name]
	if versions == nil {
		versions = make(map[string]*projectparse.Project)
		r.loaded[req.Name] = versions
	}
	for _, p := range matched {
		versions[p.Version.String()] = p
	}
	r.mu.Unlock()

	return matched, nil
}

func (r *Registry) matchLoaded(req pep508.Requirement) []*projectparse.Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.loaded[req.Name]
	var out []*projectparse.Project
	for _, p := range versions {
		if len(req.Specifier) == 0 || req.Specifier.Match(*p.Version) {
			out = append(out, p)
		}
	}
	return out
}

// parseAll parses every distribution concurrently, matching nixpy's
// asyncio.gather fan-out.
func (r *Registry) parseAll(ctx context.Context, dists []distfile.Distribution) ([]*projectparse.Project, error) {
	results := make([]*projectparse.Project, len(dists))
	g, ctx := errgroup.WithContext(ctx)
	for i, d := range dists {
		i, d := i, d
		g.Go(func() error {
			p, err := r.parseOne(ctx, d)
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// parseOne resolves d's content hash, consults the on-disk cache keyed by
// cache_key, and falls back to the Project Parser on a miss. A parse
// failure is recorded as a negative cache entry (nil Project, no error)
// so a later run doesn't retry a distribution known to be unparsable.
func (r *Registry) parseOne(ctx context.Context, d distfile.Distribution) (*projectparse.Project, error) {
	resolved, err := r.Resolve.Resolve(ctx, d)
	if err != nil {
		return nil, err
	}

	cachePath := r.cachePath(resolved)
	if cachePath != "" {
		if cached, ok, err := loadCachedProject(cachePath); err == nil && ok {
			return cached, nil
		}
	}

	project, parseErr := r.Parser.Parse(ctx, resolved)
	if parseErr != nil {
		project = nil // negative cache: a parse failure is non-fatal at this layer
	}

	if cachePath != "" {
		if err := saveCachedProject(cachePath, project); err != nil {
			return nil, err
		}
	}
	return project, nil
}

func (r *Registry) cachePath(d distfile.Distribution) string {
	if r.CacheDir == "" {
		return ""
	}
	return filepath.Join(r.CacheDir, d.CacheKey()+".json")
}

// loadCachedProject reads the on-disk cache entry at path, matching
// nixpy's ProjectProvider._project: a JSON `null` is a negative cache
// entry (a distribution known not to parse), anything else round-trips
// through Project.AsJSON/ProjectFromJSON.
func loadCachedProject(path string) (*projectparse.Project, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, true, nil // negative cache entry
	}
	project, err := projectparse.ProjectFromJSON(raw)
	if err != nil {
		return nil, false, err
	}
	return project, true, nil
}

func saveCachedProject(path string, project *projectparse.Project) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var raw map[string]any
	if project != nil {
		raw = project.AsJSON()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
