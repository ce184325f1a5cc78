// Package projectparse implements the Project Parser: it takes a
// Distribution and its materialized bytes and produces a canonical
// Project record or a ParseError. Dispatch follows the wheel / source
// archive / local directory branches the teacher's wheel.go and sdist.go
// split across two distribution kinds, generalized to the full
// pyproject.toml / setup.py / PKG-INFO decision tree nixpy's parser.py
// walks.
package projectparse

import (
	"context"
	"fmt"
	"sort"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/fetch"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep503"
	"github.com/nixpy/pylock/internal/pep508"
)

// Format identifies which branch of the parser produced a Project.
type Format string

const (
	FormatWheel      Format = "wheel"
	FormatPyproject  Format = "pyproject"
	FormatSetuptools Format = "setuptools"
	FormatMetadata   Format = "metadata"
	FormatNix        Format = "nix"
)

// Project is the canonical, immutable record produced by parsing one
// distribution.
type Project struct {
	Name              string
	Version           *pep440.Version
	Format            Format
	ReqPython         pep440.Specifier // nil if unconstrained
	Distribution      distfile.Distribution
	Requirements      []pep508.Requirement
	BuildRequirements []pep508.Requirement
}

// Canonicalize applies PEP 503 name normalization, the same folding rule
// the spec requires for both project names and requirement names.
func Canonicalize(name string) string {
	return pep503.Normalize(name)
}

// Fetcher is the subset of fetch.Fetcher/fetch.CachingFetcher the parser
// needs to materialize a distribution's bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Handle, error)
}

// Parser fetches and dispatches a Distribution to the appropriate parsing
// strategy.
type Parser struct {
	Fetch Fetcher
}

// New builds a Parser around the given fetcher.
func New(f Fetcher) *Parser {
	return &Parser{Fetch: f}
}

// Parse dispatches on d's filename: a wheel is read directly for its
// METADATA entry; anything else is treated as a source archive or, for a
// local directory URL, a project root in place.
func (p *Parser) Parse(ctx context.Context, d distfile.Distribution) (*Project, error) {
	if d.IsWheel() {
		return p.parseWheel(ctx, d)
	}
	return p.parseSourceDistribution(ctx, d)
}

func versionHintFromFilename(d distfile.Distribution) *pep440.Version {
	ver, err := d.Version()
	if err != nil || ver == nil {
		return nil
	}
	return ver
}

// AsJSON is the canonical serialization used by the on-disk project cache
// and the lockfile's Target table. Requirement lists are sorted so the
// encoding is stable regardless of declaration order.
func (p *Project) AsJSON() map[string]any {
	var reqPython any
	if len(p.ReqPython) > 0 {
		reqPython = p.ReqPython.String()
	}
	return map[string]any{
		"name":               p.Name,
		"version":            p.Version.String(),
		"format":             string(p.Format),
		"req_python":         reqPython,
		"distribution":       p.Distribution.AsJSON(),
		"requirements":       sortedRequirementStrings(p.Requirements),
		"build_requirements": sortedRequirementStrings(p.BuildRequirements),
	}
}

func sortedRequirementStrings(reqs []pep508.Requirement) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.String()
	}
	sort.Strings(out)
	return out
}

// ProjectFromJSON reconstructs a Project from its AsJSON form, the
// inverse operation the on-disk project cache needs on a hit.
func ProjectFromJSON(j map[string]any) (*Project, error) {
	name, _ := j["name"].(string)
	versionStr, _ := j["version"].(string)
	ver, err := pep440.ParseVersion(versionStr)
	if err != nil {
		return nil, fmt.Errorf("projectparse: cached version %q: %w", versionStr, err)
	}
	format, _ := j["format"].(string)

	var reqPython pep440.Specifier
	if raw, ok := j["req_python"].(string); ok && raw != "" {
		reqPython, err = pep440.ParseSpecifier(raw)
		if err != nil {
			return nil, fmt.Errorf("projectparse: cached req_python %q: %w", raw, err)
		}
	}

	distJSON, _ := j["distribution"].(map[string]any)
	dist, err := distfile.FromJSON(distJSON)
	if err != nil {
		return nil, err
	}

	reqs, err := requirementsFromJSON(j["requirements"])
	if err != nil {
		return nil, err
	}
	buildReqs, err := requirementsFromJSON(j["build_requirements"])
	if err != nil {
		return nil, err
	}

	return &Project{
		Name:              name,
		Version:           ver,
		Format:            Format(format),
		ReqPython:         reqPython,
		Distribution:      dist,
		Requirements:      reqs,
		BuildRequirements: buildReqs,
	}, nil
}

func requirementsFromJSON(raw any) ([]pep508.Requirement, error) {
	var rows []string
	switch v := raw.(type) {
	case []any:
		for _, row := range v {
			s, _ := row.(string)
			rows = append(rows, s)
		}
	case []string:
		rows = v
	}
	out := make([]pep508.Requirement, 0, len(rows))
	for _, s := range rows {
		r, err := pep508.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("projectparse: cached requirement %q: %w", s, err)
		}
		out = append(out, *r)
	}
	return out, nil
}

