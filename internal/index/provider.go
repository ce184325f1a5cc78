// Package index implements Distribution Provider variants: URL
// short-circuit, PEP 503 index crawling, a custom pre-built-package
// directory, first-hit/union combination with the local-shadow rule
// nixpy's PyPIProvider applies, and an on-disk cache with its own
// local-shadow bypass for stale entries. Grounded on the teacher's
// index.go (PEP 503 crawling, wheel-over-sdist preference) and pypi.go
// (JSON API variant), generalized per
// _examples/original_source/src/nixpy/distributions.py.
package index

import (
	"context"
	"sort"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/pep508"
)

// Provider discovers candidate distributions for a requirement.
type Provider interface {
	FindDistributions(ctx context.Context, req pep508.Requirement) ([]distfile.Distribution, error)
}

// URLShortCircuit wraps a Provider: any requirement carrying a direct URL
// resolves to that URL alone, without consulting Inner.
type URLShortCircuit struct {
	Inner Provider
}

func (p URLShortCircuit) FindDistributions(ctx context.Context, req pep508.Requirement) ([]distfile.Distribution, error) {
	if req.URL != "" {
		return []distfile.Distribution{{URL: req.URL}}, nil
	}
	return p.Inner.FindDistributions(ctx, req)
}

// CombineMode selects how Combined merges its providers' results.
type CombineMode int

const (
	// FirstHit returns the first provider's non-empty result.
	FirstHit CombineMode = iota
	// Union concatenates every provider's results.
	Union
)

// Combined queries an ordered list of providers.
type Combined struct {
	Providers []Provider
	Mode      CombineMode
}

func (p Combined) FindDistributions(ctx context.Context, req pep508.Requirement) ([]distfile.Distribution, error) {
	var all []distfile.Distribution
	for _, provider := range p.Providers {
		dists, err := provider.FindDistributions(ctx, req)
		if err != nil {
			return nil, err
		}
		if p.Mode == FirstHit {
			if len(dists) > 0 {
				return applyLocalShadow(dists), nil
			}
			continue
		}
		all = append(all, dists...)
	}
	return applyLocalShadow(all), nil
}

// applyLocalShadow implements the local-shadow rule from
// _examples/original_source/src/nixpy/distributions.py:101-117: if any
// result is a file:// distribution, every non-local result is discarded,
// so a package available both locally and on a network index always
// resolves to the local copy.
func applyLocalShadow(dists []distfile.Distribution) []distfile.Distribution {
	localOnly := false
	for _, d := range dists {
		if d.Local() {
			localOnly = true
			break
		}
	}
	if !localOnly {
		return dists
	}
	out := make([]distfile.Distribution, 0, len(dists))
	for _, d := range dists {
		if d.Local() {
			out = append(out, d)
		}
	}
	return out
}

// sortDescending orders distributions by parsed filename version,
// descending, matching the "returned in descending version order"
// invariant every provider must uphold.
func sortDescending(dists []distfile.Distribution) []distfile.Distribution {
	sort.SliceStable(dists, func(i, j int) bool {
		vi, _ := dists[i].Version()
		vj, _ := dists[j].Version()
		if vi == nil || vj == nil {
			return false
		}
		return vi.Cmp(*vj) > 0
	})
	return dists
}
