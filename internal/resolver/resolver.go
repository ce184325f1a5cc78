// Package resolver implements the abstract backtracking resolver (the SAT
// Resolver Driver): a synchronous search over package identifiers that
// pins one Candidate per identifier such that every contributing
// requirement is satisfied. Grounded on
// _examples/original_source/src/nixpy/resolver.py's ResolveProvider hooks
// (identify/get_extras_for/find_matches/is_satisfied_by/get_dependencies),
// generalizing _examples/AlexanderEkdahl-rope/mvs.go's
// MinimalVersionSelection -- a BFS that keeps the greatest version per
// name and cannot recover from a hard conflict -- into true backtracking
// with per-identifier incompatibility sets.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/nixpy/pylock/internal/candidate"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep503"
	"github.com/nixpy/pylock/internal/pep508"
	"github.com/nixpy/pylock/internal/projectparse"
	"github.com/nixpy/pylock/internal/pylockerr"
	"github.com/nixpy/pylock/internal/sysinfo"
)

// Candidate is a resolver search node: a parsed project bound to the
// extras a requirement chain asked for and the target system.
type Candidate = candidate.Candidate

// MaxRounds bounds backtracking search, matching nixpy's max_rounds=1000
// safeguard against pathological backtracking.
const MaxRounds = 1000

// ProjectFinder is the subset of *registry.Registry the driver needs: the
// Project Provider from the distribution-discovery layer.
type ProjectFinder interface {
	FindProjects(ctx context.Context, req pep508.Requirement) ([]*projectparse.Project, error)
}

// MaxRoundsExceededError is returned when the search exceeds MaxRounds
// without finding or refuting an assignment.
type MaxRoundsExceededError struct{}

func (*MaxRoundsExceededError) Error() string {
	return fmt.Sprintf("resolver: exceeded max_rounds (%d)", MaxRounds)
}

// Driver runs the backtracking search for a single SystemInfo.
type Driver struct {
	Projects ProjectFinder
	System   sysinfo.Info

	// Constraints forces an identifier to resolve to exactly the given
	// candidate, failing the branch if it cannot satisfy the combined
	// specifier. Used by the Environment Closure to pin a build
	// environment's shared packages to the versions already chosen for
	// the runtime environment it will ship into.
	Constraints map[string]Candidate

	// Preferences reorders find_matches results so candidates matching
	// an already-resolved sibling environment are tried first, reducing
	// churn across repeated resolves of overlapping requirement sets.
	Preferences map[string]pep440.Version

	rounds       int
	lastConflict *conflict
}

// conflict records the identifier and contributing requirement chain at
// the point find_matches last came back empty, for UnsatisfiableError's
// diagnostic. Backtracking may hit several dead ends; the most recent one
// is reported, since depth-first search reaches the most specific
// conflict last before giving up entirely.
type conflict struct {
	identifier string
	chain      []pep508.Requirement
}

func (d *Driver) identify(name string) string { return pep503.Normalize(name) }

// Resolve runs the search to completion, returning a mapping of
// canonical name to the Candidate pinned for it.
func (d *Driver) Resolve(ctx context.Context, requirements []pep508.Requirement) (map[string]Candidate, error) {
	d.rounds = 0
	d.lastConflict = nil
	st := state{
		requirements: map[string][]pep508.Requirement{},
		assignment:   map[string]Candidate{},
		incompatible: map[string][]pep440.Version{},
	}
	for _, r := range requirements {
		st = addRequirement(st, d.identify(r.Name), r)
	}

	result, ok, err := d.solve(ctx, st)
	if err != nil {
		return nil, err
	}
	if !ok {
		var id string
		var chain []pep508.Requirement
		if d.lastConflict != nil {
			id, chain = d.lastConflict.identifier, d.lastConflict.chain
		}
		reqStrings := make([]string, len(chain))
		for i, r := range chain {
			reqStrings[i] = r.String()
		}
		return nil, &pylockerr.UnsatisfiableError{Identifier: id, Requirements: reqStrings}
	}
	return result.assignment, nil
}

// state is the search node: every requirement contributed so far per
// identifier, the candidates pinned so far, and the versions already
// ruled out per identifier on this branch. Every mutator returns a new
// state with the touched maps shallow-copied, so backtracking is simply
// "use the state from before the failed branch" -- no explicit undo.
type state struct {
	requirements map[string][]pep508.Requirement
	assignment   map[string]Candidate
	incompatible map[string][]pep440.Version
}

func addRequirement(st state, id string, r pep508.Requirement) state {
	reqs := make(map[string][]pep508.Requirement, len(st.requirements)+1)
	for k, v := range st.requirements {
		reqs[k] = v
	}
	reqs[id] = append(append([]pep508.Requirement{}, reqs[id]...), r)
	st.requirements = reqs
	return st
}

func assign(st state, id string, c Candidate) state {
	assignment := make(map[string]Candidate, len(st.assignment)+1)
	for k, v := range st.assignment {
		assignment[k] = v
	}
	assignment[id] = c
	st.assignment = assignment
	return st
}

func addIncompatible(st state, id string, v pep440.Version) state {
	incompatible := make(map[string][]pep440.Version, len(st.incompatible)+1)
	for k, vs := range st.incompatible {
		incompatible[k] = vs
	}
	incompatible[id] = append(append([]pep440.Version{}, incompatible[id]...), v)
	st.incompatible = incompatible
	return st
}

// solve is the recursive backtracking step. It picks the identifier with
// fewest remaining candidates (get_preference), tries each admissible
// candidate in order, and recurses with that candidate's dependencies
// folded in. A candidate that leads to dead ends anywhere downstream is
// recorded as incompatible and the next candidate is tried.
func (d *Driver) solve(ctx context.Context, st state) (state, bool, error) {
	d.rounds++
	if d.rounds > MaxRounds {
		return state{}, false, &MaxRoundsExceededError{}
	}

	id, candidates, ok, err := d.nextUnsatisfied(ctx, st)
	if err != nil {
		return state{}, false, err
	}
	if !ok {
		return st, true, nil
	}
	if len(candidates) == 0 {
		d.lastConflict = &conflict{identifier: id, chain: st.requirements[id]}
		return st, false, nil
	}

	for _, c := range candidates {
		deps, err := c.EvaluatedRequirements()
		if err != nil {
			return state{}, false, err
		}
		next := assign(st, id, c)
		for _, dep := range deps {
			next = addRequirement(next, d.identify(dep.Name), dep)
		}

		result, ok, err := d.solve(ctx, next)
		if err != nil {
			return state{}, false, err
		}
		if ok {
			return result, true, nil
		}
		if c.Project.Version != nil {
			st = addIncompatible(st, id, *c.Project.Version)
		}
	}
	return st, false, nil
}

// nextUnsatisfied finds an identifier with outstanding requirements whose
// current assignment (if any) no longer satisfies them, and returns the
// candidates admissible for it. Ties are broken by identifier name for
// determinism, since Go map iteration order is randomized.
func (d *Driver) nextUnsatisfied(ctx context.Context, st state) (string, []Candidate, bool, error) {
	ids := make([]string, 0, len(st.requirements))
	for id := range st.requirements {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var bestID string
	var bestCandidates []Candidate
	found := false
	for _, id := range ids {
		reqs := st.requirements[id]
		if len(reqs) == 0 {
			continue
		}
		if c, ok := st.assignment[id]; ok && d.isSatisfiedByAll(c, reqs) {
			continue
		}
		candidates, err := d.findMatches(ctx, id, st)
		if err != nil {
			return "", nil, false, err
		}
		if !found || len(candidates) < len(bestCandidates) {
			bestID, bestCandidates, found = id, candidates, true
		}
	}
	return bestID, bestCandidates, found, nil
}

// isSatisfiedByAll implements is_satisfied_by across every requirement
// contributing to an identifier. reqs is always drawn from
// state.requirements[id], so every entry already names this identifier;
// only the version needs checking.
func (d *Driver) isSatisfiedByAll(c Candidate, reqs []pep508.Requirement) bool {
	for _, r := range reqs {
		if !r.Specifier.Match(*c.Project.Version) {
			return false
		}
	}
	return true
}

// findMatches implements the find_matches hook: intersect every
// contributing requirement's specifier, union their extras, take the
// first non-empty URL, and either honor a hard constraint or ask the
// Project Provider, wrap as Candidates, drop incompatible versions, and
// sort descending with preferences surfaced first.
func (d *Driver) findMatches(ctx context.Context, id string, st state) ([]Candidate, error) {
	reqs := st.requirements[id]

	var specifier pep440.Specifier
	var extraSet = map[string]bool{}
	var url string
	for _, r := range reqs {
		specifier = append(specifier, r.Specifier...)
		for _, e := range r.Extras {
			extraSet[e] = true
		}
		if url == "" {
			url = r.URL
		}
	}
	extras := make([]string, 0, len(extraSet))
	for e := range extraSet {
		extras = append(extras, e)
	}
	sort.Strings(extras)

	if constrained, ok := d.Constraints[id]; ok {
		if specifier.Match(*constrained.Project.Version) && !versionIn(*constrained.Project.Version, st.incompatible[id]) {
			return []Candidate{constrained}, nil
		}
		return nil, nil
	}

	req := pep508.Requirement{Name: id, Specifier: specifier, URL: url}
	projects, err := d.Projects.FindProjects(ctx, req)
	if err != nil {
		return nil, err
	}

	bad := st.incompatible[id]
	candidates := make([]Candidate, 0, len(projects))
	for _, p := range projects {
		if p.Version != nil && versionIn(*p.Version, bad) {
			continue
		}
		candidates = append(candidates, Candidate{Project: p, Extras: extras, System: d.System})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Project.Version.Cmp(*candidates[j].Project.Version) > 0
	})

	var preferred, regular []Candidate
	for _, c := range candidates {
		if pref, ok := d.Preferences[d.identify(c.Name())]; ok && c.Project.Version != nil && pref.Cmp(*c.Project.Version) == 0 {
			preferred = append(preferred, c)
		} else {
			regular = append(regular, c)
		}
	}
	return append(preferred, regular...), nil
}

func versionIn(v pep440.Version, vs []pep440.Version) bool {
	for _, other := range vs {
		if v.Cmp(other) == 0 {
			return true
		}
	}
	return false
}
