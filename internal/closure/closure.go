// Package closure implements the Environment Closure (§4.7): given a
// SystemInfo and root requirements, produce an Environment in which every
// selected Candidate has been rebuilt into a Target with both
// dependencies and build_dependencies populated. Grounded on
// _examples/original_source/src/nixpy/resolver.py's BuildCandidate /
// Environment dataclasses and Resolver.resolve_environment -- the
// original method body is an incomplete sketch (it references
// main_targets/recipe_queue before they are assigned), so the recursion
// and memoization below follow spec.md's step-by-step description
// instead of transcribing it.
package closure

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nixpy/pylock/internal/candidate"
	"github.com/nixpy/pylock/internal/lockfile"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep503"
	"github.com/nixpy/pylock/internal/pep508"
	"github.com/nixpy/pylock/internal/resolver"
	"github.com/nixpy/pylock/internal/sysinfo"
)

// Candidate is a resolved (Project, extras, SystemInfo) triple, as
// returned by the abstract resolver.
type Candidate = candidate.Candidate

// Closure resolves one SystemInfo's full Environment: a main runtime
// solve, then a recursively memoized build-environment solve per
// Candidate.
type Closure struct {
	Projects resolver.ProjectFinder
	System   sysinfo.Info

	// Preferences seeds every solve this Closure runs (main and every
	// build-env solve) with a prior run's pinned versions, reducing
	// churn across re-runs against an existing --lock file. Keyed by
	// canonical name.
	Preferences map[string]pep440.Version

	group singleflight.Group

	mu      sync.Mutex
	targets map[string]lockfile.Target
}

// New builds a Closure for a single SystemInfo.
func New(projects resolver.ProjectFinder, system sysinfo.Info) *Closure {
	return &Closure{Projects: projects, System: system}
}

// Resolve runs the full closure algorithm for this platform and returns
// its Environment record plus every Target it produced, including
// build-only Targets transitively required but never shipped at
// runtime.
func (cl *Closure) Resolve(ctx context.Context, requirements []pep508.Requirement) (lockfile.Environment, map[string]lockfile.Target, error) {
	cl.mu.Lock()
	cl.targets = map[string]lockfile.Target{}
	cl.mu.Unlock()

	driver := &resolver.Driver{Projects: cl.Projects, System: cl.System, Preferences: cl.Preferences}
	mainEnv, err := driver.Resolve(ctx, requirements)
	if err != nil {
		return lockfile.Environment{}, nil, err
	}

	names := make([]string, 0, len(mainEnv))
	for name := range mainEnv {
		names = append(names, name)
	}
	sort.Strings(names)

	rootIDs := make([]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name, cand := i, name, mainEnv[name]
		g.Go(func() error {
			runtimeNames, err := runtimeClosureOf(name, mainEnv)
			if err != nil {
				return err
			}
			id, err := cl.resolveBuildCandidate(gctx, name, cand, mainEnv, runtimeNames)
			if err != nil {
				return err
			}
			rootIDs[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return lockfile.Environment{}, nil, err
	}

	cl.mu.Lock()
	allIDs := make([]string, 0, len(cl.targets))
	targets := make(map[string]lockfile.Target, len(cl.targets))
	for id, t := range cl.targets {
		allIDs = append(allIDs, id)
		targets[id] = t
	}
	cl.mu.Unlock()

	env := lockfile.Environment{System: cl.System, AllIDs: allIDs, RootIDs: rootIDs}
	return env, targets, nil
}

// resolveBuildCandidate resolves a single BuildCandidate -- a Candidate
// frozen against a given runtime-dependency set -- to a Target id,
// keyed on (name, version, frozen runtime set) so the same key shares
// one in-flight resolution rather than starting a second. Results are
// not kept once a call returns: a later request for a key that is no
// longer in flight runs buildOnce again (yielding the same id).
// Grounded on resolver.py's build-candidate recursion; the
// single-writer-creates-future discipline is singleflight.Group's native
// behavior, so no separate state-machine bookkeeping is needed.
func (cl *Closure) resolveBuildCandidate(ctx context.Context, name string, cand Candidate, env map[string]Candidate, runtimeNames []string) (string, error) {
	key := memoKey(name, cand, runtimeNames)
	v, err, _ := cl.group.Do(key, func() (any, error) {
		return cl.buildOnce(ctx, name, cand, env, runtimeNames)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func memoKey(name string, cand Candidate, runtimeNames []string) string {
	version := "unknown"
	if cand.Project.Version != nil {
		version = cand.Project.Version.String()
	}
	return fmt.Sprintf("%s@%s|%s", name, version, strings.Join(runtimeNames, ","))
}

// buildOnce does the actual work behind a memo entry: solve the build
// environment with the runtime set pinned as hard constraints, recurse
// into every Candidate the build-env solve discovers, and construct this
// BuildCandidate's Target once every child id is known.
func (cl *Closure) buildOnce(ctx context.Context, name string, cand Candidate, env map[string]Candidate, runtimeNames []string) (string, error) {
	runtimeSet := make(map[string]bool, len(runtimeNames))
	for _, n := range runtimeNames {
		runtimeSet[n] = true
	}

	constraints := make(map[string]Candidate, len(runtimeNames))
	for _, n := range runtimeNames {
		if c, ok := env[n]; ok {
			constraints[n] = c
		}
	}

	deps, err := cand.EvaluatedRequirements()
	if err != nil {
		return "", err
	}
	buildDeps, err := cand.EvaluatedBuildRequirements()
	if err != nil {
		return "", err
	}
	allReqs := append(append([]pep508.Requirement{}, deps...), buildDeps...)

	if len(allReqs) == 0 {
		target := lockfile.Target{Candidate: cand}
		return cl.storeTarget(target)
	}

	buildDriver := &resolver.Driver{Projects: cl.Projects, System: cl.System, Constraints: constraints, Preferences: cl.Preferences}
	buildEnv, err := buildDriver.Resolve(ctx, allReqs)
	if err != nil {
		return "", err
	}

	childNames := make([]string, 0, len(buildEnv))
	for depName := range buildEnv {
		childNames = append(childNames, depName)
	}
	sort.Strings(childNames)

	childIDs := make(map[string]string, len(childNames))
	var childMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, depName := range childNames {
		depName, depCand := depName, buildEnv[depName]
		g.Go(func() error {
			depRuntimeNames, err := runtimeClosureOf(depName, buildEnv)
			if err != nil {
				return err
			}
			id, err := cl.resolveBuildCandidate(gctx, depName, depCand, buildEnv, depRuntimeNames)
			if err != nil {
				return err
			}
			childMu.Lock()
			childIDs[depName] = id
			childMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var runtimeIDs, buildOnlyIDs []string
	for depName, id := range childIDs {
		if runtimeSet[depName] {
			runtimeIDs = append(runtimeIDs, id)
		} else {
			buildOnlyIDs = append(buildOnlyIDs, id)
		}
	}

	target := lockfile.Target{Candidate: cand, Dependencies: runtimeIDs, BuildDependencies: buildOnlyIDs}
	return cl.storeTarget(target)
}

func (cl *Closure) storeTarget(target lockfile.Target) (string, error) {
	id, err := target.ID()
	if err != nil {
		return "", err
	}
	cl.mu.Lock()
	cl.targets[id] = target
	cl.mu.Unlock()
	return id, nil
}

// runtimeClosureOf computes name's transitive runtime dependency set
// within env by BFS through evaluated_requirements, matching spec.md
// §4.7 step 2/4. name itself is not included unless a dependency cycle
// reaches back to it.
func runtimeClosureOf(name string, env map[string]Candidate) ([]string, error) {
	cand, ok := env[name]
	if !ok {
		return nil, nil
	}
	deps, err := cand.EvaluatedRequirements()
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{}
	queue := make([]string, 0, len(deps))
	for _, d := range deps {
		queue = append(queue, pep503.Normalize(d.Name))
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		c, ok := env[n]
		if !ok {
			continue
		}
		deps, err := c.EvaluatedRequirements()
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			dn := pep503.Normalize(d.Name)
			if !visited[dn] {
				queue = append(queue, dn)
			}
		}
	}

	out := make([]string, 0, len(visited))
	for n := range visited {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}
