// Package candidate implements the Candidate model: a (Project, extras,
// SystemInfo) triple, with marker/extras evaluation to a fixed point.
// Grounded on _examples/original_source/src/nixpy/core.py's Candidate
// class (_get_requirements/_compute_requirements/_marker_satisfies).
package candidate

import (
	"fmt"
	"sort"

	"github.com/nixpy/pylock/internal/pep508"
	"github.com/nixpy/pylock/internal/projectparse"
	"github.com/nixpy/pylock/internal/sysinfo"
)

// Candidate binds a parsed Project to a set of requested extras and a
// target system.
type Candidate struct {
	Project *projectparse.Project
	Extras  []string
	System  sysinfo.Info
}

func (c Candidate) Name() string { return c.Project.Name }

// AsJSON is the canonical serialization used by the lockfile's Target
// table, matching core.py's Candidate.as_json.
func (c Candidate) AsJSON() map[string]any {
	extras := append([]string{}, c.Extras...)
	sort.Strings(extras)
	return map[string]any{
		"project":     c.Project.AsJSON(),
		"with_extras": extras,
		"system":      c.System.AsJSON(),
	}
}

// FromJSON reconstructs a Candidate from its AsJSON form, used when a
// previous lockfile is reloaded for its pinned versions.
func FromJSON(j map[string]any) (Candidate, error) {
	projectJSON, _ := j["project"].(map[string]any)
	project, err := projectparse.ProjectFromJSON(projectJSON)
	if err != nil {
		return Candidate{}, fmt.Errorf("candidate: %w", err)
	}

	systemJSON, _ := j["system"].(map[string]any)
	system, err := sysinfo.FromJSON(systemJSON)
	if err != nil {
		return Candidate{}, fmt.Errorf("candidate: %w", err)
	}

	var extras []string
	if raw, ok := j["with_extras"].([]any); ok {
		for _, e := range raw {
			s, _ := e.(string)
			extras = append(extras, s)
		}
	}

	return Candidate{Project: project, Extras: extras, System: system}, nil
}

// EvaluatedRequirements returns the Project's declared requirements,
// filtered by marker evaluation against the target's environment with
// extras expanded to a fixed point, and with self-referential
// requirements (name == own name) dropped from the result.
func (c Candidate) EvaluatedRequirements() ([]pep508.Requirement, error) {
	env, err := c.System.PythonEnvironment()
	if err != nil {
		return nil, err
	}
	extras := c.Extras
	if len(extras) == 0 {
		extras = []string{""}
	}
	return computeRequirements(c.Name(), c.Project.Requirements, env, extras)
}

// EvaluatedBuildRequirements is EvaluatedRequirements over
// Project.BuildRequirements instead of Project.Requirements.
func (c Candidate) EvaluatedBuildRequirements() ([]pep508.Requirement, error) {
	env, err := c.System.PythonEnvironment()
	if err != nil {
		return nil, err
	}
	extras := c.Extras
	if len(extras) == 0 {
		extras = []string{""}
	}
	return computeRequirements(c.Name(), c.Project.BuildRequirements, env, extras)
}

func computeRequirements(ownName string, requirements []pep508.Requirement, env pep508.MapEnv, initialExtras []string) ([]pep508.Requirement, error) {
	extras := newExtraSet(initialExtras)
	for {
		changed := false
		for _, r := range requirements {
			if r.Name != ownName {
				continue
			}
			ok, err := markerSatisfies(r.Marker, env, extras.sorted())
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			for _, e := range r.Extras {
				if extras.add(e) {
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	var out []pep508.Requirement
	for _, r := range requirements {
		if r.Name == ownName {
			continue
		}
		ok, err := markerSatisfies(r.Marker, env, extras.sorted())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// markerSatisfies reports whether marker holds for env with "extra" bound
// to "" or to any member of extras, matching nixpy's trial-by-extra loop.
func markerSatisfies(marker pep508.Marker, env pep508.MapEnv, extras []string) (bool, error) {
	if marker == nil {
		return true, nil
	}
	ok, err := marker.Evaluate(env.WithExtra(""))
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	for _, e := range extras {
		ok, err := marker.Evaluate(env.WithExtra(e))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// extraSet is a deterministically-orderable set of extras: Go map
// iteration order is randomized, but the fixed-point loop above and the
// final sorted() output must be stable across runs, so membership lives
// in a map while iteration always goes through sorted().
type extraSet struct {
	members map[string]bool
}

func newExtraSet(initial []string) *extraSet {
	s := &extraSet{members: make(map[string]bool, len(initial))}
	for _, e := range initial {
		s.members[e] = true
	}
	return s
}

func (s *extraSet) add(e string) bool {
	if s.members[e] {
		return false
	}
	s.members[e] = true
	return true
}

func (s *extraSet) sorted() []string {
	out := make([]string, 0, len(s.members))
	for e := range s.members {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
