// Package lockfile implements the Lockfile / Export Interface (§4.8): the
// Target table keyed by id, per-platform Environment records, and their
// canonical JSON serialization. The downstream build-expression exporter
// consuming this view is external and not implemented here.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nixpy/pylock/internal/candidate"
	"github.com/nixpy/pylock/internal/sysinfo"
)

// Target is a Candidate instantiated with dependencies: the ids of other
// Targets it depends on at runtime, and at build time. Grounded on
// _examples/original_source/src/nixpy/core.py's Target dataclass.
type Target struct {
	Candidate         candidate.Candidate
	Dependencies      []string // target ids
	BuildDependencies []string // target ids
}

func (t Target) Name() string { return t.Candidate.Name() }

// AsJSON is the canonical serialization: sorted dependency id lists so the
// encoding -- and therefore ID() and Hash() -- are stable regardless of
// discovery order.
func (t Target) AsJSON() map[string]any {
	return map[string]any{
		"candidate":          t.Candidate.AsJSON(),
		"dependencies":       sortedCopy(t.Dependencies),
		"build_dependencies": sortedCopy(t.BuildDependencies),
	}
}

func sortedCopy(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}

// canonicalJSON marshals AsJSON with map keys sorted, matching Python's
// json.dumps(sort_keys=True): encoding/json already sorts map[string]any
// keys lexicographically on Marshal, so no extra bookkeeping is needed.
func (t Target) canonicalJSON() ([]byte, error) {
	return json.Marshal(t.AsJSON())
}

// Hash is the hex sha256 of the canonical JSON encoding.
func (t Target) Hash() (string, error) {
	data, err := t.canonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ID is "{name}-{version}-{hash}", stable under re-serialization since it
// is derived entirely from canonical JSON.
func (t Target) ID() (string, error) {
	hash, err := t.Hash()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", t.Name(), t.Candidate.Project.Version, hash), nil
}

// Environment binds a SystemInfo to the Target table id subset reachable
// from its root requirements, plus the runtime-only subset distinguishing
// build-only Targets from the ones the platform actually ships. Grounded
// on resolver.py's Environment dataclass (system_info, targets, env).
type Environment struct {
	System  sysinfo.Info
	AllIDs  []string // every target id reachable, runtime + build
	RootIDs []string // the runtime-closure subset (§3's "env")
}

// AsJSON is the per-platform entry described in spec.md §6: a target id
// set plus the runtime-closure subset, both sorted for stability.
func (e Environment) AsJSON() map[string]any {
	return map[string]any{
		"system":  e.System.AsJSON(),
		"targets": sortedCopy(e.AllIDs),
		"env":     sortedCopy(e.RootIDs),
	}
}

// Lockfile is a map of Environments by platform tag plus the shared
// Target table every Environment's ids index into.
type Lockfile struct {
	Targets      map[string]Target      // id -> Target
	Environments map[string]Environment // platform tag -> Environment
}

// AsJSON renders the full on-disk shape described in spec.md §6: targets
// keyed by id, environments keyed by platform tag.
func (l Lockfile) AsJSON() map[string]any {
	targets := make(map[string]any, len(l.Targets))
	for id, t := range l.Targets {
		targets[id] = t.AsJSON()
	}
	environments := make(map[string]any, len(l.Environments))
	for platform, e := range l.Environments {
		environments[platform] = e.AsJSON()
	}
	return map[string]any{
		"targets":      targets,
		"environments": environments,
	}
}

// Marshal renders the lockfile as pretty-printed, stable JSON.
func (l Lockfile) Marshal() ([]byte, error) {
	return json.MarshalIndent(l.AsJSON(), "", "  ")
}

// TargetFromJSON reconstructs a Target from its AsJSON form. Dependency
// id lists are not re-validated against the Target table here; cmd/pylock,
// which reads a previous lockfile only for preferences, skips any id it
// cannot find in the table.
func TargetFromJSON(j map[string]any) (Target, error) {
	candidateJSON, _ := j["candidate"].(map[string]any)
	c, err := candidate.FromJSON(candidateJSON)
	if err != nil {
		return Target{}, fmt.Errorf("lockfile: %w", err)
	}
	return Target{
		Candidate:         c,
		Dependencies:      stringsFromJSON(j["dependencies"]),
		BuildDependencies: stringsFromJSON(j["build_dependencies"]),
	}, nil
}

func stringsFromJSON(raw any) []string {
	rows, _ := raw.([]any)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		s, _ := row.(string)
		out = append(out, s)
	}
	return out
}

// EnvironmentFromJSON reconstructs an Environment from its AsJSON form.
func EnvironmentFromJSON(j map[string]any) (Environment, error) {
	systemJSON, _ := j["system"].(map[string]any)
	system, err := sysinfo.FromJSON(systemJSON)
	if err != nil {
		return Environment{}, fmt.Errorf("lockfile: %w", err)
	}
	return Environment{
		System:  system,
		AllIDs:  stringsFromJSON(j["targets"]),
		RootIDs: stringsFromJSON(j["env"]),
	}, nil
}

// Unmarshal reconstructs a Lockfile from its on-disk JSON encoding, so a
// run without --relock can reuse a previous run's pinned versions as
// resolver preferences.
func Unmarshal(data []byte) (Lockfile, error) {
	var raw struct {
		Targets      map[string]map[string]any `json:"targets"`
		Environments map[string]map[string]any `json:"environments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Lockfile{}, err
	}

	targets := make(map[string]Target, len(raw.Targets))
	for id, j := range raw.Targets {
		t, err := TargetFromJSON(j)
		if err != nil {
			return Lockfile{}, err
		}
		targets[id] = t
	}

	environments := make(map[string]Environment, len(raw.Environments))
	for platform, j := range raw.Environments {
		e, err := EnvironmentFromJSON(j)
		if err != nil {
			return Lockfile{}, err
		}
		environments[platform] = e
	}

	return Lockfile{Targets: targets, Environments: environments}, nil
}
