package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep508"
	"github.com/nixpy/pylock/internal/projectparse"
	"github.com/nixpy/pylock/internal/pylockerr"
	"github.com/nixpy/pylock/internal/resolver"
	"github.com/nixpy/pylock/internal/sysinfo"
)

// stubFinder plays the role of the Project Provider: it holds a fixed
// catalog of projects per name and filters by the incoming specifier,
// mirroring what internal/registry.Registry does against a real index.
type stubFinder struct {
	catalog map[string][]*projectparse.Project
}

func (s stubFinder) FindProjects(ctx context.Context, req pep508.Requirement) ([]*projectparse.Project, error) {
	var out []*projectparse.Project
	for _, p := range s.catalog[req.Name] {
		if len(req.Specifier) == 0 || req.Specifier.Match(*p.Version) {
			out = append(out, p)
		}
	}
	return out, nil
}

func project(t *testing.T, name, version string, requires ...string) *projectparse.Project {
	t.Helper()
	ver, err := pep440.ParseVersion(version)
	require.NoError(t, err)
	p := &projectparse.Project{Name: name, Version: ver, Format: projectparse.FormatWheel}
	for _, r := range requires {
		req, err := pep508.Parse(r)
		require.NoError(t, err)
		p.Requirements = append(p.Requirements, *req)
	}
	return p
}

func system(t *testing.T) sysinfo.Info {
	t.Helper()
	info, err := sysinfo.Parse("3.11", "x86_64-linux")
	require.NoError(t, err)
	return info
}

func TestResolvePicksNewestSatisfyingDependency(t *testing.T) {
	finder := stubFinder{catalog: map[string][]*projectparse.Project{
		"foo": {project(t, "foo", "1.0.0", "bar>=2.0")},
		"bar": {project(t, "bar", "1.0.0"), project(t, "bar", "2.0.0")},
	}}
	d := &resolver.Driver{Projects: finder, System: system(t)}

	root, err := pep508.Parse("foo")
	require.NoError(t, err)
	result, err := d.Resolve(context.Background(), []pep508.Requirement{*root})
	require.NoError(t, err)

	require.Contains(t, result, "foo")
	require.Contains(t, result, "bar")
	assert.Equal(t, "2.0.0", result["bar"].Project.Version.String())
}

func TestResolveSkipsMarkerExcludedDependency(t *testing.T) {
	finder := stubFinder{catalog: map[string][]*projectparse.Project{
		"foo": {project(t, "foo", "1.0.0", `pywin32; sys_platform=="win32"`)},
	}}
	d := &resolver.Driver{Projects: finder, System: system(t)}

	root, err := pep508.Parse("foo")
	require.NoError(t, err)
	result, err := d.Resolve(context.Background(), []pep508.Requirement{*root})
	require.NoError(t, err)

	assert.Contains(t, result, "foo")
	assert.NotContains(t, result, "pywin32")
}

func TestResolveHardConstraintConflictIsUnsatisfiable(t *testing.T) {
	finder := stubFinder{catalog: map[string][]*projectparse.Project{
		"click":  {project(t, "click", "7.0.0"), project(t, "click", "9.0.0")},
		"clicka": {project(t, "clicka", "1.0.0", "click<8")},
		"clickb": {project(t, "clickb", "1.0.0", "click>=8")},
	}}
	d := &resolver.Driver{Projects: finder, System: system(t)}

	a, err := pep508.Parse("clicka")
	require.NoError(t, err)
	b, err := pep508.Parse("clickb")
	require.NoError(t, err)

	_, err = d.Resolve(context.Background(), []pep508.Requirement{*a, *b})
	require.Error(t, err)
	var unsat *pylockerr.UnsatisfiableError
	require.ErrorAs(t, err, &unsat)
	assert.Equal(t, "click", unsat.Identifier)
	assert.Len(t, unsat.Requirements, 2)
}
