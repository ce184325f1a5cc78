package lockfile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixpy/pylock/internal/candidate"
	"github.com/nixpy/pylock/internal/lockfile"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/projectparse"
	"github.com/nixpy/pylock/internal/sysinfo"
)

func testCandidate(t *testing.T, name, version string) candidate.Candidate {
	t.Helper()
	ver, err := pep440.ParseVersion(version)
	require.NoError(t, err)
	info, err := sysinfo.Parse("3.11", "x86_64-linux")
	require.NoError(t, err)
	return candidate.Candidate{
		Project: &projectparse.Project{Name: name, Version: ver, Format: projectparse.FormatWheel},
		System:  info,
	}
}

func TestTargetIDStableUnderDependencyOrder(t *testing.T) {
	c := testCandidate(t, "foo", "1.0.0")
	a := lockfile.Target{Candidate: c, Dependencies: []string{"bar-id", "baz-id"}}
	b := lockfile.Target{Candidate: c, Dependencies: []string{"baz-id", "bar-id"}}

	idA, err := a.ID()
	require.NoError(t, err)
	idB, err := b.ID()
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
}

func TestTargetIDDiffersOnDependencyChange(t *testing.T) {
	c := testCandidate(t, "foo", "1.0.0")
	a := lockfile.Target{Candidate: c, Dependencies: []string{"bar-id"}}
	b := lockfile.Target{Candidate: c, Dependencies: []string{"bar-id", "baz-id"}}

	idA, err := a.ID()
	require.NoError(t, err)
	idB, err := b.ID()
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)
}

func TestLockfileMarshalUnmarshalRoundTrip(t *testing.T) {
	foo := testCandidate(t, "foo", "1.0.0")
	bar := testCandidate(t, "bar", "2.0.0")
	barTarget := lockfile.Target{Candidate: bar}
	barID, err := barTarget.ID()
	require.NoError(t, err)
	fooTarget := lockfile.Target{Candidate: foo, Dependencies: []string{barID}}
	fooID, err := fooTarget.ID()
	require.NoError(t, err)

	lf := lockfile.Lockfile{
		Targets: map[string]lockfile.Target{
			fooID: fooTarget,
			barID: barTarget,
		},
		Environments: map[string]lockfile.Environment{
			"x86_64-linux": {
				System:  foo.System,
				AllIDs:  []string{fooID, barID},
				RootIDs: []string{fooID},
			},
		},
	}

	data, err := lf.Marshal()
	require.NoError(t, err)

	reloaded, err := lockfile.Unmarshal(data)
	require.NoError(t, err)
	require.Contains(t, reloaded.Targets, fooID)
	require.Contains(t, reloaded.Targets, barID)
	assert.Equal(t, "foo", reloaded.Targets[fooID].Name())
	assert.Equal(t, []string{barID}, reloaded.Targets[fooID].Dependencies)

	env, ok := reloaded.Environments["x86_64-linux"]
	require.True(t, ok)
	assert.ElementsMatch(t, []string{fooID, barID}, env.AllIDs)
	assert.Equal(t, []string{fooID}, env.RootIDs)
}
