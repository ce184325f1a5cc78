package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep508"
	"github.com/nixpy/pylock/internal/projectparse"
	"github.com/nixpy/pylock/internal/registry"
)

type stubDistProvider struct {
	dists []distfile.Distribution
}

func (s stubDistProvider) FindDistributions(ctx context.Context, req pep508.Requirement) ([]distfile.Distribution, error) {
	return s.dists, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, d distfile.Distribution) (distfile.Distribution, error) {
	d.ContentHash = "deadbeef"
	return d, nil
}

type stubParser struct {
	calls int
}

func (s *stubParser) Parse(ctx context.Context, d distfile.Distribution) (*projectparse.Project, error) {
	s.calls++
	ver, _ := pep440.ParseVersion("1.0.0")
	return &projectparse.Project{Name: "pkg", Version: ver, Format: projectparse.FormatWheel, Distribution: d}, nil
}

func TestFindProjectsParsesAndCaches(t *testing.T) {
	parser := &stubParser{}
	dist := stubDistProvider{dists: []distfile.Distribution{{URL: "https://example.com/pkg-1.0.0-py3-none-any.whl"}}}
	reg := registry.New(dist, stubResolver{}, parser, "")

	projects, err := reg.FindProjects(context.Background(), pep508.Requirement{Name: "pkg"})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "pkg", projects[0].Name)
	assert.Equal(t, 1, parser.calls)

	// Second call for the same name should hit the in-memory cache, not reparse.
	projects2, err := reg.FindProjects(context.Background(), pep508.Requirement{Name: "pkg"})
	require.NoError(t, err)
	require.Len(t, projects2, 1)
	assert.Equal(t, 1, parser.calls)
}

func TestFindProjectsFiltersBySpecifier(t *testing.T) {
	parser := &stubParser{}
	dist := stubDistProvider{dists: []distfile.Distribution{{URL: "https://example.com/pkg-1.0.0-py3-none-any.whl"}}}
	reg := registry.New(dist, stubResolver{}, parser, "")

	spec, err := pep440.ParseSpecifier(">=2.0.0")
	require.NoError(t, err)

	projects, err := reg.FindProjects(context.Background(), pep508.Requirement{Name: "pkg", Specifier: spec})
	require.NoError(t, err)
	assert.Len(t, projects, 0)
}
