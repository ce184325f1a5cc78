package projectparse_test

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/fetch"
	"github.com/nixpy/pylock/internal/projectparse"
)

func writeWheel(t *testing.T, dir, filename, metadataBody string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("requests-2.31.0.dist-info/METADATA")
	require.NoError(t, err)
	_, err = w.Write([]byte(metadataBody))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func TestParseWheel(t *testing.T) {
	dir := t.TempDir()
	path := writeWheel(t, dir, "requests-2.31.0-py3-none-any.whl", "Name: requests\nVersion: 2.31.0\nRequires-Dist: charset-normalizer (<4,>=2)\nRequires-Dist: certifi\n")

	p := projectparse.New(fetch.New())
	project, err := p.Parse(context.Background(), distfile.Distribution{URL: "file://" + path})
	require.NoError(t, err)

	assert.Equal(t, "requests", project.Name)
	assert.Equal(t, "2.31.0", project.Version.String())
	assert.Equal(t, projectparse.FormatWheel, project.Format)
	require.Len(t, project.Requirements, 2)
}

func TestParsePyprojectDirectory(t *testing.T) {
	dir := t.TempDir()
	content := `
[project]
name = "mypkg"
version = "1.2.3"
dependencies = ["requests>=2.0"]

[build-system]
requires = ["setuptools>=61"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(content), 0o644))

	p := projectparse.New(fetch.New())
	project, err := p.Parse(context.Background(), distfile.Distribution{URL: "file://" + dir})
	require.NoError(t, err)

	assert.Equal(t, "mypkg", project.Name)
	assert.Equal(t, "1.2.3", project.Version.String())
	assert.Equal(t, projectparse.FormatPyproject, project.Format)
	require.Len(t, project.Requirements, 1)
	require.Len(t, project.BuildRequirements, 1)
}

func TestParsePoetryDirectory(t *testing.T) {
	dir := t.TempDir()
	content := `
[tool.poetry]
name = "mypkg"
version = "1.2.3"

[tool.poetry.dependencies]
python = "^3.9"
requests = "^2.0"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(content), 0o644))

	p := projectparse.New(fetch.New())
	project, err := p.Parse(context.Background(), distfile.Distribution{URL: "file://" + dir})
	require.NoError(t, err)

	assert.Equal(t, "mypkg", project.Name)
	require.NotNil(t, project.ReqPython)
	require.Len(t, project.Requirements, 1)
}

