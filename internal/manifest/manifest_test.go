package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixpy/pylock/internal/manifest"
)

const sampleManifest = `
[project]
name = "myapp"

[tool.nixpy]
python-version = "3.11"
platforms = ["x86_64-linux", "aarch64-darwin"]
index-urls = ["https://pypi.org/simple/"]
nixpkgs-overrides = ["numpy"]
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pyproject.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	m, err := manifest.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "3.11", m.PythonVersion)
	assert.Equal(t, []string{"x86_64-linux", "aarch64-darwin"}, m.Platforms)
	assert.Equal(t, []string{"numpy"}, m.NixpkgsOverrides)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeManifest(t, "[project]\nname = \"myapp\"\n")
	m, err := manifest.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "3.11", m.PythonVersion)
	assert.Equal(t, []string{"https://pypi.org/simple/"}, m.IndexURLs)
}

func TestSystemInfos(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	m, err := manifest.Load(path)
	require.NoError(t, err)

	infos, err := m.SystemInfos()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "x86_64-linux", infos[0].Platform)
}
