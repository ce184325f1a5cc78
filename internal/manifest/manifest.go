// Package manifest reads the project-level "[tool.nixpy]" configuration
// table out of a pyproject.toml: target platforms, index URLs, and the
// local overrides a lock run should respect.
package manifest

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/nixpy/pylock/internal/sysinfo"
)

// Manifest is the subset of pyproject.toml this tool reads to configure a
// lock run, independent of the per-distribution [project]/[tool.poetry]
// tables that internal/projectparse reads out of individual archives.
type Manifest struct {
	PythonVersion    string   `toml:"python-version"`
	Platforms        []string `toml:"platforms"`
	IndexURLs        []string `toml:"index-urls"`
	FindLinks        []string `toml:"find-links"`
	ExtraLinks       []string `toml:"extra-links"`
	NixpkgsOverrides []string `toml:"nixpkgs-overrides"`
}

type document struct {
	Tool struct {
		Nixpy Manifest `toml:"nixpy"`
	} `toml:"tool"`
}

var defaultIndexURLs = []string{"https://pypi.org/simple/"}

// Load parses path's [tool.nixpy] table, defaulting python-version to
// "3.11" and index-urls to PyPI when unset; other fields get no default.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: reading %s: %w", path, err)
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parsing %s: %w", path, err)
	}

	m := doc.Tool.Nixpy
	if m.PythonVersion == "" {
		m.PythonVersion = "3.11"
	}
	if len(m.IndexURLs) == 0 {
		m.IndexURLs = defaultIndexURLs
	}
	return &m, nil
}

// SystemInfos expands the manifest's python-version and platforms into one
// sysinfo.Info per target platform.
func (m *Manifest) SystemInfos() ([]sysinfo.Info, error) {
	platforms := m.Platforms
	if len(platforms) == 0 {
		return nil, fmt.Errorf("manifest: no platforms configured")
	}
	infos := make([]sysinfo.Info, 0, len(platforms))
	for _, platform := range platforms {
		info, err := sysinfo.Parse(m.PythonVersion, platform)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}
