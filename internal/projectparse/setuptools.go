package projectparse

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/metadata"
	"github.com/nixpy/pylock/internal/pep508"
	"github.com/nixpy/pylock/internal/pylockerr"
)

// setuptoolsEggInfoWriting matches the "writing .../PKG-INFO" line
// setuptools prints during egg_info, the same line pip greps for when
// locating the generated metadata file.
var setuptoolsEggInfoWriting = regexp.MustCompile(`writing ([.\-/\w]*/PKG-INFO)`)

// parseSetupPy is the legacy fallback: a package with only a setup.py runs
// arbitrary code to produce PKG-INFO. This is a genuine trust boundary --
// spec.md defers sandboxing policy to the caller, so no sandbox is added
// here (see DESIGN.md's Open Question resolution).
func (p *Parser) parseSetupPy(ctx context.Context, d distfile.Distribution, setupPyPath string) (*Project, error) {
	dir := filepath.Dir(setupPyPath)

	cmd := exec.CommandContext(ctx, "python3", "setup.py", "egg_info")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PYTHONPATH=")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, pylockerr.AsParseError(setupPyPath, "running setup.py egg_info: "+string(output), err)
	}

	pkgInfoRelPath := ""
	if m := setuptoolsEggInfoWriting.FindSubmatch(output); m != nil {
		pkgInfoRelPath = string(m[1])
	}

	var pkgInfoPath string
	if pkgInfoRelPath != "" {
		pkgInfoPath = filepath.Join(dir, pkgInfoRelPath)
	} else {
		found := ""
		_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err == nil && !entry.IsDir() && entry.Name() == "PKG-INFO" && found == "" {
				found = path
			}
			return nil
		})
		if found == "" {
			return nil, pylockerr.AsParseError(setupPyPath, "egg_info did not produce a PKG-INFO file", nil)
		}
		pkgInfoPath = found
	}

	f, err := os.Open(pkgInfoPath)
	if err != nil {
		return nil, pylockerr.AsParseError(pkgInfoPath, "opening generated PKG-INFO", err)
	}
	defer f.Close()

	m, err := metadata.Parse(f)
	if err != nil {
		return nil, err
	}
	project, err := projectFromMetadata(d, FormatSetuptools, m)
	if err != nil {
		return nil, err
	}

	setuptoolsDep, err := pep508.Parse("setuptools")
	if err != nil {
		return nil, err
	}
	project.BuildRequirements = append(project.BuildRequirements, *setuptoolsDep)
	return project, nil
}
