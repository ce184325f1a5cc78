package projectparse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/metadata"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep508"
	"github.com/nixpy/pylock/internal/pylockerr"
)

// parseProjectDirectory implements the decision tree from spec.md §4.2's
// source-archive branch: PKG-INFO (with format decided by setup.py vs
// pyproject.toml presence), else pyproject.toml's [project]/[tool.poetry],
// else a legacy setup.py egg-info shim. A default.nix sibling overrides
// the resulting format to FormatNix regardless of which branch fired.
func (p *Parser) parseProjectDirectory(ctx context.Context, d distfile.Distribution, dir string, versionHint *pep440.Version) (*Project, error) {
	project, err := p.dispatchProjectDirectory(ctx, d, dir, versionHint)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, "default.nix")); err == nil {
		project.Format = FormatNix
	}
	return project, nil
}

func (p *Parser) dispatchProjectDirectory(ctx context.Context, d distfile.Distribution, dir string, versionHint *pep440.Version) (*Project, error) {
	pkgInfoPath := filepath.Join(dir, "PKG-INFO")
	setupPath := filepath.Join(dir, "setup.py")
	pyprojectPath := filepath.Join(dir, "pyproject.toml")

	if data, err := os.ReadFile(pkgInfoPath); err == nil && versionHint == nil {
		m, err := metadata.Parse(strings.NewReader(string(data)))
		if err != nil {
			return nil, err
		}
		format := FormatMetadata
		if _, err := os.Stat(setupPath); err == nil {
			format = FormatSetuptools
		} else if _, err := os.Stat(pyprojectPath); err == nil {
			format = FormatPyproject
		}
		return projectFromMetadata(d, format, m)
	}

	if _, err := os.Stat(pyprojectPath); err == nil {
		return parsePyprojectTOML(d, pyprojectPath, versionHint)
	}

	if _, err := os.Stat(setupPath); err == nil {
		return p.parseSetupPy(ctx, d, setupPath)
	}

	return nil, pylockerr.AsParseError(dir, "no PKG-INFO, pyproject.toml or setup.py found", nil)
}

// projectRootTemplate substitutes $PROJECT_ROOT/${PROJECT_ROOT} and
// $PWD/${PWD} with root, matching string.Template in nixpy's parser.py.
// This is a blind textual substitution, same as the original: it does not
// understand TOML string-escaping, so a root path containing a quote
// character could corrupt the document. Documented as a known limitation
// (DESIGN.md), not fixed, since the spec describes this exact behavior.
func projectRootTemplate(content, root string) string {
	replacer := strings.NewReplacer(
		"${PROJECT_ROOT}", root,
		"$PROJECT_ROOT", root,
		"${PWD}", root,
		"$PWD", root,
	)
	return replacer.Replace(content)
}

type pyprojectDocument struct {
	Project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		Dependencies         []string             `toml:"dependencies"`
		OptionalDependencies map[string][]string  `toml:"optional-dependencies"`
		Dynamic              []string             `toml:"dynamic"`
		RequiresPython       string               `toml:"requires-python"`
	} `toml:"project"`
	BuildSystem struct {
		Requires []string `toml:"requires"`
	} `toml:"build-system"`
	Tool struct {
		Poetry poetryTable `toml:"poetry"`
	} `toml:"tool"`
}

type poetryTable struct {
	Name         string            `toml:"name"`
	Version      string            `toml:"version"`
	Dependencies map[string]string `toml:"dependencies"`
}

func parsePyprojectTOML(d distfile.Distribution, path string, versionHint *pep440.Version) (*Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pylockerr.AsParseError(path, "reading pyproject.toml", err)
	}
	content := projectRootTemplate(string(raw), filepath.Dir(path))

	var doc pyprojectDocument
	if err := toml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, pylockerr.AsParseError(path, "parsing pyproject.toml", err)
	}

	if doc.Project.Name != "" {
		return projectFromPEP621(d, path, doc, versionHint)
	}
	if doc.Tool.Poetry.Name != "" {
		return projectFromPoetry(d, path, doc.Tool.Poetry, doc.BuildSystem.Requires, versionHint)
	}
	return nil, pylockerr.AsParseError(path, "no [project] or [tool.poetry] table", nil)
}

func projectFromPEP621(d distfile.Distribution, path string, doc pyprojectDocument, versionHint *pep440.Version) (*Project, error) {
	version := versionHint
	isDynamicVersion := false
	for _, field := range doc.Project.Dynamic {
		if field == "version" {
			isDynamicVersion = true
		}
	}
	if doc.Project.Version != "" {
		v, err := pep440.ParseVersion(doc.Project.Version)
		if err != nil {
			return nil, pylockerr.AsParseError(path, "invalid [project].version", err)
		}
		version = v
	} else if !isDynamicVersion && version == nil {
		return nil, pylockerr.AsParseError(path, "unable to determine project version", nil)
	}

	isDynamicDeps := false
	for _, field := range doc.Project.Dynamic {
		if field == "dependencies" {
			isDynamicDeps = true
		}
	}
	if isDynamicDeps || isDynamicVersion {
		// spec.md §4.2: dynamic metadata requires invoking the PEP 517 build
		// backend in an isolated environment; no such sandbox exists here.
		return nil, pylockerr.AsParseError(path, "dynamic [project] fields require a PEP 517 build backend, which is not implemented", nil)
	}

	deps, err := parseRequirementList(doc.Project.Dependencies)
	if err != nil {
		return nil, pylockerr.AsParseError(path, "invalid [project].dependencies", err)
	}
	for extra, rows := range doc.Project.OptionalDependencies {
		extraDeps, err := parseRequirementList(rows)
		if err != nil {
			return nil, pylockerr.AsParseError(path, fmt.Sprintf("invalid [project.optional-dependencies.%s]", extra), err)
		}
		deps = append(deps, extraDeps...)
	}

	buildDeps, err := parseRequirementList(doc.BuildSystem.Requires)
	if err != nil {
		return nil, pylockerr.AsParseError(path, "invalid [build-system].requires", err)
	}

	var reqPython pep440.Specifier
	if doc.Project.RequiresPython != "" {
		reqPython, err = pep440.ParseSpecifier(doc.Project.RequiresPython)
		if err != nil {
			return nil, pylockerr.AsParseError(path, "invalid [project].requires-python", err)
		}
	}

	return &Project{
		Name:              Canonicalize(doc.Project.Name),
		Version:           version,
		Format:            FormatPyproject,
		ReqPython:         reqPython,
		Distribution:      d,
		Requirements:      deps,
		BuildRequirements: buildDeps,
	}, nil
}

func parseRequirementList(rows []string) ([]pep508.Requirement, error) {
	var out []pep508.Requirement
	for _, raw := range rows {
		r, err := pep508.Parse(raw)
		if err != nil {
			return nil, err
		}
		r.Name = Canonicalize(r.Name)
		out = append(out, *r)
	}
	return out, nil
}

var poetryCaretRe = regexp.MustCompile(`^\^(\d+(?:\.\d+)*)$`)
var poetryBareVersionRe = regexp.MustCompile(`^\d+(?:\.\d+)*$`)

// translatePoetrySpecifier converts Poetry's version-string grammar to PEP
// 440, per spec.md §4.2: "^X.Y" becomes "~=X.Y", a bare "X.Y" becomes
// "==X.Y", and anything already comparator-prefixed (">=", "~=", ...)
// passes through unchanged.
func translatePoetrySpecifier(spec string) string {
	spec = strings.TrimSpace(spec)
	if m := poetryCaretRe.FindStringSubmatch(spec); m != nil {
		return "~=" + m[1]
	}
	if poetryBareVersionRe.MatchString(spec) {
		return "==" + spec
	}
	return spec
}

func projectFromPoetry(d distfile.Distribution, path string, poetry poetryTable, buildRequires []string, versionHint *pep440.Version) (*Project, error) {
	version := versionHint
	if poetry.Version != "" {
		v, err := pep440.ParseVersion(poetry.Version)
		if err != nil {
			return nil, pylockerr.AsParseError(path, "invalid [tool.poetry].version", err)
		}
		version = v
	}
	if version == nil {
		return nil, pylockerr.AsParseError(path, "unable to determine project version", nil)
	}

	var reqPython pep440.Specifier
	var deps []pep508.Requirement
	for name, spec := range poetry.Dependencies {
		if name == "python" {
			s, err := pep440.ParseSpecifier(translatePoetrySpecifier(spec))
			if err != nil {
				return nil, pylockerr.AsParseError(path, "invalid python dependency constraint", err)
			}
			reqPython = s
			continue
		}
		r, err := pep508.Parse(Canonicalize(name) + translatePoetrySpecifier(spec))
		if err != nil {
			return nil, pylockerr.AsParseError(path, fmt.Sprintf("invalid [tool.poetry.dependencies].%s", name), err)
		}
		deps = append(deps, *r)
	}

	buildDeps, err := parseRequirementList(buildRequires)
	if err != nil {
		return nil, pylockerr.AsParseError(path, "invalid [build-system].requires", err)
	}

	return &Project{
		Name:              Canonicalize(poetry.Name),
		Version:           version,
		Format:            FormatPyproject,
		ReqPython:         reqPython,
		Distribution:      d,
		Requirements:      deps,
		BuildRequirements: buildDeps,
	}, nil
}
