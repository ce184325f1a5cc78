// Command pylock resolves a Python project's pyproject.toml manifest into
// a per-platform dependency lockfile: one Environment per configured
// target, each naming the Targets (rebuilt Candidates with runtime and
// build dependency ids) it ships. Grounded on the teacher's main.go
// (pflag-based subcommand dispatch, run(args) returning an exit code
// rather than calling os.Exit directly so it stays testable).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/nixpy/pylock/internal/closure"
	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/fetch"
	"github.com/nixpy/pylock/internal/index"
	"github.com/nixpy/pylock/internal/lockfile"
	"github.com/nixpy/pylock/internal/manifest"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep503"
	"github.com/nixpy/pylock/internal/projectparse"
	"github.com/nixpy/pylock/internal/registry"
)

// Version identifies the build; CI may override it with -ldflags.
var Version = "dev"

const defaultHelp = `pylock resolves Python dependencies into a platform lockfile

Usage:

  pylock --project PATH [options]

Options:

  --project PATH     project directory or pyproject.toml (required)
  --lock PATH        lockfile to read preferences from and write results to
  --output PATH      additional destination for the resolved lockfile JSON
  --custom DIR       directory of pre-built packages, may be repeated
  --relock           ignore --lock's pins, re-resolve then overwrite it
  --version          print the version and exit
`

func run(args []string) (int, error) {
	flagSet := pflag.NewFlagSet("pylock", pflag.ContinueOnError)
	project := flagSet.String("project", "", "project directory or pyproject.toml")
	lockPath := flagSet.String("lock", "", "lockfile path (read for preferences, written with results)")
	output := flagSet.String("output", "", "additional destination for the resolved lockfile JSON")
	custom := flagSet.StringArray("custom", nil, "directory of pre-built packages (repeatable)")
	relock := flagSet.Bool("relock", false, "ignore --lock's pins and re-resolve from scratch")
	showVersion := flagSet.Bool("version", false, "print the version and exit")

	if err := flagSet.Parse(args[1:]); err == pflag.ErrHelp {
		fmt.Print(defaultHelp)
		return 0, nil
	} else if err != nil {
		return 2, err
	}

	if *showVersion {
		fmt.Printf("pylock version: %s\n", Version)
		return 0, nil
	}
	if *project == "" {
		fmt.Print(defaultHelp)
		return 2, fmt.Errorf("--project is required")
	}

	lf, err := lock(context.Background(), lockOptions{
		project:  *project,
		lockPath: *lockPath,
		custom:   *custom,
		relock:   *relock,
	})
	if err != nil {
		return 1, err
	}

	data, err := lf.Marshal()
	if err != nil {
		return 1, fmt.Errorf("marshaling lockfile: %w", err)
	}

	destinations := []string{*lockPath, *output}
	wrote := false
	for _, dest := range destinations {
		if dest == "" {
			continue
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return 1, fmt.Errorf("writing %s: %w", dest, err)
		}
		wrote = true
	}
	if !wrote {
		os.Stdout.Write(data)
		fmt.Println()
	}
	return 0, nil
}

type lockOptions struct {
	project  string
	lockPath string
	custom   []string
	relock   bool
}

// lock runs the full pipeline: load the manifest and root project, build
// the Distribution/Project providers, then run the Environment Closure
// once per configured platform, merging every platform's Targets into
// one lockfile (Target ids are content-addressed, so the same Target
// reached from two platforms collapses to one entry).
func lock(ctx context.Context, opts lockOptions) (lockfile.Lockfile, error) {
	projectPath, err := filepath.Abs(opts.project)
	if err != nil {
		return lockfile.Lockfile{}, err
	}
	manifestPath := projectPath
	if fi, err := os.Stat(projectPath); err == nil && fi.IsDir() {
		manifestPath = filepath.Join(projectPath, "pyproject.toml")
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return lockfile.Lockfile{}, err
	}
	systemInfos, err := m.SystemInfos()
	if err != nil {
		return lockfile.Lockfile{}, err
	}

	cacheDir := filepath.Join(os.TempDir(), "pylock")
	fetcher := fetch.NewCaching(filepath.Join(cacheDir, "downloads"))
	parser := projectparse.New(fetcher)

	rootDir := projectPath
	if fi, err := os.Stat(projectPath); err == nil && !fi.IsDir() {
		rootDir = filepath.Dir(projectPath)
	}
	rootProject, err := parser.Parse(ctx, distfile.Distribution{URL: "file://" + rootDir})
	if err != nil {
		return lockfile.Lockfile{}, fmt.Errorf("parsing root project: %w", err)
	}

	distributions := buildDistributionProvider(m, opts.custom, fetcher, cacheDir)
	reg := registry.New(distributions, fetcher, parser, filepath.Join(cacheDir, "project-cache"))

	var previous *lockfile.Lockfile
	if opts.lockPath != "" && !opts.relock {
		if data, err := os.ReadFile(opts.lockPath); err == nil {
			prev, err := lockfile.Unmarshal(data)
			if err != nil {
				return lockfile.Lockfile{}, fmt.Errorf("reading %s: %w", opts.lockPath, err)
			}
			previous = &prev
		}
	}

	lf := lockfile.Lockfile{
		Targets:      map[string]lockfile.Target{},
		Environments: map[string]lockfile.Environment{},
	}
	for _, info := range systemInfos {
		cl := closure.New(reg, info)
		if previous != nil {
			if prefs, ok := preferencesFor(*previous, info.Platform); ok {
				cl.Preferences = prefs
			}
		}

		env, targets, err := cl.Resolve(ctx, rootProject.Requirements)
		if err != nil {
			return lockfile.Lockfile{}, fmt.Errorf("resolving %s: %w", info.Platform, err)
		}
		for id, t := range targets {
			lf.Targets[id] = t
		}
		lf.Environments[info.Platform] = env
	}
	return lf, nil
}

// preferencesFor extracts a previous lockfile's pinned versions for one
// platform, keyed by canonical package name, for seeding a run without
// --relock.
func preferencesFor(previous lockfile.Lockfile, platform string) (map[string]pep440.Version, bool) {
	env, ok := previous.Environments[platform]
	if !ok {
		return nil, false
	}
	prefs := make(map[string]pep440.Version, len(env.AllIDs))
	for _, id := range env.AllIDs {
		t, ok := previous.Targets[id]
		if !ok || t.Candidate.Project.Version == nil {
			continue
		}
		prefs[t.Name()] = *t.Candidate.Project.Version
	}
	return prefs, true
}

// buildDistributionProvider wires the manifest's index-urls/find-links/
// extra-links and the CLI's --custom directories into one Distribution
// Provider, custom and local sources tried first (FirstHit) ahead of the
// network indexes, and the result cached to disk. nixpkgs-overrides names
// packages to delegate to the host Nix package set instead of resolving
// here; since that delegation requires evaluating the host's package set
// (an external collaborator per spec.md §1), it is recorded in the
// manifest but not consulted by this provider chain.
func buildDistributionProvider(m *manifest.Manifest, custom []string, fetcher *fetch.CachingFetcher, cacheDir string) index.Provider {
	var providers []index.Provider
	for _, dir := range custom {
		providers = append(providers, index.CustomDirectory{Path: dir})
	}
	for _, dir := range m.ExtraLinks {
		providers = append(providers, index.CustomDirectory{Path: dir})
	}
	for _, dir := range m.FindLinks {
		providers = append(providers, index.CustomDirectory{Path: dir})
	}
	for _, url := range m.IndexURLs {
		providers = append(providers, index.SimpleIndex{Client: pep503.Client{BaseURL: url}})
	}

	combined := index.Combined{Providers: providers, Mode: index.FirstHit}
	cached := index.Cached{Inner: combined, Resolve: fetcher, CacheDir: filepath.Join(cacheDir, "source-cache")}
	return index.URLShortCircuit{Inner: cached}
}

func main() {
	distfile.SetProcessStartSalt(time.Now().UTC().Format(time.RFC3339Nano))
	exitCode, err := run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode)
}
