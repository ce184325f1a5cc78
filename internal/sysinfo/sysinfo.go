// Package sysinfo describes the target platform a lock is being resolved
// for and derives the PEP 508 marker-evaluation environment from it.
package sysinfo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nixpy/pylock/internal/pep508"
)

// Info is a target profile: a Python version plus a platform tag such as
// "x86_64-linux" or "aarch64-darwin".
type Info struct {
	PythonVersion [3]int // major, minor, patch
	Platform      string // "{arch}-{os}", e.g. "x86_64-linux"
}

// Parse builds an Info from a "major.minor[.patch]" version string and a
// "{arch}-{os}" platform tag.
func Parse(pythonVersion, platform string) (Info, error) {
	var info Info
	parts := strings.Split(pythonVersion, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Info{}, fmt.Errorf("sysinfo: invalid python-version: %q", pythonVersion)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Info{}, fmt.Errorf("sysinfo: invalid python-version segment %q: %w", p, err)
		}
		info.PythonVersion[i] = n
	}
	if _, _, err := splitPlatform(platform); err != nil {
		return Info{}, err
	}
	info.Platform = platform
	return info, nil
}

func splitPlatform(platform string) (arch, os string, err error) {
	i := strings.LastIndex(platform, "-")
	if i < 0 {
		return "", "", fmt.Errorf("sysinfo: invalid platform tag: %q", platform)
	}
	return platform[:i], platform[i+1:], nil
}

func (info Info) pythonFullVersion() string {
	return fmt.Sprintf("%d.%d.%d", info.PythonVersion[0], info.PythonVersion[1], info.PythonVersion[2])
}

func (info Info) pythonVersion() string {
	return fmt.Sprintf("%d.%d", info.PythonVersion[0], info.PythonVersion[1])
}

// PythonEnvironment derives the PEP 508 marker-evaluation environment for
// this target, matching the field values nixpy's original SystemInfo
// implementation hardcodes per architecture/OS.
func (info Info) PythonEnvironment() (pep508.MapEnv, error) {
	arch, os, err := splitPlatform(info.Platform)
	if err != nil {
		return nil, err
	}

	var platformMachine string
	switch arch {
	case "x86_64":
		platformMachine = "x86_64"
	case "aarch64":
		platformMachine = "arm64"
	case "powerpc64le":
		platformMachine = "ppc64le"
	default:
		return nil, fmt.Errorf("sysinfo: unrecognized architecture: %q", arch)
	}

	var platformSystem, sysPlatform, osName, platformVersion string
	switch os {
	case "linux":
		platformSystem = "Linux"
		sysPlatform = "linux"
		osName = "posix"
		platformVersion = "#1 SMP"
	case "darwin":
		platformSystem = "Darwin"
		sysPlatform = "darwin"
		osName = "posix"
		platformVersion = "Darwin Kernel Version"
	default:
		return nil, fmt.Errorf("sysinfo: unrecognized os: %q", os)
	}

	return pep508.MapEnv{
		"python_full_version":            info.pythonFullVersion(),
		"python_version":                 info.pythonVersion(),
		"implementation_version":         info.pythonFullVersion(),
		"implementation_name":            "cpython",
		"platform_python_implementation": "CPython",
		"platform_system":                platformSystem,
		"platform_version":               platformVersion,
		"platform_machine":               platformMachine,
		"sys_platform":                   sysPlatform,
		"os_name":                        osName,
		"platform_release":               "",
	}, nil
}

// AsJSON renders the fields the lockfile persists for SystemInfo.
func (info Info) AsJSON() map[string]any {
	return map[string]any{
		"python_version": []int{info.PythonVersion[0], info.PythonVersion[1], info.PythonVersion[2]},
		"platform":       info.Platform,
	}
}

// FromJSON reconstructs an Info from its AsJSON form, used when a
// previous lockfile is reloaded for its pinned versions.
func FromJSON(j map[string]any) (Info, error) {
	platform, _ := j["platform"].(string)
	raw, _ := j["python_version"].([]any)
	if len(raw) != 3 {
		return Info{}, fmt.Errorf("sysinfo: expected 3-element python_version, got %v", j["python_version"])
	}
	var info Info
	for i, v := range raw {
		n, ok := v.(float64) // encoding/json decodes numbers as float64
		if !ok {
			return Info{}, fmt.Errorf("sysinfo: invalid python_version segment %v", v)
		}
		info.PythonVersion[i] = int(n)
	}
	if _, _, err := splitPlatform(platform); err != nil {
		return Info{}, err
	}
	info.Platform = platform
	return info, nil
}
