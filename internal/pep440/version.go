// Package pep440 implements PEP 440 -- Version Identification and Dependency
// Specification. https://peps.python.org/pep-0440/
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// PreRelease is the "aN"/"bN"/"rcN" segment of a version.
type PreRelease struct {
	L string // one of "a", "b", "rc"
	N int
}

// Version is a parsed PEP 440 version identifier, including an optional
// local version label.
type Version struct {
	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
	Local   []intstr.IntOrString
}

//nolint:lll // mirrors the PEP's own VERSION_PATTERN verbatim
var reVersion = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?P<pre>[-_.]?(?P<pre_l>a|b|c|rc|alpha|beta|pre|preview)[-_.]?(?P<pre_n>[0-9]+)?)?` +
	`(?P<post>(?:-(?P<post_n1>[0-9]+))|(?:[-_.]?(?P<post_l>post|rev|r)[-_.]?(?P<post_n2>[0-9]+)?))?` +
	`(?P<dev>[-_.]?(?P<dev_l>dev)[-_.]?(?P<dev_n>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?\s*$`)

// ParseVersion parses a PEP 440 version identifier.
func ParseVersion(str string) (*Version, error) {
	m := reVersion.FindStringSubmatch(str)
	if m == nil {
		return nil, fmt.Errorf("pep440: invalid version: %q", str)
	}

	var ver Version
	var err error

	if epoch := m[reVersion.SubexpIndex("epoch")]; epoch != "" {
		if ver.Epoch, err = strconv.Atoi(epoch); err != nil {
			return nil, err
		}
	}

	for _, seg := range strings.Split(m[reVersion.SubexpIndex("release")], ".") {
		n, err := strconv.Atoi(seg)
		if err != nil {
			return nil, err
		}
		ver.Release = append(ver.Release, n)
	}

	type letterNumber struct {
		L string
		N int
	}
	parseLN := func(letter, number string, canonical map[string][]string) (*letterNumber, error) {
		if letter == "" && number == "" {
			return nil, nil //nolint:nilnil
		}
		letter = strings.ToLower(letter)
		if letter != "" && number == "" {
			number = "0"
		}
		ret := letterNumber{}
		found := false
		if _, ok := canonical[letter]; ok {
			ret.L, found = letter, true
		} else {
			for canon, aliases := range canonical {
				for _, a := range aliases {
					if letter == a {
						ret.L, found = canon, true
					}
				}
			}
		}
		if !found {
			return nil, fmt.Errorf("pep440: invalid release-segment letter: %q", letter)
		}
		if number != "" {
			if ret.N, err = strconv.Atoi(number); err != nil {
				return nil, err
			}
		}
		return &ret, nil
	}

	pre, err := parseLN(m[reVersion.SubexpIndex("pre_l")], m[reVersion.SubexpIndex("pre_n")],
		map[string][]string{"a": {"alpha"}, "b": {"beta"}, "rc": {"c", "pre", "preview"}})
	if err != nil {
		return nil, fmt.Errorf("pre-release: %w", err)
	}
	if pre != nil {
		ver.Pre = &PreRelease{L: pre.L, N: pre.N}
	}

	post, err := parseLN(m[reVersion.SubexpIndex("post_l")],
		m[reVersion.SubexpIndex("post_n1")]+m[reVersion.SubexpIndex("post_n2")],
		map[string][]string{"post": {"", "rev", "r"}})
	if err != nil {
		return nil, fmt.Errorf("post-release: %w", err)
	}
	if post != nil {
		ver.Post = &post.N
	}

	dev, err := parseLN(m[reVersion.SubexpIndex("dev_l")], m[reVersion.SubexpIndex("dev_n")],
		map[string][]string{"dev": nil})
	if err != nil {
		return nil, fmt.Errorf("dev-release: %w", err)
	}
	if dev != nil {
		ver.Dev = &dev.N
	}

	for _, part := range strings.FieldsFunc(m[reVersion.SubexpIndex("local")], func(r rune) bool {
		return strings.ContainsRune("-_.", r)
	}) {
		ver.Local = append(ver.Local, intstr.Parse(strings.ToLower(part)))
	}

	return &ver, nil
}

func (ver Version) writeTo(b *strings.Builder) {
	if ver.Epoch != 0 {
		fmt.Fprintf(b, "%d!", ver.Epoch)
	}
	for i, seg := range ver.Release {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(b, "%d", seg)
	}
	if ver.Pre != nil {
		fmt.Fprintf(b, "%s%d", ver.Pre.L, ver.Pre.N)
	}
	if ver.Post != nil {
		fmt.Fprintf(b, ".post%d", *ver.Post)
	}
	if ver.Dev != nil {
		fmt.Fprintf(b, ".dev%d", *ver.Dev)
	}
	if len(ver.Local) > 0 {
		b.WriteByte('+')
		for i, seg := range ver.Local {
			if i > 0 {
				b.WriteByte('.')
			}
			switch seg.Type {
			case intstr.Int:
				fmt.Fprintf(b, "%d", seg.IntValue())
			default:
				b.WriteString(seg.StrVal)
			}
		}
	}
}

// String renders the version in canonical PEP 440 form.
func (ver Version) String() string {
	var b strings.Builder
	ver.writeTo(&b)
	return b.String()
}

// Normalize round-trips a version through its canonical string form, which
// also normalizes the Release slice's length to exactly what was parsed.
func (ver Version) Normalize() (*Version, error) {
	return ParseVersion(ver.String())
}

func (ver Version) releaseSegment(n int) int {
	if n >= len(ver.Release) {
		return 0
	}
	return ver.Release[n]
}

// Major, Minor and Micro read the first three release segments, defaulting
// to 0 when absent.
func (ver Version) Major() int { return ver.releaseSegment(0) }
func (ver Version) Minor() int { return ver.releaseSegment(1) }
func (ver Version) Micro() int { return ver.releaseSegment(2) }

// IsPreRelease reports whether ver has a pre-release or dev-release segment;
// per PEP 440 these are excluded from specifier matching by default.
func (ver Version) IsPreRelease() bool {
	return ver.Pre != nil || ver.Dev != nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpRelease(a, b Version) int {
	n := len(a.Release)
	if len(b.Release) > n {
		n = len(b.Release)
	}
	for i := 0; i < n; i++ {
		if c := cmpInt(a.releaseSegment(i), b.releaseSegment(i)); c != 0 {
			return c
		}
	}
	return 0
}

// preReleaseOrder places dev-only releases before all pre-release phases,
// and orders the phases a < b < rc.
var preReleaseOrder = map[string]int{"a": -3, "b": -2, "rc": -1}

func cmpPreRelease(a, b Version) int {
	aDevOnly := a.Pre == nil && a.Post == nil && a.Dev != nil
	bDevOnly := b.Pre == nil && b.Post == nil && b.Dev != nil
	switch {
	case aDevOnly && bDevOnly:
		return 0
	case aDevOnly:
		return -1
	case bDevOnly:
		return 1
	}
	aFinal, bFinal := a.Pre == nil, b.Pre == nil
	switch {
	case aFinal && bFinal:
		return 0
	case aFinal && !bFinal:
		return 1
	case !aFinal && bFinal:
		return -1
	}
	if c := cmpInt(preReleaseOrder[a.Pre.L], preReleaseOrder[b.Pre.L]); c != 0 {
		return c
	}
	return cmpInt(a.Pre.N, b.Pre.N)
}

func cmpPostRelease(a, b Version) int {
	switch {
	case a.Post == nil && b.Post == nil:
		return 0
	case a.Post == nil:
		return -1
	case b.Post == nil:
		return 1
	default:
		return cmpInt(*a.Post, *b.Post)
	}
}

func cmpDevRelease(a, b Version) int {
	switch {
	case a.Dev == nil && b.Dev == nil:
		return 0
	case a.Dev == nil:
		return 1
	case b.Dev == nil:
		return -1
	default:
		return cmpInt(*a.Dev, *b.Dev)
	}
}

func cmpLocalSegment(a, b intstr.IntOrString) int {
	aIsInt, bIsInt := a.Type == intstr.Int, b.Type == intstr.Int
	switch {
	case aIsInt && bIsInt:
		return cmpInt(a.IntValue(), b.IntValue())
	case aIsInt && !bIsInt:
		return 1 // numeric segments sort after alphanumeric ones
	case !aIsInt && bIsInt:
		return -1
	default:
		return strings.Compare(a.StrVal, b.StrVal)
	}
}

func cmpLocal(a, b Version) int {
	switch {
	case len(a.Local) == 0 && len(b.Local) == 0:
		return 0
	case len(a.Local) == 0:
		return -1
	case len(b.Local) == 0:
		return 1
	}
	n := len(a.Local)
	if len(b.Local) < n {
		n = len(b.Local)
	}
	for i := 0; i < n; i++ {
		if c := cmpLocalSegment(a.Local[i], b.Local[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(a.Local), len(b.Local))
}

// Cmp returns -1, 0 or 1 as a is less than, equal to, or greater than b, in
// the order mandated by PEP 440: epoch, release, pre-release, post-release,
// dev-release, local version.
func (ver Version) Cmp(other Version) int {
	if c := cmpInt(ver.Epoch, other.Epoch); c != 0 {
		return c
	}
	if c := cmpRelease(ver, other); c != 0 {
		return c
	}
	if c := cmpPreRelease(ver, other); c != 0 {
		return c
	}
	if c := cmpPostRelease(ver, other); c != 0 {
		return c
	}
	if c := cmpDevRelease(ver, other); c != 0 {
		return c
	}
	return cmpLocal(ver, other)
}
