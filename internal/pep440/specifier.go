package pep440

import (
	"fmt"
	"regexp"
	"strings"
)

// CmpOp is a version-specifier comparison operator.
type CmpOp int

const (
	CmpOpCompatible     CmpOp = iota // ~=
	CmpOpStrictMatch                 // ==, no trailing .*
	CmpOpPrefixMatch                 // ==X.Y.*
	CmpOpStrictExclude               // !=, no trailing .*
	CmpOpPrefixExclude               // !=X.Y.*
	CmpOpLE                          // <=
	CmpOpGE                          // >=
	CmpOpLT                          // <
	CmpOpGT                          // >
	CmpOpArbitraryEqual              // ===
)

func (op CmpOp) String() string {
	switch op {
	case CmpOpCompatible:
		return "~="
	case CmpOpStrictMatch, CmpOpPrefixMatch:
		return "=="
	case CmpOpStrictExclude, CmpOpPrefixExclude:
		return "!="
	case CmpOpLE:
		return "<="
	case CmpOpGE:
		return ">="
	case CmpOpLT:
		return "<"
	case CmpOpGT:
		return ">"
	case CmpOpArbitraryEqual:
		return "==="
	default:
		panic(fmt.Sprintf("invalid CmpOp: %d", op))
	}
}

// SpecifierClause is a single comparison, e.g. ">=1.16" or "!=1.17.*".
type SpecifierClause struct {
	Op      CmpOp
	Version Version
	// Arbitrary holds the raw RHS for CmpOpArbitraryEqual, which compares
	// as a plain string rather than a parsed version.
	Arbitrary string
}

var reSpecifierClause = regexp.MustCompile(
	`^\s*(===|~=|==|!=|<=|>=|<|>)\s*(.+?)\s*$`)

func parseSpecifierClause(str string) (SpecifierClause, error) {
	m := reSpecifierClause.FindStringSubmatch(str)
	if m == nil {
		return SpecifierClause{}, fmt.Errorf("pep440: invalid specifier clause: %q", str)
	}
	opStr, verStr := m[1], m[2]

	if opStr == "===" {
		return SpecifierClause{Op: CmpOpArbitraryEqual, Arbitrary: verStr}, nil
	}

	wildcard := strings.HasSuffix(verStr, ".*")
	trimmed := strings.TrimSuffix(verStr, ".*")
	ver, err := ParseVersion(trimmed)
	if err != nil {
		return SpecifierClause{}, err
	}

	var op CmpOp
	switch opStr {
	case "~=":
		if wildcard || len(ver.Release) < 2 {
			return SpecifierClause{}, fmt.Errorf("pep440: ~= requires at least two release segments: %q", str)
		}
		op = CmpOpCompatible
	case "==":
		if wildcard {
			op = CmpOpPrefixMatch
		} else {
			op = CmpOpStrictMatch
		}
	case "!=":
		if wildcard {
			op = CmpOpPrefixExclude
		} else {
			op = CmpOpStrictExclude
		}
	case "<=":
		op = CmpOpLE
	case ">=":
		op = CmpOpGE
	case "<":
		op = CmpOpLT
	case ">":
		op = CmpOpGT
	default:
		return SpecifierClause{}, fmt.Errorf("pep440: unknown operator: %q", opStr)
	}
	return SpecifierClause{Op: op, Version: *ver}, nil
}

func (c SpecifierClause) String() string {
	if c.Op == CmpOpArbitraryEqual {
		return "===" + c.Arbitrary
	}
	s := c.Version.String()
	switch c.Op {
	case CmpOpPrefixMatch, CmpOpPrefixExclude:
		s += ".*"
	}
	return c.Op.String() + s
}

func stripLocal(v Version) Version {
	v.Local = nil
	return v
}

// Match reports whether ver satisfies this clause.
func (c SpecifierClause) Match(ver Version) bool {
	switch c.Op {
	case CmpOpArbitraryEqual:
		return ver.String() == c.Arbitrary
	case CmpOpCompatible:
		// ~=X.Y(.Z...) means >=X.Y(.Z...), ==X.* (the release truncated to
		// all but the last given segment)
		upperBound := c.Version
		upperBound.Release = append([]int{}, c.Version.Release[:len(c.Version.Release)-1]...)
		ge := SpecifierClause{Op: CmpOpGE, Version: c.Version}
		eqPrefix := SpecifierClause{Op: CmpOpPrefixMatch, Version: upperBound}
		return ge.Match(ver) && eqPrefix.Match(ver)
	case CmpOpStrictMatch:
		return stripLocal(ver).Cmp(stripLocal(c.Version)) == 0 && cmpLocal(ver, c.Version) == 0
	case CmpOpStrictExclude:
		cl := c
		cl.Op = CmpOpStrictMatch
		return !cl.Match(ver)
	case CmpOpPrefixMatch:
		return prefixReleaseMatch(c.Version, ver)
	case CmpOpPrefixExclude:
		cl := c
		cl.Op = CmpOpPrefixMatch
		return !cl.Match(ver)
	case CmpOpLE:
		return stripLocal(ver).Cmp(stripLocal(c.Version)) <= 0
	case CmpOpGE:
		return stripLocal(ver).Cmp(stripLocal(c.Version)) >= 0
	case CmpOpLT:
		if stripLocal(ver).Cmp(stripLocal(c.Version)) >= 0 {
			return false
		}
		// exclusive ordered comparisons also exclude pre-releases of the
		// boundary version, unless the boundary itself is a pre-release.
		if ver.Pre != nil && !c.Version.IsPreRelease() && sameRelease(ver, c.Version) {
			return false
		}
		return true
	case CmpOpGT:
		if stripLocal(ver).Cmp(stripLocal(c.Version)) <= 0 {
			return false
		}
		if ver.Post != nil && c.Version.Post == nil && sameRelease(ver, c.Version) {
			return false
		}
		return true
	default:
		panic(fmt.Sprintf("invalid CmpOp: %d", c.Op))
	}
}

func sameRelease(a, b Version) bool {
	n := len(a.Release)
	if len(b.Release) > n {
		n = len(b.Release)
	}
	av, bv := a, b
	for len(av.Release) < n {
		av.Release = append(av.Release, 0)
	}
	for len(bv.Release) < n {
		bv.Release = append(bv.Release, 0)
	}
	for i := range av.Release {
		if av.Release[i] != bv.Release[i] {
			return false
		}
	}
	return true
}

// prefixReleaseMatch implements "==X.Y.*": ver's epoch must equal spec's
// and ver's release segments must start with spec's release segments;
// local segments are not compared.
func prefixReleaseMatch(spec, ver Version) bool {
	if spec.Epoch != ver.Epoch {
		return false
	}
	if len(ver.Release) < len(spec.Release) {
		return false
	}
	for i, seg := range spec.Release {
		if ver.Release[i] != seg {
			return false
		}
	}
	return true
}

// Specifier is a conjunction of SpecifierClauses (all must match).
type Specifier []SpecifierClause

// ParseSpecifier parses a comma-separated PEP 440 specifier set, e.g.
// ">=1.16,!=1.17.0,<2".
func ParseSpecifier(str string) (Specifier, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return nil, nil
	}
	var ret Specifier
	for _, part := range strings.Split(str, ",") {
		clause, err := parseSpecifierClause(part)
		if err != nil {
			return nil, err
		}
		ret = append(ret, clause)
	}
	return ret, nil
}

func (spec Specifier) String() string {
	parts := make([]string, len(spec))
	for i, c := range spec {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Match reports whether ver satisfies every clause, additionally excluding
// pre-releases and dev-releases unless a clause explicitly names one (the
// "implicitly exclude pre-releases" rule from PEP 440).
func (spec Specifier) Match(ver Version) bool {
	for _, c := range spec {
		if !c.Match(ver) {
			return false
		}
	}
	if ver.IsPreRelease() && !spec.allowsPreReleases() {
		return false
	}
	return true
}

func (spec Specifier) allowsPreReleases() bool {
	for _, c := range spec {
		if c.Version.IsPreRelease() {
			return true
		}
		if c.Op == CmpOpArbitraryEqual {
			return true
		}
	}
	return false
}
