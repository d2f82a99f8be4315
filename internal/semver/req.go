package semver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyRequirement   = errors.New("semver: empty requirement")
	ErrInvalidRequirement = errors.New("semver: invalid requirement")
)

type op int

const (
	opCaret op = iota // also the default for a bare version
	opTilde
	opExact
	opGreater
	opGreaterEq
	opLess
	opLessEq
	opWildcard
)

// partial is a version requirement operand; minor and patch may be
// omitted (`1`, `1.2`), which widens the matched range.
type partial struct {
	major    uint64
	minor    uint64
	patch    uint64
	hasMajor bool
	hasMinor bool
	hasPatch bool
	pre      string
}

type comparator struct {
	op op
	v  partial
}

// Req is a version requirement with Cargo operator semantics: a
// comma-separated comparator set where every comparator must match.
// A bare version is a caret requirement.
type Req struct {
	raw   string
	comps []comparator
}

// ParseReq parses a requirement such as "0.7.0", "^1.2", "~0.15",
// "=2.0.1", ">=0.4, <0.6" or "1.*".
func ParseReq(s string) (Req, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Req{}, ErrEmptyRequirement
	}
	parts := strings.Split(raw, ",")
	comps := make([]comparator, 0, len(parts))
	for _, part := range parts {
		c, err := parseComparator(strings.TrimSpace(part))
		if err != nil {
			return Req{}, err
		}
		comps = append(comps, c)
	}
	return Req{raw: raw, comps: comps}, nil
}

func parseComparator(s string) (comparator, error) {
	if s == "" {
		return comparator{}, fmt.Errorf("%w: empty comparator", ErrInvalidRequirement)
	}
	c := comparator{op: opCaret}
	explicit := true
	switch {
	case strings.HasPrefix(s, ">="):
		c.op, s = opGreaterEq, s[2:]
	case strings.HasPrefix(s, "<="):
		c.op, s = opLessEq, s[2:]
	case strings.HasPrefix(s, ">"):
		c.op, s = opGreater, s[1:]
	case strings.HasPrefix(s, "<"):
		c.op, s = opLess, s[1:]
	case strings.HasPrefix(s, "="):
		c.op, s = opExact, s[1:]
	case strings.HasPrefix(s, "^"):
		c.op, s = opCaret, s[1:]
	case strings.HasPrefix(s, "~"):
		c.op, s = opTilde, s[1:]
	default:
		explicit = false
	}
	s = strings.TrimSpace(s)
	if s == "*" {
		if explicit {
			return comparator{}, fmt.Errorf("%w: operator with bare wildcard", ErrInvalidRequirement)
		}
		return comparator{op: opWildcard}, nil
	}

	p, wildcard, err := parsePartial(s)
	if err != nil {
		return comparator{}, err
	}
	if wildcard {
		if explicit {
			return comparator{}, fmt.Errorf("%w: operator with wildcard component in %q", ErrInvalidRequirement, s)
		}
		c.op = opWildcard
	}
	c.v = p
	return c, nil
}

func parsePartial(s string) (partial, bool, error) {
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i] // build metadata carries no requirement meaning
	}
	var p partial
	if i := strings.IndexByte(s, '-'); i >= 0 {
		p.pre = s[i+1:]
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return partial{}, false, fmt.Errorf("%w: %q", ErrInvalidRequirement, s)
	}
	wildcard := false
	for i, comp := range parts {
		if comp == "*" || comp == "x" || comp == "X" {
			if i == 0 {
				return partial{}, false, fmt.Errorf("%w: wildcard major in %q", ErrInvalidRequirement, s)
			}
			wildcard = true
			break
		}
		n, err := strconv.ParseUint(comp, 10, 64)
		if err != nil {
			return partial{}, false, fmt.Errorf("%w: component %q", ErrInvalidRequirement, comp)
		}
		switch i {
		case 0:
			p.major, p.hasMajor = n, true
		case 1:
			p.minor, p.hasMinor = n, true
		case 2:
			p.patch, p.hasPatch = n, true
		}
	}
	return p, wildcard, nil
}

// Matches reports whether v satisfies every comparator in the set.
// Pre-release versions only match when some comparator names a
// pre-release on the same major.minor.patch triple.
func (r Req) Matches(v Version) bool {
	if len(r.comps) == 0 {
		return false
	}
	for _, c := range r.comps {
		if !c.matches(v) {
			return false
		}
	}
	if v.Pre != "" && !r.allowsPre(v) {
		return false
	}
	return true
}

func (r Req) allowsPre(v Version) bool {
	for _, c := range r.comps {
		if c.v.pre != "" &&
			c.v.major == v.Major &&
			c.v.hasMinor && c.v.minor == v.Minor &&
			c.v.hasPatch && c.v.patch == v.Patch {
			return true
		}
	}
	return false
}

func (c comparator) matches(v Version) bool {
	lo := Version{Major: c.v.major, Minor: c.v.minor, Patch: c.v.patch, Pre: c.v.pre}
	switch c.op {
	case opExact:
		if !c.v.hasMinor {
			return v.Major == c.v.major
		}
		if !c.v.hasPatch {
			return v.Major == c.v.major && v.Minor == c.v.minor
		}
		return v.Compare(lo) == 0
	case opGreater:
		return c.compareBound(v, lo) > 0
	case opGreaterEq:
		return c.compareBound(v, lo) >= 0
	case opLess:
		return c.compareBound(v, lo) < 0
	case opLessEq:
		return c.compareBound(v, lo) <= 0
	case opTilde:
		return v.Compare(lo) >= 0 && v.Compare(c.tildeUpper()) < 0
	case opWildcard:
		// a bare `*` carries no operand and matches everything
		if !c.v.hasMajor {
			return true
		}
		if !c.v.hasMinor {
			return v.Major == c.v.major
		}
		return v.Major == c.v.major && v.Minor == c.v.minor
	default: // caret
		return v.Compare(lo) >= 0 && v.Compare(c.caretUpper()) < 0
	}
}

// compareBound compares v against an inequality operand, ignoring the
// components the operand omits: `>1.2` compares major.minor tuples.
func (c comparator) compareBound(v, lo Version) int {
	if !c.v.hasMinor {
		return compareUint(v.Major, c.v.major)
	}
	if !c.v.hasPatch {
		if cm := compareUint(v.Major, c.v.major); cm != 0 {
			return cm
		}
		return compareUint(v.Minor, c.v.minor)
	}
	return v.Compare(lo)
}

// tildeUpper: ~1.2.3 and ~1.2 admit patch bumps only, ~1 admits
// minor bumps.
func (c comparator) tildeUpper() Version {
	if c.v.hasMinor {
		return Version{Major: c.v.major, Minor: c.v.minor + 1, Pre: "0"}
	}
	return Version{Major: c.v.major + 1, Pre: "0"}
}

// caretUpper bumps the left-most non-zero component, so ^0.7.0 stays
// below 0.8.0 and ^0.0.3 below 0.0.4.
func (c comparator) caretUpper() Version {
	switch {
	case c.v.major > 0:
		return Version{Major: c.v.major + 1, Pre: "0"}
	case c.v.hasMinor && c.v.minor > 0:
		return Version{Minor: c.v.minor + 1, Pre: "0"}
	case c.v.hasPatch:
		return Version{Patch: c.v.patch + 1, Pre: "0"}
	case c.v.hasMinor:
		// ^0.0 means >=0.0.0 <0.1.0
		return Version{Minor: 1, Pre: "0"}
	default:
		// ^0 means >=0.0.0 <1.0.0
		return Version{Major: 1, Pre: "0"}
	}
}

// Intersects reports whether some version could satisfy both
// requirements. The test is cross-matching each requirement's lower
// bound, which is exact for the operator forms manifests use.
func (r Req) Intersects(o Req) bool {
	return o.Matches(r.lowerBound()) || r.Matches(o.lowerBound())
}

// lowerBound is the smallest version a comparator set can match.
// Upper-bound-only comparators contribute nothing.
func (r Req) lowerBound() Version {
	var lo Version
	for _, c := range r.comps {
		switch c.op {
		case opLess, opLessEq:
			continue
		case opWildcard:
			if !c.v.hasMajor {
				continue
			}
		}
		v := Version{Major: c.v.major, Minor: c.v.minor, Patch: c.v.patch, Pre: c.v.pre}
		if c.op == opGreater {
			// exclusive bound: bump the finest declared component
			switch {
			case c.v.hasPatch:
				v.Patch++
			case c.v.hasMinor:
				v.Minor++
			default:
				v.Major++
			}
		}
		if v.Compare(lo) > 0 {
			lo = v
		}
	}
	return lo
}

func (r Req) String() string {
	return r.raw
}
