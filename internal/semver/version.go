package semver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyVersion   = errors.New("semver: empty version")
	ErrInvalidVersion = errors.New("semver: invalid version")
)

// Version is a full semantic version as declared in a manifest's
// package block: major.minor.patch with optional pre-release and
// build metadata.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
	Pre   string
	Build string
}

// ParseVersion parses a full three-component semantic version.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, ErrEmptyVersion
	}

	var v Version
	if i := strings.IndexByte(s, '+'); i >= 0 {
		v.Build = s[i+1:]
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.Pre = s[i+1:]
		s = s[:i]
		if v.Pre == "" {
			return Version{}, fmt.Errorf("%w: empty pre-release in %q", ErrInvalidVersion, s)
		}
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q needs major.minor.patch", ErrInvalidVersion, s)
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := parseNumericComponent(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: component %q", ErrInvalidVersion, p)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

func parseNumericComponent(s string) (uint64, error) {
	if s == "" {
		return 0, ErrInvalidVersion
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("%w: leading zero", ErrInvalidVersion)
	}
	return strconv.ParseUint(s, 10, 64)
}

// Compare returns -1, 0 or 1. Build metadata is ignored, pre-release
// versions order before their release per the semver precedence rules.
func (v Version) Compare(o Version) int {
	if c := compareUint(v.Major, o.Major); c != 0 {
		return c
	}
	if c := compareUint(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := compareUint(v.Patch, o.Patch); c != 0 {
		return c
	}
	return comparePre(v.Pre, o.Pre)
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func comparePre(a, b string) int {
	if a == b {
		return 0
	}
	// A release outranks any pre-release of the same triple.
	if a == "" {
		return 1
	}
	if b == "" {
		return -1
	}
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		c := comparePreIdent(as[i], bs[i])
		if c != 0 {
			return c
		}
	}
	return compareUint(uint64(len(as)), uint64(len(bs)))
}

func comparePreIdent(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return compareUint(an, bn)
	case aerr == nil:
		// numeric identifiers order before alphanumeric ones
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}
