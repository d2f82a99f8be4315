package manifest

import (
	"fmt"
	"strings"
)

// FeatureRef is one parsed element of a feature's requirement list.
//
// Forms:
//
//	"fast-math"        local feature, or an optional dependency
//	"dep:profiler"     explicit optional-dependency activation
//	"shred/nightly"    dependency feature, activates the dependency
//	"serde?/derive"    dependency feature, only when already active
type FeatureRef struct {
	Raw     string
	Dep     string // empty for a local reference
	Feature string // empty for a bare dependency activation
	Weak    bool   // dep?/feature form
	DepOnly bool   // dep:name form
}

// Local reports whether the reference names something inside the same
// manifest (a feature or an optional dependency).
func (r FeatureRef) Local() bool {
	return r.Dep == ""
}

// ParseFeatureRef parses a single feature requirement.
func ParseFeatureRef(raw string) (FeatureRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return FeatureRef{}, fmt.Errorf("%w: empty", ErrInvalidFeatureRef)
	}

	if rest, ok := strings.CutPrefix(s, "dep:"); ok {
		if !validName(rest) {
			return FeatureRef{}, fmt.Errorf("%w: %q", ErrInvalidFeatureRef, raw)
		}
		return FeatureRef{Raw: raw, Dep: rest, DepOnly: true}, nil
	}

	if dep, feat, ok := strings.Cut(s, "/"); ok {
		ref := FeatureRef{Raw: raw, Feature: feat}
		if weak, cut := strings.CutSuffix(dep, "?"); cut {
			ref.Weak = true
			dep = weak
		}
		ref.Dep = dep
		if !validName(dep) || !validFeatureName(feat) {
			return FeatureRef{}, fmt.Errorf("%w: %q", ErrInvalidFeatureRef, raw)
		}
		return ref, nil
	}

	if !validFeatureName(s) {
		return FeatureRef{}, fmt.Errorf("%w: %q", ErrInvalidFeatureRef, raw)
	}
	return FeatureRef{Raw: raw, Feature: s}, nil
}
