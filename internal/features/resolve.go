// Package features computes the transitive feature set a manifest
// enables for a given request, mirroring build-time feature
// unification: local features expand through the feature table,
// dependency features activate their dependency, and weak references
// only apply once the dependency is active through some other path.
package features

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cratectl/internal/manifest"
)

var (
	ErrUnknownFeature = errors.New("features: unknown feature")
	ErrUnknownDep     = errors.New("features: unknown dependency")
	ErrCycle          = errors.New("features: feature cycle")
)

// Request selects which features to unify.
type Request struct {
	Features  []string
	All       bool
	NoDefault bool
}

// Resolution is the unified result, all slices sorted.
type Resolution struct {
	Features    []string
	Optional    []string
	DepFeatures map[string][]string
}

type resolver struct {
	m        *manifest.Manifest
	features map[string]struct{}
	optional map[string]struct{}
	depFeats map[string]map[string]struct{}
	weak     []manifest.FeatureRef
}

// Resolve unifies the requested features against the manifest's
// feature table. Unknown requested features are an error; structural
// problems inside the table surface as ErrUnknownFeature or
// ErrUnknownDep naming the offending reference.
func Resolve(m *manifest.Manifest, req Request) (Resolution, error) {
	if cycle := Cycle(m); cycle != nil {
		return Resolution{}, fmt.Errorf("%w: %v", ErrCycle, cycle)
	}

	r := &resolver{
		m:        m,
		features: make(map[string]struct{}),
		optional: make(map[string]struct{}),
		depFeats: make(map[string]map[string]struct{}),
	}

	roots := append([]string(nil), req.Features...)
	if req.All {
		for name := range m.Features {
			roots = append(roots, name)
		}
	}
	if !req.NoDefault {
		if _, ok := m.Features["default"]; ok {
			roots = append(roots, "default")
		}
	}

	for _, name := range roots {
		if err := r.enable(name); err != nil {
			return Resolution{}, err
		}
	}

	// weak references apply only to dependencies activated elsewhere
	for _, ref := range r.weak {
		if _, active := r.optional[ref.Dep]; active {
			r.addDepFeature(ref.Dep, ref.Feature)
			continue
		}
		if dep, ok := r.m.RuntimeDependency(ref.Dep); ok && !dep.Optional {
			r.addDepFeature(ref.Dep, ref.Feature)
		}
	}

	out := Resolution{
		Features:    sortedKeys(r.features),
		Optional:    sortedKeys(r.optional),
		DepFeatures: make(map[string][]string, len(r.depFeats)),
	}
	for dep, feats := range r.depFeats {
		out.DepFeatures[dep] = sortedKeys(feats)
	}
	log.Debug().
		Str("package", m.Package.Name).
		Int("features", len(out.Features)).
		Int("optional", len(out.Optional)).
		Msg("features resolved")
	return out, nil
}

// enable turns on one bare name: a feature-table entry first, an
// optional dependency otherwise.
func (r *resolver) enable(name string) error {
	if _, done := r.features[name]; done {
		return nil
	}
	if refs, ok := r.m.Features[name]; ok {
		r.features[name] = struct{}{}
		for _, raw := range refs {
			ref, err := manifest.ParseFeatureRef(raw)
			if err != nil {
				return err
			}
			if err := r.apply(name, ref); err != nil {
				return err
			}
		}
		return nil
	}
	if dep, ok := r.m.RuntimeDependency(name); ok && dep.Optional {
		r.optional[name] = struct{}{}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFeature, name)
}

func (r *resolver) apply(feature string, ref manifest.FeatureRef) error {
	switch {
	case ref.Local():
		return r.enable(ref.Feature)
	case ref.DepOnly:
		dep, ok := r.m.RuntimeDependency(ref.Dep)
		if !ok {
			return fmt.Errorf("%w: %q in feature %q", ErrUnknownDep, ref.Dep, feature)
		}
		if dep.Optional {
			r.optional[ref.Dep] = struct{}{}
		}
		return nil
	case ref.Weak:
		if _, ok := r.m.RuntimeDependency(ref.Dep); !ok {
			return fmt.Errorf("%w: %q in feature %q", ErrUnknownDep, ref.Dep, feature)
		}
		r.weak = append(r.weak, ref)
		return nil
	default:
		dep, ok := r.m.RuntimeDependency(ref.Dep)
		if !ok {
			return fmt.Errorf("%w: %q in feature %q", ErrUnknownDep, ref.Dep, feature)
		}
		if dep.Optional {
			r.optional[ref.Dep] = struct{}{}
		}
		r.addDepFeature(ref.Dep, ref.Feature)
		return nil
	}
}

func (r *resolver) addDepFeature(dep, feature string) {
	if r.depFeats[dep] == nil {
		r.depFeats[dep] = make(map[string]struct{})
	}
	r.depFeats[dep][feature] = struct{}{}
}

// Cycle walks the local edges of the feature table and returns one
// cycle path, or nil when the table is acyclic.
func Cycle(m *manifest.Manifest) []string {
	const (
		white = iota
		gray
		black
	)
	state := make(map[string]int, len(m.Features))
	var stack []string
	var found []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = gray
		stack = append(stack, name)
		for _, raw := range m.Features[name] {
			ref, err := manifest.ParseFeatureRef(raw)
			if err != nil || !ref.Local() {
				continue
			}
			next := ref.Feature
			if _, ok := m.Features[next]; !ok {
				continue
			}
			switch state[next] {
			case gray:
				// slice the stack down to the cycle entry point
				for i, n := range stack {
					if n == next {
						found = append([]string(nil), stack[i:]...)
						break
					}
				}
				found = append(found, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = black
		return false
	}

	names := sortedKeys2(m.Features)
	for _, name := range names {
		if state[name] == white {
			if visit(name) {
				return found
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeys2(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
