// Package manifest models crate manifests: package identity,
// dependency tables and the feature table. It decodes both dependency
// forms (`dep = "1.0"` and the inline table form) and validates the
// identity block, leaving cross-manifest consistency to the lint
// package.
package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/cratectl/internal/semver"
)

// FileName is the manifest file name looked up during workspace
// discovery.
const FileName = "Cargo.toml"

var (
	ErrMissingPackageName    = errors.New("manifest: missing package name")
	ErrMissingPackageVersion = errors.New("manifest: missing package version")
	ErrInvalidPackageName    = errors.New("manifest: invalid package name")
	ErrUnknownEdition        = errors.New("manifest: unknown edition")
	ErrInvalidFeatureName    = errors.New("manifest: invalid feature name")
	ErrInvalidFeatureRef     = errors.New("manifest: invalid feature reference")
	ErrDependencyForm        = errors.New("manifest: invalid dependency form")
)

// Package is the manifest identity block.
type Package struct {
	Name          string   `toml:"name"`
	Version       string   `toml:"version"`
	Authors       []string `toml:"authors"`
	Edition       string   `toml:"edition"`
	Description   string   `toml:"description"`
	License       string   `toml:"license"`
	LicenseFile   string   `toml:"license-file"`
	Documentation string   `toml:"documentation"`
	Homepage      string   `toml:"homepage"`
	Repository    string   `toml:"repository"`
	Readme        string   `toml:"readme"`
	Keywords      []string `toml:"keywords"`
	Categories    []string `toml:"categories"`
	Exclude       []string `toml:"exclude"`
	Publish       *bool    `toml:"publish"`
}

// Dependency is one entry of a dependency table. Shorthand entries
// carry only Version; table entries may add a sibling path, a feature
// selection and the optional marker.
type Dependency struct {
	Version         string
	Path            string
	Features        []string
	DefaultFeatures bool
	Optional        bool
	Package         string
	Registry        string
}

// Name returns the crate the entry resolves to, honoring a
// `package = ...` rename.
func (d Dependency) Name(key string) string {
	if d.Package != "" {
		return d.Package
	}
	return key
}

// Table identifies which dependency table an entry came from.
type Table string

const (
	TableDependencies      Table = "dependencies"
	TableDevDependencies   Table = "dev-dependencies"
	TableBuildDependencies Table = "build-dependencies"
)

// Manifest is one decoded manifest file.
type Manifest struct {
	Package           Package               `toml:"package"`
	Dependencies      map[string]Dependency `toml:"dependencies"`
	DevDependencies   map[string]Dependency `toml:"dev-dependencies"`
	BuildDependencies map[string]Dependency `toml:"build-dependencies"`
	Features          map[string][]string   `toml:"features"`

	// Path is where the manifest was read from, set by the loader.
	Path string `toml:"-"`
	// Undecoded lists keys present in the file that nothing decoded.
	Undecoded []string `toml:"-"`
}

// Tables returns the dependency tables in deterministic order.
func (m *Manifest) Tables() []struct {
	Table Table
	Deps  map[string]Dependency
} {
	return []struct {
		Table Table
		Deps  map[string]Dependency
	}{
		{TableDependencies, m.Dependencies},
		{TableDevDependencies, m.DevDependencies},
		{TableBuildDependencies, m.BuildDependencies},
	}
}

// RuntimeDependency looks an entry up in the tables a feature may
// reference: dependencies and build-dependencies, never
// dev-dependencies.
func (m *Manifest) RuntimeDependency(name string) (Dependency, bool) {
	if d, ok := m.Dependencies[name]; ok {
		return d, true
	}
	if d, ok := m.BuildDependencies[name]; ok {
		return d, true
	}
	return Dependency{}, false
}

var knownEditions = map[string]struct{}{
	"2015": {}, "2018": {}, "2021": {}, "2024": {},
}

// Validate checks the identity block and the syntactic shape of the
// dependency and feature tables. Cross-manifest properties are the
// lint package's concern.
func (m *Manifest) Validate() error {
	name := strings.TrimSpace(m.Package.Name)
	if name == "" {
		return ErrMissingPackageName
	}
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidPackageName, name)
	}
	if strings.TrimSpace(m.Package.Version) == "" {
		return fmt.Errorf("%w: package %q", ErrMissingPackageVersion, name)
	}
	if _, err := semver.ParseVersion(m.Package.Version); err != nil {
		return fmt.Errorf("manifest: package %q version: %w", name, err)
	}
	if m.Package.Edition != "" {
		if _, ok := knownEditions[m.Package.Edition]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEdition, m.Package.Edition)
		}
	}
	for _, tbl := range m.Tables() {
		for dep, entry := range tbl.Deps {
			if !validName(entry.Name(dep)) {
				return fmt.Errorf("%w: %s entry %q", ErrInvalidPackageName, tbl.Table, dep)
			}
			if entry.Version == "" && entry.Path == "" {
				return fmt.Errorf("%w: %s entry %q has neither version nor path", ErrDependencyForm, tbl.Table, dep)
			}
			if entry.Version != "" {
				if _, err := semver.ParseReq(entry.Version); err != nil {
					return fmt.Errorf("manifest: %s entry %q: %w", tbl.Table, dep, err)
				}
			}
		}
	}
	for feat, refs := range m.Features {
		if !validFeatureName(feat) {
			return fmt.Errorf("%w: %q", ErrInvalidFeatureName, feat)
		}
		for _, raw := range refs {
			if _, err := ParseFeatureRef(raw); err != nil {
				return fmt.Errorf("manifest: feature %q: %w", feat, err)
			}
		}
	}
	return nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func validFeatureName(s string) bool {
	// feature names additionally allow dots (used by some ecosystems
	// for grouping)
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
