package manifest

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Decode reads one manifest. Keys the model does not know are
// collected into Undecoded rather than rejected.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	meta, err := toml.NewDecoder(r).Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("manifest parse failed: %w", err)
	}
	m.Undecoded = undecodedKeys(meta)
	return &m, nil
}

// DecodeFile reads and decodes the manifest at path.
func DecodeFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest load failed (%s): %w", path, err)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

func undecodedKeys(meta toml.MetaData) []string {
	und := meta.Undecoded()
	if len(und) == 0 {
		return nil
	}
	// tables whose leaves the decoder may leave unmarked, or that
	// carry no consistency meaning
	skip := map[string]struct{}{
		"dependencies":       {},
		"dev-dependencies":   {},
		"build-dependencies": {},
		"badges":             {},
		"target":             {},
	}
	keys := make([]string, 0, len(und))
	seen := make(map[string]struct{}, len(und))
	for _, k := range und {
		// report the top-level table once, not every leaf under it
		top := k[0]
		if _, ok := skip[top]; ok {
			continue
		}
		if _, ok := seen[top]; ok {
			continue
		}
		seen[top] = struct{}{}
		keys = append(keys, top)
	}
	return keys
}

// UnmarshalTOML accepts both dependency forms: the version shorthand
// and the inline table.
func (d *Dependency) UnmarshalTOML(data any) error {
	d.DefaultFeatures = true

	switch v := data.(type) {
	case string:
		d.Version = strings.TrimSpace(v)
		return nil
	case map[string]any:
		return d.fromTable(v)
	default:
		return fmt.Errorf("%w: got %T", ErrDependencyForm, data)
	}
}

func (d *Dependency) fromTable(tbl map[string]any) error {
	for key, raw := range tbl {
		switch key {
		case "version":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("%w: version must be a string", ErrDependencyForm)
			}
			d.Version = strings.TrimSpace(s)
		case "path":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("%w: path must be a string", ErrDependencyForm)
			}
			d.Path = s
		case "features":
			feats, err := stringSlice(raw)
			if err != nil {
				return fmt.Errorf("%w: features: %v", ErrDependencyForm, err)
			}
			d.Features = feats
		case "default-features", "default_features":
			b, ok := raw.(bool)
			if !ok {
				return fmt.Errorf("%w: default-features must be a bool", ErrDependencyForm)
			}
			d.DefaultFeatures = b
		case "optional":
			b, ok := raw.(bool)
			if !ok {
				return fmt.Errorf("%w: optional must be a bool", ErrDependencyForm)
			}
			d.Optional = b
		case "package":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("%w: package must be a string", ErrDependencyForm)
			}
			d.Package = s
		case "registry":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("%w: registry must be a string", ErrDependencyForm)
			}
			d.Registry = s
		default:
			// tolerated: git/branch/rev and future keys carry no
			// consistency meaning here
		}
	}
	return nil
}

func stringSlice(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string element, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}
