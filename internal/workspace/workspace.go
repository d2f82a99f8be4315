// Package workspace discovers every manifest under a root directory
// and resolves sibling (path) dependencies into a package graph.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/cratectl/internal/manifest"
	"github.com/danmuck/cratectl/internal/semver"
)

var (
	ErrNoPackages       = errors.New("workspace: no manifests found")
	ErrDuplicatePackage = errors.New("workspace: duplicate package name")
)

// decodeWorkers bounds concurrent manifest decoding.
const decodeWorkers = 8

// Package is one discovered workspace member.
type Package struct {
	Manifest *manifest.Manifest
	Dir      string
	Version  semver.Version
}

// LoadError records a manifest that could not be decoded or failed
// validation; the lint layer reports these instead of aborting the
// whole run.
type LoadError struct {
	Path string
	Err  error
}

// Workspace is the set of packages found under one root.
type Workspace struct {
	Root     string
	Packages map[string]*Package
	Broken   []LoadError
}

// LoadOptions tunes discovery. Exclude entries are directory names
// skipped anywhere in the tree, in addition to the built-in skips
// (hidden directories and build output).
type LoadOptions struct {
	Exclude []string
}

// Load walks root, decodes every manifest concurrently and indexes
// the result by package name.
func Load(ctx context.Context, root string, opts LoadOptions) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}

	paths, err := discover(root, opts.Exclude)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoPackages, root)
	}
	log.Debug().Str("root", root).Int("manifests", len(paths)).Msg("workspace discovery")

	ws := &Workspace{
		Root:     root,
		Packages: make(map[string]*Package, len(paths)),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(decodeWorkers)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pkg, loadErr := loadOne(path)

			mu.Lock()
			defer mu.Unlock()
			if loadErr != nil {
				ws.Broken = append(ws.Broken, LoadError{Path: path, Err: loadErr})
				return nil
			}
			name := pkg.Manifest.Package.Name
			if prev, ok := ws.Packages[name]; ok {
				return fmt.Errorf("%w: %q in %s and %s",
					ErrDuplicatePackage, name, prev.Dir, pkg.Dir)
			}
			ws.Packages[name] = pkg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// deterministic broken order regardless of decode scheduling
	sort.Slice(ws.Broken, func(i, j int) bool { return ws.Broken[i].Path < ws.Broken[j].Path })
	return ws, nil
}

func loadOne(path string) (*Package, error) {
	m, err := manifest.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	v, err := semver.ParseVersion(m.Package.Version)
	if err != nil {
		return nil, err
	}
	return &Package{Manifest: m, Dir: filepath.Dir(path), Version: v}, nil
}

func discover(root string, exclude []string) ([]string, error) {
	skip := map[string]struct{}{"target": {}}
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root {
				if _, ok := skip[name]; ok {
					return filepath.SkipDir
				}
				if strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if d.Name() == manifest.FileName {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace walk failed: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Names returns package names in sorted order.
func (ws *Workspace) Names() []string {
	names := make([]string, 0, len(ws.Packages))
	for name := range ws.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvePath resolves a path dependency of from to a workspace
// member, matching on the cleaned target directory.
func (ws *Workspace) ResolvePath(from *Package, dep manifest.Dependency) (*Package, bool) {
	if dep.Path == "" {
		return nil, false
	}
	target := filepath.Clean(filepath.Join(from.Dir, filepath.FromSlash(dep.Path)))
	for _, pkg := range ws.Packages {
		if pkg.Dir == target {
			return pkg, true
		}
	}
	return nil, false
}

// Inside reports whether a path dependency target stays under the
// workspace root.
func (ws *Workspace) Inside(from *Package, dep manifest.Dependency) bool {
	target := filepath.Clean(filepath.Join(from.Dir, filepath.FromSlash(dep.Path)))
	rel, err := filepath.Rel(ws.Root, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "..")
}
