package workspace

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/cratectl/internal/manifest"
)

var ErrGraphCycle = errors.New("workspace: dependency cycle")

// Graph is the sibling dependency graph over workspace members.
// Dev-dependency edges are excluded: a dev cycle is legal and must
// not poison the build order.
type Graph struct {
	ws    *Workspace
	edges map[string][]string // package -> sibling deps, sorted
}

// Graph builds the sibling edge set from path dependencies in the
// dependencies and build-dependencies tables.
func (ws *Workspace) Graph() *Graph {
	edges := make(map[string][]string, len(ws.Packages))
	for _, name := range ws.Names() {
		pkg := ws.Packages[name]
		seen := make(map[string]struct{})
		var deps []string
		for _, tbl := range pkg.Manifest.Tables() {
			if tbl.Table == manifest.TableDevDependencies {
				continue
			}
			for _, dep := range tbl.Deps {
				sib, ok := ws.ResolvePath(pkg, dep)
				if !ok {
					continue
				}
				sibName := sib.Manifest.Package.Name
				if _, dup := seen[sibName]; dup {
					continue
				}
				seen[sibName] = struct{}{}
				deps = append(deps, sibName)
			}
		}
		sort.Strings(deps)
		edges[name] = deps
	}
	return &Graph{ws: ws, edges: edges}
}

// Edges returns the sorted sibling dependencies of one package.
func (g *Graph) Edges(name string) []string {
	return g.edges[name]
}

// TopoOrder returns a deterministic dependency-first ordering, or
// ErrGraphCycle naming one cycle.
func (g *Graph) TopoOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.edges))
	dependents := make(map[string][]string, len(g.edges))
	for name, deps := range g.edges {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range deps {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(indegree))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		next := dependents[name]
		sort.Strings(next)
		var woken []string
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				woken = append(woken, dep)
			}
		}
		if len(woken) > 0 {
			ready = append(ready, woken...)
			sort.Strings(ready)
		}
	}

	if len(order) != len(indegree) {
		cycle := g.Cycle()
		return nil, fmt.Errorf("%w: %v", ErrGraphCycle, cycle)
	}
	return order, nil
}

// Cycle returns one sibling dependency cycle path, or nil.
func (g *Graph) Cycle() []string {
	const (
		white = iota
		gray
		black
	)
	state := make(map[string]int, len(g.edges))
	var stack []string
	var found []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = gray
		stack = append(stack, name)
		for _, dep := range g.edges[name] {
			switch state[dep] {
			case gray:
				for i, n := range stack {
					if n == dep {
						found = append([]string(nil), stack[i:]...)
						break
					}
				}
				found = append(found, dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = black
		return false
	}

	names := make([]string, 0, len(g.edges))
	for name := range g.edges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if state[name] == white {
			if visit(name) {
				return found
			}
		}
	}
	return nil
}
