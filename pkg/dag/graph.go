package dag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/dominikbraun/graph"

	"github.com/conda-tools/condactl/pkg/python"
	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/render"
)

// A Graph represents an interdependent set of packages defined by the recipes
// in a recipe directory. Vertices are package names; an edge from A to B means
// A lists B (in host or run requirements) and B is built from a local recipe.
// Requirements satisfied by a channel rather than a local recipe contribute no
// edge.
type Graph struct {
	Graph graph.Graph[string, string]

	resolved map[string]*render.Resolved
	packages []string
}

func newGraph() graph.Graph[string, string] {
	return graph.New(graph.StringHash, graph.Directed(), graph.Acyclic(), graph.PreventCycles())
}

// NewGraph resolves every recipe directory under fsys and connects the
// resulting packages by their requirements.
//
// The input is any fs.FS rooted at the recipe directory, e.g.:
//
//	dag.NewGraph(ctx, os.DirFS("recipes"))
//
// A requirement cycle between local recipes is an error.
func NewGraph(ctx context.Context, fsys fs.FS) (*Graph, error) {
	log := clog.FromContext(ctx)

	g := newGraph()
	resolved := make(map[string]*render.Resolved)
	byNormalizedName := make(map[string]string)
	var packages []string

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading recipe directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, err := fs.Stat(fsys, path.Join(entry.Name(), recipe.Filename)); err != nil {
			log.Debug("skipping directory without a recipe", "dir", entry.Name())
			continue
		}

		res, err := render.Resolve(fsys, entry.Name())
		if err != nil {
			return nil, err
		}

		name := res.Recipe.Name()
		if name == "" {
			return nil, fmt.Errorf("no package name in %q", entry.Name())
		}
		if existing, ok := resolved[name]; ok {
			return nil, fmt.Errorf("duplicate recipes for package %q: %q and %q", name, existing.Dir, res.Dir)
		}

		resolved[name] = res
		byNormalizedName[python.NormalizeName(name)] = name
		packages = append(packages, name)

		if err := g.AddVertex(name); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, fmt.Errorf("unable to add vertex for %q: %w", name, err)
		}
	}

	for _, name := range packages {
		res := resolved[name]
		reqs := slices.Concat(res.Recipe.Requirements.Host, res.Recipe.Requirements.Run)

		for _, spec := range reqs {
			req, err := python.ParseRequirement(spec)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid requirement %q: %w", res.Dir, spec, err)
			}

			dep, ok := byNormalizedName[req.NormalizedName()]
			if !ok || dep == name {
				continue
			}

			err = g.AddEdge(name, dep)
			switch {
			case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, fmt.Errorf("dependency of %q on %q would introduce a cycle", name, dep)
			default:
				return nil, fmt.Errorf("unable to add edge from %q to %q: %w", name, dep, err)
			}
		}
	}

	return &Graph{
		Graph:    g,
		resolved: resolved,
		packages: packages,
	}, nil
}

// Resolved returns the resolved recipe for the package with the given name,
// or nil if the package is not in the graph.
func (g Graph) Resolved(name string) *render.Resolved {
	if g.resolved == nil {
		return nil
	}
	return g.resolved[name]
}

// Sorted returns all package names in topological order: packages earlier in
// the list depend on packages later in the list. Ties break alphabetically so
// the order is deterministic.
func (g Graph) Sorted() ([]string, error) {
	return graph.StableTopologicalSort(g.Graph, func(a, b string) bool { return a < b })
}

// BuildOrder returns all package names in the order they must be built:
// every package appears after the packages it depends on.
func (g Graph) BuildOrder() ([]string, error) {
	sorted, err := g.Sorted()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	return sorted, nil
}

// SubgraphWithRoots returns a new Graph that's a subgraph of g, where the set
// of the new Graph's roots will be identical to or a subset of the given set
// of roots.
//
// In other words, the new subgraph will contain all dependencies
// (transitively) of all packages whose names were given as the `roots`
// argument.
func (g Graph) SubgraphWithRoots(roots []string) (*Graph, error) {
	adjacencyMap, err := g.Graph.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	return g.subgraph(roots, adjacencyMap, false)
}

// SubgraphWithLeaves returns a new Graph that's a subgraph of g, where the
// set of the new Graph's leaves will be identical to or a subset of the given
// set of leaves.
//
// In other words, the new subgraph will contain all packages (transitively)
// that depend on the packages whose names were given as the `leaves`
// argument.
func (g Graph) SubgraphWithLeaves(leaves []string) (*Graph, error) {
	predecessorMap, err := g.Graph.PredecessorMap()
	if err != nil {
		return nil, err
	}
	return g.subgraph(leaves, predecessorMap, true)
}

// subgraph walks the given neighbor map from the start set and copies the
// visited vertices and edges into a new Graph. When flip is true the neighbor
// map points from dependencies to dependents, so edges are added reversed to
// keep their package-to-dependency direction.
func (g Graph) subgraph(start []string, neighbors map[string]map[string]graph.Edge[string], flip bool) (*Graph, error) {
	subgraph := newGraph()
	resolved := make(map[string]*render.Resolved)
	var packages []string

	var walk func(key string) error
	walk = func(key string) error {
		if _, ok := g.resolved[key]; !ok {
			return fmt.Errorf("package %q not found", key)
		}
		if _, seen := resolved[key]; seen {
			return nil
		}

		if err := subgraph.AddVertex(key); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return err
		}
		resolved[key] = g.resolved[key]
		packages = append(packages, key)

		for neighbor := range neighbors[key] {
			if err := walk(neighbor); err != nil {
				return err
			}
			from, to := key, neighbor
			if flip {
				from, to = neighbor, key
			}
			if err := subgraph.AddEdge(from, to); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return err
			}
		}
		return nil
	}

	for _, key := range start {
		if err := walk(key); err != nil {
			return nil, err
		}
	}

	return &Graph{
		Graph:    subgraph,
		resolved: resolved,
		packages: packages,
	}, nil
}

// Nodes returns the names of all packages in the Graph, sorted alphabetically.
func (g Graph) Nodes() []string {
	allPackages := make([]string, len(g.packages))
	copy(allPackages, g.packages)

	// sort for deterministic output
	sort.Strings(allPackages)
	return allPackages
}

// DependenciesOf returns the names of the given package's local dependencies,
// sorted alphabetically.
func (g Graph) DependenciesOf(node string) []string {
	adjacencyMap, err := g.Graph.AdjacencyMap()
	if err != nil {
		return nil
	}
	return neighborNames(adjacencyMap, node)
}

// DependentsOf returns the names of the local packages that depend on the
// given package, sorted alphabetically.
func (g Graph) DependentsOf(node string) []string {
	predecessorMap, err := g.Graph.PredecessorMap()
	if err != nil {
		return nil
	}
	return neighborNames(predecessorMap, node)
}

func neighborNames(m map[string]map[string]graph.Edge[string], node string) []string {
	edges, ok := m[node]
	if !ok {
		return nil
	}

	var names []string
	for name := range edges {
		names = append(names, name)
	}

	// sort for deterministic output
	sort.Strings(names)
	return names
}
