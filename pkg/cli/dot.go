package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dominikbraun/graph"
	"github.com/spf13/cobra"
	"github.com/tmc/dot"

	"github.com/conda-tools/condactl/pkg/dag"
)

func cmdSVG() *cobra.Command {
	var dir string
	var showDependents bool
	d := &cobra.Command{
		Use:   "dot",
		Short: "Generate graphviz .dot output",
		Long: `
Generate .dot output and pipe it to dot to generate an SVG

  condactl dot | dot -Tsvg > graph.svg

Generate .dot output and pipe it to dot to generate a PNG

  condactl dot | dot -Tpng > graph.png
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := dag.NewGraph(cmd.Context(), os.DirFS(filepath.Join(dir, "recipes")))
			if err != nil {
				return err
			}

			if len(args) == 0 {
				if showDependents {
					log.Print("warning: the 'show dependents' option has no effect without specifying one or more package names")
				}
			} else {
				// ensure all packages exist in the graph
				for _, arg := range args {
					if _, err := g.Graph.Vertex(arg); err == graph.ErrVertexNotFound {
						return fmt.Errorf("package %q not found in graph", arg)
					}
				}

				// determine if we're examining dependencies or dependents
				var subgraph *dag.Graph
				if showDependents {
					leaves := args
					subgraph, err = g.SubgraphWithLeaves(leaves)
					if err != nil {
						return err
					}
				} else {
					roots := args
					subgraph, err = g.SubgraphWithRoots(roots)
					if err != nil {
						return err
					}
				}

				g = subgraph
			}

			summarize(*g)
			return viz(*g)
		},
	}
	d.Flags().StringVarP(&dir, "dir", "d", ".", "directory containing the recipe repository")
	d.Flags().BoolVarP(&showDependents, "show-dependents", "D", false, "show packages that depend on these packages, instead of these packages' dependencies")
	return d
}

func summarize(g dag.Graph) {
	nodes := g.Nodes()
	edges := 0
	for _, node := range nodes {
		edges += len(g.DependenciesOf(node))
	}
	log.Println("nodes:", len(nodes))
	log.Println("edges:", edges)
}

func viz(g dag.Graph) error {
	out := dot.NewGraph("packages")
	out.SetType(dot.DIGRAPH)

	for _, node := range g.Nodes() {
		n := dot.NewNode(node)
		out.AddNode(n)

		for _, dependency := range g.DependenciesOf(node) {
			d := dot.NewNode(dependency)
			out.AddNode(d)
			out.AddEdge(dot.NewEdge(n, d))
		}
	}

	fmt.Println(out.String())
	return nil
}
