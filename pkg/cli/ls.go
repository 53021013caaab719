package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/dag"
	"github.com/conda-tools/condactl/pkg/ls"
	"github.com/conda-tools/condactl/pkg/render"
)

func cmdLs() *cobra.Command {
	p := &lsParams{}
	cmd := &cobra.Command{
		Use:           "ls [packages]",
		Short:         "List recipes in the repository",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			g, err := dag.NewGraph(ctx, os.DirFS(filepath.Join(p.dir, "recipes")))
			if err != nil {
				return fmt.Errorf("unable to index recipes in %q: %w", p.dir, err)
			}

			names := g.Nodes()
			recipes := make([]*render.Resolved, 0, len(names))
			for _, name := range names {
				recipes = append(recipes, g.Resolved(name))
			}

			opts := ls.ListOptions{
				Recipes:            recipes,
				IncludeEntryPoints: p.includeEntryPoints,
				RequestedPackages:  args,
				Template:           p.format,
			}

			results, err := ls.List(opts)
			if err != nil {
				return fmt.Errorf("unable to list packages: %w", err)
			}

			fmt.Println(strings.Join(results, "\n"))

			return nil
		},
	}

	p.addFlagsTo(cmd)
	return cmd
}

type lsParams struct {
	dir string

	includeEntryPoints bool
	format             string
}

func (p *lsParams) addFlagsTo(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.dir, "dir", "d", ".", "directory containing the recipe repository")

	cmd.Flags().BoolVarP(&p.includeEntryPoints, "entry-points", "e", false, "Include console entry points")
	cmd.Flags().StringVarP(&p.format, "format", "f", "", "Output format (in the form of a literal Go template applied to each result item)")
}
