package cli

import (
	"fmt"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/advisories"
	"github.com/conda-tools/condactl/pkg/configs"
	rwos "github.com/conda-tools/condactl/pkg/configs/rwfs/os"
)

func cmdAdvisoryExport() *cobra.Command {
	p := &exportParams{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export advisory data as an OSV dataset",
		Long: `Export advisory data as an OSV dataset.

This command reads advisory data from one or more directories containing
advisory documents, and writes an OSV dataset to a local directory: one JSON
record per vulnerability ID, plus an all.json listing every ID with its
last-modified time.

Specify directories for advisory repositories using the --advisories-repo-dir
flag.

The output directory for the OSV dataset is specified using the --output flag.
This directory must already exist before running the command.
`,
		SilenceErrors: true,
		Args:          cobra.NoArgs,

		PreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if p.outputDirectory == "" {
				return fmt.Errorf("output directory must be specified")
			}

			if _, err := os.Stat(p.outputDirectory); os.IsNotExist(err) {
				clog.FromContext(ctx).Errorf("directory %s does not exist, please create that first", p.outputDirectory)
				return err
			}

			return nil
		},

		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if len(p.advisoriesRepoDirs) == 0 {
				if dir := resolveAdvisoriesDirInput(""); dir != "" {
					p.advisoriesRepoDirs = append(p.advisoriesRepoDirs, dir)
				} else {
					return fmt.Errorf("at least one advisory repository directory must be specified")
				}
			}

			indices := make([]*configs.Index[advisories.Document], 0, len(p.advisoriesRepoDirs))
			for _, dir := range p.advisoriesRepoDirs {
				advisoryFsys := rwos.DirFS(dir)
				index, err := advisories.NewIndex(ctx, advisoryFsys)
				if err != nil {
					return fmt.Errorf("indexing advisory documents for directory %q: %w", dir, err)
				}

				indices = append(indices, index)
			}

			opts := advisories.OSVOptions{
				Indices:         indices,
				OutputDirectory: p.outputDirectory,
			}

			if err := advisories.BuildOSVDataset(ctx, opts); err != nil {
				return fmt.Errorf("building OSV dataset: %w", err)
			}

			return nil
		},
	}

	p.addFlagsTo(cmd)
	return cmd
}

type exportParams struct {
	advisoriesRepoDirs []string
	outputDirectory    string
}

func (p *exportParams) addFlagsTo(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&p.advisoriesRepoDirs, "advisories-repo-dir", "a", nil, "path to the directory(ies) containing advisory data")
	cmd.Flags().StringVarP(&p.outputDirectory, "output", "o", "", "path to a local directory in which the OSV dataset will be written")
}
