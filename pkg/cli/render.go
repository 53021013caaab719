package cli

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/render"
)

func cmdRender() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "render recipe [recipe...]",
		Short: "Render recipe templates against their setup metadata",
		Long: `Render recipe templates against their setup metadata

Each named recipe directory is resolved: the meta.yaml template's
substitutions are filled in from the recipe's setup metadata, the result
is parsed, and the rendered manifest is validated before being printed.
Any missing metadata key, unparseable manifest, or validation failure
stops the command.
`,
		Example:       `  condactl render casq`,
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys := os.DirFS(path.Join(dir, "recipes"))

			for i, name := range args {
				res, err := render.Resolve(fsys, name)
				if err != nil {
					return err
				}
				if err := res.Validate(); err != nil {
					return err
				}

				if i > 0 {
					fmt.Println("---")
				}
				os.Stdout.Write(res.Manifest)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory containing the recipe repository")

	return cmd
}
