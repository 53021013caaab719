package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/advisories"
	rwos "github.com/conda-tools/condactl/pkg/configs/rwfs/os"
)

func cmdAdvisoryCreate() *cobra.Command {
	p := &createParams{}
	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Create a new advisory for a package",
		Example: `
# Record a new detection interactively (prompts for a note when needed)
condactl advisory create -a ./advisories -p libsbml -V CVE-2023-12345 -t detection

# Record a fix without prompting
condactl advisory create -a ./advisories -p libsbml -V CVE-2023-12345 -t fixed --fixed-version 5.20.0 --no-prompt
`,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			advisoriesRepoDir := resolveAdvisoriesDirInput(p.advisoriesRepoDir)
			if advisoriesRepoDir == "" {
				return fmt.Errorf("no advisories repo dir specified (see -a/--%s)", flagNameAdvisoriesRepoDir)
			}

			advisoryFsys := rwos.DirFS(advisoriesRepoDir)
			index, err := advisories.NewIndex(ctx, advisoryFsys)
			if err != nil {
				return err
			}

			req, err := p.requestParams.advisoryRequest()
			if err != nil {
				return err
			}

			if err := req.Validate(); err != nil {
				return fmt.Errorf("not enough information to create advisory: %w", err)
			}

			return advisories.Create(ctx, index, req)
		},
	}

	p.addFlagsTo(cmd)
	return cmd
}

type createParams struct {
	requestParams     advisoryRequestParams
	advisoriesRepoDir string
}

func (p *createParams) addFlagsTo(cmd *cobra.Command) {
	p.requestParams.addFlags(cmd)
	addAdvisoriesDirFlag(&p.advisoriesRepoDir, cmd)
}
