package cli

import (
	"context"
	"net/url"

	ghauth "github.com/cli/go-gh/v2/pkg/auth"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/update"
)

type updateOptions struct {
	packageNames          []string
	pullRequestBaseBranch string
	pullRequestTitle      string
	batch                 bool
	dryRun                bool
	useGitSign            bool
	openLinks             bool
}

func cmdUpdate() *cobra.Command {
	o := &updateOptions{}
	cmd := &cobra.Command{
		Use:     "update",
		Short:   "Propose recipe update(s) via a pull request",
		Long:    `Check the package index for newer upstream releases of the recipes in a repository and propose the resulting bumps as pull requests.`,
		Example: `  condactl update https://github.com/conda-tools/recipes`,
		Args:    cobra.RangeArgs(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.UpdateCmd(cmd.Context(), args[0])
		},
	}

	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "prints proposed recipe updates rather than creating a pull request")
	cmd.Flags().BoolVar(&o.batch, "batch", false, "creates a single pull request with recipe updates rather than individual pull request per update")
	cmd.Flags().StringArrayVar(&o.packageNames, "package-name", []string{}, "Optional: provide specific package names to check for updates rather than searching all recipes in a repo URI")
	cmd.Flags().StringVar(&o.pullRequestBaseBranch, "pull-request-base-branch", "main", "base branch to create a pull request against")
	cmd.Flags().StringVar(&o.pullRequestTitle, "pull-request-title", "%s/%s package update", "the title to use when creating a pull request")
	cmd.Flags().BoolVar(&o.useGitSign, "use-gitsign", false, "enable gitsign to sign the git commits")
	cmd.Flags().BoolVar(&o.openLinks, "open-links", false, "open pull request links in a browser as they are created")

	return cmd
}

func (o updateOptions) UpdateCmd(ctx context.Context, repoURI string) error {
	opts := update.New()

	if !o.dryRun {
		if token, _ := ghauth.TokenForHost("github.com"); token == "" {
			return errors.New("no GitHub token found (set GITHUB_TOKEN or log in with gh)")
		}
	}

	if _, err := url.ParseRequestURI(repoURI); err != nil {
		return errors.Wrapf(err, "failed to parse URI %s", repoURI)
	}
	opts.PackageNames = o.packageNames
	opts.RepoURI = repoURI
	opts.DryRun = o.dryRun
	opts.Batch = o.batch
	opts.UseGitSign = o.useGitSign
	opts.OpenLinks = o.openLinks
	opts.PullRequestBaseBranch = o.pullRequestBaseBranch
	opts.PullRequestTitle = o.pullRequestTitle

	if err := opts.Update(ctx); err != nil {
		return errors.Wrapf(err, "creating updates")
	}

	return nil
}
