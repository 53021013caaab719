package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/bump"
	rwos "github.com/conda-tools/condactl/pkg/configs/rwfs/os"
	"github.com/conda-tools/condactl/pkg/pypi"
	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/render"
)

type bumpOptions struct {
	repoDir       string
	targetVersion string
	sha256        string
	dryRun        bool
}

func cmdBump() *cobra.Command {
	opts := bumpOptions{}
	cmd := &cobra.Command{
		Use:     "bump recipe [recipe...]",
		Short:   "Bump the build number or version in conda recipes",
		Example: "condactl bump casq lib*",
		Long: `Bump the build number or version in conda recipes

By default the bump subcommand increments the build number in each named
recipe, for rebuilds that ship the same upstream version. With
--target-version it rewrites the version and source sha256 instead,
looking the digest up on PyPI when --sha256 is not given, and resets the
build number to zero.

condactl bump can take a recipe name or a glob, bumping each matching
recipe directory:

    condactl bump casq
    condactl bump lib*

The command assumes it is being run from the top of the recipe
repository. To look for recipes in another location use the --repo flag.
You can use --dry-run to see what would be bumped without modifying
anything in the filesystem.

`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 {
				cmd.Help() //nolint:errcheck
				return fmt.Errorf("not enough arguments")
			}
			recipes := []string{}
			for _, name := range args {
				_, err := os.Stat(filepath.Join(opts.repoDir, "recipes", name, recipe.Filename))
				if err == nil {
					recipes = append(recipes, name)
					continue
				}

				if !os.IsNotExist(err) {
					return fmt.Errorf("while checking recipe path %s: %w", name, err)
				}

				m, err := filepath.Glob(filepath.Join(opts.repoDir, "recipes", name))
				if err != nil {
					return fmt.Errorf("while globbing recipes from %s: %w", name, err)
				}
				if len(m) == 0 {
					return fmt.Errorf("unable to find recipes from: %s", name)
				}
				for _, match := range m {
					if _, err := os.Stat(filepath.Join(match, recipe.Filename)); err == nil {
						recipes = append(recipes, filepath.Base(match))
					}
				}
			}

			if opts.targetVersion != "" && len(recipes) != 1 {
				return fmt.Errorf("--target-version applies to exactly one recipe, got %d", len(recipes))
			}

			if opts.dryRun {
				fmt.Fprint(os.Stderr, "dry-run: not writing data\n")
			}

			for _, name := range recipes {
				if err := bumpRecipe(ctx, opts, name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.targetVersion, "target-version", "", "bump to this upstream version instead of incrementing the build number")
	cmd.Flags().StringVar(&opts.sha256, "sha256", "", "sha256 of the new source distribution (looked up on PyPI when unset)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "don't change anything, just print what would be done")
	cmd.Flags().StringVar(&opts.repoDir, "repo", ".", "path to the recipe repository")

	return cmd
}

func bumpRecipe(ctx context.Context, opts bumpOptions, name string) error {
	fsys := rwos.DirFS(opts.repoDir)
	dir := filepath.Join("recipes", name)

	if opts.targetVersion == "" {
		if opts.dryRun {
			res, err := render.Resolve(fsys, dir)
			if err != nil {
				return err
			}
			r := res.Recipe
			fmt.Fprintf(
				os.Stderr, "bumping %s-%s build number %d to %d\n",
				r.Name(), r.Version(), r.Build.Number, r.Build.Number+1,
			)
			return nil
		}
		return bump.BuildNumber(ctx, fsys, dir)
	}

	digest := opts.sha256
	if digest == "" {
		release, err := pypi.New().Release(ctx, name, opts.targetVersion)
		if err != nil {
			return errors.Wrapf(err, "looking up %s %s on PyPI", name, opts.targetVersion)
		}
		sdist, err := release.Sdist()
		if err != nil {
			return err
		}
		digest = sdist.Digests.SHA256
	}

	if opts.dryRun {
		fmt.Fprintf(os.Stderr, "bumping %s to %s (sha256 %s)\n", name, opts.targetVersion, digest)
		return nil
	}

	_, err := bump.Recipe(ctx, fsys, dir, opts.targetVersion, digest)
	return err
}
