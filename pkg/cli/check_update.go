package cli

import (
	"context"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/update"
)

type checkUpdateOptions struct {
	dir             string
	overrideVersion string
}

func cmdCheckUpdate() *cobra.Command {
	o := checkUpdateOptions{}

	cmd := &cobra.Command{
		Use:               "check-update [package...]",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Short:             "Check which recipes have newer upstream releases",
		RunE: func(cmd *cobra.Command, packages []string) error {
			return o.CheckUpdates(cmd.Context(), packages)
		},
	}

	checkUpdateFlags(cmd, &o)

	return cmd
}

func checkUpdateFlags(cmd *cobra.Command, o *checkUpdateOptions) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	cmd.Flags().StringVarP(&o.dir, "directory", "d", cwd, "directory containing the recipe repository")
	cmd.Flags().StringVarP(&o.overrideVersion, "override-version", "", "", "override the local recipe version to test an update works as expected")
}

func (o checkUpdateOptions) CheckUpdates(ctx context.Context, packages []string) error {
	opts := update.New()
	opts.Logger = log.New(log.Writer(), "condactl check update: ", log.LstdFlags|log.Lmsgprefix)

	if o.overrideVersion != "" {
		if len(packages) != 1 {
			return fmt.Errorf("--override-version applies to exactly one package, got %d", len(packages))
		}
		return o.checkOverride(ctx, opts, packages[0])
	}

	errorMessages := map[string]string{}
	newVersions, err := opts.GetNewVersions(ctx, o.dir, packages, errorMessages)
	if err != nil {
		return err
	}

	for _, name := range slices.Sorted(maps.Keys(newVersions)) {
		opts.Logger.Printf("%s can be updated to %s", name, newVersions[name].Version)
	}
	for k, message := range errorMessages {
		opts.Logger.Printf("%s: %s", k, message)
	}
	if len(newVersions) == 0 {
		opts.Logger.Printf("all recipes are up to date")
	}

	return nil
}

// checkOverride pretends the named recipe is at the override version, so the
// update path can be exercised before anything is released.
func (o checkUpdateOptions) checkOverride(ctx context.Context, opts update.Options, name string) error {
	project, err := opts.PypiClient.Project(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "failed to query the package index for %s", name)
	}
	latest, err := project.LatestStableVersion()
	if err != nil {
		return err
	}

	current, err := version.NewVersion(o.overrideVersion)
	if err != nil {
		return errors.Wrapf(err, "failed to parse override version %s", o.overrideVersion)
	}
	latestVersion, err := version.NewVersion(latest)
	if err != nil {
		return errors.Wrapf(err, "failed to parse latest version %s", latest)
	}

	if latestVersion.LessThanOrEqual(current) {
		opts.Logger.Printf("%s is up to date at %s", name, o.overrideVersion)
		return nil
	}
	opts.Logger.Printf("%s can be updated from %s to %s", name, o.overrideVersion, latest)
	return nil
}
