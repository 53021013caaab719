package cli

import (
	"github.com/spf13/cobra"
	"sigs.k8s.io/release-utils/version"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "condactl",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "A CLI helper for maintaining conda recipe repositories",
	}

	cmd.AddCommand(
		cmdAdvisory(),
		cmdBuild(),
		cmdBump(),
		cmdCheckUpdate(),
		cmdIndex(),
		cmdInit(),
		cmdLint(),
		cmdLs(),
		cmdPkg(),
		cmdRender(),
		cmdSVG(),
		cmdScan(),
		cmdSchema(),
		cmdTest(),
		cmdUpdate(),
		version.Version(),
	)

	return cmd
}
