package cli

import (
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/index"
)

func cmdIndex() *cobra.Command {
	var channelDir string
	var subdirs []string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Generate repodata.json for a local channel",
		Long: `Generate repodata.json for a local channel

Walks the channel directory, hashes every package archive it finds, and
writes a repodata.json into each subdirectory (noarch, linux-64, ...)
next to its artifacts. The build command does this automatically; index
exists to rebuild the metadata after packages were copied in by hand.
`,
		Example:       "  condactl index -c output",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := clog.FromContext(ctx)

			if len(subdirs) == 0 {
				return index.WriteChannel(ctx, channelDir)
			}

			for _, subdir := range subdirs {
				repodata, err := index.Subdir(ctx, channelDir, subdir)
				if err != nil {
					return err
				}
				if err := index.Write(repodata, filepath.Join(channelDir, subdir, index.Filename)); err != nil {
					return err
				}
				log.Infof("indexed %d package(s) in %s", len(repodata.Packages), subdir)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&channelDir, "channel", "c", "output", "path to the channel directory")
	cmd.Flags().StringSliceVarP(&subdirs, "subdir", "s", nil, "only reindex these channel subdirectories")

	return cmd
}
