package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/advisories"
	rwos "github.com/conda-tools/condactl/pkg/configs/rwfs/os"
)

func cmdAdvisoryList() *cobra.Command {
	p := &listParams{}
	cmd := &cobra.Command{
		Use:           "list",
		Aliases:       []string{"ls"},
		Short:         "List advisories for specific packages or across the whole repository",
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			advisoriesRepoDir := resolveAdvisoriesDirInput(p.advisoriesRepoDir)
			if advisoriesRepoDir == "" {
				return fmt.Errorf("no advisories repo dir specified (see -a/--%s)", flagNameAdvisoriesRepoDir)
			}

			advisoriesFsys := rwos.DirFS(advisoriesRepoDir)
			index, err := advisories.NewIndex(ctx, advisoriesFsys)
			if err != nil {
				return err
			}

			var docs []advisories.Document
			if pkg := p.packageName; pkg != "" {
				docs = index.Select().WhereName(pkg).Configurations()
			} else {
				docs = index.Select().Configurations()
			}

			var output string

			for _, doc := range docs {
				for _, adv := range doc.Advisories {
					if len(adv.Events) == 0 {
						// nothing to show
						continue
					}

					if p.vuln != "" && !adv.DescribesVulnerability(p.vuln) {
						// user specified a particular different vulnerability
						continue
					}

					if p.unresolved && adv.Resolved() {
						// user only wants to see advisories that still need attention
						continue
					}

					if p.history {
						for _, e := range adv.SortedEvents() {
							t := time.Time(e.Timestamp)
							output += fmt.Sprintf("%s: %s: %s @ %s (%s)\n", doc.Package.Name, adv.ID, renderListItem(e), t.Format(time.RFC3339), humanize.Time(t))
						}

						continue
					}

					output += fmt.Sprintf("%s: %s: %s\n", doc.Package.Name, adv.ID, renderListItem(adv.Latest()))
				}
			}

			fmt.Print(output)
			return nil
		},
	}

	p.addFlagsTo(cmd)
	return cmd
}

type listParams struct {
	advisoriesRepoDir string

	packageName string
	vuln        string
	history     bool
	unresolved  bool
}

func (p *listParams) addFlagsTo(cmd *cobra.Command) {
	addAdvisoriesDirFlag(&p.advisoriesRepoDir, cmd)

	addPackageFlag(&p.packageName, cmd)
	addVulnFlag(&p.vuln, cmd)

	cmd.Flags().BoolVar(&p.history, "history", false, "show full history for advisories")
	cmd.Flags().BoolVar(&p.unresolved, "unresolved", false, "only show advisories whose latest event leaves the vulnerability unresolved")
}

func renderListItem(e advisories.Event) string {
	switch e.Type {
	case advisories.EventTypeFixed:
		return fmt.Sprintf("%s (%s)", e.Type, e.FixedVersion)

	case advisories.EventTypeTruePositive, advisories.EventTypeFalsePositive, advisories.EventTypeFixNotPlanned:
		if e.Note != "" {
			return fmt.Sprintf("%s (%s)", e.Type, e.Note)
		}
		return e.Type

	case advisories.EventTypeDetection:
		return e.Type
	}

	return fmt.Sprintf("UNABLE TO RENDER EVENT OF TYPE %q", e.Type)
}
