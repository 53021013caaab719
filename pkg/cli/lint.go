package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/lint"
)

type lintOptions struct {
	args      []string
	list      bool
	skipRules []string
	verbose   bool
}

func cmdLint() *cobra.Command {
	o := &lintOptions{}
	cmd := &cobra.Command{
		Use:               "lint [path...]",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Short:             "Lint recipe directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			o.args = args
			return o.LintCmd(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&o.list, "list", "l", false, "prints the all of available rules and exits")
	cmd.Flags().StringArrayVarP(&o.skipRules, "skip-rule", "", []string{}, "list of rules to skip")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "log which rules were skipped and why")

	cmd.AddCommand(cmdLintYam())

	return cmd
}

func (o lintOptions) LintCmd(ctx context.Context) error {
	// only count errors as failures, not warnings.
	failed := false

	for _, opts := range o.makeLintOptions() {
		linter := lint.New(opts...)

		// If the list flag is set, print the list of available rules and exit.
		if o.list {
			linter.PrintRules()
			return nil
		}

		result, err := linter.Lint(ctx)
		if err != nil {
			return err
		}
		if len(result) > 0 {
			linter.Print(result)
			if result.HasErrorSeverity() {
				failed = true
			}
		}
	}

	if failed {
		return errors.New("linting failed")
	}

	return nil
}

func (o lintOptions) makeLintOptions() [][]lint.Option {
	if len(o.args) == 0 {
		// Lint the recipes directory by default.
		o.args = []string{"recipes"}
	}

	opts := make([][]lint.Option, 0, len(o.args))
	for _, path := range o.args {
		opts = append(opts, []lint.Option{
			lint.WithPath(path),
			lint.WithSkipRules(o.skipRules),
			lint.WithVerbose(o.verbose),
		})
	}
	return opts
}
