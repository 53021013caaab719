package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/advisories"
	"github.com/conda-tools/condactl/pkg/index"
	"github.com/conda-tools/condactl/pkg/recipe"
)

type schemaOpts struct {
	// File path to write output to
	OutFile string
}

type sourceType string

var (
	recipeSource   sourceType = "recipe"
	advisorySource sourceType = "advisory"
	repodataSource sourceType = "repodata"
)

func cmdSchema() *cobra.Command {
	o := &schemaOpts{}

	cmd := &cobra.Command{
		Use:   "schema {recipe|advisory|repodata}",
		Short: "Generate json schema for the repository's document types.",
		Example: `
  condactl schema recipe > recipe.schema.json
  `,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Cmd(cmd.Context(), sourceType(args[0]))
		},
	}

	cmd.Flags().StringVarP(&o.OutFile, "out", "o", "", "file path to write the schema to (default: stdout)")

	return cmd
}

func (o schemaOpts) Cmd(_ context.Context, source sourceType) error {
	r := new(jsonschema.Reflector)
	r.AddGoComments("github.com/conda-tools/condactl", "./")

	var s *jsonschema.Schema
	switch source {
	case recipeSource:
		s = r.Reflect(&recipe.Recipe{})

	case advisorySource:
		s = r.Reflect(&advisories.Document{})

	case repodataSource:
		s = r.Reflect(&index.Repodata{})

	default:
		return fmt.Errorf("unknown schema source: %s", source)
	}

	// Match the format of those in: https://github.com/SchemaStore/schemastore/tree/master/src/schemas/json
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	w := os.Stdout
	if o.OutFile != "" {
		f, err := os.Create(o.OutFile)
		if err != nil {
			return fmt.Errorf("creating output file: %v", err)
		}
		defer f.Close()
		w = f
	}

	_, err = fmt.Fprintf(w, "%s", data)
	return err
}
