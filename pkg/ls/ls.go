package ls

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/render"
)

type ListOptions struct {
	Recipes []*render.Resolved

	// IncludeEntryPoints indicates whether console entry points should be included in the results.
	IncludeEntryPoints bool

	// RequestedPackages is a list of package names to list. If empty, all packages are listed.
	RequestedPackages []string

	// Template is the Go template string to use when printing results.
	Template string
}

// List lists recipes.
func List(opts ListOptions) ([]string, error) {
	var tmpl *template.Template
	if opts.Template != "" {
		var err error
		tmpl, err = template.New("result").Parse(opts.Template)
		if err != nil {
			return nil, fmt.Errorf("unable to parse template: %w", err)
		}
	}

	if len(opts.RequestedPackages) == 0 {
		results, err := listRecipeNames(opts.Recipes, opts.IncludeEntryPoints, tmpl)
		if err != nil {
			return nil, fmt.Errorf("unable to list recipe names: %w", err)
		}

		return results, nil
	}

	var results []string
	for _, requestedPkg := range opts.RequestedPackages {
		var matched []*render.Resolved

		for _, res := range opts.Recipes {
			if res.Recipe.Name() == requestedPkg {
				matched = append(matched, res)
			}
		}

		if len(matched) == 0 {
			// If a package was requested that doesn't exist, surface that as an error.
			return nil, fmt.Errorf("no package found for %q", requestedPkg)
		}

		names, err := listRecipeNames(matched, opts.IncludeEntryPoints, tmpl)
		if err != nil {
			return nil, fmt.Errorf("unable to list recipe names: %w", err)
		}
		results = append(results, names...)
	}

	return results, nil
}

// renderResultItem renders a result item using the provided template. If tmpl
// is nil, the package or entry point name is returned. The item parameter's
// type should be recipe.Recipe or recipe.EntryPoint.
func renderResultItem(item any, tmpl *template.Template) (string, error) {
	if tmpl == nil {
		switch item := item.(type) {
		case recipe.Recipe:
			return item.Name(), nil
		case recipe.EntryPoint:
			return item.Name, nil
		default:
			return "", fmt.Errorf("unexpected type %T", item)
		}
	}

	var b strings.Builder
	err := tmpl.Execute(&b, item)
	if err != nil {
		return "", fmt.Errorf("unable to render template: %w", err)
	}

	return b.String(), nil
}

func listRecipeNames(recipes []*render.Resolved, includeEntryPoints bool, tmpl *template.Template) ([]string, error) {
	var results []string

	for _, res := range recipes {
		r := *res.Recipe

		rendered, err := renderResultItem(r, tmpl)
		if err != nil {
			return nil, err
		}

		results = append(results, rendered)

		if includeEntryPoints {
			eps, err := r.EntryPoints()
			if err != nil {
				return nil, err
			}

			for _, ep := range eps {
				rendered, err := renderResultItem(ep, tmpl)
				if err != nil {
					return nil, err
				}

				results = append(results, rendered)
			}
		}
	}

	return results, nil
}
