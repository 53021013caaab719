package pypi

import (
	"fmt"

	"github.com/conda-tools/condactl/pkg/python"
	"github.com/conda-tools/condactl/pkg/setupmeta"
)

// SetupMetadata adapts the project document into the setup metadata document
// recipes resolve against. Scaffolding a new recipe starts from this.
//
// Conditional requirements (anything carrying an environment marker, such as
// extras or platform-specific dependencies) are dropped: a recipe declares
// the unconditional runtime set.
func (p *Project) SetupMetadata() (*setupmeta.Metadata, error) {
	var installRequires []any
	for _, spec := range p.Info.RequiresDist {
		req, err := python.ParseRequirement(spec)
		if err != nil {
			return nil, fmt.Errorf("requirement %q of %s: %w", spec, p.Info.Name, err)
		}
		if req.Marker != "" {
			continue
		}
		installRequires = append(installRequires, req.String())
	}

	projectURLs := map[string]any{}
	for k, v := range p.Info.ProjectURLs {
		projectURLs[k] = v
	}

	homepage := p.Info.HomePage
	if homepage == "" {
		homepage = p.Info.ProjectURLs["Homepage"]
	}

	doc := map[string]any{
		"name":             python.NormalizeName(p.Info.Name),
		"version":          p.Info.Version,
		"description":      p.Info.Summary,
		"url":              homepage,
		"python_requires":  p.Info.RequiresPython,
		"setup_requires":   []any{"setuptools"},
		"install_requires": installRequires,
		"project_urls":     projectURLs,
	}
	if installRequires == nil {
		doc["install_requires"] = []any{}
	}

	return setupmeta.New(doc, fmt.Sprintf("pypi:%s", p.Info.Name)), nil
}
