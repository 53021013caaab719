package render

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/setupmeta"
)

// Resolved is the outcome of resolving one recipe directory: the parsed
// manifest, its rendered bytes, and the metadata it was resolved against.
type Resolved struct {
	// Dir is the recipe directory, relative to the repository root.
	Dir string

	Recipe   *recipe.Recipe
	Manifest []byte
	Metadata *setupmeta.Metadata
}

// Resolve loads the recipe template and its setup metadata from dir,
// renders the template, and parses the result. Resolution is mechanical:
// contract checks beyond parseability live in Validate.
func Resolve(fsys fs.FS, dir string) (*Resolved, error) {
	path := filepath.Join(dir, recipe.Filename)
	template, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	md, err := setupmeta.Load(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}

	manifest, err := Render(template, md)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", path, err)
	}

	r, err := recipe.Parse(manifest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Resolved{
		Dir:      dir,
		Recipe:   r,
		Manifest: manifest,
		Metadata: md,
	}, nil
}

// Validate enforces the full interpreter contract on a resolved recipe:
// the metadata carries every required key, the manifest is complete, and
// the manifest's version matches the metadata's.
func (res *Resolved) Validate() error {
	var errs error

	if err := res.Metadata.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := res.Recipe.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}

	if mdVersion, err := res.Metadata.Version(); err == nil {
		if v := res.Recipe.Version(); v != mdVersion {
			errs = multierror.Append(errs, fmt.Errorf(
				"manifest version %q does not match metadata version %q from %s",
				v, mdVersion, res.Metadata.Source()))
		}
	}

	if errs != nil {
		return fmt.Errorf("%s: %w", res.Dir, errs)
	}
	return nil
}
