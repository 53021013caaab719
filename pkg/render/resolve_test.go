package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conda-tools/condactl/pkg/recipe"
)

func TestResolve(t *testing.T) {
	res, err := Resolve(os.DirFS("testdata"), filepath.Join("recipes", "casq"))
	require.NoError(t, err)

	r := res.Recipe
	assert.Equal(t, "casq", r.Name())
	assert.Equal(t, "1.2.0", r.Version())
	assert.Equal(t, "py_0", r.BuildString())
	assert.Equal(t,
		[]string{"pip", "python >=3.7", "setuptools"},
		r.Requirements.Host)
	assert.Equal(t,
		[]string{"loguru", "networkx>=2.4", "python-libsbml", "python >=3.7"},
		r.Requirements.Run)

	eps, err := r.EntryPoints()
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "casq", eps[0].Name)

	require.NotNil(t, r.About)
	assert.Equal(t, "https://casq.readthedocs.io/en/stable/", r.About.DocURL)
	assert.Equal(t, "https://github.com/soli/casq", r.About.DevURL)

	require.NoError(t, res.Validate())

	// No field of the manifest contract is empty.
	assert.NotEmpty(t, r.Package.Name)
	assert.NotEmpty(t, r.Package.Version)
	assert.NotEmpty(t, r.Build.Script)
	assert.NotEmpty(t, r.Requirements.Host)
	assert.NotEmpty(t, r.Requirements.Run)
	assert.NotEmpty(t, r.Test.Commands)
}

func TestResolve_MissingDocumentationURL(t *testing.T) {
	_, err := Resolve(os.DirFS("testdata"), filepath.Join("recipes", "casq-no-docs"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "Documentation" not found`)
}

func TestResolve_VersionMismatch(t *testing.T) {
	res, err := Resolve(os.DirFS("testdata"), filepath.Join("recipes", "version-mismatch"))
	require.NoError(t, err)

	err = res.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `manifest version "1.1.0" does not match metadata version "1.2.0"`)
}

func TestResolve_MissingRecipe(t *testing.T) {
	_, err := Resolve(os.DirFS("testdata"), filepath.Join("recipes", "nonexistent"))
	assert.Error(t, err)
}

// Rendered manifests parse clean against the schema, and resolving the
// same directory twice yields identical bytes.
func TestResolve_StableAndSchemaClean(t *testing.T) {
	first, err := Resolve(os.DirFS("testdata"), filepath.Join("recipes", "casq"))
	require.NoError(t, err)
	second, err := Resolve(os.DirFS("testdata"), filepath.Join("recipes", "casq"))
	require.NoError(t, err)

	assert.Equal(t, string(first.Manifest), string(second.Manifest))
	assert.NoError(t, recipe.ValidateSchema(first.Manifest))
}
