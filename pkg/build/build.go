// Package build turns a resolved recipe into a package artifact: it fetches
// and verifies the source distribution, runs the recipe's build script
// against a clean staging prefix, and packs the staged tree together with
// its info/ metadata into the output directory.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/chainguard-dev/clog"

	"github.com/conda-tools/condactl/pkg/buildlog"
	"github.com/conda-tools/condactl/pkg/pypi"
	"github.com/conda-tools/condactl/pkg/render"
)

// Build holds the inputs of one package build.
type Build struct {
	Resolved *render.Resolved

	// OutDir receives the artifact under its subdir, plus the build log.
	OutDir string

	// WorkDir is the scratch space for unpacking and staging. A temporary
	// directory is created (and removed afterwards, unless KeepWorkDir)
	// when none is given.
	WorkDir string

	// RecipeDir is the on-disk recipe directory, needed to apply patches.
	RecipeDir string

	// CacheSource optionally names a gs://bucket/prefix mirror holding
	// source archives by their sha256 digest.
	CacheSource string

	DryRun      bool
	Force       bool
	KeepWorkDir bool
	NoTest      bool

	// ScriptOutput receives the build script's stdout and stderr.
	ScriptOutput io.Writer

	client     *pypi.Client
	ownWorkDir bool
}

// Option configures a Build.
type Option func(*Build) error

// WithOutDir sets the artifact output directory.
func WithOutDir(dir string) Option {
	return func(b *Build) error {
		b.OutDir = dir
		return nil
	}
}

// WithWorkDir sets the scratch directory. The caller owns its lifetime.
func WithWorkDir(dir string) Option {
	return func(b *Build) error {
		b.WorkDir = dir
		return nil
	}
}

// WithRecipeDir sets the on-disk path of the recipe directory.
func WithRecipeDir(dir string) Option {
	return func(b *Build) error {
		b.RecipeDir = dir
		return nil
	}
}

// WithCacheSource sets a gs:// mirror checked before the upstream URL.
func WithCacheSource(uri string) Option {
	return func(b *Build) error {
		b.CacheSource = uri
		return nil
	}
}

// WithCacheDir sets where verified source downloads are kept.
func WithCacheDir(dir string) Option {
	return func(b *Build) error {
		b.client.CacheDir = dir
		return nil
	}
}

// WithDryRun reports what would be built without building it.
func WithDryRun(dryrun bool) Option {
	return func(b *Build) error {
		b.DryRun = dryrun
		return nil
	}
}

// WithForce rebuilds even when the artifact already exists.
func WithForce(force bool) Option {
	return func(b *Build) error {
		b.Force = force
		return nil
	}
}

// WithKeepWorkDir leaves the scratch directory behind for debugging.
func WithKeepWorkDir(keep bool) Option {
	return func(b *Build) error {
		b.KeepWorkDir = keep
		return nil
	}
}

// WithNoTest skips the post-build smoke tests.
func WithNoTest(noTest bool) Option {
	return func(b *Build) error {
		b.NoTest = noTest
		return nil
	}
}

// WithScriptOutput directs the build script's output.
func WithScriptOutput(w io.Writer) Option {
	return func(b *Build) error {
		b.ScriptOutput = w
		return nil
	}
}

// WithClient sets the index client used for source downloads.
func WithClient(client *pypi.Client) Option {
	return func(b *Build) error {
		b.client = client
		return nil
	}
}

// New prepares a build of the given resolved recipe.
func New(ctx context.Context, res *render.Resolved, opts ...Option) (*Build, error) {
	b := &Build{
		Resolved:     res,
		OutDir:       "output",
		ScriptOutput: os.Stderr,
		client:       pypi.New(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	if b.WorkDir == "" {
		tmp, err := os.MkdirTemp("", fmt.Sprintf("condactl-build-%s-", res.Recipe.Name()))
		if err != nil {
			return nil, fmt.Errorf("creating work directory: %w", err)
		}
		b.WorkDir = tmp
		b.ownWorkDir = true
	}
	return b, nil
}

// BuildPackage runs the whole pipeline for the recipe: fetch, build script,
// assembly, smoke tests, build log. Every failure is fatal to this package's
// build; nothing is retried.
func (b *Build) BuildPackage(ctx context.Context) error {
	log := clog.FromContext(ctx)
	r := b.Resolved.Recipe

	artifact := filepath.Join(b.OutDir, r.Subdir(), r.ArtifactFilename())
	if !b.Force {
		if _, err := os.Stat(artifact); err == nil {
			log.Infof("skipping %s, already built", artifact)
			return nil
		}
	}
	if b.DryRun {
		log.Infof("DRYRUN: would have built %s", artifact)
		return nil
	}

	if err := b.Resolved.Validate(); err != nil {
		return err
	}

	if b.ownWorkDir && !b.KeepWorkDir {
		defer os.RemoveAll(b.WorkDir)
	}

	log.Infof("will build: %s", artifact)

	srcRoot, err := b.fetchSource(ctx)
	if err != nil {
		return err
	}
	if srcRoot == "" {
		// Script-only recipes still need a working directory.
		srcRoot = filepath.Join(b.WorkDir, "src")
		if err := os.MkdirAll(srcRoot, 0o755); err != nil {
			return fmt.Errorf("creating source directory: %w", err)
		}
	}

	stage := filepath.Join(b.WorkDir, "stage")
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return fmt.Errorf("creating staging prefix: %w", err)
	}

	if err := b.runScript(ctx, srcRoot, stage); err != nil {
		return err
	}

	if err := b.assemble(ctx, stage, artifact); err != nil {
		return err
	}

	// An artifact that fails its own smoke tests does not ship, and does
	// not make it into the build log either.
	if !b.NoTest {
		if err := b.Test(ctx); err != nil {
			if rmErr := os.Remove(artifact); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warnf("could not remove rejected artifact %s: %s", artifact, rmErr)
			}
			return err
		}
	}

	entry := buildlog.Entry{
		Subdir:      r.Subdir(),
		Package:     r.Name(),
		FullVersion: r.FullVersion(),
	}
	if err := buildlog.Append(filepath.Join(b.OutDir, buildlog.DefaultName), entry); err != nil {
		return err
	}

	log.Infof("built %s", artifact)
	return nil
}

// runScript executes the recipe's build script with the build environment
// conda scripts expect.
func (b *Build) runScript(ctx context.Context, srcRoot, stage string) error {
	log := clog.FromContext(ctx)
	r := b.Resolved.Recipe

	recipeDir := b.RecipeDir
	if recipeDir == "" {
		recipeDir = b.Resolved.Dir
	}

	env := []string{
		"PREFIX=" + stage,
		"SRC_DIR=" + srcRoot,
		"RECIPE_DIR=" + recipeDir,
		"PKG_NAME=" + r.Name(),
		"PKG_VERSION=" + r.Version(),
		fmt.Sprintf("PKG_BUILDNUM=%d", r.Build.Number),
		"PKG_BUILD_STRING=" + r.BuildString(),
	}

	log.Debug("running build script", "script", r.Build.Script)
	cmd := exec.CommandContext(ctx, "sh", "-c", r.Build.Script)
	cmd.Dir = srcRoot
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = b.ScriptOutput
	cmd.Stderr = b.ScriptOutput
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build script for %s failed: %w", r.Name(), err)
	}

	// The canonical install command records what it installed; surface the
	// count when it's there.
	if record, err := os.ReadFile(filepath.Join(srcRoot, "record.txt")); err == nil {
		log.Debug("build script recorded installed files", "count", countLines(record))
	}
	return nil
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
