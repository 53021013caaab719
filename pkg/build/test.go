package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/conda-tools/condactl/pkg/tar"
)

// Test extracts the built artifact into a scratch environment and runs the
// manifest's smoke tests against it. Any failing command fails the whole
// run.
func (b *Build) Test(ctx context.Context) error {
	log := clog.FromContext(ctx)
	r := b.Resolved.Recipe

	artifact := filepath.Join(b.OutDir, r.Subdir(), r.ArtifactFilename())
	if _, err := os.Stat(artifact); err != nil {
		return fmt.Errorf("artifact %s is not built: %w", artifact, err)
	}

	if r.Test == nil || (len(r.Test.Imports) == 0 && len(r.Test.Commands) == 0) {
		log.Warnf("no tests defined for %s", r.Name())
		return nil
	}
	if len(r.Test.Requires) > 0 {
		log.Debugf("assuming test requirements are present: %s", strings.Join(r.Test.Requires, ", "))
	}

	if b.ownWorkDir && !b.KeepWorkDir {
		defer os.RemoveAll(b.WorkDir)
	}

	envDir := filepath.Join(b.WorkDir, "test-env")
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return fmt.Errorf("creating test environment: %w", err)
	}

	f, err := os.Open(artifact)
	if err != nil {
		return fmt.Errorf("opening %s: %w", artifact, err)
	}
	defer f.Close()
	if err := tar.Untar(f, envDir); err != nil {
		return fmt.Errorf("extracting %s: %w", artifact, err)
	}

	// Noarch packages carry their entry points as link metadata instead of
	// payload scripts. Materialize them so test commands can invoke them.
	if r.NoarchPython() {
		if err := b.writeEntryPointScripts(envDir); err != nil {
			return err
		}
	}

	sep := string(os.PathListSeparator)
	env := append(os.Environ(),
		"PREFIX="+envDir,
		"PATH="+filepath.Join(envDir, "bin")+sep+os.Getenv("PATH"),
		"PYTHONPATH="+strings.Join(pythonPath(envDir), sep),
	)

	var cmds []string
	for _, imp := range r.Test.Imports {
		cmds = append(cmds, fmt.Sprintf("python -c %q", "import "+imp))
	}
	cmds = append(cmds, r.Test.Commands...)

	for _, cmd := range cmds {
		log.Infof("testing %s: %s", r.Name(), cmd)
		c := exec.CommandContext(ctx, "sh", "-c", cmd)
		c.Dir = envDir
		c.Env = env
		c.Stdout = b.ScriptOutput
		c.Stderr = b.ScriptOutput
		if err := c.Run(); err != nil {
			return fmt.Errorf("test command %q for %s failed: %w", cmd, r.Name(), err)
		}
	}

	log.Infof("tested %s", r.Name())
	return nil
}

// pythonPath lists the module roots a test environment exposes: the flat
// noarch site-packages layout plus any versioned lib paths an arch build
// installed.
func pythonPath(envDir string) []string {
	paths := []string{filepath.Join(envDir, "site-packages")}
	if matches, err := filepath.Glob(filepath.Join(envDir, "lib", "python*", "site-packages")); err == nil {
		paths = append(paths, matches...)
	}
	return append(paths, envDir)
}
