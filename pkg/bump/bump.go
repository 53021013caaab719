// Package bump rewrites recipes in place for new upstream releases. The
// edits are line oriented, touching only the version, sha256 and build
// number lines, so the rest of the file survives byte for byte and review
// diffs stay small.
package bump

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/pkg/errors"

	"github.com/conda-tools/condactl/pkg/configs/rwfs"
	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/render"
	"github.com/conda-tools/condactl/pkg/setupmeta"
)

var (
	// Literal pins only. Templates that read the version or digest out of the
	// metadata document pick up new values without a manifest edit.
	setVersionRe = regexp.MustCompile(`^(\s*\{%-?\s*set\s+version\s*=\s*")([^"]*)("\s*-?%\}\s*)$`)
	setSHA256Re  = regexp.MustCompile(`^(\s*\{%-?\s*set\s+sha256\s*=\s*")([A-Fa-f0-9]{64})("\s*-?%\}\s*)$`)

	sourceSHA256Re = regexp.MustCompile(`^(\s*sha256:\s*)([A-Fa-f0-9]{64})(\s*)$`)
	buildNumberRe  = regexp.MustCompile(`^(\s*number:\s*)(\d+)(\s*)$`)

	jsonVersionRe = regexp.MustCompile(`^(\s*"version"\s*:\s*")([^"]*)(",?\s*)$`)
	tomlVersionRe = regexp.MustCompile(`^(version\s*=\s*")([^"]*)("\s*)$`)
)

// Recipe bumps the recipe in dir to version. A non-empty digest replaces the
// source sha256, and the build number resets to zero whenever the version
// actually moves. All edits are computed before anything is written, so a
// recipe that cannot be bumped is left untouched. The returned paths are the
// files that were rewritten.
func Recipe(ctx context.Context, fsys rwfs.FS, dir, version, digest string) ([]string, error) {
	log := clog.FromContext(ctx)

	if version == "" {
		return nil, fmt.Errorf("no version to bump %s to", dir)
	}

	metaPath, metaLines, err := metadataLines(fsys, dir)
	if err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(dir, recipe.Filename)
	manifestLines, err := readLines(fsys, manifestPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", manifestPath)
	}

	versionMoved, err := rewriteVersionLine(metaPath, metaLines, version)
	if err != nil {
		return nil, err
	}

	manifestChanged, err := rewriteManifest(manifestPath, manifestLines, version, digest, versionMoved)
	if err != nil {
		return nil, err
	}

	var modified []string
	if versionMoved {
		if err := writeLines(fsys, metaPath, metaLines); err != nil {
			return nil, err
		}
		modified = append(modified, metaPath)
	}
	if manifestChanged {
		if err := writeLines(fsys, manifestPath, manifestLines); err != nil {
			return nil, err
		}
		modified = append(modified, manifestPath)
	}

	res, err := render.Resolve(fsys, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "bumping %s left it unresolvable", dir)
	}
	if v := res.Recipe.Version(); v != version {
		return nil, fmt.Errorf("bumped %s but the manifest still renders version %s", dir, v)
	}

	if len(modified) == 0 {
		log.Infof("%s is already at %s", dir, version)
		return nil, nil
	}

	log.Infof("bumped %s to %s", dir, version)
	return modified, nil
}

// BuildNumber increments the manifest's build number in place, for rebuilds
// that ship the same upstream version.
func BuildNumber(ctx context.Context, fsys rwfs.FS, dir string) error {
	res, err := render.Resolve(fsys, dir)
	if err != nil {
		return err
	}
	r := res.Recipe

	manifestPath := filepath.Join(dir, recipe.Filename)
	lines, err := readLines(fsys, manifestPath)
	if err != nil {
		return errors.Wrapf(err, "reading %s", manifestPath)
	}

	next := r.Build.Number + 1
	clog.FromContext(ctx).Infof("bumping %s-%s build number %d to %d", r.Name(), r.Version(), r.Build.Number, next)

	found := false
	for i, line := range lines {
		m := buildNumberRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lines[i] = m[1] + strconv.Itoa(next) + m[3]
		found = true
		break
	}
	if !found {
		return fmt.Errorf("unable to find a build number line in %s", manifestPath)
	}

	return writeLines(fsys, manifestPath, lines)
}

// metadataLines loads the metadata document the recipe resolves against,
// preferring setup-meta.json over pyproject.toml like the resolver does.
func metadataLines(fsys rwfs.FS, dir string) (string, []string, error) {
	jsonPath := filepath.Join(dir, setupmeta.JSONFilename)
	if lines, err := readLines(fsys, jsonPath); err == nil {
		return jsonPath, lines, nil
	}

	tomlPath := filepath.Join(dir, setupmeta.PyprojectFilename)
	if lines, err := readLines(fsys, tomlPath); err == nil {
		return tomlPath, lines, nil
	}

	return "", nil, fmt.Errorf("no %s or %s in %s", setupmeta.JSONFilename, setupmeta.PyprojectFilename, dir)
}

// rewriteVersionLine updates the version line of the metadata document in
// place and reports whether the version actually moved.
func rewriteVersionLine(path string, lines []string, version string) (bool, error) {
	re := jsonVersionRe
	if !strings.HasSuffix(path, ".json") {
		re = tomlVersionRe
	}

	for i, line := range lines {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if m[2] == version {
			return false, nil
		}
		lines[i] = m[1] + version + m[3]
		return true, nil
	}

	return false, fmt.Errorf("no version line in %s to rewrite", path)
}

// rewriteManifest updates the template's literal version pin, places the new
// source digest, and resets the build number when the version moved. A
// digest with nowhere to go is an error: leaving a stale digest behind would
// fail every subsequent fetch.
func rewriteManifest(path string, lines []string, version, digest string, versionMoved bool) (bool, error) {
	for _, line := range lines {
		if m := setVersionRe.FindStringSubmatch(line); m != nil && m[2] != version {
			versionMoved = true
		}
	}

	changed := false
	digestPlaced := digest == ""
	for i, line := range lines {
		if m := setVersionRe.FindStringSubmatch(line); m != nil {
			if m[2] != version {
				lines[i] = m[1] + version + m[3]
				changed = true
			}
			continue
		}
		if digest != "" {
			if m := setSHA256Re.FindStringSubmatch(line); m != nil {
				if m[2] != digest {
					lines[i] = m[1] + digest + m[3]
					changed = true
				}
				digestPlaced = true
				continue
			}
			if m := sourceSHA256Re.FindStringSubmatch(line); m != nil {
				if m[2] != digest {
					lines[i] = m[1] + digest + m[3]
					changed = true
				}
				digestPlaced = true
				continue
			}
		}
		if versionMoved {
			if m := buildNumberRe.FindStringSubmatch(line); m != nil && m[2] != "0" {
				lines[i] = m[1] + "0" + m[3]
				changed = true
			}
		}
	}

	if !digestPlaced {
		return false, fmt.Errorf("no sha256 line in %s to update", path)
	}
	return changed, nil
}

func readLines(fsys rwfs.FS, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(b), "\n"), nil
}

func writeLines(fsys rwfs.FS, path string, lines []string) error {
	f, err := fsys.OpenAsWritable(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s for writing", path)
	}
	defer f.Close()

	if err := fsys.Truncate(path, 0); err != nil {
		return errors.Wrapf(err, "truncating %s", path)
	}

	if _, err := io.WriteString(f, strings.Join(lines, "\n")); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
