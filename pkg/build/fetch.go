package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/chainguard-dev/clog"
	"github.com/pkg/errors"

	"github.com/conda-tools/condactl/pkg/pypi"
	"github.com/conda-tools/condactl/pkg/tar"
)

// fetchSource downloads, verifies and unpacks the recipe's source, applies
// its patches, and returns the source root. Recipes without a source URL
// return "".
func (b *Build) fetchSource(ctx context.Context) (string, error) {
	log := clog.FromContext(ctx)
	src := b.Resolved.Recipe.Source

	if src == nil || src.URL == "" {
		return "", nil
	}
	if src.SHA256 == "" {
		return "", fmt.Errorf("source %s has no sha256 digest", src.URL)
	}

	archive := ""
	if b.CacheSource != "" {
		p, err := b.fetchFromMirror(ctx, src.URL, src.SHA256)
		if err != nil {
			log.Warnf("source mirror miss for %s: %v", src.URL, err)
		} else {
			archive = p
		}
	}
	if archive == "" {
		p, err := b.client.Fetch(ctx, src.URL, src.SHA256)
		if err != nil {
			return "", err
		}
		archive = p
	}

	unpackDir := filepath.Join(b.WorkDir, "src", src.Folder)
	if err := os.MkdirAll(unpackDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating source directory")
	}

	f, err := os.Open(archive)
	if err != nil {
		return "", errors.Wrapf(err, "opening source archive %s", archive)
	}
	defer f.Close()

	if err := tar.Untar(f, unpackDir); err != nil {
		return "", errors.Wrapf(err, "unpacking %s", archive)
	}

	srcRoot, err := tar.SourceRoot(unpackDir)
	if err != nil {
		return "", err
	}

	if err := b.applyPatches(ctx, srcRoot, src.Patches); err != nil {
		return "", err
	}
	return srcRoot, nil
}

// fetchFromMirror pulls the source archive from the gs:// mirror, where
// archives are stored under their sha256 digest, into the local cache.
func (b *Build) fetchFromMirror(ctx context.Context, srcURL, digest string) (string, error) {
	filename, err := pypi.FilenameFromURL(srcURL)
	if err != nil {
		return "", err
	}
	if cached, ok := b.client.Cached(filename, digest); ok {
		return cached, nil
	}

	bucketPath := strings.TrimPrefix(b.CacheSource, "gs://")
	bucket, prefix, _ := strings.Cut(bucketPath, "/")
	object := path.Join(prefix, digest)

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", errors.Wrap(err, "creating storage client")
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "reading gs://%s/%s", bucket, object)
	}
	defer rc.Close()

	return b.client.CacheFrom(rc, filename, digest)
}

// applyPatches applies the recipe's patches to the unpacked source with
// patch -p1, the way they were produced by git diff.
func (b *Build) applyPatches(ctx context.Context, srcRoot string, patches []string) error {
	log := clog.FromContext(ctx)

	if len(patches) == 0 {
		return nil
	}
	if b.RecipeDir == "" {
		return fmt.Errorf("recipe lists patches but no recipe directory is set")
	}

	for _, patch := range patches {
		p := filepath.Join(b.RecipeDir, patch)
		f, err := os.Open(p)
		if err != nil {
			return errors.Wrapf(err, "opening patch %s", patch)
		}

		log.Infof("applying patch %s", patch)
		cmd := exec.CommandContext(ctx, "patch", "-p1")
		cmd.Dir = srcRoot
		cmd.Stdin = f
		cmd.Stdout = b.ScriptOutput
		cmd.Stderr = b.ScriptOutput
		err = cmd.Run()
		f.Close()
		if err != nil {
			return fmt.Errorf("applying patch %s: %w", patch, err)
		}
	}
	return nil
}
