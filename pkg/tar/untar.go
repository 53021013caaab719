package tar

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Untar unpacks a gzipped tarball into dst. Source distributions carry
// directories, regular files and the occasional symlink; anything else
// (devices, fifos) is rejected.
func Untar(src io.Reader, dst string) error {
	zr, err := gzip.NewReader(src)
	if err != nil {
		return err
	}
	tr := tar.NewReader(zr)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break // End of archive
		}
		if err != nil {
			return err
		}

		// validate name against path traversal
		target, err := sanitizeArchivePath(dst, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if _, err := os.Stat(target); err != nil {
				if err := os.MkdirAll(target, os.ModePerm); err != nil {
					return err
				}
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
				return err
			}
			fileToWrite, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			// copy over contents in chunks for security reasons
			// G110: Potential DoS vulnerability via decompression bomb
			for {
				_, err := io.CopyN(fileToWrite, tr, 1024)
				if err != nil {
					if errors.Is(err, io.EOF) {
						break
					}
					return err
				}
			}

			if err := fileToWrite.Close(); err != nil {
				return fmt.Errorf("failed to close file %s: %w", target, err)
			}

		case tar.TypeSymlink:
			// The link target must stay inside the unpack root too.
			if _, err := sanitizeArchivePath(filepath.Dir(target), header.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unsupported entry type %d for %q", header.Typeflag, header.Name)
		}
	}
	return nil
}

// SourceRoot returns the directory the unpacked source tree starts at.
// Source distributions conventionally wrap everything in a single
// name-version directory; when dir contains exactly one subdirectory and no
// files, that subdirectory is the root, otherwise dir itself is.
func SourceRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading unpacked source directory: %w", err)
	}

	var dirs []fs.DirEntry
	for _, e := range entries {
		if !e.IsDir() {
			return dir, nil
		}
		dirs = append(dirs, e)
	}
	if len(dirs) == 1 {
		return filepath.Join(dir, dirs[0].Name()), nil
	}
	return dir, nil
}

// From https://github.com/securego/gosec/issues/324
func sanitizeArchivePath(d, t string) (string, error) {
	// Convert to forward slashes
	cleanedTarget := filepath.FromSlash(t)

	v := filepath.Join(d, cleanedTarget)
	cleanedBase := filepath.Clean(d)

	if strings.HasPrefix(v, cleanedBase) {
		return v, nil
	}

	return "", fmt.Errorf("%s: %s", "content filepath is tainted", t)
}
