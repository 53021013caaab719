// Package index builds and reads channel indexes: the per-subdir
// repodata.json documents aggregating every artifact's embedded index
// metadata.
package index

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/package-url/packageurl-go"

	"github.com/conda-tools/condactl/pkg/build"
	"github.com/conda-tools/condactl/pkg/tar"
)

// Filename is the index document name inside each channel subdir.
const Filename = "repodata.json"

// Repodata is one subdir's index document.
type Repodata struct {
	Info            Info                     `json:"info"`
	Packages        map[string]PackageRecord `json:"packages"`
	RepodataVersion int                      `json:"repodata_version"`
}

// Info identifies the subdir the document indexes.
type Info struct {
	Subdir string `json:"subdir"`
}

// PackageRecord is one artifact's entry in repodata: its embedded index
// document plus the archive's digests and size.
type PackageRecord struct {
	build.IndexEntry
	SHA256 string `json:"sha256"`
	MD5    string `json:"md5"`
	Size   int64  `json:"size"`
}

// PURL renders the record's package URL.
func (r PackageRecord) PURL() string {
	return packageurl.NewPackageURL(
		packageurl.TypeConda, "", r.Name, r.Version,
		packageurl.QualifiersFromMap(map[string]string{
			"build":  r.Build,
			"subdir": r.Subdir,
		}), "",
	).ToString()
}

// Filenames returns the indexed artifact names, sorted.
func (r *Repodata) Filenames() []string {
	names := make([]string, 0, len(r.Packages))
	for name := range r.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subdir indexes the artifacts under channelDir/subdir.
func Subdir(ctx context.Context, channelDir, subdir string) (*Repodata, error) {
	log := clog.FromContext(ctx)
	dir := filepath.Join(channelDir, subdir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	repodata := &Repodata{
		Info:            Info{Subdir: subdir},
		Packages:        map[string]PackageRecord{},
		RepodataVersion: 1,
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		rec, err := readArtifact(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("indexing %s: %w", name, err)
		}
		if rec.Subdir != subdir {
			log.Warnf("%s: artifact subdir %q does not match channel subdir %q", name, rec.Subdir, subdir)
		}
		repodata.Packages[name] = *rec
	}

	log.Infof("indexed %d packages in %s", len(repodata.Packages), dir)
	return repodata, nil
}

// readArtifact digests the archive and pulls its index document out
// without unpacking it.
func readArtifact(path string) (*PackageRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := tar.ExtractFile(bytes.NewReader(b), "info/index.json")
	if err != nil {
		return nil, err
	}

	rec := PackageRecord{
		SHA256: fmt.Sprintf("%x", sha256.Sum256(b)),
		// md5 rides along for older channel clients.
		MD5:  fmt.Sprintf("%x", md5.Sum(b)),
		Size: int64(len(b)),
	}
	if err := json.Unmarshal(doc, &rec.IndexEntry); err != nil {
		return nil, fmt.Errorf("decoding index document: %w", err)
	}
	return &rec, nil
}

// WriteChannel (re)indexes every subdir under channelDir, writing each
// subdir's repodata.json next to its artifacts.
func WriteChannel(ctx context.Context, channelDir string) error {
	entries, err := os.ReadDir(channelDir)
	if err != nil {
		return fmt.Errorf("reading channel %s: %w", channelDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		repodata, err := Subdir(ctx, channelDir, entry.Name())
		if err != nil {
			return err
		}
		if err := Write(repodata, filepath.Join(channelDir, entry.Name(), Filename)); err != nil {
			return err
		}
	}
	return nil
}

// Write marshals the document to path.
func Write(r *Repodata, path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding repodata: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Fetch reads a repodata document from an http(s) URL, a file path, or
// stdin when location is "-".
func Fetch(ctx context.Context, location string) (*Repodata, error) {
	var rc io.Reader
	switch {
	case location == "-":
		rc = os.Stdin
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("GET %s (%d): %s", location, resp.StatusCode, b)
		}
		rc = resp.Body
	default:
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("opening %q: %w", location, err)
		}
		defer f.Close()
		rc = f
	}

	return Parse(rc)
}

// Parse decodes a repodata document.
func Parse(r io.Reader) (*Repodata, error) {
	repodata := &Repodata{}
	if err := json.NewDecoder(r).Decode(repodata); err != nil {
		return nil, fmt.Errorf("decoding repodata: %w", err)
	}
	return repodata, nil
}
