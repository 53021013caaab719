package build

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/tar"
)

// IndexEntry is the info/index.json document inside an artifact, which
// channel indexes aggregate into repodata.
type IndexEntry struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Build       string   `json:"build"`
	BuildNumber int      `json:"build_number"`
	Depends     []string `json:"depends"`
	Subdir      string   `json:"subdir"`
	Noarch      string   `json:"noarch,omitempty"`
	License     string   `json:"license,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

// AboutEntry is the info/about.json document inside an artifact.
type AboutEntry struct {
	Home    string `json:"home,omitempty"`
	Summary string `json:"summary,omitempty"`
	License string `json:"license,omitempty"`
	DocURL  string `json:"doc_url,omitempty"`
	DevURL  string `json:"dev_url,omitempty"`
}

// linkEntry is the info/link.json document carried by noarch packages so
// the installer can generate entry point scripts at link time.
type linkEntry struct {
	Noarch struct {
		Type        string   `json:"type"`
		EntryPoints []string `json:"entry_points,omitempty"`
	} `json:"noarch"`
	PackageMetadataVersion int `json:"package_metadata_version"`
}

// NewIndexEntry derives the artifact's index document from its manifest.
func NewIndexEntry(r *recipe.Recipe) IndexEntry {
	entry := IndexEntry{
		Name:        r.Name(),
		Version:     r.Version(),
		Build:       r.BuildString(),
		BuildNumber: r.Build.Number,
		Depends:     r.Requirements.Run,
		Subdir:      r.Subdir(),
		Noarch:      r.Build.Noarch,
		Timestamp:   time.Now().UnixMilli(),
	}
	if r.About != nil {
		entry.License = r.About.License
	}
	return entry
}

// assemble writes the artifact's info/ metadata into the staged tree and
// packs the whole stage into the artifact archive.
func (b *Build) assemble(ctx context.Context, stage, artifact string) error {
	log := clog.FromContext(ctx)
	r := b.Resolved.Recipe

	// Arch builds ship their launcher stubs as payload. Noarch builds
	// defer them to link time via link.json instead.
	if !r.NoarchPython() {
		if err := b.writeEntryPointScripts(stage); err != nil {
			return err
		}
	}

	// Collect the payload list before info/ exists: everything under the
	// prefix at this point belongs to the package.
	files, err := payloadFiles(stage)
	if err != nil {
		return err
	}
	log.Debug("staged payload", "files", len(files))

	infoDir := filepath.Join(stage, "info")
	if err := os.MkdirAll(filepath.Join(infoDir, "recipe"), 0o755); err != nil {
		return fmt.Errorf("creating info directory: %w", err)
	}

	if err := writeJSON(filepath.Join(infoDir, "index.json"), NewIndexEntry(r)); err != nil {
		return err
	}

	about := AboutEntry{}
	if r.About != nil {
		about = AboutEntry{
			Home:    r.About.Home,
			Summary: r.About.Summary,
			License: r.About.License,
			DocURL:  r.About.DocURL,
			DevURL:  r.About.DevURL,
		}
	}
	if err := writeJSON(filepath.Join(infoDir, "about.json"), about); err != nil {
		return err
	}

	if r.NoarchPython() {
		link := linkEntry{PackageMetadataVersion: 1}
		link.Noarch.Type = "python"
		link.Noarch.EntryPoints = r.Build.EntryPoints
		if err := writeJSON(filepath.Join(infoDir, "link.json"), link); err != nil {
			return err
		}
	}

	if err := os.WriteFile(filepath.Join(infoDir, "files"), []byte(strings.Join(files, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing info/files: %w", err)
	}

	// The rendered manifest and the metadata it resolved against ride
	// along for provenance.
	if err := os.WriteFile(filepath.Join(infoDir, "recipe", recipe.Filename), b.Resolved.Manifest, 0o644); err != nil {
		return fmt.Errorf("writing info/recipe/%s: %w", recipe.Filename, err)
	}
	md, err := b.Resolved.Metadata.JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(infoDir, "recipe", "setup-meta.json"), md, 0o644); err != nil {
		return fmt.Errorf("writing info/recipe/setup-meta.json: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	out, err := os.Create(artifact)
	if err != nil {
		return fmt.Errorf("creating artifact: %w", err)
	}
	defer out.Close()

	if err := tar.Create(out, stage); err != nil {
		return fmt.Errorf("packing %s: %w", artifact, err)
	}
	return out.Close()
}

// writeEntryPointScripts materializes bin/ launcher scripts for arch
// packages. Noarch packages defer this to install time via link.json.
func (b *Build) writeEntryPointScripts(stage string) error {
	eps, err := b.Resolved.Recipe.EntryPoints()
	if err != nil {
		return err
	}
	if len(eps) == 0 {
		return nil
	}

	binDir := filepath.Join(stage, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating bin directory: %w", err)
	}
	for _, ep := range eps {
		if err := os.WriteFile(filepath.Join(binDir, ep.Name), []byte(ep.Script()), 0o755); err != nil {
			return fmt.Errorf("writing entry point script %s: %w", ep.Name, err)
		}
	}
	return nil
}

// payloadFiles lists every regular file and symlink under the stage,
// slash-relative and sorted.
func payloadFiles(stage string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(stage, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stage, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking staged tree: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
