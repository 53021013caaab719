// Package recipe defines the build manifest model: the typed form of a
// rendered meta.yaml and the identity rules (name, version, build string,
// artifact filename) derived from it.
package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/conda-tools/condactl/pkg/versions"
)

// Filename is the manifest filename inside a recipe directory.
const Filename = "meta.yaml"

// Recipe is a fully rendered build manifest.
type Recipe struct {
	Package      Package        `yaml:"package"`
	Source       *Source        `yaml:"source,omitempty"`
	Build        Build          `yaml:"build"`
	Requirements Requirements   `yaml:"requirements"`
	Test         *Test          `yaml:"test,omitempty"`
	About        *About         `yaml:"about,omitempty"`
	Extra        map[string]any `yaml:"extra,omitempty"`
}

// Package carries the identity pair.
type Package struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Source points at the upstream archive the build consumes.
type Source struct {
	URL     string   `yaml:"url,omitempty"`
	SHA256  string   `yaml:"sha256,omitempty"`
	Folder  string   `yaml:"folder,omitempty"`
	Patches []string `yaml:"patches,omitempty"`
}

// Build holds the build section: number, noarch flag, console entry points
// and the build invocation.
type Build struct {
	Number      int      `yaml:"number"`
	Noarch      string   `yaml:"noarch,omitempty"`
	EntryPoints []string `yaml:"entry_points,omitempty"`
	Script      string   `yaml:"script,omitempty"`
}

// Requirements lists host (build-time) and run (install-time) dependency
// sequences. Order is preserved as authored.
type Requirements struct {
	Host []string `yaml:"host,omitempty"`
	Run  []string `yaml:"run,omitempty"`
}

// Test describes the post-build smoke test.
type Test struct {
	Imports  []string `yaml:"imports,omitempty"`
	Commands []string `yaml:"commands,omitempty"`
	Requires []string `yaml:"requires,omitempty"`
}

// About carries the descriptive fields surfaced in package metadata.
type About struct {
	Home    string `yaml:"home,omitempty"`
	Summary string `yaml:"summary,omitempty"`
	License string `yaml:"license,omitempty"`
	DocURL  string `yaml:"doc_url,omitempty"`
	DevURL  string `yaml:"dev_url,omitempty"`
}

// Name returns the package name.
func (r Recipe) Name() string {
	return r.Package.Name
}

// Version returns the package version.
func (r Recipe) Version() string {
	return r.Package.Version
}

// NoarchPython reports whether the build is architecture-independent
// pure Python.
func (r Recipe) NoarchPython() bool {
	return r.Build.Noarch == "python"
}

// BuildString derives the build string from the build section: "py_<n>"
// for noarch python builds, otherwise the bare build number.
func (r Recipe) BuildString() string {
	if r.NoarchPython() {
		return fmt.Sprintf("py_%d", r.Build.Number)
	}
	return fmt.Sprintf("%d", r.Build.Number)
}

// FullVersion is the version-buildstring identifier used in package
// filenames and build logs, e.g. "1.2.0-py_0".
func (r Recipe) FullVersion() string {
	return r.Package.Version + "-" + r.BuildString()
}

// ArtifactFilename is the package archive name,
// "<name>-<version>-<buildstring>.tar.gz".
func (r Recipe) ArtifactFilename() string {
	return fmt.Sprintf("%s-%s-%s.tar.gz", r.Package.Name, r.Package.Version, r.BuildString())
}

// Subdir returns the channel subdirectory the built package lands in:
// "noarch" for noarch builds, otherwise the current platform's subdir.
func (r Recipe) Subdir() string {
	if r.Build.Noarch != "" {
		return "noarch"
	}
	return CurrentSubdir()
}

// CurrentSubdir maps the running platform onto a channel subdirectory.
func CurrentSubdir() string {
	switch runtime.GOOS + "/" + runtime.GOARCH {
	case "linux/amd64":
		return "linux-64"
	case "linux/arm64":
		return "linux-aarch64"
	case "darwin/amd64":
		return "osx-64"
	case "darwin/arm64":
		return "osx-arm64"
	case "windows/amd64":
		return "win-64"
	}
	return runtime.GOOS + "-" + runtime.GOARCH
}

// EntryPoints parses the build section's entry point declarations.
func (r Recipe) EntryPoints() ([]EntryPoint, error) {
	eps := make([]EntryPoint, 0, len(r.Build.EntryPoints))
	for _, raw := range r.Build.EntryPoints {
		ep, err := ParseEntryPoint(raw)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Parse decodes a rendered manifest. Unknown fields are rejected so typos
// surface instead of silently dropping sections.
func Parse(b []byte) (*Recipe, error) {
	r := &Recipe{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(r); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return r, nil
}

// ParseFile reads and decodes a rendered manifest from the filesystem.
func ParseFile(fsys fs.FS, path string) (*Recipe, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	r, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Marshal encodes the manifest back to YAML.
func (r Recipe) Marshal() ([]byte, error) {
	buf := bytes.Buffer{}
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate enforces the manifest contract every buildable recipe meets:
// identity fields present and well-formed, a build invocation, non-empty
// dependency sequences, a smoke test, and parseable entry points.
func (r Recipe) Validate() error {
	var errs error

	if r.Package.Name == "" {
		errs = multierror.Append(errs, errors.New("package.name is empty"))
	} else if r.Package.Name != strings.ToLower(r.Package.Name) {
		errs = multierror.Append(errs, fmt.Errorf("package.name %q is not lower-case", r.Package.Name))
	}

	if r.Package.Version == "" {
		errs = multierror.Append(errs, errors.New("package.version is empty"))
	} else if err := versions.ValidateWithoutBuildString(r.Package.Version); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("package.version: %w", err))
	}

	if r.Build.Number < 0 {
		errs = multierror.Append(errs, fmt.Errorf("build.number %d is negative", r.Build.Number))
	}
	switch r.Build.Noarch {
	case "", "python", "generic":
	default:
		errs = multierror.Append(errs, fmt.Errorf("build.noarch %q is not python or generic", r.Build.Noarch))
	}
	if strings.TrimSpace(r.Build.Script) == "" {
		errs = multierror.Append(errs, errors.New("build.script is empty"))
	}

	if _, err := r.EntryPoints(); err != nil {
		errs = multierror.Append(errs, err)
	}

	if len(r.Requirements.Host) == 0 {
		errs = multierror.Append(errs, errors.New("requirements.host is empty"))
	}
	if len(r.Requirements.Run) == 0 {
		errs = multierror.Append(errs, errors.New("requirements.run is empty"))
	}

	if r.Test == nil || len(r.Test.Commands) == 0 {
		errs = multierror.Append(errs, errors.New("test.commands is empty"))
	}

	if r.Source != nil && r.Source.SHA256 != "" {
		if !isSHA256(r.Source.SHA256) {
			errs = multierror.Append(errs, fmt.Errorf("source.sha256 %q is not a 64-character hex digest", r.Source.SHA256))
		}
	}

	return errs
}

func isSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
