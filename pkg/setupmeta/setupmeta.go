// Package setupmeta loads the upstream setup metadata document that recipe
// templates resolve against. The document lives next to the recipe, either
// as setup-meta.json (keys as exported by the project's setup script) or as
// a pyproject.toml, whose project table is mapped onto the same keys.
package setupmeta

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// JSONFilename is the metadata document recipes carry alongside meta.yaml.
	JSONFilename = "setup-meta.json"

	// PyprojectFilename is the fallback document when no JSON export exists.
	PyprojectFilename = "pyproject.toml"
)

// RequiredKeys are the metadata keys every buildable recipe resolves. A
// document missing any of them cannot produce a complete manifest.
var RequiredKeys = []string{
	"version",
	"setup_requires",
	"install_requires",
	"python_requires",
	"url",
	"description",
	"project_urls.Documentation",
	"project_urls.Code",
}

// Metadata is a loaded setup metadata document.
type Metadata struct {
	doc    map[string]any
	source string
}

// Source returns the path the metadata was loaded from.
func (m *Metadata) Source() string {
	return m.source
}

// Doc returns the raw document, as exposed to templates under "data".
func (m *Metadata) Doc() map[string]any {
	return m.doc
}

// Load reads the metadata document for the recipe directory, preferring
// setup-meta.json and falling back to pyproject.toml.
func Load(fsys fs.FS, dir string) (*Metadata, error) {
	jsonPath := filepath.Join(dir, JSONFilename)
	if _, err := fs.Stat(fsys, jsonPath); err == nil {
		return loadJSON(fsys, jsonPath)
	}

	tomlPath := filepath.Join(dir, PyprojectFilename)
	if _, err := fs.Stat(fsys, tomlPath); err == nil {
		return loadPyproject(fsys, tomlPath)
	}

	return nil, fmt.Errorf("no %s or %s in %s", JSONFilename, PyprojectFilename, dir)
}

func loadJSON(fsys fs.FS, path string) (*Metadata, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &Metadata{doc: doc, source: path}, nil
}

// pyproject is the subset of pyproject.toml the mapping reads.
type pyproject struct {
	BuildSystem struct {
		Requires []string `toml:"requires"`
	} `toml:"build-system"`
	Project struct {
		Version        string            `toml:"version"`
		Description    string            `toml:"description"`
		RequiresPython string            `toml:"requires-python"`
		Dependencies   []string          `toml:"dependencies"`
		URLs           map[string]string `toml:"urls"`
	} `toml:"project"`
}

func loadPyproject(fsys fs.FS, path string) (*Metadata, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	pp := pyproject{}
	if err := toml.Unmarshal(b, &pp); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	doc := map[string]any{}
	if pp.Project.Version != "" {
		doc["version"] = pp.Project.Version
	}
	if pp.Project.Description != "" {
		doc["description"] = pp.Project.Description
	}
	if pp.Project.RequiresPython != "" {
		doc["python_requires"] = pp.Project.RequiresPython
	}
	doc["install_requires"] = toAnySlice(pp.Project.Dependencies)
	doc["setup_requires"] = toAnySlice(pp.BuildSystem.Requires)
	if len(pp.Project.URLs) > 0 {
		urls := map[string]any{}
		for k, v := range pp.Project.URLs {
			urls[k] = v
		}
		doc["project_urls"] = urls
		if home, ok := pp.Project.URLs["Homepage"]; ok {
			doc["url"] = home
		}
	}

	return &Metadata{doc: doc, source: path}, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}

// Get resolves a dotted key path in the document. The second return is
// false when any segment of the path is absent.
func (m *Metadata) Get(path string) (any, bool) {
	var cur any = m.doc
	for _, seg := range strings.Split(path, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Lookup is Get with a descriptive error naming the missing key and the
// document it was expected in.
func (m *Metadata) Lookup(path string) (any, error) {
	v, ok := m.Get(path)
	if !ok {
		return nil, fmt.Errorf("metadata key %q not found in %s", path, m.source)
	}
	return v, nil
}

// String resolves a dotted key path to a string value.
func (m *Metadata) String(path string) (string, error) {
	v, err := m.Lookup(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("metadata key %q in %s is %T, not a string", path, m.source, v)
	}
	return s, nil
}

// Strings resolves a dotted key path to a list of strings.
func (m *Metadata) Strings(path string) ([]string, error) {
	v, err := m.Lookup(path)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("metadata key %q in %s is %T, not a list", path, m.source, v)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("metadata key %q in %s: element %d is %T, not a string", path, m.source, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// Version returns the document's version key.
func (m *Metadata) Version() (string, error) {
	return m.String("version")
}

// RequireKeys verifies that every named dotted key resolves, returning an
// error naming the first missing one.
func (m *Metadata) RequireKeys(keys ...string) error {
	for _, key := range keys {
		if _, ok := m.Get(key); !ok {
			return fmt.Errorf("metadata key %q not found in %s", key, m.source)
		}
	}
	return nil
}

// Validate checks the document against RequiredKeys.
func (m *Metadata) Validate() error {
	return m.RequireKeys(RequiredKeys...)
}

// New builds a Metadata from an in-memory document. Tests and callers that
// synthesize metadata use this.
func New(doc map[string]any, source string) *Metadata {
	if source == "" {
		source = "(in-memory)"
	}
	return &Metadata{doc: doc, source: source}
}

// JSON encodes the document in the setup-meta.json on-disk form.
func (m *Metadata) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(m.doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding metadata document: %w", err)
	}
	return append(b, '\n'), nil
}
