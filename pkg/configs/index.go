// Package configs provides a queryable, updatable store of YAML-backed
// documents. Each indexed document is decoded both into its Go type and into
// a YAML AST, so updates can rewrite individual sections while preserving
// the rest of the file as its authors wrote it.
package configs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/chainguard-dev/clog"
	"gopkg.in/yaml.v3"

	"github.com/conda-tools/condactl/pkg/configs/rwfs"
)

// Configuration is the constraint for document types managed by an Index.
type Configuration interface {
	Name() string
}

// DecodeFunc decodes the document at the given path into its Go type.
type DecodeFunc[T Configuration] func(context.Context, string) (*T, error)

// An Index is a queryable store of configuration documents of type T, where
// each document has been decoded both into T and into a YAML AST.
type Index[T Configuration] struct {
	fsys       rwfs.FS
	decodeFunc DecodeFunc[T]

	paths     []string
	yamlRoots []*yaml.Node
	cfgs      []T
	byName    map[string]int
	byPath    map[string]int
}

// NewIndex indexes every .yaml document found in the given filesystem,
// skipping hidden directories.
func NewIndex[T Configuration](ctx context.Context, fsys rwfs.FS, decodeFunc DecodeFunc[T]) (*Index[T], error) {
	index := newIndex[T](fsys, decodeFunc)
	log := clog.FromContext(ctx)

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() && path != "." && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}

		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}

		log.Debug("indexing document", "path", path)
		return index.processAndAdd(ctx, path)
	})
	if err != nil {
		return nil, fmt.Errorf("indexing documents: %w", err)
	}

	return index, nil
}

// NewIndexFromPaths indexes the documents at the given paths.
func NewIndexFromPaths[T Configuration](ctx context.Context, fsys rwfs.FS, decodeFunc DecodeFunc[T], paths ...string) (*Index[T], error) {
	index := newIndex[T](fsys, decodeFunc)

	for _, path := range paths {
		if err := index.processAndAdd(ctx, path); err != nil {
			return nil, fmt.Errorf("indexing %q: %w", path, err)
		}
	}

	return index, nil
}

func newIndex[T Configuration](fsys rwfs.FS, decodeFunc DecodeFunc[T]) *Index[T] {
	return &Index[T]{
		fsys:       fsys,
		decodeFunc: decodeFunc,
		byName:     make(map[string]int),
		byPath:     make(map[string]int),
	}
}

var ErrEntryNotFound = errors.New("index entry not found")

// Select returns a Selection spanning the whole index.
func (i *Index[T]) Select() Selection[T] {
	entries := make([]Entry[T], 0, len(i.cfgs))
	for idx := range i.cfgs {
		entries = append(entries, i.entry(idx))
	}
	return Selection[T]{entries: entries, index: i}
}

// Len returns the number of documents in the index.
func (i *Index[T]) Len() int {
	return len(i.cfgs)
}

// Path returns the path of the document for the named configuration, or
// ErrEntryNotFound.
func (i *Index[T]) Path(name string) (string, error) {
	idx, ok := i.byName[name]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrEntryNotFound)
	}
	return i.paths[idx], nil
}

// Create adds a brand new document to the backing filesystem and indexes it.
func (i *Index[T]) Create(ctx context.Context, path string, cfg T) error {
	if _, exists := i.byName[cfg.Name()]; exists {
		return fmt.Errorf("cannot create %q: configuration %q already indexed", path, cfg.Name())
	}

	var body yaml.Node
	if err := body.Encode(cfg); err != nil {
		return fmt.Errorf("encoding new document %q: %w", path, err)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{&body}}

	file, err := i.fsys.Create(path)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}

	if err := newFormattedEncoder(file).Encode(doc); err != nil {
		file.Close()
		return fmt.Errorf("encoding new document %q: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	return i.processAndAdd(ctx, path)
}

// Update applies the given updater to the entry and then re-reads the
// document so the index reflects what is now on disk.
func (i *Index[T]) Update(ctx context.Context, e Entry[T], updater EntryUpdater[T]) error {
	if err := updater(i, e); err != nil {
		return err
	}

	idx, ok := i.byPath[e.Path()]
	if !ok {
		return fmt.Errorf("%q: %w", e.Path(), ErrEntryNotFound)
	}
	if err := i.processAndUpdate(ctx, e.Path(), idx); err != nil {
		return fmt.Errorf("reloading %q after update: %w", e.Path(), err)
	}

	return nil
}

func (i *Index[T]) processAndAdd(ctx context.Context, path string) error {
	e, err := i.process(ctx, path)
	if err != nil {
		return err
	}
	return i.add(e)
}

func (i *Index[T]) processAndUpdate(ctx context.Context, path string, entryIndex int) error {
	e, err := i.process(ctx, path)
	if err != nil {
		return err
	}

	i.paths[entryIndex] = e.path
	i.yamlRoots[entryIndex] = e.yamlRoot
	i.cfgs[entryIndex] = e.cfg
	i.byName[e.cfg.Name()] = entryIndex
	i.byPath[e.path] = entryIndex
	return nil
}

func (i *Index[T]) process(ctx context.Context, path string) (*entry[T], error) {
	f, err := i.fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document %q: %w", path, err)
	}
	defer f.Close()

	yamlRoot := &yaml.Node{}
	if err := yaml.NewDecoder(f).Decode(yamlRoot); err != nil {
		return nil, fmt.Errorf("decoding YAML AST of %q: %w", path, err)
	}

	cfg, err := i.decodeFunc(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("decoding document %q: %w", path, err)
	}

	return &entry[T]{
		path:     path,
		yamlRoot: yamlRoot,
		cfg:      *cfg,
	}, nil
}

func (i *Index[T]) add(e *entry[T]) error {
	name := e.cfg.Name()
	if _, exists := i.byName[name]; exists {
		return fmt.Errorf("cannot index %q: configuration %q already indexed", e.path, name)
	}

	next := len(i.cfgs)
	i.paths = append(i.paths, e.path)
	i.yamlRoots = append(i.yamlRoots, e.yamlRoot)
	i.cfgs = append(i.cfgs, e.cfg)
	i.byName[name] = next
	i.byPath[e.path] = next

	return nil
}

func (i *Index[T]) entry(idx int) Entry[T] {
	return entry[T]{
		path:     i.paths[idx],
		yamlRoot: i.yamlRoots[idx],
		cfg:      i.cfgs[idx],
	}
}
