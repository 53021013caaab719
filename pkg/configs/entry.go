package configs

import (
	"gopkg.in/yaml.v3"
)

// Entry represents an individual document in the Index.
type Entry[T Configuration] interface {
	id() string

	// yamlASTRoot returns the document as a decoded YAML AST (via its root node).
	yamlASTRoot() *yaml.Node

	// Path returns the path of the file that underlies this index entry.
	Path() string

	// Configuration returns the document decoded into its Go type.
	Configuration() *T
}

type entry[T Configuration] struct {
	path     string
	yamlRoot *yaml.Node
	cfg      T
}

func (e entry[T]) id() string {
	return e.path
}

func (e entry[T]) yamlASTRoot() *yaml.Node {
	return e.yamlRoot
}

func (e entry[T]) Path() string {
	return e.path
}

func (e entry[T]) Configuration() *T {
	return &e.cfg
}
