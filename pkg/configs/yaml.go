package configs

import (
	"errors"
	"fmt"
	"io"

	"github.com/chainguard-dev/yam/pkg/yam/formatted"
	"github.com/dprotaso/go-yit"
	"gopkg.in/yaml.v3"
)

// A YAMLASTMutater is a function that mutates a YAML AST. The function is
// also given the decoded document (type T) in case implementations require
// it for context.
type YAMLASTMutater[T any] func(T, *yaml.Node) error

// NewYAMLUpdateFunc returns an EntryUpdater that applies the provided
// YAMLASTMutater to an entry's AST and writes the result back through the
// index's filesystem using the formatted encoder.
func NewYAMLUpdateFunc[T Configuration](yamlASTMutater YAMLASTMutater[T]) EntryUpdater[T] {
	return func(i *Index[T], e Entry[T]) error {
		root := e.yamlASTRoot()

		cfg := e.Configuration()
		if cfg == nil {
			return errors.New("nil configuration")
		}

		if err := yamlASTMutater(*cfg, root); err != nil {
			return err
		}

		file, err := i.fsys.OpenAsWritable(e.Path())
		if err != nil {
			return fmt.Errorf("unable to update %q: %w", e.Path(), err)
		}
		defer file.Close()

		if err := i.fsys.Truncate(e.Path(), 0); err != nil {
			return fmt.Errorf("unable to update %q: %w", e.Path(), err)
		}

		if err := newFormattedEncoder(file).Encode(root); err != nil {
			return fmt.Errorf("unable to encode updated YAML: %w", err)
		}

		return nil
	}
}

// NewTargetedYAMLASTMutater returns a YAMLASTMutater that rewrites a single
// named section of the document: the section is decoded into S, handed to
// the updater together with the full document, and the updater's result is
// encoded back into the section's node.
func NewTargetedYAMLASTMutater[S any, T Configuration](
	sectionName string,
	updater SectionUpdater[S, T],
	assign func(cfg T, sectionData S) T,
) YAMLASTMutater[T] {
	return func(cfg T, node *yaml.Node) error {
		sectionNode := yamlNodeForKey(node, sectionName)

		sectionData := new(S)
		if err := sectionNode.Decode(sectionData); err != nil {
			return fmt.Errorf("decoding section %q: %w", sectionName, err)
		}
		cfg = assign(cfg, *sectionData)

		updated, err := updater(cfg)
		if err != nil {
			return err
		}

		if err := sectionNode.Encode(updated); err != nil {
			return fmt.Errorf("encoding section %q: %w", sectionName, err)
		}

		return nil
	}
}

func newFormattedEncoder(w io.Writer) formatted.Encoder {
	return formatted.NewEncoder(w).AutomaticConfig()
}

// yamlNodeForKey finds the value node for the given top-level key, appending
// a new mapping node for it if the document does not have one yet.
func yamlNodeForKey(root *yaml.Node, key string) *yaml.Node {
	rootMap := root.Content[0]

	iter := yit.FromNode(rootMap).ValuesForMap(yit.WithValue(key), yit.All)
	node, ok := iter()
	if ok {
		return node
	}

	mapKey := &yaml.Node{Value: key, Tag: "!!str", Kind: yaml.ScalarNode}
	rootMap.Content = append(rootMap.Content, mapKey)
	mapValue := &yaml.Node{Tag: "!!map", Kind: yaml.MappingNode}
	rootMap.Content = append(rootMap.Content, mapValue)

	return mapValue
}
