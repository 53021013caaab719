package advisories

import (
	"context"
	"io/fs"

	"github.com/conda-tools/condactl/pkg/configs"
	"github.com/conda-tools/condactl/pkg/configs/rwfs"
)

// DefaultDir is where advisory documents live, relative to the repository
// root.
const DefaultDir = "advisories"

// NewIndex indexes every advisory document in the given filesystem.
func NewIndex(ctx context.Context, fsys rwfs.FS) (*configs.Index[Document], error) {
	return configs.NewIndex[Document](ctx, fsys, newDocumentDecodeFunc(fsys))
}

// NewIndexFromPaths indexes the advisory documents at the given paths.
func NewIndexFromPaths(ctx context.Context, fsys rwfs.FS, paths ...string) (*configs.Index[Document], error) {
	return configs.NewIndexFromPaths[Document](ctx, fsys, newDocumentDecodeFunc(fsys), paths...)
}

func newDocumentDecodeFunc(fsys fs.FS) configs.DecodeFunc[Document] {
	return func(_ context.Context, path string) (*Document, error) {
		file, err := fsys.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		return DecodeDocument(file)
	}
}

// NewAdvisoriesSectionUpdater returns an entry updater that rewrites only
// the document's advisories section, leaving the rest of the file as
// authored.
func NewAdvisoriesSectionUpdater(
	updater configs.SectionUpdater[Advisories, Document],
) configs.EntryUpdater[Document] {
	yamlASTMutater := configs.NewTargetedYAMLASTMutater[Advisories, Document](
		"advisories",
		updater,
		func(doc Document, data Advisories) Document {
			doc.Advisories = data
			return doc
		},
	)

	return configs.NewYAMLUpdateFunc[Document](yamlASTMutater)
}
