package configs

import (
	"context"
	"errors"
	"fmt"
)

// ErrSkip is a sentinel error that signals that the given entry should be
// skipped during batch processing. When a caller's updater returns ErrSkip,
// the error is not returned back to the caller.
var ErrSkip = errors.New("skipping operation for this entry")

// An EntryUpdater operates on a single index entry, usually by rewriting
// its backing document.
type EntryUpdater[T Configuration] func(*Index[T], Entry[T]) error

// A SectionUpdater derives new content for one section of a document from
// the document's current decoded form.
type SectionUpdater[S any, T Configuration] func(cfg T) (S, error)

// Update applies the given updater to every entry in the selection.
func (s Selection[T]) Update(ctx context.Context, updater EntryUpdater[T]) error {
	for _, e := range s.entries {
		err := s.index.Update(ctx, e, updater)
		if err != nil {
			if errors.Is(err, ErrSkip) {
				continue
			}
			return fmt.Errorf("updating %q: %w", e.Path(), err)
		}
	}
	return nil
}
