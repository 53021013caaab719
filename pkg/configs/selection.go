package configs

// A Selection is a view into an Index's entries. The selection can expose
// anywhere from zero entries up to all the index's entries, and callers
// chain methods to constrain it before reading or updating.
type Selection[T Configuration] struct {
	entries []Entry[T]
	index   *Index[T]
}

// WhereName filters the selection down to entries whose configuration name
// matches the given parameter.
func (s Selection[T]) WhereName(name string) Selection[T] {
	var entries []Entry[T]
	for _, e := range s.entries {
		if cfg := e.Configuration(); cfg != nil && (*cfg).Name() == name {
			entries = append(entries, e)
		}
	}
	return Selection[T]{entries: entries, index: s.index}
}

// WhereFilePath filters the selection down to entries whose file path
// matches the given parameter.
func (s Selection[T]) WhereFilePath(p string) Selection[T] {
	var entries []Entry[T]
	for _, e := range s.entries {
		if e.Path() == p {
			entries = append(entries, e)
		}
	}
	return Selection[T]{entries: entries, index: s.index}
}

// Entries returns the selection's entries.
func (s Selection[T]) Entries() []Entry[T] {
	return s.entries
}

// Configurations returns the decoded configuration for each entry in the
// selection.
func (s Selection[T]) Configurations() []T {
	cfgs := make([]T, 0, len(s.entries))
	for _, e := range s.entries {
		cfgs = append(cfgs, *e.Configuration())
	}
	return cfgs
}

// First returns the selection's first entry, if any.
func (s Selection[T]) First() (Entry[T], bool) {
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[0], true
}

// Len returns the count of entries in the selection.
func (s Selection[T]) Len() int {
	return len(s.entries)
}
