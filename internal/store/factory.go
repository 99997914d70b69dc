package store

import "fmt"

// NewStore builds a checkpoint store for the given backend kind.
// "fs" (the default) persists to a directory tree rooted at path;
// "sqlite" persists to a single database file at path.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "fs":
		return NewFSStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
