package lineage

import "go.trai.ch/zerr"

var (
	// ErrNotCached is returned by LoadHierarchy when the cache holds no
	// usable entry for a focus.
	ErrNotCached = zerr.New("hierarchy not cached")

	// ErrTypeNotFound is returned when a name or handle matches no indexed
	// type.
	ErrTypeNotFound = zerr.New("type not found")

	// ErrNoWorkspace is returned by operations that need a loaded workspace.
	ErrNoWorkspace = zerr.New("no workspace loaded")
)
