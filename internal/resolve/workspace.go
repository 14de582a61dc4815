package resolve

import (
	"context"

	"github.com/jward/lineage/internal/store"
)

// StoreWorkspace serves environments straight from the index.
type StoreWorkspace struct {
	Index Index
}

var _ Workspace = (*StoreWorkspace)(nil)

// Environment implements Workspace.
func (w *StoreWorkspace) Environment(_ context.Context, project string, archives *ArchiveSet, opts ...EnvOption) (*Environment, error) {
	return NewEnvironment(w.Index, project, append([]EnvOption{WithArchives(archives)}, opts...)...)
}

// RootOf implements Workspace.
func (w *StoreWorkspace) RootOf(path string) (*store.Root, error) {
	return w.Index.RootOf(path)
}
