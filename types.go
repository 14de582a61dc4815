package lineage

import (
	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/impact"
	"github.com/jward/lineage/internal/store"
)

// Aliases expose the internal types that appear in the Engine API.

type Store = store.Store
type Unit = store.Unit
type TypeDecl = store.TypeDecl
type TypeRef = hierarchy.TypeRef
type Graph = hierarchy.Graph
type Flags = hierarchy.Flags
type Listener = hierarchy.Listener
type Source = hierarchy.Source
type Delta = impact.Delta
type EventType = impact.EventType

// ListenerFunc adapts fn to a Listener.
func ListenerFunc(fn func(Source) error) Listener { return hierarchy.ListenerFunc(fn) }

// ParseHandle parses a handle of the form path#package#name.
func ParseHandle(handle string) (TypeRef, error) { return hierarchy.ParseHandle(handle) }
