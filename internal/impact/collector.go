package impact

import (
	"sync"

	"github.com/jward/lineage/internal/hierarchy"
)

type typeChange struct {
	kind  ChangeKind
	flags Flags
	elem  Element
}

// ChangeCollector accumulates type-level changes of units across
// notifications and judges them together against the current graph.
type ChangeCollector struct {
	graph func() *hierarchy.Graph

	mu           sync.Mutex
	changes      map[hierarchy.TypeRef]typeChange
	removedUnits map[string]struct{}
}

// NewChangeCollector returns a collector judging against graph().
func NewChangeCollector(graph func() *hierarchy.Graph) *ChangeCollector {
	return &ChangeCollector{
		graph:        graph,
		changes:      map[hierarchy.TypeRef]typeChange{},
		removedUnits: map[string]struct{}{},
	}
}

// AddChange records the type deltas below a unit delta. A type added and
// later removed cancels out; an added type that changes stays added.
func (c *ChangeCollector) AddChange(unitPath string, d *Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.Kind == Removed {
		c.removedUnits[unitPath] = struct{}{}
	} else {
		delete(c.removedUnits, unitPath)
	}
	for _, child := range d.Children {
		if child.Element.Kind != KindType {
			continue
		}
		el := child.Element
		if el.Path == "" {
			el.Path = unitPath
		}
		if el.Package == "" {
			el.Package = d.Element.Package
		}
		ref := el.Ref()
		prev, seen := c.changes[ref]
		switch {
		case !seen:
			c.changes[ref] = typeChange{kind: child.Kind, flags: child.Flags, elem: el}
		case prev.kind == Added && child.Kind == Removed:
			delete(c.changes, ref)
		case prev.kind == Added:
			c.changes[ref] = typeChange{kind: Added, elem: el}
		case prev.kind == Removed && child.Kind == Added:
			c.changes[ref] = typeChange{kind: Changed, flags: FlagModifiers | FlagSuperTypes, elem: el}
		default:
			c.changes[ref] = typeChange{kind: child.Kind, flags: prev.flags | child.Flags, elem: el}
		}
	}
}

// NeedsRefresh reports whether the collected changes may affect the graph.
func (c *ChangeCollector) NeedsRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.graph()
	if g == nil {
		return false
	}
	for p := range c.removedUnits {
		if g.HasFile(p) {
			return true
		}
	}
	for ref, ch := range c.changes {
		simple := ch.elem.Decl.SimpleName
		switch ch.kind {
		case Added:
			if addedTypeAffects(g, ch.elem.Decl) {
				return true
			}
		case Removed:
			if g.Contains(ref) || g.HasTypeNamed(simple) {
				return true
			}
		case Changed:
			if ch.flags&FlagSuperTypes != 0 && g.IncludesTypeOrSupertype(ch.elem.Decl) {
				return true
			}
			if ch.flags&FlagModifiers != 0 && g.HasSupertype(simple) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of pending type changes.
func (c *ChangeCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes) + len(c.removedUnits)
}

// Clear drops everything collected.
func (c *ChangeCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.changes)
	clear(c.removedUnits)
}

// addedTypeAffects is the test applied to a newly appearing type: it may be
// a supertype already referenced, a supertype-to-be of a tracked subtype,
// or a name that failed to resolve before.
func addedTypeAffects(g *hierarchy.Graph, d hierarchy.Declaration) bool {
	return g.HasSupertype(d.SimpleName) ||
		g.SubtypesIncludeSupertypeOf(d) ||
		g.IsMissing(d.SimpleName)
}
