// Package impact decides whether workspace changes invalidate a computed
// type hierarchy. Checks are coarse on purpose: they compare regions and
// simple names, and a positive verdict only ever means "refresh".
package impact

import (
	"path"
	"strings"

	"github.com/jward/lineage/internal/hierarchy"
)

// ElementKind is the kind of workspace element a delta concerns.
type ElementKind int

const (
	KindModel ElementKind = iota
	KindProject
	KindRoot
	KindPackage
	KindSourceUnit
	KindCompiledUnit
	KindType
)

func (k ElementKind) String() string {
	switch k {
	case KindModel:
		return "model"
	case KindProject:
		return "project"
	case KindRoot:
		return "root"
	case KindPackage:
		return "package"
	case KindSourceUnit:
		return "source_unit"
	case KindCompiledUnit:
		return "compiled_unit"
	case KindType:
		return "type"
	}
	return "unknown"
}

// ChangeKind says what happened to the element.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Removed
	Changed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Changed:
		return "changed"
	}
	return "unknown"
}

// Flags refine a delta.
type Flags uint32

const (
	FlagChildren Flags = 1 << iota
	FlagContent
	FlagModifiers
	FlagSuperTypes
	FlagOpened
	FlagClosed
	FlagAddedToClasspath
	FlagRemovedFromClasspath
	FlagArchiveContentChanged
)

// EventType is the phase a delta is delivered in.
type EventType int

const (
	// PostChange follows changes to saved units and the workspace layout.
	PostChange EventType = iota + 1
	// PostReconcile follows edits to in-memory working copies.
	PostReconcile
)

// Element is the workspace element a delta concerns. Which fields are set
// depends on Kind.
type Element struct {
	Kind    ElementKind
	Project string
	Root    string // workspace-relative root path
	Package string
	Path    string // document path of a unit or of the unit declaring a type

	// Units only. Owner is "" for the primary copy.
	Owner       string
	WorkingCopy bool

	// Types only.
	Name string                // binary name
	Decl hierarchy.Declaration // simple name and supertypes as written
}

// Delta describes one change and the changes below it.
type Delta struct {
	Element  Element
	Kind     ChangeKind
	Flags    Flags
	Children []*Delta
}

// Has reports whether all of f are set.
func (d *Delta) Has(f Flags) bool { return d.Flags&f == f }

// Ref is the type a KindType element identifies.
func (e Element) Ref() hierarchy.TypeRef {
	return hierarchy.TypeRef{Path: e.Path, Package: e.Package, Name: e.Name}
}

// UnitDelta builds a unit-level delta for path, picking the source or
// compiled kind from the path.
func UnitDelta(unitPath, pkg string, kind ChangeKind, children ...*Delta) *Delta {
	k := KindSourceUnit
	if strings.Contains(unitPath, hierarchy.ArchiveSeparator) {
		k = KindCompiledUnit
	}
	project, _, _ := strings.Cut(unitPath, "/")
	d := &Delta{
		Element:  Element{Kind: k, Project: project, Package: pkg, Path: unitPath},
		Kind:     kind,
		Children: children,
	}
	if len(children) > 0 {
		d.Flags |= FlagChildren
	}
	return d
}

// unitTypeName derives the type name a compiled unit declares from its
// entry name, e.g. Outer$Inner for a.jar|p/Outer$Inner.class.
func unitTypeName(unitPath string) string {
	if _, entry, ok := strings.Cut(unitPath, hierarchy.ArchiveSeparator); ok {
		unitPath = entry
	}
	base := path.Base(unitPath)
	return strings.TrimSuffix(base, path.Ext(base))
}
