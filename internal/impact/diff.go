package impact

import (
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/store"
)

// Diff compares two versions of a unit and returns the delta between their
// declarations, or nil when nothing a hierarchy depends on changed. Either
// side may be nil for a unit that appeared or vanished.
func Diff(prev, next *store.Unit) *Delta {
	switch {
	case prev == nil && next == nil:
		return nil
	case prev == nil:
		return UnitDelta(next.Path, next.Package, Added, typeDeltas(next, Added)...)
	case next == nil:
		return UnitDelta(prev.Path, prev.Package, Removed, typeDeltas(prev, Removed)...)
	}
	if Fingerprint(prev.Types) == Fingerprint(next.Types) && prev.Package == next.Package {
		return nil
	}

	old := make(map[string]*store.TypeDecl, len(prev.Types))
	for i := range prev.Types {
		old[prev.Types[i].Name] = &prev.Types[i]
	}
	var children []*Delta
	for i := range next.Types {
		td := &next.Types[i]
		was, ok := old[td.Name]
		if !ok {
			children = append(children, typeDelta(next, td, Added, 0))
			continue
		}
		delete(old, td.Name)
		var flags Flags
		if was.Modifiers != td.Modifiers || was.IsInterface != td.IsInterface {
			flags |= FlagModifiers
		}
		if was.Superclass != td.Superclass || !slices.Equal(was.Interfaces, td.Interfaces) {
			flags |= FlagSuperTypes
		}
		if flags != 0 {
			children = append(children, typeDelta(next, td, Changed, flags))
		}
	}
	for i := range prev.Types {
		if td := &prev.Types[i]; old[td.Name] != nil {
			children = append(children, typeDelta(prev, td, Removed, 0))
		}
	}
	if len(children) == 0 {
		return nil
	}
	d := UnitDelta(next.Path, next.Package, Changed, children...)
	d.Flags |= FlagContent
	for _, c := range children {
		if c.Kind == Changed {
			d.Flags |= c.Flags
		}
	}
	return d
}

// Fingerprint hashes the parts of the declarations a hierarchy depends on.
// Declaration order does not matter.
func Fingerprint(types []store.TypeDecl) uint64 {
	lines := make([]string, 0, len(types))
	for i := range types {
		td := &types[i]
		lines = append(lines, strings.Join([]string{
			td.Name,
			strconv.Itoa(td.Modifiers),
			strconv.FormatBool(td.IsInterface),
			td.Superclass,
			strings.Join(td.Interfaces, ","),
		}, "\x00"))
	}
	slices.Sort(lines)
	return xxhash.Sum64String(strings.Join(lines, "\n"))
}

func typeDeltas(u *store.Unit, kind ChangeKind) []*Delta {
	out := make([]*Delta, 0, len(u.Types))
	for i := range u.Types {
		out = append(out, typeDelta(u, &u.Types[i], kind, 0))
	}
	return out
}

func typeDelta(u *store.Unit, td *store.TypeDecl, kind ChangeKind, flags Flags) *Delta {
	return &Delta{
		Element: Element{
			Kind:    KindType,
			Project: u.Project,
			Package: u.Package,
			Path:    u.Path,
			Name:    td.Name,
			Decl: hierarchy.Declaration{
				SimpleName: td.SimpleName,
				Superclass: td.Superclass,
				Interfaces: td.Interfaces,
			},
		},
		Kind:  kind,
		Flags: flags,
	}
}
