package hierarchy

import "strings"

// Declaration is the name-level view of a type that invalidation checks
// work from: its simple name and its supertypes as written in source.
type Declaration struct {
	SimpleName string
	Superclass string // empty when none is declared
	Interfaces []string
}

// HasSupertype reports whether some cached superclass has the given simple name.
func (g *Graph) HasSupertype(simpleName string) bool {
	for _, s := range g.classToSuperclass {
		if s.SimpleName() == simpleName {
			return true
		}
	}
	return false
}

// HasTypeNamed reports whether any type of the graph has the given simple name.
func (g *Graph) HasTypeNamed(simpleName string) bool {
	for _, t := range g.GetAllTypes() {
		if t.SimpleName() == simpleName {
			return true
		}
	}
	return false
}

// HasSubtypeNamed reports whether the focus or one of its subtypes (every
// type when there is no focus) has the simple name of name. Type arguments
// and qualifiers are ignored.
func (g *Graph) HasSubtypeNamed(name string) bool {
	simple := lastSegment(stripTypeArguments(name))
	focus, hasFocus := g.Focus()
	if hasFocus && focus.SimpleName() == simple {
		return true
	}
	var types []TypeRef
	if hasFocus {
		types = g.GetAllSubtypes(focus)
	} else {
		types = g.GetAllTypes()
	}
	for _, t := range types {
		if t.SimpleName() == simple {
			return true
		}
	}
	return false
}

// IncludesTypeOrSupertype reports whether the graph knows a type named like
// d or like one of d's declared supertypes.
func (g *Graph) IncludesTypeOrSupertype(d Declaration) bool {
	if g.HasTypeNamed(d.SimpleName) {
		return true
	}
	if d.Superclass != "" && g.HasTypeNamed(lastSegment(d.Superclass)) {
		return true
	}
	for _, i := range d.Interfaces {
		if g.HasTypeNamed(lastSegment(i)) {
			return true
		}
	}
	return false
}

// SubtypesIncludeSupertypeOf reports whether one of d's declared supertypes
// is named like the focus or one of its subtypes. A declaration without a
// superclass extends Object.
func (g *Graph) SubtypesIncludeSupertypeOf(d Declaration) bool {
	superclass := d.Superclass
	if superclass == "" {
		superclass = "Object"
	}
	if g.HasSubtypeNamed(superclass) {
		return true
	}
	for _, i := range d.Interfaces {
		if g.HasSubtypeNamed(i) {
			return true
		}
	}
	return false
}

func stripTypeArguments(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return name[:i]
	}
	return name
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
