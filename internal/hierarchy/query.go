package hierarchy

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// GetSuperclass returns the resolved superclass of t, if any.
func (g *Graph) GetSuperclass(t TypeRef) (TypeRef, bool) {
	s, ok := g.classToSuperclass[t]
	return s, ok
}

// GetSuperInterfaces returns the direct superinterfaces of t in declaration order.
func (g *Graph) GetSuperInterfaces(t TypeRef) []TypeRef {
	out := make([]TypeRef, len(g.typeToSuperInterfaces[t]))
	copy(out, g.typeToSuperInterfaces[t])
	return out
}

// GetSupertypes returns the superclass of t (if any) followed by its
// superinterfaces.
func (g *Graph) GetSupertypes(t TypeRef) []TypeRef {
	out := make([]TypeRef, 0, 1+len(g.typeToSuperInterfaces[t]))
	if s, ok := g.classToSuperclass[t]; ok {
		out = append(out, s)
	}
	return append(out, g.typeToSuperInterfaces[t]...)
}

// GetSubtypes returns the direct subtypes of t.
func (g *Graph) GetSubtypes(t TypeRef) []TypeRef {
	return g.typeToSubtypes[t].list()
}

// GetSubclasses returns the direct subtypes of t that are classes. Interfaces
// have no subclasses.
func (g *Graph) GetSubclasses(t TypeRef) []TypeRef {
	if g.IsInterface(t) {
		return []TypeRef{}
	}
	out := []TypeRef{}
	for _, s := range g.GetSubtypes(t) {
		if !g.IsInterface(s) {
			out = append(out, s)
		}
	}
	return out
}

// GetAllSuperclasses walks the superclass chain of t, nearest first.
func (g *Graph) GetAllSuperclasses(t TypeRef) []TypeRef {
	out := []TypeRef{}
	seen := map[TypeRef]bool{t: true}
	for {
		s, ok := g.classToSuperclass[t]
		if !ok || seen[s] {
			return out
		}
		seen[s] = true
		out = append(out, s)
		t = s
	}
}

// GetAllSuperInterfaces returns every interface t implements or extends,
// including those inherited through its superclasses. Each interface
// appears once.
func (g *Graph) GetAllSuperInterfaces(t TypeRef) []TypeRef {
	out := []TypeRef{}
	found := map[TypeRef]bool{}
	visited := map[TypeRef]bool{t: true}
	stack := []TypeRef{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ifaces := g.typeToSuperInterfaces[cur]
		for i := len(ifaces) - 1; i >= 0; i-- {
			if !visited[ifaces[i]] {
				visited[ifaces[i]] = true
				stack = append(stack, ifaces[i])
			}
		}
		for _, iface := range ifaces {
			if !found[iface] {
				found[iface] = true
				out = append(out, iface)
			}
		}
		if s, ok := g.classToSuperclass[cur]; ok && !visited[s] {
			visited[s] = true
			stack = append(stack, s)
		}
	}
	return out
}

// GetAllSupertypes returns every class and interface above t.
func (g *Graph) GetAllSupertypes(t TypeRef) []TypeRef {
	return g.closure(t, g.GetSupertypes)
}

// GetAllSubtypes returns every type below t, breadth first.
func (g *Graph) GetAllSubtypes(t TypeRef) []TypeRef {
	return g.closure(t, g.GetSubtypes)
}

// closure runs a breadth-first walk from t over next. The visited set keeps
// it finite on cyclic or partially corrupted graphs.
func (g *Graph) closure(t TypeRef, next func(TypeRef) []TypeRef) []TypeRef {
	out := []TypeRef{}
	visited := map[TypeRef]bool{t: true}
	queue := []TypeRef{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next(cur) {
			if visited[n] {
				continue
			}
			visited[n] = true
			out = append(out, n)
			queue = append(queue, n)
		}
	}
	return out
}

// GetAllTypes returns every type mentioned anywhere in the graph, sorted by handle.
func (g *Graph) GetAllTypes() []TypeRef {
	all := make(map[TypeRef]struct{}, len(g.classToSuperclass)*2)
	for t, s := range g.classToSuperclass {
		all[t] = struct{}{}
		all[s] = struct{}{}
	}
	for t, ifaces := range g.typeToSuperInterfaces {
		all[t] = struct{}{}
		for _, i := range ifaces {
			all[i] = struct{}{}
		}
	}
	for t := range g.typeToSubtypes {
		all[t] = struct{}{}
	}
	for _, t := range g.rootClasses.order {
		all[t] = struct{}{}
	}
	for _, t := range g.interfaces.order {
		all[t] = struct{}{}
	}
	if !g.focus.IsZero() {
		all[g.focus] = struct{}{}
	}
	return sortedTypes(all)
}

// GetAllClasses returns every type of the graph that is not an interface.
func (g *Graph) GetAllClasses() []TypeRef {
	out := []TypeRef{}
	for _, t := range g.GetAllTypes() {
		if !g.IsInterface(t) {
			out = append(out, t)
		}
	}
	return out
}

// GetAllInterfaces returns the interfaces of the graph in insertion order.
func (g *Graph) GetAllInterfaces() []TypeRef {
	return g.interfaces.list()
}

// GetRootClasses returns the classes without a resolved superclass.
func (g *Graph) GetRootClasses() []TypeRef {
	return g.rootClasses.list()
}

// GetRootInterfaces returns the interfaces that extend no other interface.
func (g *Graph) GetRootInterfaces() []TypeRef {
	out := []TypeRef{}
	for _, t := range g.interfaces.order {
		if len(g.typeToSuperInterfaces[t]) == 0 {
			out = append(out, t)
		}
	}
	return out
}

// GetImplementingClasses returns the classes that directly implement iface.
func (g *Graph) GetImplementingClasses(iface TypeRef) []TypeRef {
	out := []TypeRef{}
	if !g.IsInterface(iface) {
		return out
	}
	for _, s := range g.GetSubtypes(iface) {
		if !g.IsInterface(s) {
			out = append(out, s)
		}
	}
	return out
}

// GetExtendingInterfaces returns the interfaces that directly extend iface.
func (g *Graph) GetExtendingInterfaces(iface TypeRef) []TypeRef {
	out := []TypeRef{}
	if !g.IsInterface(iface) {
		return out
	}
	for _, s := range g.GetSubtypes(iface) {
		if g.IsInterface(s) {
			out = append(out, s)
		}
	}
	return out
}

// Size is the number of distinct types in the graph.
func (g *Graph) Size() int {
	return len(g.GetAllTypes())
}

// String renders the supertypes and subtypes of the focus (or every root
// when there is no focus) as an indented tree.
func (g *Graph) String() string {
	var b strings.Builder
	if focus, ok := g.Focus(); ok {
		fmt.Fprintf(&b, "Focus: %s\n", focus.QualifiedName())
		b.WriteString("Super types:\n")
		g.writeTree(&b, []TypeRef{focus}, g.GetSupertypes, true)
		if g.computeSubtypes {
			b.WriteString("Sub types:\n")
			g.writeTree(&b, []TypeRef{focus}, g.GetSubtypes, true)
		}
		return b.String()
	}
	b.WriteString("Roots:\n")
	roots := append(g.GetRootClasses(), g.GetRootInterfaces()...)
	g.writeTree(&b, roots, g.GetSubtypes, false)
	return b.String()
}

func (g *Graph) writeTree(b *strings.Builder, starts []TypeRef, next func(TypeRef) []TypeRef, skipStart bool) {
	type frame struct {
		t     TypeRef
		depth int
	}
	stack := make([]frame, 0, len(starts))
	for i := len(starts) - 1; i >= 0; i-- {
		stack = append(stack, frame{t: starts[i]})
	}
	onPath := map[TypeRef]int{}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !(skipStart && f.depth == 0) {
			fmt.Fprintf(b, "%s%s", strings.Repeat("  ", f.depth), f.t.QualifiedName())
			if g.IsInterface(f.t) {
				b.WriteString(" (interface)")
			}
			b.WriteByte('\n')
		}
		// Types already expanded higher up are printed but not expanded again.
		if d, ok := onPath[f.t]; ok && d < f.depth {
			continue
		}
		onPath[f.t] = f.depth
		children := next(f.t)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{t: children[i], depth: f.depth + 1})
		}
	}
}

func sortedTypes(set map[TypeRef]struct{}) []TypeRef {
	out := make([]TypeRef, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b TypeRef) int { return cmp.Compare(a.Handle(), b.Handle()) })
	return out
}
