package hierarchy

import (
	"cmp"
	"log/slog"
	"slices"
)

// Graph holds the super- and subtype edges computed for a focus type.
//
// A Graph is written by a single builder and then published; once published
// it is only read, so readers need no locking.
type Graph struct {
	classToSuperclass     map[TypeRef]TypeRef
	typeToSuperInterfaces map[TypeRef][]TypeRef
	typeToSubtypes        map[TypeRef]*typeSet
	rootClasses           *typeSet
	interfaces            *typeSet
	typeFlags             map[TypeRef]Flags
	missingTypes          []string

	packageRegion map[PackageRef]struct{}
	projectRegion map[string]struct{}
	files         map[string]*unitTypes

	focus           TypeRef
	computeSubtypes bool
	project         string

	logger *slog.Logger
}

// PackageRef identifies a package fragment under one classpath root.
type PackageRef struct {
	Project string
	Root    string
	Name    string
}

type unitTypes struct {
	root  string
	types []TypeRef
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used to report dropped edges.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// WithFocus sets the focus type and whether subtypes are computed.
func WithFocus(focus TypeRef, computeSubtypes bool) Option {
	return func(g *Graph) {
		g.focus = focus
		g.computeSubtypes = computeSubtypes
	}
}

// WithProject scopes the graph to a project. An empty project means the
// graph is workspace-scoped.
func WithProject(project string) Option {
	return func(g *Graph) { g.project = project }
}

// New creates an empty graph sized for a small hierarchy.
func New(opts ...Option) *Graph {
	g := &Graph{logger: slog.Default()}
	g.Initialize(1)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Initialize (re)allocates the backing maps from an estimated type count.
func (g *Graph) Initialize(sizeHint int) {
	if sizeHint < 10 {
		sizeHint = 10
	}
	small := sizeHint / 2
	g.classToSuperclass = make(map[TypeRef]TypeRef, sizeHint)
	g.typeToSuperInterfaces = make(map[TypeRef][]TypeRef, small)
	g.typeToSubtypes = make(map[TypeRef]*typeSet, small)
	g.rootClasses = newTypeSet(4)
	g.interfaces = newTypeSet(small)
	g.typeFlags = make(map[TypeRef]Flags, small)
	g.missingTypes = make([]string, 0, 4)
	g.packageRegion = make(map[PackageRef]struct{}, small)
	g.projectRegion = make(map[string]struct{}, 2)
	g.files = make(map[string]*unitTypes, small)
}

// Focus returns the focus type and whether one is set.
func (g *Graph) Focus() (TypeRef, bool) { return g.focus, !g.focus.IsZero() }

func (g *Graph) ComputeSubtypes() bool { return g.computeSubtypes }

// Project returns the project the graph was built in.
func (g *Graph) Project() string { return g.project }

func (g *Graph) SetFocus(t TypeRef) { g.focus = t }

func (g *Graph) SetComputeSubtypes(b bool) { g.computeSubtypes = b }

func (g *Graph) SetProject(p string) { g.project = p }

// AddRootClass marks t as a class with no resolved superclass.
func (g *Graph) AddRootClass(t TypeRef) {
	g.rootClasses.add(t)
}

// AddInterface marks t as an interface.
func (g *Graph) AddInterface(t TypeRef) {
	g.interfaces.add(t)
}

// AddSubtype records sub as a direct subtype of super in the reverse index.
func (g *Graph) AddSubtype(super, sub TypeRef) {
	set, ok := g.typeToSubtypes[super]
	if !ok {
		set = newTypeSet(2)
		g.typeToSubtypes[super] = set
	}
	set.add(sub)
}

// CacheFlags records the modifier bits of t.
func (g *Graph) CacheFlags(t TypeRef, flags Flags) {
	g.typeFlags[t] = flags
}

// CacheSuperclass records superclass as the superclass of t and reports
// whether the edge was kept. An edge that would close a cycle, including a
// type naming itself, is logged and dropped; t is then left without a
// superclass.
func (g *Graph) CacheSuperclass(t, superclass TypeRef) bool {
	if superclass.IsZero() {
		return false
	}
	if g.reachesBySuperclass(superclass, t) {
		g.logger.Error("superclass cycle, dropping edge",
			"type", t.QualifiedName(), "superclass", superclass.QualifiedName(), "path", t.Path)
		return false
	}
	if old, ok := g.classToSuperclass[t]; ok {
		if set := g.typeToSubtypes[old]; set != nil {
			set.remove(t)
		}
	}
	g.classToSuperclass[t] = superclass
	g.AddSubtype(superclass, t)
	return true
}

// reachesBySuperclass reports whether target is from or one of its
// superclasses.
func (g *Graph) reachesBySuperclass(from, target TypeRef) bool {
	seen := map[TypeRef]bool{}
	cur := from
	for !seen[cur] {
		if cur == target {
			return true
		}
		seen[cur] = true
		next, ok := g.classToSuperclass[cur]
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// CacheSuperInterfaces records the declared superinterfaces of t in
// declaration order, replacing any recorded before.
func (g *Graph) CacheSuperInterfaces(t TypeRef, superinterfaces []TypeRef) {
	for _, s := range g.typeToSuperInterfaces[t] {
		if set := g.typeToSubtypes[s]; set != nil {
			set.remove(t)
		}
	}
	ifaces := make([]TypeRef, 0, len(superinterfaces))
	for _, s := range superinterfaces {
		if s.IsZero() {
			continue
		}
		ifaces = append(ifaces, s)
		g.AddSubtype(s, t)
	}
	g.typeToSuperInterfaces[t] = ifaces
}

// AddMissingType records a referenced name that did not resolve.
func (g *Graph) AddMissingType(name string) {
	if name == "" || slices.Contains(g.missingTypes, name) {
		return
	}
	g.missingTypes = append(g.missingTypes, name)
}

// MissingTypes returns the names that could not be resolved.
func (g *Graph) MissingTypes() []string {
	return slices.Clone(g.missingTypes)
}

// IsMissing reports whether name was recorded as unresolved.
func (g *Graph) IsMissing(name string) bool {
	return slices.Contains(g.missingTypes, name)
}

// AddFile records that t was declared in the unit at path under root.
func (g *Graph) AddFile(path, root string, t TypeRef) {
	u, ok := g.files[path]
	if !ok {
		u = &unitTypes{root: root}
		g.files[path] = u
	}
	if !slices.Contains(u.types, t) {
		u.types = append(u.types, t)
	}
}

// RestoreFiles rebuilds the unit table and regions from the types' own
// document paths. It is used after Decode, which does not persist units.
func (g *Graph) RestoreFiles(rootOf func(path string) string) {
	for _, t := range g.GetAllTypes() {
		if t.IsExternal() {
			continue
		}
		g.AddFile(t.Path, rootOf(t.Path), t)
	}
	g.InitializeRegions()
}

// HasFile reports whether any type of the graph came from path.
func (g *Graph) HasFile(path string) bool {
	_, ok := g.files[path]
	return ok
}

// Files returns the document paths that contributed types, sorted.
func (g *Graph) Files() []string {
	out := make([]string, 0, len(g.files))
	for p := range g.files {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// TypesIn returns the types declared in the unit at path.
func (g *Graph) TypesIn(path string) []TypeRef {
	u, ok := g.files[path]
	if !ok {
		return []TypeRef{}
	}
	return slices.Clone(u.types)
}

// RemoveFile drops every type declared in the unit at path. Edges from
// other units that point at those types are kept.
func (g *Graph) RemoveFile(path string) {
	u, ok := g.files[path]
	if !ok {
		return
	}
	for _, t := range u.types {
		if super, ok := g.classToSuperclass[t]; ok {
			if set := g.typeToSubtypes[super]; set != nil {
				set.remove(t)
			}
			delete(g.classToSuperclass, t)
		}
		for _, s := range g.typeToSuperInterfaces[t] {
			if set := g.typeToSubtypes[s]; set != nil {
				set.remove(t)
			}
		}
		delete(g.typeToSuperInterfaces, t)
		delete(g.typeFlags, t)
		g.rootClasses.remove(t)
		g.interfaces.remove(t)
	}
	delete(g.files, path)
}

// GetCachedFlags returns the cached modifier bits of t, or NoFlags.
func (g *Graph) GetCachedFlags(t TypeRef) Flags {
	if f, ok := g.typeFlags[t]; ok {
		return f
	}
	return NoFlags
}

// Contains reports whether t is a class or interface of this graph.
func (g *Graph) Contains(t TypeRef) bool {
	if _, ok := g.classToSuperclass[t]; ok {
		return true
	}
	return g.rootClasses.has(t) || g.interfaces.has(t)
}

// IsInterface answers from the cached flags when present, otherwise from
// interface membership.
func (g *Graph) IsInterface(t TypeRef) bool {
	if f := g.GetCachedFlags(t); f != NoFlags {
		return f.IsInterface()
	}
	return g.interfaces.has(t)
}

// IsRootClass reports whether t is a class without a resolved superclass.
func (g *Graph) IsRootClass(t TypeRef) bool {
	return g.rootClasses.has(t)
}

// InitializeRegions derives the package and project regions from the units
// that contributed types.
func (g *Graph) InitializeRegions() {
	g.packageRegion = make(map[PackageRef]struct{}, len(g.files))
	g.projectRegion = make(map[string]struct{}, 2)
	for _, u := range g.files {
		for _, t := range u.types {
			if t.IsExternal() {
				continue
			}
			g.packageRegion[PackageRef{Project: t.Project(), Root: u.root, Name: t.Package}] = struct{}{}
			g.projectRegion[t.Project()] = struct{}{}
		}
	}
}

// PackageRegion returns the packages that contributed types, sorted.
func (g *Graph) PackageRegion() []PackageRef {
	out := make([]PackageRef, 0, len(g.packageRegion))
	for p := range g.packageRegion {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b PackageRef) int {
		return cmp.Or(
			cmp.Compare(a.Project, b.Project),
			cmp.Compare(a.Root, b.Root),
			cmp.Compare(a.Name, b.Name),
		)
	})
	return out
}

// ProjectRegion returns the projects that contributed types, sorted.
func (g *Graph) ProjectRegion() []string {
	out := make([]string, 0, len(g.projectRegion))
	for p := range g.projectRegion {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// InProjectRegion reports whether project contributed a type.
func (g *Graph) InProjectRegion(project string) bool {
	_, ok := g.projectRegion[project]
	return ok
}

// InPackageRegion reports whether a package with the given qualified name
// contributed a type, regardless of project or root.
func (g *Graph) InPackageRegion(name string) bool {
	for p := range g.packageRegion {
		if p.Name == name {
			return true
		}
	}
	return false
}
