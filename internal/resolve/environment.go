package resolve

import (
	"fmt"
	"context"
	"log/slog"
	"path"
	"strings"

	"go.trai.ch/zerr"

	"github.com/jward/lineage/internal/discovery"
	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/runtime"
	"github.com/jward/lineage/internal/store"
)

// Index is the part of the store resolution reads. *store.Store implements
// it.
type Index interface {
	UnitByPath(path string) (*store.Unit, error)
	LookupTypes(pkg, name string, projects []string) ([]*store.TypeDecl, error)
	PackageExists(pkg string, projects []string) (bool, error)
	VisibleProjects(project string) ([]string, error)
	RootOf(path string) (*store.Root, error)
}

var _ Index = (*store.Store)(nil)

// Environment answers unit loads and name lookups for one project: the
// project's own types, those of its transitive dependencies, and any
// in-memory working copies, which shadow the indexed unit at the same path.
type Environment struct {
	Project string
	Visible []string // the project first, then its dependencies

	index         Index
	archives      *ArchiveSet
	workingCopies map[string][]byte
	placeholders  map[string]*discovery.Placeholder
	logger        *slog.Logger

	units    map[string]*store.Unit
	copies   []*store.Unit // parsed working copies, loaded on first lookup
	lookups  map[string]*store.TypeDecl
	packages map[string]bool
}

// EnvOption configures an Environment.
type EnvOption func(*Environment)

// WithWorkingCopies sets in-memory sources keyed by document path.
func WithWorkingCopies(copies map[string][]byte) EnvOption {
	return func(e *Environment) { e.workingCopies = copies }
}

// WithPlaceholders supplies placeholders for archive types found during
// discovery.
func WithPlaceholders(p map[string]*discovery.Placeholder) EnvOption {
	return func(e *Environment) { e.placeholders = p }
}

// WithArchives sets the archive set used to read class files.
func WithArchives(s *ArchiveSet) EnvOption {
	return func(e *Environment) { e.archives = s }
}

// WithEnvLogger sets the environment's logger.
func WithEnvLogger(l *slog.Logger) EnvOption {
	return func(e *Environment) { e.logger = l }
}

// NewEnvironment creates the environment of project.
func NewEnvironment(index Index, project string, opts ...EnvOption) (*Environment, error) {
	visible, err := index.VisibleProjects(project)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "visible projects"), "project", project)
	}
	e := &Environment{
		Project:  project,
		Visible:  visible,
		index:    index,
		logger:   slog.Default(),
		units:    map[string]*store.Unit{},
		lookups:  map[string]*store.TypeDecl{},
		packages: map[string]bool{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Loaded reports whether the unit at path has been loaded.
func (e *Environment) Loaded(path string) bool {
	_, ok := e.units[path]
	return ok
}

// Unit loads the unit at path. Working copies are parsed; archive entries
// come from their placeholder or the class file; everything else is read
// from the index.
func (e *Environment) Unit(ctx context.Context, docPath string) (*store.Unit, error) {
	if u, ok := e.units[docPath]; ok {
		return u, nil
	}
	u, err := e.load(ctx, docPath)
	if err != nil {
		return nil, err
	}
	if u.Project == "" {
		u.Project = projectOf(docPath)
	}
	if u.Root == "" {
		if r, err := e.index.RootOf(docPath); err == nil && r != nil {
			u.Root, u.RootIndex = r.Path, r.Index
		}
	}
	e.units[docPath] = u
	return u, nil
}

func (e *Environment) load(ctx context.Context, docPath string) (*store.Unit, error) {
	if src, ok := e.workingCopies[docPath]; ok {
		u, err := runtime.ParseJava(ctx, docPath, src)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(fmt.Errorf("%w: %w", hierarchy.ErrModelAccess, err), "parsing working copy"), "path", docPath)
		}
		return u, nil
	}
	if strings.Contains(docPath, hierarchy.ArchiveSeparator) {
		if p, ok := e.placeholders[docPath]; ok {
			td := p.Decl()
			return &store.Unit{Path: docPath, Package: p.Package, Types: []store.TypeDecl{td}}, nil
		}
		if e.archives != nil {
			c, err := e.archives.Class(docPath)
			if err == nil {
				return runtime.ClassUnit(docPath, c, ""), nil
			}
			e.logger.Debug("class file unreadable, using index", "path", docPath, "error", err)
		}
	}
	u, err := e.index.UnitByPath(docPath)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(fmt.Errorf("%w: %w", hierarchy.ErrModelAccess, err), "reading unit"), "path", docPath)
	}
	if u == nil {
		return nil, zerr.With(zerr.Wrap(hierarchy.ErrModelAccess, "unit not indexed"), "path", docPath)
	}
	return u, nil
}

// LocalEntries lists the class files of local and anonymous types declared
// inside the top-level class file at docPath, e.g. a.jar|p/Outer$1.class
// for a.jar|p/Outer.class.
func (e *Environment) LocalEntries(docPath string) []string {
	archive, entry, ok := strings.Cut(docPath, hierarchy.ArchiveSeparator)
	if !ok || e.archives == nil {
		return nil
	}
	a, err := e.archives.Archive(archive)
	if err != nil {
		return nil
	}
	prefix := strings.TrimSuffix(entry, path.Ext(entry)) + "$"
	var out []string
	for _, name := range a.Entries() {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		if hierarchy.IsLocalName("x$" + strings.TrimSuffix(rest, ".class")) {
			out = append(out, archive+hierarchy.ArchiveSeparator+name)
		}
	}
	return out
}

// Lookup finds the type with binary name in pkg among the visible
// projects. Working copies take precedence over the index.
func (e *Environment) Lookup(ctx context.Context, pkg, name string) (*store.TypeDecl, error) {
	key := pkg + "#" + name
	if td, ok := e.lookups[key]; ok {
		return td, nil
	}
	td, err := e.lookup(ctx, pkg, name)
	if err != nil {
		return nil, err
	}
	e.lookups[key] = td
	return td, nil
}

func (e *Environment) lookup(ctx context.Context, pkg, name string) (*store.TypeDecl, error) {
	for _, u := range e.workingCopyUnits(ctx) {
		if u.Package != pkg || !e.visible(u.Project) {
			continue
		}
		for i := range u.Types {
			if u.Types[i].Name == name {
				td := u.Types[i]
				td.Path, td.Package, td.Project = u.Path, u.Package, u.Project
				return &td, nil
			}
		}
	}
	found, err := e.index.LookupTypes(pkg, name, e.Visible)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "lookup"), "name", pkg+"."+name)
	}
	for _, td := range found {
		if _, shadowed := e.workingCopies[td.Path]; shadowed {
			continue
		}
		return td, nil
	}
	return nil, nil
}

func (e *Environment) workingCopyUnits(ctx context.Context) []*store.Unit {
	if e.copies == nil && len(e.workingCopies) > 0 {
		e.copies = make([]*store.Unit, 0, len(e.workingCopies))
		for p := range e.workingCopies {
			u, err := e.Unit(ctx, p)
			if err != nil {
				e.logger.Warn("working copy unreadable", "path", p, "error", err)
				continue
			}
			e.copies = append(e.copies, u)
		}
	}
	return e.copies
}

func (e *Environment) visible(project string) bool {
	for _, p := range e.Visible {
		if p == project {
			return true
		}
	}
	return false
}

func (e *Environment) packageExists(pkg string) bool {
	if ok, seen := e.packages[pkg]; seen {
		return ok
	}
	ok, err := e.index.PackageExists(pkg, e.Visible)
	if err != nil {
		e.logger.Debug("package lookup failed", "package", pkg, "error", err)
	}
	e.packages[pkg] = ok
	return ok
}

// ResolveName binds a supertype name as written in td, a type declared in
// u. It returns nil when the name does not resolve. Lookup order:
// enclosing and local types, same-unit types, single-type imports, the
// same package, on-demand imports, java.lang, then dotted names as package
// plus nested path.
func (e *Environment) ResolveName(ctx context.Context, u *store.Unit, td *store.TypeDecl, written string) (*store.TypeDecl, error) {
	name := compactName(store.StripTypeArguments(written))
	if name == "" {
		return nil, nil
	}
	if strings.Contains(name, ".") {
		return e.resolveDotted(ctx, u, td, name)
	}
	return e.resolveSimple(ctx, u, td, name)
}

func (e *Environment) resolveSimple(ctx context.Context, u *store.Unit, td *store.TypeDecl, name string) (*store.TypeDecl, error) {
	// Member and local types of the enclosing types, innermost first.
	for enc := td.EnclosingName; enc != ""; enc = enclosingOf(u, enc) {
		for i := range u.Types {
			c := &u.Types[i]
			if c.Name == enc+"$"+name || (c.IsLocal && c.EnclosingName == enc && c.SimpleName == name) {
				return unitDecl(u, c), nil
			}
		}
	}
	for i := range u.Types {
		if c := &u.Types[i]; c.Name == name {
			return unitDecl(u, c), nil
		}
	}
	for _, imp := range u.Imports {
		if !imp.OnDemand && lastSegment(imp.Name) == name {
			if found, err := e.resolveQualified(ctx, imp.Name); found != nil || err != nil {
				return found, err
			}
		}
	}
	if found, err := e.Lookup(ctx, u.Package, name); found != nil || err != nil {
		return found, err
	}
	for _, imp := range u.Imports {
		if imp.OnDemand {
			if found, err := e.resolveQualified(ctx, imp.Name+"."+name); found != nil || err != nil {
				return found, err
			}
		}
	}
	return e.Lookup(ctx, "java.lang", name)
}

func (e *Environment) resolveDotted(ctx context.Context, u *store.Unit, td *store.TypeDecl, name string) (*store.TypeDecl, error) {
	if found, err := e.resolveQualified(ctx, name); found != nil || err != nil {
		return found, err
	}
	// Outer.Inner where Outer is itself in scope.
	first, rest, _ := strings.Cut(name, ".")
	outer, err := e.resolveSimple(ctx, u, td, first)
	if outer == nil || err != nil {
		return nil, err
	}
	return e.Lookup(ctx, outer.Package, outer.Name+"$"+strings.ReplaceAll(rest, ".", "$"))
}

// resolveQualified tries each split of a dotted name into a package and a
// nested type path, longest package first.
func (e *Environment) resolveQualified(ctx context.Context, name string) (*store.TypeDecl, error) {
	segs := strings.Split(name, ".")
	for i := len(segs) - 1; i >= 0; i-- {
		pkg := strings.Join(segs[:i], ".")
		if i > 0 && !e.packageExists(pkg) {
			continue
		}
		found, err := e.Lookup(ctx, pkg, strings.Join(segs[i:], "$"))
		if found != nil || err != nil {
			return found, err
		}
	}
	return nil, nil
}

func enclosingOf(u *store.Unit, name string) string {
	for i := range u.Types {
		if u.Types[i].Name == name {
			return u.Types[i].EnclosingName
		}
	}
	if i := strings.LastIndexByte(name, '$'); i > 0 {
		return name[:i]
	}
	return ""
}

func unitDecl(u *store.Unit, td *store.TypeDecl) *store.TypeDecl {
	c := *td
	c.Path, c.Package, c.Project = u.Path, u.Package, u.Project
	return &c
}

func projectOf(docPath string) string {
	project, _, _ := strings.Cut(docPath, "/")
	return project
}

func lastSegment(name string) string {
	return name[strings.LastIndexByte(name, '.')+1:]
}

func compactName(s string) string {
	return strings.Join(strings.Fields(s), "")
}
