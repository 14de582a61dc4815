package impact

import (
	"log/slog"
	"sync"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/observability"
	"github.com/jward/lineage/internal/store"
)

// WorkspaceModel answers the classpath questions project and root deltas
// raise. *store.Store implements it.
type WorkspaceModel interface {
	// DependsOn reports whether project sees other's types, directly or
	// transitively.
	DependsOn(project, other string) (bool, error)
	Roots(project string) ([]*store.Root, error)
}

var _ WorkspaceModel = (*store.Store)(nil)

// Analyzer judges deltas against one hierarchy.
type Analyzer struct {
	Graph     func() *hierarchy.Graph
	Workspace WorkspaceModel
	// FocusOwner is the working-copy owner of the focus unit, "" for the
	// primary copy.
	FocusOwner string
	Logger     *slog.Logger

	mu        sync.Mutex
	collector *ChangeCollector // batched working-copy changes
}

// IsAffected reports whether d, delivered in event, may invalidate the
// hierarchy.
func (a *Analyzer) IsAffected(d *Delta, event EventType) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	g := a.Graph()
	if g == nil {
		return false
	}
	affected := a.affected(g, d, event)
	if affected {
		observability.InvalidationsTotal.WithLabelValues(d.Element.Kind.String()).Inc()
	}
	return affected
}

// HasFineGrainChanges reports whether batched working-copy changes call
// for a refresh.
func (a *Analyzer) HasFineGrainChanges() bool {
	a.mu.Lock()
	c := a.collector
	a.mu.Unlock()
	return c != nil && c.NeedsRefresh()
}

// ResetChanges drops batched working-copy changes; a refresh has absorbed
// them.
func (a *Analyzer) ResetChanges() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collector = nil
}

func (a *Analyzer) affected(g *hierarchy.Graph, d *Delta, event EventType) bool {
	switch d.Element.Kind {
	case KindModel:
		return a.byModel(g, d, event)
	case KindProject:
		return a.byProject(g, d, event)
	case KindRoot:
		return a.byRoot(g, d, event)
	case KindPackage:
		return a.byPackage(g, d, event)
	case KindSourceUnit:
		return a.bySourceUnit(g, d, event)
	case KindCompiledUnit:
		return a.byCompiledUnit(g, d)
	}
	return false
}

func (a *Analyzer) byChildren(g *hierarchy.Graph, d *Delta, event EventType) bool {
	if !d.Has(FlagChildren) {
		return false
	}
	for _, child := range d.Children {
		if a.affected(g, child, event) {
			return true
		}
	}
	return false
}

func (a *Analyzer) byModel(g *hierarchy.Graph, d *Delta, event EventType) bool {
	switch d.Kind {
	case Added, Removed:
		return true
	case Changed:
		return a.byChildren(g, d, event)
	}
	return false
}

func (a *Analyzer) byProject(g *hierarchy.Graph, d *Delta, event EventType) bool {
	kind := d.Kind
	if d.Flags&FlagOpened != 0 {
		kind = Added
	}
	if d.Flags&FlagClosed != 0 {
		kind = Removed
	}
	project := d.Element.Project

	switch kind {
	case Added:
		own := g.Project()
		if own == "" {
			// A workspace-scoped graph sees every project.
			return true
		}
		if a.dependsOn(own, project) {
			return true
		}
		_, hasFocus := g.Focus()
		return hasFocus && a.dependsOn(project, own)
	case Removed:
		for _, p := range g.ProjectRegion() {
			if p == project || a.dependsOn(p, project) {
				return true
			}
		}
		return false
	case Changed:
		return a.byChildren(g, d, event)
	}
	return false
}

func (a *Analyzer) byPackage(g *hierarchy.Graph, d *Delta, event EventType) bool {
	switch d.Kind {
	case Added:
		return g.InProjectRegion(d.Element.Project)
	case Removed:
		return g.InPackageRegion(d.Element.Package)
	case Changed:
		return a.byChildren(g, d, event)
	}
	return false
}

func (a *Analyzer) byRoot(g *hierarchy.Graph, d *Delta, event EventType) bool {
	if d.Kind == Added {
		return g.InProjectRegion(d.Element.Project)
	}
	if d.Flags&FlagAddedToClasspath != 0 {
		for _, p := range g.ProjectRegion() {
			if a.hasRoot(p, d.Element.Root) {
				return true
			}
		}
	}
	if d.Flags&(FlagRemovedFromClasspath|FlagArchiveContentChanged) != 0 {
		for _, pkg := range g.PackageRegion() {
			if pkg.Root == d.Element.Root {
				return true
			}
		}
		return false
	}
	return a.byChildren(g, d, event)
}

func (a *Analyzer) bySourceUnit(g *hierarchy.Graph, d *Delta, event EventType) bool {
	el := d.Element
	if _, hasFocus := g.Focus(); hasFocus && a.FocusOwner != el.Owner {
		return false
	}
	// Opening a working copy reports it as added.
	if event != PostReconcile && el.Owner != "" && d.Kind == Added {
		return false
	}
	c := a.collector
	if c == nil {
		c = NewChangeCollector(a.Graph)
	}
	c.AddChange(el.Path, d)
	if el.WorkingCopy && event == PostReconcile {
		a.collector = c
		return false
	}
	return c.NeedsRefresh()
}

func (a *Analyzer) byCompiledUnit(g *hierarchy.Graph, d *Delta) bool {
	switch d.Kind {
	case Removed:
		return g.HasFile(d.Element.Path)
	case Added:
		for _, decl := range addedDecls(d) {
			if addedTypeAffects(g, decl) {
				return true
			}
		}
	case Changed:
		visibility := d.Flags&FlagModifiers != 0
		supertypes := d.Flags&FlagSuperTypes != 0
		for _, child := range d.Children {
			if child.Element.Kind != KindType {
				continue
			}
			decl := child.Element.Decl
			if (visibility && g.HasSupertype(decl.SimpleName)) ||
				(supertypes && g.IncludesTypeOrSupertype(decl)) {
				return true
			}
		}
	}
	return false
}

// addedDecls returns the declarations an added compiled unit brings. When
// the delta carries none, the entry name stands in.
func addedDecls(d *Delta) []hierarchy.Declaration {
	var out []hierarchy.Declaration
	for _, child := range d.Children {
		if child.Element.Kind == KindType {
			out = append(out, child.Element.Decl)
		}
	}
	if len(out) == 0 {
		out = append(out, hierarchy.Declaration{SimpleName: hierarchy.SimpleNameOf(unitTypeName(d.Element.Path))})
	}
	return out
}

func (a *Analyzer) dependsOn(project, other string) bool {
	ok, err := a.Workspace.DependsOn(project, other)
	if err != nil {
		a.logger().Debug("dependency check failed", "project", project, "other", other, "error", err)
		return false
	}
	return ok
}

func (a *Analyzer) hasRoot(project, root string) bool {
	roots, err := a.Workspace.Roots(project)
	if err != nil {
		a.logger().Debug("root lookup failed", "project", project, "error", err)
		return false
	}
	for _, r := range roots {
		if r.Path == root {
			return true
		}
	}
	return false
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
