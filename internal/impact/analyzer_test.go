package impact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/store"
)

var (
	refA    = hierarchy.TypeRef{Path: "core/src/p/A.java", Package: "p", Name: "A"}
	refBase = hierarchy.TypeRef{Path: "core/src/p/Base.java", Package: "p", Name: "Base"}
	refI    = hierarchy.TypeRef{Path: "core/lib.jar|p/I.class", Package: "p", Name: "I"}
	refB    = hierarchy.TypeRef{Path: "app/src/q/B.java", Package: "q", Name: "B"}
)

// fakeWorkspace answers classpath questions from fixed tables. Dependencies
// are followed transitively.
type fakeWorkspace struct {
	deps  map[string][]string
	roots map[string][]string
}

func (f *fakeWorkspace) DependsOn(project, other string) (bool, error) {
	seen := map[string]bool{}
	stack := []string{project}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range f.deps[p] {
			if d == other {
				return true, nil
			}
			if !seen[d] {
				seen[d] = true
				stack = append(stack, d)
			}
		}
	}
	return false, nil
}

func (f *fakeWorkspace) Roots(project string) ([]*store.Root, error) {
	var out []*store.Root
	for i, r := range f.roots[project] {
		out = append(out, &store.Root{Project: project, Path: r, Index: i})
	}
	return out, nil
}

// newGraph builds: Base <- A <- B, B implements I, with A the focus and
// "Gone" recorded missing.
func newGraph(opts ...hierarchy.Option) *hierarchy.Graph {
	g := hierarchy.New(append([]hierarchy.Option{hierarchy.WithFocus(refA, true), hierarchy.WithProject("core")}, opts...)...)
	g.CacheSuperclass(refBase, hierarchy.ObjectRef)
	g.CacheSuperclass(refA, refBase)
	g.CacheSuperclass(refB, refA)
	g.AddInterface(refI)
	g.CacheFlags(refI, hierarchy.FlagInterface|hierarchy.FlagPublic)
	g.CacheSuperInterfaces(refB, []hierarchy.TypeRef{refI})
	g.AddRootClass(hierarchy.ObjectRef)
	g.AddMissingType("Gone")
	g.AddFile(refA.Path, "core/src", refA)
	g.AddFile(refBase.Path, "core/src", refBase)
	g.AddFile(refI.Path, "core/lib.jar", refI)
	g.AddFile(refB.Path, "app/src", refB)
	g.InitializeRegions()
	return g
}

func newAnalyzer(g *hierarchy.Graph) *Analyzer {
	return &Analyzer{
		Graph: func() *hierarchy.Graph { return g },
		Workspace: &fakeWorkspace{
			deps:  map[string][]string{"app": {"core"}, "core": {"lib"}},
			roots: map[string][]string{"core": {"core/src", "core/lib.jar", "core/extra.jar"}, "app": {"app/src"}},
		},
	}
}

func typeChild(kind ChangeKind, name string, decl hierarchy.Declaration) *Delta {
	return &Delta{Element: Element{Kind: KindType, Name: name, Decl: decl}, Kind: kind}
}

// =============================================================================
// Containers
// =============================================================================

func TestIsAffected_Model(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph())

	assert.True(t, a.IsAffected(&Delta{Element: Element{Kind: KindModel}, Kind: Added}, PostChange))
	assert.False(t, a.IsAffected(&Delta{Element: Element{Kind: KindModel}, Kind: Changed}, PostChange))

	child := &Delta{Element: Element{Kind: KindCompiledUnit, Path: refI.Path}, Kind: Removed}
	d := &Delta{Element: Element{Kind: KindModel}, Kind: Changed, Flags: FlagChildren, Children: []*Delta{child}}
	assert.True(t, a.IsAffected(d, PostChange))

	// Children are only looked at when the delta says so.
	d.Flags = 0
	assert.False(t, a.IsAffected(d, PostChange))
}

func TestIsAffected_Project(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		delta   *Delta
		noFocus bool
		want    bool
	}{
		{"added dependent project", &Delta{Element: Element{Kind: KindProject, Project: "app"}, Kind: Added}, false, true},
		{"added dependent project without focus", &Delta{Element: Element{Kind: KindProject, Project: "app"}, Kind: Added}, true, false},
		{"added dependency", &Delta{Element: Element{Kind: KindProject, Project: "lib"}, Kind: Added}, false, true},
		{"added unrelated", &Delta{Element: Element{Kind: KindProject, Project: "tools"}, Kind: Added}, false, false},
		{"opened counts as added", &Delta{Element: Element{Kind: KindProject, Project: "app"}, Kind: Changed, Flags: FlagOpened}, false, true},
		{"removed in region", &Delta{Element: Element{Kind: KindProject, Project: "app"}, Kind: Removed}, false, true},
		{"removed dependency of region", &Delta{Element: Element{Kind: KindProject, Project: "lib"}, Kind: Removed}, false, true},
		{"closed unrelated", &Delta{Element: Element{Kind: KindProject, Project: "tools"}, Kind: Changed, Flags: FlagClosed}, false, false},
		{"changed without children", &Delta{Element: Element{Kind: KindProject, Project: "core"}, Kind: Changed}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := newGraph()
			if tt.noFocus {
				g.SetFocus(hierarchy.TypeRef{})
			}
			assert.Equal(t, tt.want, newAnalyzer(g).IsAffected(tt.delta, PostChange))
		})
	}
}

func TestIsAffected_WorkspaceScopedGraphSeesNewProjects(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph(hierarchy.WithProject("")))
	assert.True(t, a.IsAffected(&Delta{Element: Element{Kind: KindProject, Project: "tools"}, Kind: Added}, PostChange))
}

func TestIsAffected_Package(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph())
	pkg := func(project, name string, kind ChangeKind) *Delta {
		return &Delta{Element: Element{Kind: KindPackage, Project: project, Package: name}, Kind: kind}
	}

	assert.True(t, a.IsAffected(pkg("core", "r", Added), PostChange))
	assert.False(t, a.IsAffected(pkg("tools", "r", Added), PostChange))
	assert.True(t, a.IsAffected(pkg("tools", "q", Removed), PostChange), "same name elsewhere counts")
	assert.False(t, a.IsAffected(pkg("core", "zzz", Removed), PostChange))
}

func TestIsAffected_Root(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph())
	root := func(project, path string, kind ChangeKind, flags Flags) *Delta {
		return &Delta{Element: Element{Kind: KindRoot, Project: project, Root: path}, Kind: kind, Flags: flags}
	}

	assert.True(t, a.IsAffected(root("core", "core/gen", Added, 0), PostChange))
	assert.False(t, a.IsAffected(root("tools", "tools/src", Added, 0), PostChange))
	assert.True(t, a.IsAffected(root("core", "core/src", Removed, FlagRemovedFromClasspath), PostChange))
	assert.True(t, a.IsAffected(root("core", "core/lib.jar", Changed, FlagArchiveContentChanged), PostChange))
	assert.False(t, a.IsAffected(root("core", "core/extra.jar", Changed, FlagArchiveContentChanged), PostChange))
	assert.True(t, a.IsAffected(root("core", "core/extra.jar", Changed, FlagAddedToClasspath), PostChange))
	assert.False(t, a.IsAffected(root("tools", "tools/x.jar", Changed, FlagAddedToClasspath), PostChange))
}

// =============================================================================
// Compiled units
// =============================================================================

func TestIsAffected_CompiledUnitRemoved(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph())
	assert.True(t, a.IsAffected(UnitDelta(refI.Path, "p", Removed), PostChange))
	assert.False(t, a.IsAffected(UnitDelta("core/lib.jar|p/Other.class", "p", Removed), PostChange))
}

func TestIsAffected_CompiledUnitAdded(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph())

	// Name heuristics: a cached supertype, a missing name, a supertype of
	// a tracked subtype.
	assert.True(t, a.IsAffected(UnitDelta("core/lib.jar|p/Base.class", "p", Added), PostChange))
	assert.True(t, a.IsAffected(UnitDelta("core/lib.jar|x/Gone.class", "x", Added), PostChange))
	assert.True(t, a.IsAffected(UnitDelta("core/lib.jar|x/Zed.class", "x", Added,
		typeChild(Added, "Zed", hierarchy.Declaration{SimpleName: "Zed", Superclass: "q.B"})), PostChange))

	assert.False(t, a.IsAffected(UnitDelta("core/lib.jar|x/Zed.class", "x", Added), PostChange))
}

func TestIsAffected_CompiledUnitChanged(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph())
	changed := func(flags Flags, decl hierarchy.Declaration) *Delta {
		d := UnitDelta("core/lib.jar|x/T.class", "x", Changed, typeChild(Changed, decl.SimpleName, decl))
		d.Flags |= flags
		return d
	}

	assert.True(t, a.IsAffected(changed(FlagModifiers, hierarchy.Declaration{SimpleName: "Base"}), PostChange))
	assert.False(t, a.IsAffected(changed(FlagModifiers, hierarchy.Declaration{SimpleName: "Zed"}), PostChange))
	assert.True(t, a.IsAffected(changed(FlagSuperTypes, hierarchy.Declaration{SimpleName: "Zed", Interfaces: []string{"p.I"}}), PostChange))
	assert.False(t, a.IsAffected(changed(FlagSuperTypes, hierarchy.Declaration{SimpleName: "Zed", Superclass: "Other"}), PostChange))
}

// =============================================================================
// Source units
// =============================================================================

func unit(path, pkg string, types ...store.TypeDecl) *store.Unit {
	return &store.Unit{Path: path, Project: "core", Package: pkg, Types: types}
}

func TestIsAffected_SourceUnitEdit(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph())

	before := unit(refB.Path, "q", store.TypeDecl{Name: "B", SimpleName: "B", Superclass: "A", Interfaces: []string{"I"}})
	after := unit(refB.Path, "q", store.TypeDecl{Name: "B", SimpleName: "B", Interfaces: []string{"I"}})
	d := Diff(before, after)
	require.NotNil(t, d)
	assert.True(t, a.IsAffected(d, PostChange))

	// A new unrelated class extending Object.
	d = Diff(nil, unit("tools/src/z/Z.java", "z", store.TypeDecl{Name: "Z", SimpleName: "Z"}))
	assert.False(t, a.IsAffected(d, PostChange))
}

func TestIsAffected_WorkingCopiesAreBatched(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph())

	d := Diff(
		unit(refB.Path, "q", store.TypeDecl{Name: "B", SimpleName: "B", Superclass: "A"}),
		unit(refB.Path, "q", store.TypeDecl{Name: "B", SimpleName: "B", Superclass: "Base"}),
	)
	require.NotNil(t, d)
	d.Element.WorkingCopy = true

	assert.False(t, a.IsAffected(d, PostReconcile), "batched, not an immediate verdict")
	assert.True(t, a.HasFineGrainChanges())

	a.ResetChanges()
	assert.False(t, a.HasFineGrainChanges())
}

func TestIsAffected_OtherOwnersIgnored(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(newGraph())
	d := Diff(nil, unit(refB.Path, "q", store.TypeDecl{Name: "Gone", SimpleName: "Gone"}))
	d.Element.Owner = "editor"

	assert.False(t, a.IsAffected(d, PostChange), "owner differs from the focus unit's")

	a.FocusOwner = "editor"
	assert.False(t, a.IsAffected(d, PostChange), "opening a working copy reports it added")
	assert.True(t, a.IsAffected(d, PostReconcile))
}

// =============================================================================
// Properties
// =============================================================================

func TestIsAffected_IrrelevantDeltasLeaveGraphUntouched(t *testing.T) {
	t.Parallel()
	g := newGraph()
	before := g.String()
	a := newAnalyzer(g)

	irrelevant := []*Delta{
		{Element: Element{Kind: KindProject, Project: "tools"}, Kind: Added},
		{Element: Element{Kind: KindPackage, Project: "tools", Package: "t"}, Kind: Added},
		{Element: Element{Kind: KindRoot, Project: "tools", Root: "tools/src"}, Kind: Added},
		UnitDelta("tools/lib.jar|t/T.class", "t", Removed),
		Diff(nil, unit("tools/src/t/T.java", "t", store.TypeDecl{Name: "T", SimpleName: "T"})),
	}
	for _, d := range irrelevant {
		assert.False(t, a.IsAffected(d, PostChange), "%s %s", d.Element.Kind, d.Kind)
	}
	assert.Equal(t, before, g.String())

	// One relevant delta anywhere in the sequence requires a refresh.
	assert.True(t, a.IsAffected(UnitDelta(refI.Path, "p", Removed), PostChange))
	assert.Equal(t, before, g.String(), "verdicts never edit the graph")
}

func TestIsAffected_NilGraph(t *testing.T) {
	t.Parallel()
	a := &Analyzer{Graph: func() *hierarchy.Graph { return nil }}
	assert.False(t, a.IsAffected(&Delta{Element: Element{Kind: KindModel}, Kind: Added}, PostChange))
}
