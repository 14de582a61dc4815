package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// shapeUnit declares Shape, Circle extends Shape, and a member interface.
func shapeUnit() *Unit {
	return &Unit{
		Path:      "core/src/com/acme/Shape.java",
		Project:   "core",
		Root:      "core/src",
		RootIndex: 0,
		Package:   "com.acme",
		Hash:      "abc123",
		IndexedAt: time.Now().Truncate(time.Second),
		Imports: []Import{
			{Name: "java.util.List"},
			{Name: "com.acme.geom", OnDemand: true},
		},
		Types: []TypeDecl{
			{Name: "Shape", SimpleName: "Shape", Modifiers: 0x401, Kind: KindClass, Interfaces: []string{"Comparable<Shape>"}},
			{Name: "Shape$Visitor", SimpleName: "Visitor", EnclosingName: "Shape", Modifiers: 0x209, IsInterface: true, Kind: KindInterface},
			{Name: "Circle", SimpleName: "Circle", Superclass: "Shape", Interfaces: []string{"com.acme.geom.Round", "Shape.Visitor"}, Kind: KindClass},
		},
	}
}

func putUnit(t *testing.T, s *Store, u *Unit) *Unit {
	t.Helper()
	require.NoError(t, s.ReplaceUnit(u))
	require.Positive(t, u.ID)
	return u
}

func collect(t *testing.T, s *Store, name string, scope *Scope) []*IndexRecord {
	t.Helper()
	var recs []*IndexRecord
	err := s.SupertypeReferences(context.Background(), name, scope, func(r *IndexRecord) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	return recs
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"projects", "project_deps", "roots", "units", "imports", "types",
		"supertype_refs", "hierarchy_cache",
	}

	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Units
// =============================================================================

func TestUnit_ReplaceAndLoad(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	u := putUnit(t, s, shapeUnit())

	got, err := s.UnitByPath(u.Path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "com.acme", got.Package)
	assert.Equal(t, "abc123", got.Hash)
	assert.Equal(t, u.Imports, got.Imports)
	require.Len(t, got.Types, 3)

	shape := got.Types[0]
	assert.Equal(t, "Shape", shape.Name)
	assert.Equal(t, 0x401, shape.Modifiers)
	assert.Empty(t, shape.Superclass)
	assert.Equal(t, []string{"Comparable"}, shape.Interfaces, "type arguments are dropped")
	assert.Equal(t, u.Path, shape.Path)
	assert.Equal(t, "core", shape.Project)

	visitor := got.Types[1]
	assert.True(t, visitor.IsInterface)
	assert.Equal(t, "Shape", visitor.EnclosingName)
	assert.Equal(t, "com.acme.Shape.Visitor", visitor.QualifiedName())

	circle := got.Types[2]
	assert.Equal(t, "Shape", circle.Superclass)
	assert.Equal(t, []string{"com.acme.geom.Round", "Shape.Visitor"}, circle.Interfaces)
}

func TestUnit_ByPathNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.UnitByPath("nope/A.java")
	require.NoError(t, err)
	assert.Nil(t, got)

	hash, err := s.UnitHash("nope/A.java")
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestUnit_ReplaceDropsPreviousContent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	putUnit(t, s, shapeUnit())

	next := shapeUnit()
	next.Hash = "def456"
	next.Types = next.Types[:1]
	putUnit(t, s, next)

	got, err := s.UnitByPath(next.Path)
	require.NoError(t, err)
	require.Len(t, got.Types, 1)
	assert.Equal(t, "def456", got.Hash)

	circles, err := s.TypesNamed("Circle")
	require.NoError(t, err)
	assert.Empty(t, circles)

	var refs int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM supertype_refs").Scan(&refs))
	assert.Equal(t, 1, refs, "supertype references of replaced types cascade away")
}

func TestUnit_Delete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	u := putUnit(t, s, shapeUnit())
	require.NoError(t, s.DeleteUnit(u.Path))

	paths, err := s.UnitPaths("")
	require.NoError(t, err)
	assert.Empty(t, paths)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM types").Scan(&n))
	assert.Zero(t, n)
}

func TestUnit_PathsByProject(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	putUnit(t, s, shapeUnit())
	putUnit(t, s, &Unit{Path: "app/src/app/Main.java", Project: "app", Root: "app/src", Package: "app"})

	all, err := s.UnitPaths("")
	require.NoError(t, err)
	assert.Equal(t, []string{"app/src/app/Main.java", "core/src/com/acme/Shape.java"}, all)

	core, err := s.UnitPaths("core")
	require.NoError(t, err)
	assert.Equal(t, []string{"core/src/com/acme/Shape.java"}, core)
}

func TestLookupTypes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	putUnit(t, s, shapeUnit())
	putUnit(t, s, &Unit{
		Path: "app/src/com/acme/Shape.java", Project: "app", Root: "app/src", Package: "com.acme",
		Types: []TypeDecl{{Name: "Shape", SimpleName: "Shape", Kind: KindClass}},
	})

	got, err := s.LookupTypes("com.acme", "Shape", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "app", got[0].Project)
	assert.Equal(t, "core", got[1].Project)

	got, err = s.LookupTypes("com.acme", "Shape", []string{"core"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "core/src/com/acme/Shape.java", got[0].Path)

	got, err = s.LookupTypes("com.acme", "Shape$Visitor", []string{"core"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.LookupTypes("com.other", "Shape", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPackageExists(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	putUnit(t, s, shapeUnit())

	ok, err := s.PackageExists("com.acme", []string{"core"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.PackageExists("com.acme", []string{"app"})
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// Supertype references
// =============================================================================

func TestSupertypeReferences_BySimpleName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	putUnit(t, s, shapeUnit())

	recs := collect(t, s, "Shape", nil)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "Circle", rec.Name)
	assert.Equal(t, "Circle", rec.SimpleName)
	assert.Equal(t, "com.acme", rec.Package)
	assert.Equal(t, SuperClass, rec.SuperKind)
	assert.Empty(t, rec.SuperQualification)

	recs = collect(t, s, "Visitor", nil)
	require.Len(t, recs, 1)
	assert.Equal(t, "Shape", recs[0].SuperQualification)
	assert.Equal(t, SuperInterface, recs[0].SuperKind)

	recs = collect(t, s, "Round", nil)
	require.Len(t, recs, 1)
	assert.Equal(t, "com.acme.geom", recs[0].SuperQualification)
}

func TestSupertypeReferences_MatchAllIncludesTypesWithoutSupertypes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	putUnit(t, s, shapeUnit())

	recs := collect(t, s, MatchAll, nil)
	var names []string
	for _, r := range recs {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Shape", "Shape$Visitor", "Circle", "Circle", "Circle"}, names)
	assert.Empty(t, recs[1].SuperSimpleName)
}

func TestSupertypeReferences_Scope(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	putUnit(t, s, shapeUnit())
	putUnit(t, s, &Unit{
		Path: "app/lib/geom.jar|com/acme/Square.class", Project: "app", Root: "app/lib/geom.jar", Package: "com.acme",
		Types: []TypeDecl{{Name: "Square", SimpleName: "Square", Superclass: "com.acme.Shape", Kind: KindClass}},
	})

	assert.Len(t, collect(t, s, "Shape", nil), 2)

	onlyCore, err := NewScope([]string{"core"}, nil, nil)
	require.NoError(t, err)
	recs := collect(t, s, "Shape", onlyCore)
	require.Len(t, recs, 1)
	assert.Equal(t, "Circle", recs[0].Name)

	noJars, err := NewScope(nil, nil, []string{"**.jar"})
	require.NoError(t, err)
	recs = collect(t, s, "Shape", noJars)
	require.Len(t, recs, 1)
	assert.Equal(t, "Circle", recs[0].Name)

	jarsOnly, err := NewScope(nil, []string{"app/lib/*"}, nil)
	require.NoError(t, err)
	recs = collect(t, s, "Shape", jarsOnly)
	require.Len(t, recs, 1)
	assert.Equal(t, "Square", recs[0].Name)
}

func TestSupertypeReferences_CallbackErrorStops(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	putUnit(t, s, shapeUnit())

	stop := errors.New("stop")
	calls := 0
	err := s.SupertypeReferences(context.Background(), MatchAll, nil, func(*IndexRecord) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestSupertypeReferences_Canceled(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	putUnit(t, s, shapeUnit())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.SupertypeReferences(ctx, MatchAll, nil, func(*IndexRecord) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewScope_BadPattern(t *testing.T) {
	t.Parallel()
	_, err := NewScope(nil, []string{"[unclosed"}, nil)
	assert.Error(t, err)
}

// =============================================================================
// Workspace
// =============================================================================

func TestWorkspace_ProjectsRootsAndDependencies(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	for _, p := range []Project{{"core", "core"}, {"api", "api"}, {"app", "app"}} {
		require.NoError(t, s.PutProject(p))
	}
	require.NoError(t, s.PutDependency("app", "api"))
	require.NoError(t, s.PutDependency("api", "core"))
	require.NoError(t, s.PutDependency("api", "core"))

	src := &Root{Project: "app", Path: "app/src", Index: 0, Kind: RootSource}
	jar := &Root{Project: "app", Path: "app/lib/geom.jar", Index: 1, Kind: RootArchive}
	require.NoError(t, s.PutRoot(jar))
	require.NoError(t, s.PutRoot(src))
	assert.Positive(t, src.ID)

	roots, err := s.Roots("app")
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "app/src", roots[0].Path)
	assert.Equal(t, RootArchive, roots[1].Kind)

	visible, err := s.VisibleProjects("app")
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "api", "core"}, visible)

	ok, err := s.DependsOn("app", "core")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.DependsOn("core", "app")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.DependsOn("app", "app")
	require.NoError(t, err)
	assert.False(t, ok)

	r, err := s.RootOf("app/lib/geom.jar|com/acme/Circle.class")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, jar.ID, r.ID)

	r, err = s.RootOf("app/src/com/acme/Main.java")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "app/src", r.Path)

	r, err = s.RootOf("elsewhere/A.java")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestWorkspace_CyclicDependenciesTerminate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PutProject(Project{"a", "a"}))
	require.NoError(t, s.PutProject(Project{"b", "b"}))
	require.NoError(t, s.PutDependency("a", "b"))
	require.NoError(t, s.PutDependency("b", "a"))

	visible, err := s.VisibleProjects("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, visible)
}

func TestWorkspace_Clear(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PutProject(Project{"core", "core"}))
	require.NoError(t, s.PutRoot(&Root{Project: "core", Path: "core/src", Kind: RootSource}))
	putUnit(t, s, shapeUnit())

	require.NoError(t, s.ClearWorkspace())
	projects, err := s.Projects()
	require.NoError(t, err)
	assert.Empty(t, projects)
	roots, err := s.Roots("")
	require.NoError(t, err)
	assert.Empty(t, roots)

	paths, err := s.UnitPaths("")
	require.NoError(t, err)
	assert.Len(t, paths, 1, "units survive a workspace reload")
}

// =============================================================================
// Hierarchy cache
// =============================================================================

func TestHierarchyCache(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.Hierarchy("core/src/A.java#p#A", true)
	require.NoError(t, err)
	assert.Nil(t, got)

	entry := &CachedHierarchy{
		FocusHandle: "core/src/A.java#p#A", ComputeSubtypes: true,
		Data: []byte{0x00, 0x01, '\n'}, GraphHash: "h1", BuildID: "b1", BuiltAt: time.Now().Truncate(time.Second),
	}
	require.NoError(t, s.PutHierarchy(entry))
	entry.Data = []byte{0x00, 0x01, '\n', '\n'}
	entry.BuildID = "b2"
	require.NoError(t, s.PutHierarchy(entry))

	got, err = s.Hierarchy(entry.FocusHandle, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Data, got.Data)
	assert.Equal(t, "b2", got.BuildID)

	got, err = s.Hierarchy(entry.FocusHandle, false)
	require.NoError(t, err)
	assert.Nil(t, got, "supertype-only hierarchies are cached separately")

	n, err := s.DeleteHierarchies()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFingerprint_TracksContent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	empty, err := s.Fingerprint()
	require.NoError(t, err)

	u := putUnit(t, s, shapeUnit())
	first, err := s.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, empty, first)

	again, err := s.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	u.Hash = HashContent([]byte("class Shape {}"))
	putUnit(t, s, u)
	changed, err := s.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestSplitQualified(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, qual, simple string }{
		{"Shape", "", "Shape"},
		{"com.acme.Shape", "com.acme", "Shape"},
		{"java.util.Map<K, java.util.List<V>>", "java.util", "Map"},
		{"Outer.Inner<T>", "Outer", "Inner"},
	}
	for _, tc := range cases {
		qual, simple := SplitQualified(tc.in)
		assert.Equal(t, tc.qual, qual, tc.in)
		assert.Equal(t, tc.simple, simple, tc.in)
	}
}
