package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/store"
)

// fakeIndex answers supertype queries from a fixed record list.
type fakeIndex struct {
	records []*store.IndexRecord
	queries []string
	err     error
}

func (f *fakeIndex) SupertypeReferences(ctx context.Context, simpleName string, scope *store.Scope, fn func(*store.IndexRecord) error) error {
	f.queries = append(f.queries, simpleName)
	if f.err != nil {
		return f.err
	}
	for _, r := range f.records {
		if simpleName != store.MatchAll && r.SuperSimpleName != simpleName {
			continue
		}
		if !scope.Contains(r.Project, r.DocumentPath) {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func rec(path, pkg, name, super string) *store.IndexRecord {
	return &store.IndexRecord{
		DocumentPath:    path,
		Package:         pkg,
		Name:            name,
		SimpleName:      hierarchy.SimpleNameOf(name),
		IsLocal:         hierarchy.IsLocalName(name),
		SuperSimpleName: super,
		SuperKind:       store.SuperClass,
		Project:         path[:len("core")],
	}
}

var focusA = hierarchy.TypeRef{Path: "core/src/p/A.java", Package: "p", Name: "A"}

// =============================================================================
// Search
// =============================================================================

func TestDiscover_TransitiveSubtypes(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{records: []*store.IndexRecord{
		rec("core/src/p/B.java", "p", "B", "A"),
		rec("core/lib/x.jar|q/C.class", "q", "C", "B"),
		rec("core/src/p/U.java", "p", "U", "String"),
	}}
	e := &Engine{Index: idx}

	res, err := e.Discover(context.Background(), focusA, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"core/lib/x.jar|q/C.class", "core/src/p/B.java"}, res.Sorted())
	assert.Equal(t, []string{"A", "B", "C"}, idx.queries)
	assert.Equal(t, 3, res.Queries)
	assert.False(t, res.MatchedAll)
	assert.Empty(t, res.LocalPaths)

	require.Contains(t, res.Placeholders, "core/lib/x.jar|q/C.class")
	p := res.Placeholders["core/lib/x.jar|q/C.class"]
	assert.Equal(t, "C", p.SimpleName)
	assert.Equal(t, []Supertype{{SimpleName: "B", Kind: store.SuperClass}}, p.Supertypes)
}

func TestDiscover_EachNameQueriedOnce(t *testing.T) {
	t.Parallel()
	// D extends B and implements A; both queries report D.
	d1 := rec("core/src/p/D.java", "p", "D", "A")
	d2 := rec("core/src/p/D.java", "p", "D", "B")
	idx := &fakeIndex{records: []*store.IndexRecord{
		rec("core/src/p/B.java", "p", "B", "A"),
		d1, d2,
	}}
	e := &Engine{Index: idx}

	res, err := e.Discover(context.Background(), focusA, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, idx.queries)
	assert.Len(t, res.Paths, 2)
}

func TestDiscover_SameSimpleNameDifferentPackages(t *testing.T) {
	t.Parallel()
	// Two types named B are distinct qualified names; both are expanded, but
	// the query for their simple name is issued per qualified name.
	idx := &fakeIndex{records: []*store.IndexRecord{
		rec("core/src/p/B.java", "p", "B", "A"),
		rec("core/src/r/B.java", "r", "B", "A"),
	}}
	res, err := (&Engine{Index: idx}).Discover(context.Background(), focusA, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "B"}, idx.queries)
	assert.Len(t, res.Paths, 2)
}

func TestDiscover_LocalMatchesNotExpanded(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{records: []*store.IndexRecord{
		rec("core/src/p/Outer.java", "p", "Outer$1", "A"),
		rec("core/src/p/Outer.java", "p", "Outer$1Impl", "A"),
		rec("core/lib/x.jar|q/Host$2.class", "q", "Host$2", "A"),
	}}
	res, err := (&Engine{Index: idx}).Discover(context.Background(), focusA, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, idx.queries)
	assert.Equal(t, map[string]bool{
		"core/src/p/Outer.java":       true,
		"core/lib/x.jar|q/Host.class": true,
	}, res.LocalPaths)
	assert.True(t, res.Has("core/lib/x.jar|q/Host.class"))
	assert.False(t, res.Has("core/lib/x.jar|q/Host$2.class"))
	assert.Contains(t, res.Placeholders, "core/lib/x.jar|q/Host$2.class")
}

func TestDiscover_LocalArchiveMatchWithoutSeparator(t *testing.T) {
	t.Parallel()
	r := rec("core/lib/x.jar|q/Odd.class", "q", "Odd", "A")
	r.IsLocal = true
	idx := &fakeIndex{records: []*store.IndexRecord{r}}

	res, err := (&Engine{Index: idx}).Discover(context.Background(), focusA, Options{})
	require.NoError(t, err)
	assert.True(t, res.Has("core/lib/x.jar|q/Odd.class"))
	assert.Empty(t, res.LocalPaths)
	assert.Equal(t, []string{"A", "Odd"}, idx.queries)
}

func TestDiscover_ObjectShortCircuits(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{records: []*store.IndexRecord{
		rec("core/src/p/A.java", "p", "A", ""),
		rec("core/src/p/B.java", "p", "B", "A"),
		rec("core/lib/x.jar|q/C.class", "q", "C", "B"),
	}}
	res, err := (&Engine{Index: idx}).Discover(context.Background(), hierarchy.ObjectRef, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{store.MatchAll}, idx.queries)
	assert.Equal(t, 1, res.Queries)
	assert.True(t, res.MatchedAll)
	assert.Len(t, res.Paths, 3)
}

func TestDiscover_ObjectReachedLater(t *testing.T) {
	t.Parallel()
	// A subtype named Object ends the search with a match-all query.
	idx := &fakeIndex{records: []*store.IndexRecord{
		rec("core/src/p/Object.java", "p", "Object", "A"),
		rec("core/src/p/Z.java", "p", "Z", "Y"),
	}}
	res, err := (&Engine{Index: idx}).Discover(context.Background(), focusA, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", store.MatchAll}, idx.queries)
	assert.True(t, res.Has("core/src/p/Z.java"))
}

func TestDiscover_Scope(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{records: []*store.IndexRecord{
		rec("core/src/p/B.java", "p", "B", "A"),
		rec("core/gen/p/G.java", "p", "G", "A"),
	}}
	scope, err := store.NewScope(nil, nil, []string{"core/gen/**"})
	require.NoError(t, err)

	res, err := (&Engine{Index: idx, Scope: scope}).Discover(context.Background(), focusA, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"core/src/p/B.java"}, res.Sorted())
}

func TestDiscover_Progress(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{records: []*store.IndexRecord{
		rec("core/src/p/B.java", "p", "B", "A"),
	}}
	var calls [][2]int
	_, err := (&Engine{Index: idx}).Discover(context.Background(), focusA, Options{
		Progress: func(q, pending int) { calls = append(calls, [2]int{q, pending}) },
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 1}, {2, 0}}, calls)
}

// =============================================================================
// Failures
// =============================================================================

func TestDiscover_Canceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := &fakeIndex{}
	res, err := (&Engine{Index: idx}).Discover(ctx, focusA, Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, idx.queries)
}

func TestDiscover_CanceledBetweenPops(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	idx := &fakeIndex{records: []*store.IndexRecord{
		rec("core/src/p/B.java", "p", "B", "A"),
	}}
	_, err := (&Engine{Index: idx}).Discover(ctx, focusA, Options{
		Progress: func(int, int) { cancel() },
	})
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"A"}, idx.queries)
}

func TestDiscover_IndexError(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk on fire")
	_, err := (&Engine{Index: &fakeIndex{err: boom}}).Discover(context.Background(), focusA, Options{})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCanceled)
}

// =============================================================================
// Against the store
// =============================================================================

func TestDiscover_Store(t *testing.T) {
	t.Parallel()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.ReplaceUnit(&store.Unit{
		Path: "core/src/p/A.java", Project: "core", Package: "p",
		Types: []store.TypeDecl{{Name: "A", SimpleName: "A", Kind: store.KindClass}},
	}))
	require.NoError(t, s.ReplaceUnit(&store.Unit{
		Path: "core/src/p/B.java", Project: "core", Package: "p",
		Types: []store.TypeDecl{
			{Name: "B", SimpleName: "B", Superclass: "A", Kind: store.KindClass},
			{Name: "B$1", EnclosingName: "B", IsLocal: true, Superclass: "B", Kind: store.KindClass},
		},
	}))
	require.NoError(t, s.ReplaceUnit(&store.Unit{
		Path: "app/src/r/C.java", Project: "app", Package: "r",
		Types: []store.TypeDecl{{Name: "C", SimpleName: "C", Interfaces: []string{"p.B"}, Kind: store.KindClass}},
	}))

	res, err := (&Engine{Index: s}).Discover(context.Background(), focusA, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"app/src/r/C.java", "core/src/p/B.java"}, res.Sorted())
	assert.Equal(t, map[string]bool{"core/src/p/B.java": true}, res.LocalPaths)
}

// =============================================================================
// Helpers
// =============================================================================

func TestWorkQueue_FIFOAcrossGrowth(t *testing.T) {
	t.Parallel()
	q := newWorkQueue[int](2)
	q.push(1)
	q.push(2)
	assert.Equal(t, 1, q.pop())
	q.push(3)
	q.push(4) // wraps, then grows
	q.push(5)
	var got []int
	for q.len() > 0 {
		got = append(got, q.pop())
	}
	assert.Equal(t, []int{2, 3, 4, 5}, got)
	assert.Panics(t, func() { q.pop() })
}

func TestDeclaringEntry(t *testing.T) {
	t.Parallel()
	got, ok := declaringEntry("lib/x.jar|p/q/Outer$Inner$1.class")
	assert.True(t, ok)
	assert.Equal(t, "lib/x.jar|p/q/Outer.class", got)

	_, ok = declaringEntry("lib/x.jar|Plain.class")
	assert.False(t, ok)
}

func TestPlaceholder_Decl(t *testing.T) {
	t.Parallel()
	p := newPlaceholder(&store.IndexRecord{DocumentPath: "a.jar|p/C.class", Package: "p", Name: "C", SimpleName: "C"})
	p.addSupertype(&store.IndexRecord{SuperSimpleName: "B", SuperQualification: "p", SuperKind: store.SuperClass})
	p.addSupertype(&store.IndexRecord{SuperSimpleName: "I", SuperKind: store.SuperInterface})
	p.addSupertype(&store.IndexRecord{SuperSimpleName: "I", SuperKind: store.SuperInterface})

	td := p.Decl()
	assert.Equal(t, "p.B", td.Superclass)
	assert.Equal(t, []string{"I"}, td.Interfaces)
	assert.Equal(t, store.KindClass, td.Kind)
}
