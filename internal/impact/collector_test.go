package impact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jward/lineage/internal/hierarchy"
)

func collectorFor(g *hierarchy.Graph) *ChangeCollector {
	return NewChangeCollector(func() *hierarchy.Graph { return g })
}

func TestChangeCollector_AddedThenRemovedCancels(t *testing.T) {
	t.Parallel()
	c := collectorFor(newGraph())
	gone := hierarchy.Declaration{SimpleName: "Gone"}

	c.AddChange("core/src/x/Gone.java", UnitDelta("core/src/x/Gone.java", "x", Changed, typeChild(Added, "Gone", gone)))
	assert.True(t, c.NeedsRefresh())

	c.AddChange("core/src/x/Gone.java", UnitDelta("core/src/x/Gone.java", "x", Changed, typeChild(Removed, "Gone", gone)))
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.NeedsRefresh())
}

func TestChangeCollector_RemovedTypes(t *testing.T) {
	t.Parallel()
	c := collectorFor(newGraph())

	// Contained in the graph by identity.
	c.AddChange(refA.Path, UnitDelta(refA.Path, "p", Changed, typeChild(Removed, "A", hierarchy.Declaration{SimpleName: "A"})))
	assert.True(t, c.NeedsRefresh())

	c.Clear()
	c.AddChange("tools/src/t/T.java", UnitDelta("tools/src/t/T.java", "t", Changed, typeChild(Removed, "T", hierarchy.Declaration{SimpleName: "T"})))
	assert.False(t, c.NeedsRefresh())
}

func TestChangeCollector_RemovedUnit(t *testing.T) {
	t.Parallel()
	c := collectorFor(newGraph())

	c.AddChange(refB.Path, UnitDelta(refB.Path, "q", Removed))
	assert.True(t, c.NeedsRefresh())

	// Recreated before anyone asked.
	c.AddChange(refB.Path, UnitDelta(refB.Path, "q", Added))
	assert.False(t, c.NeedsRefresh())
}

func TestChangeCollector_ChangedFlagsAccumulate(t *testing.T) {
	t.Parallel()
	c := collectorFor(newGraph())
	base := hierarchy.Declaration{SimpleName: "Base"}

	c.AddChange(refBase.Path, UnitDelta(refBase.Path, "p", Changed, &Delta{
		Element: Element{Kind: KindType, Name: "Base", Decl: base}, Kind: Changed, Flags: FlagSuperTypes,
	}))
	c.AddChange(refBase.Path, UnitDelta(refBase.Path, "p", Changed, &Delta{
		Element: Element{Kind: KindType, Name: "Base", Decl: base}, Kind: Changed, Flags: FlagModifiers,
	}))
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.NeedsRefresh())
}

func TestChangeCollector_NoGraph(t *testing.T) {
	t.Parallel()
	c := NewChangeCollector(func() *hierarchy.Graph { return nil })
	c.AddChange(refA.Path, UnitDelta(refA.Path, "p", Removed))
	assert.False(t, c.NeedsRefresh())
}
