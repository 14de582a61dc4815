package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/lineage/internal/classfile"
	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/store"
)

const shapeSource = `package com.acme.geom;

import java.util.List;
import static java.util.Collections.*;
import com.acme.util.*;

public abstract class Shape<T extends Number, U> implements Comparable<Shape<T, U>>, java.io.Serializable {
    public interface Visitor { }

    enum Kind {
        ROUND { void f() { } },
        SQUARE;
    }

    void run() {
        class Helper extends Thread { }
        Runnable r = new Runnable() {
            public void run() { }
        };
    }
}

interface Drawable extends Visitor, Cloneable { }
`

func parse(t *testing.T, src string) *store.Unit {
	t.Helper()
	u, err := ParseJava(context.Background(), "core/src/com/acme/geom/Shape.java", []byte(src))
	require.NoError(t, err)
	return u
}

func typesByName(u *store.Unit) map[string]store.TypeDecl {
	out := make(map[string]store.TypeDecl, len(u.Types))
	for _, td := range u.Types {
		out[td.Name] = td
	}
	return out
}

// --- ParseJava ---

func TestParseJava_PackageAndImports(t *testing.T) {
	t.Parallel()
	u := parse(t, shapeSource)

	assert.Equal(t, "com.acme.geom", u.Package)
	assert.Equal(t, store.HashContent([]byte(shapeSource)), u.Hash)
	assert.Equal(t, []store.Import{
		{Name: "java.util.List"},
		{Name: "java.util.Collections", OnDemand: true, Static: true},
		{Name: "com.acme.util", OnDemand: true},
	}, u.Imports)
}

func TestParseJava_DeclaredTypes(t *testing.T) {
	t.Parallel()
	u := parse(t, shapeSource)
	types := typesByName(u)

	names := make([]string, 0, len(u.Types))
	for _, td := range u.Types {
		names = append(names, td.Name)
	}
	assert.ElementsMatch(t, []string{
		"Shape", "Shape$Visitor", "Shape$Kind", "Shape$Kind$1",
		"Shape$1Helper", "Shape$1", "Drawable",
	}, names)

	shape := types["Shape"]
	assert.Equal(t, int(hierarchy.FlagPublic|hierarchy.FlagAbstract), shape.Modifiers)
	assert.Equal(t, "<T, U>", shape.TypeParameters)
	assert.Empty(t, shape.Superclass)
	assert.Equal(t, []string{"Comparable", "java.io.Serializable"}, shape.Interfaces)
	assert.Equal(t, store.KindClass, shape.Kind)
	assert.False(t, shape.IsLocal)

	visitor := types["Shape$Visitor"]
	assert.Equal(t, "Visitor", visitor.SimpleName)
	assert.Equal(t, "Shape", visitor.EnclosingName)
	assert.True(t, visitor.IsInterface)
	assert.Equal(t, int(hierarchy.FlagPublic|hierarchy.FlagStatic|hierarchy.FlagInterface|hierarchy.FlagAbstract), visitor.Modifiers)

	kind := types["Shape$Kind"]
	assert.Equal(t, store.KindEnum, kind.Kind)
	assert.Equal(t, int(hierarchy.FlagEnum|hierarchy.FlagStatic), kind.Modifiers)

	drawable := types["Drawable"]
	assert.True(t, drawable.IsInterface)
	assert.Equal(t, []string{"Visitor", "Cloneable"}, drawable.Interfaces)
}

func TestParseJava_LocalAndAnonymousTypes(t *testing.T) {
	t.Parallel()
	types := typesByName(parse(t, shapeSource))

	helper := types["Shape$1Helper"]
	assert.True(t, helper.IsLocal)
	assert.Equal(t, "Helper", helper.SimpleName)
	assert.Equal(t, "Shape", helper.EnclosingName)
	assert.Equal(t, "Thread", helper.Superclass)

	anon := types["Shape$1"]
	assert.True(t, anon.IsLocal)
	assert.Empty(t, anon.SimpleName)
	assert.Equal(t, "Runnable", anon.Superclass)

	constant := types["Shape$Kind$1"]
	assert.True(t, constant.IsLocal)
	assert.Equal(t, "Shape$Kind", constant.EnclosingName)
	assert.Equal(t, "Kind", constant.Superclass)
}

func TestParseJava_GenericSupertypesStripped(t *testing.T) {
	t.Parallel()
	u := parse(t, `package p;
class Box<E> extends java.util.AbstractList<E> implements java.util.Map.Entry<String, E> { }
`)
	require.Len(t, u.Types, 1)
	box := u.Types[0]
	assert.Equal(t, "<E>", box.TypeParameters)
	assert.Equal(t, "java.util.AbstractList", box.Superclass)
	assert.Equal(t, []string{"java.util.Map.Entry"}, box.Interfaces)
}

func TestParseJava_RecordsAndAnnotations(t *testing.T) {
	t.Parallel()
	types := typesByName(parse(t, `package p;
public record Point(int x, int y) implements Comparable<Point> { }
@interface Marker { }
`))

	point := types["Point"]
	assert.Equal(t, store.KindRecord, point.Kind)
	assert.Equal(t, int(hierarchy.FlagPublic|hierarchy.FlagFinal|hierarchy.FlagRecord), point.Modifiers)
	assert.Equal(t, []string{"Comparable"}, point.Interfaces)

	marker := types["Marker"]
	assert.Equal(t, store.KindAnnotation, marker.Kind)
	assert.True(t, marker.IsInterface)
	assert.NotZero(t, marker.Modifiers&int(hierarchy.FlagAnnotation))
}

func TestParseJava_DefaultPackage(t *testing.T) {
	t.Parallel()
	u := parse(t, "class A { }\nclass B extends A { }\n")
	assert.Empty(t, u.Package)
	assert.Empty(t, u.Imports)
	types := typesByName(u)
	assert.Equal(t, "A", types["B"].Superclass)
}

func TestParseJava_RepeatedLocalNamesNumbered(t *testing.T) {
	t.Parallel()
	types := typesByName(parse(t, `class Outer {
    void a() { class Item { } }
    void b() { class Item { } }
}
`))
	assert.Contains(t, types, "Outer$1Item")
	assert.Contains(t, types, "Outer$2Item")
}

// --- ClassUnit ---

func TestClassUnit_MemberInterface(t *testing.T) {
	t.Parallel()
	c := &classfile.Class{
		Access:     classfile.AccPublic | classfile.AccStatic | classfile.AccInterface | classfile.AccAbstract,
		Name:       "com/acme/Shape$Visitor",
		SuperName:  "java/lang/Object",
		Interfaces: []string{"com/acme/Base$Marker"},
		OuterName:  "com/acme/Shape",
		InnerName:  "Visitor",
		IsNested:   true,
	}
	u := ClassUnit("libs/geom.jar|com/acme/Shape$Visitor.class", c, "h1")

	assert.Equal(t, "com.acme", u.Package)
	assert.Equal(t, "h1", u.Hash)
	require.Len(t, u.Types, 1)
	td := u.Types[0]
	assert.Equal(t, "Shape$Visitor", td.Name)
	assert.Equal(t, "Visitor", td.SimpleName)
	assert.Equal(t, "Shape", td.EnclosingName)
	assert.True(t, td.IsInterface)
	assert.Equal(t, store.KindInterface, td.Kind)
	assert.Empty(t, td.Superclass)
	assert.Equal(t, []string{"com.acme.Base.Marker"}, td.Interfaces)
}

func TestClassUnit_AnonymousRecordAndEnum(t *testing.T) {
	t.Parallel()

	anon := ClassUnit("a.jar|p/Outer$1.class", &classfile.Class{
		Access:    classfile.AccSuper | classfile.AccSynthetic,
		Name:      "p/Outer$1",
		SuperName: "p/Base",
		IsLocal:   true,
	}, "")
	td := anon.Types[0]
	assert.True(t, td.IsLocal)
	assert.Equal(t, "Outer", td.EnclosingName)
	assert.Equal(t, "p.Base", td.Superclass)
	assert.Zero(t, td.Modifiers)

	rec := ClassUnit("a.jar|p/Point.class", &classfile.Class{
		Access:    classfile.AccPublic | classfile.AccFinal,
		Name:      "p/Point",
		SuperName: "java/lang/Record",
		IsRecord:  true,
	}, "")
	assert.Equal(t, store.KindRecord, rec.Types[0].Kind)
	assert.NotZero(t, rec.Types[0].Modifiers&int(hierarchy.FlagRecord))

	enum := ClassUnit("a.jar|p/Color.class", &classfile.Class{
		Access:    classfile.AccPublic | classfile.AccEnum | classfile.AccFinal,
		Name:      "p/Color",
		SuperName: "java/lang/Enum",
	}, "")
	assert.Equal(t, store.KindEnum, enum.Types[0].Kind)
	assert.Equal(t, "java.lang.Enum", enum.Types[0].Superclass)
}

// --- Kinds ---

func TestKindForFile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"core/src/p/A.java", KindSource, true},
		{"out/p/A.class", KindClass, true},
		{"libs/geom.jar", KindArchive, true},
		{"libs/geom.ZIP", KindArchive, true},
		{"README.md", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, ok := KindForFile(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
