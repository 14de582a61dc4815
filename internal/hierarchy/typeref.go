package hierarchy

import (
	"strings"

	"go.trai.ch/zerr"
)

// TypeRef identifies a declared class or interface independently of whether
// it was loaded from source or from a compiled archive. It is comparable and
// round-trips through Handle/ParseHandle.
type TypeRef struct {
	Path    string // workspace-relative document path of the declaring unit
	Package string // dotted package name, empty for the default package
	Name    string // Outer$Inner for member types, Outer$1 / Outer$1Local for local ones
}

// ArchiveSeparator splits an archive path from the entry inside it.
const ArchiveSeparator = "|"

const handleSeparator = "#"

// ObjectRef is the universal base class. It has no document path until the
// index supplies a declaration for it.
var ObjectRef = TypeRef{Package: "java.lang", Name: "Object"}

// Handle returns the stable serialized identity of t.
func (t TypeRef) Handle() string {
	return t.Path + handleSeparator + t.Package + handleSeparator + t.Name
}

// ParseHandle is the inverse of Handle.
func ParseHandle(handle string) (TypeRef, error) {
	i := strings.LastIndex(handle, handleSeparator)
	if i < 0 {
		return TypeRef{}, zerr.With(zerr.Wrap(ErrInvalidHandle, "parse handle"), "handle", handle)
	}
	rest, name := handle[:i], handle[i+1:]
	j := strings.LastIndex(rest, handleSeparator)
	if j < 0 || name == "" {
		return TypeRef{}, zerr.With(zerr.Wrap(ErrInvalidHandle, "parse handle"), "handle", handle)
	}
	return TypeRef{Path: rest[:j], Package: rest[j+1:], Name: name}, nil
}

// IsZero reports whether t is the zero TypeRef.
func (t TypeRef) IsZero() bool { return t == TypeRef{} }

// SimpleName is the declared name without enclosing types. Anonymous types
// have an empty simple name.
func (t TypeRef) SimpleName() string {
	return SimpleNameOf(t.Name)
}

// SimpleNameOf strips enclosing type names and local-type counters from a
// binary type name.
func SimpleNameOf(name string) string {
	if i := strings.LastIndex(name, "$"); i >= 0 {
		name = name[i+1:]
		return strings.TrimLeft(name, "0123456789")
	}
	return name
}

// QualifiedName returns the dotted source-level name, e.g. com.acme.Outer.Inner.
func (t TypeRef) QualifiedName() string {
	name := strings.ReplaceAll(t.Name, "$", ".")
	if t.Package == "" {
		return name
	}
	return t.Package + "." + name
}

// Project is the first segment of the document path.
func (t TypeRef) Project() string {
	if i := strings.IndexByte(t.Path, '/'); i >= 0 {
		return t.Path[:i]
	}
	return t.Path
}

// IsLocal reports whether t is a local or anonymous type.
func (t TypeRef) IsLocal() bool {
	return IsLocalName(t.Name)
}

// IsLocalName reports whether any $-segment of a binary name starts with a
// digit, which is how local and anonymous types are numbered.
func IsLocalName(name string) bool {
	parts := strings.Split(name, "$")
	for _, p := range parts[1:] {
		if p != "" && p[0] >= '0' && p[0] <= '9' {
			return true
		}
	}
	return false
}

// IsBinary reports whether t was declared inside a compiled archive.
func (t TypeRef) IsBinary() bool {
	return strings.Contains(t.Path, ArchiveSeparator)
}

// IsExternal reports whether t has no known declaring unit.
func (t TypeRef) IsExternal() bool { return t.Path == "" }

func (t TypeRef) String() string { return t.QualifiedName() }

// Flags are modifier bits using JVM access-flag values.
type Flags int

const (
	FlagPublic     Flags = 0x0001
	FlagPrivate    Flags = 0x0002
	FlagProtected  Flags = 0x0004
	FlagStatic     Flags = 0x0008
	FlagFinal      Flags = 0x0010
	FlagInterface  Flags = 0x0200
	FlagAbstract   Flags = 0x0400
	FlagAnnotation Flags = 0x2000
	FlagEnum       Flags = 0x4000
	FlagRecord     Flags = 0x10000
)

// NoFlags is returned by Graph.GetCachedFlags for types without cached flags.
const NoFlags Flags = -1

func (f Flags) IsInterface() bool { return f != NoFlags && f&FlagInterface != 0 }
func (f Flags) IsEnum() bool      { return f != NoFlags && f&FlagEnum != 0 }
func (f Flags) IsAbstract() bool  { return f != NoFlags && f&FlagAbstract != 0 }
