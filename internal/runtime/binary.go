package runtime

import (
	"strings"

	"github.com/jward/lineage/internal/classfile"
	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/store"
)

// ClassUnit turns a parsed class file into a unit holding its single type.
// Supertypes are written fully qualified, with nested types dotted.
func ClassUnit(path string, c *classfile.Class, hash string) *store.Unit {
	binary := c.BinaryName()
	td := store.TypeDecl{
		Name:           binary,
		SimpleName:     c.SimpleName(),
		Modifiers:      c.Access &^ (classfile.AccSynthetic | classfile.AccModule | classfile.AccSuper),
		TypeParameters: c.TypeParameters(),
		IsInterface:    c.IsInterface(),
		IsLocal:        c.IsLocal || hierarchy.IsLocalName(binary),
		Kind:           classKind(c),
	}
	if c.IsRecord {
		td.Modifiers |= int(hierarchy.FlagRecord)
	}
	switch {
	case c.OuterName != "":
		td.EnclosingName = c.OuterName[strings.LastIndexByte(c.OuterName, '/')+1:]
	case td.IsLocal:
		if i := strings.LastIndexByte(binary, '$'); i > 0 {
			td.EnclosingName = binary[:i]
		}
	}
	// Interfaces record java.lang.Object as their superclass; that is not
	// a source-level supertype.
	if c.SuperName != "" && !td.IsInterface {
		td.Superclass = classfile.DottedName(c.SuperName)
	}
	for _, i := range c.Interfaces {
		td.Interfaces = append(td.Interfaces, classfile.DottedName(i))
	}
	return &store.Unit{
		Path:    path,
		Package: c.Package(),
		Hash:    hash,
		Types:   []store.TypeDecl{td},
	}
}

func classKind(c *classfile.Class) string {
	switch {
	case c.Access&classfile.AccAnnotation != 0:
		return store.KindAnnotation
	case c.IsInterface():
		return store.KindInterface
	case c.Access&classfile.AccEnum != 0:
		return store.KindEnum
	case c.IsRecord:
		return store.KindRecord
	}
	return store.KindClass
}
