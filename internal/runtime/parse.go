package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/store"
)

// ParseJava parses a Java compilation unit and returns its package, imports
// and every type it declares. Project and root are left for the caller.
// Syntax errors do not fail the parse; whatever tree-sitter recovers is
// extracted.
func ParseJava(ctx context.Context, path string, src []byte) (*store.Unit, error) {
	lang, _ := ParserForLanguage("java")
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	e := &extractor{
		src:      src,
		unit:     &store.Unit{Path: path, Hash: store.HashContent(src)},
		counters: map[string]*localCounter{},
		kinds:    map[string]string{},
	}
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		c := root.NamedChild(i)
		switch c.Type() {
		case "package_declaration":
			if c.NamedChildCount() > 0 {
				e.unit.Package = compact(e.text(c.NamedChild(int(c.NamedChildCount()) - 1)))
			}
		case "import_declaration":
			e.unit.Imports = append(e.unit.Imports, parseImport(e.text(c)))
		default:
			if isTypeDeclaration(c.Type()) {
				name := e.declare(c, "", false)
				e.members(c, name)
			}
		}
	}
	return e.unit, nil
}

type localCounter struct {
	anonymous int
	local     map[string]int
}

type extractor struct {
	src      []byte
	unit     *store.Unit
	counters map[string]*localCounter // keyed by enclosing binary name
	kinds    map[string]string
}

func (e *extractor) text(n *sitter.Node) string {
	return n.Content(e.src)
}

func (e *extractor) counter(enclosing string) *localCounter {
	c, ok := e.counters[enclosing]
	if !ok {
		c = &localCounter{local: map[string]int{}}
		e.counters[enclosing] = c
	}
	return c
}

func isTypeDeclaration(nodeType string) bool {
	switch nodeType {
	case "class_declaration", "interface_declaration", "enum_declaration",
		"record_declaration", "annotation_type_declaration":
		return true
	}
	return false
}

// declare records a named type declaration and returns its binary name.
func (e *extractor) declare(n *sitter.Node, enclosing string, local bool) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return enclosing
	}
	simple := e.text(nameNode)
	binary := simple
	switch {
	case enclosing == "":
	case local:
		c := e.counter(enclosing)
		c.local[simple]++
		binary = enclosing + "$" + strconv.Itoa(c.local[simple]) + simple
	default:
		binary = enclosing + "$" + simple
	}

	td := store.TypeDecl{
		Name:           binary,
		SimpleName:     simple,
		EnclosingName:  enclosing,
		Modifiers:      e.modifiers(n),
		TypeParameters: e.typeParameters(n),
		IsLocal:        local || hierarchy.IsLocalName(binary),
	}
	switch n.Type() {
	case "class_declaration":
		td.Kind = store.KindClass
	case "interface_declaration":
		td.Kind = store.KindInterface
		td.IsInterface = true
		td.Modifiers |= int(hierarchy.FlagInterface | hierarchy.FlagAbstract)
	case "enum_declaration":
		td.Kind = store.KindEnum
		td.Modifiers |= int(hierarchy.FlagEnum)
	case "record_declaration":
		td.Kind = store.KindRecord
		td.Modifiers |= int(hierarchy.FlagRecord | hierarchy.FlagFinal)
	case "annotation_type_declaration":
		td.Kind = store.KindAnnotation
		td.IsInterface = true
		td.Modifiers |= int(hierarchy.FlagInterface | hierarchy.FlagAbstract | hierarchy.FlagAnnotation)
	}
	if enclosing != "" && !local {
		// Member types of interfaces are implicitly public and static;
		// nested interfaces, enums and records are implicitly static.
		if k := e.kinds[enclosing]; k == store.KindInterface || k == store.KindAnnotation {
			td.Modifiers |= int(hierarchy.FlagPublic | hierarchy.FlagStatic)
		}
		if td.Kind != store.KindClass {
			td.Modifiers |= int(hierarchy.FlagStatic)
		}
	}

	if sc := childOfType(n, "superclass"); sc != nil && sc.NamedChildCount() > 0 {
		td.Superclass = e.typeName(sc.NamedChild(0))
	}
	for _, kind := range []string{"super_interfaces", "extends_interfaces"} {
		if si := childOfType(n, kind); si != nil {
			td.Interfaces = append(td.Interfaces, e.typeList(si)...)
		}
	}

	e.kinds[binary] = td.Kind
	e.unit.Types = append(e.unit.Types, td)
	return binary
}

// members walks the body of a type declaration.
func (e *extractor) members(n *sitter.Node, binary string) {
	if body := n.ChildByFieldName("body"); body != nil {
		e.walkBody(body, binary)
	}
}

// walk looks for local and anonymous types anywhere below n.
func (e *extractor) walk(n *sitter.Node, enclosing string) {
	if n == nil {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch {
		case isTypeDeclaration(c.Type()):
			name := e.declare(c, enclosing, true)
			e.members(c, name)
		case c.Type() == "object_creation_expression":
			cb := childOfType(c, "class_body")
			if cb == nil {
				e.walk(c, enclosing)
				continue
			}
			written := ""
			if t := c.ChildByFieldName("type"); t != nil {
				written = e.typeName(t)
			}
			name := e.anonymous(enclosing, written)
			e.walk(c.ChildByFieldName("arguments"), enclosing)
			e.walkBody(cb, name)
		default:
			e.walk(c, enclosing)
		}
	}
}

// walkBody walks a class, interface, enum or anonymous class body. Type
// declarations directly in the body are member types; everything else may
// hold local and anonymous types.
func (e *extractor) walkBody(body *sitter.Node, binary string) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		switch {
		case isTypeDeclaration(c.Type()):
			name := e.declare(c, binary, false)
			e.members(c, name)
		case c.Type() == "enum_body_declarations":
			e.walkBody(c, binary)
		case c.Type() == "enum_constant":
			e.walk(c.ChildByFieldName("arguments"), binary)
			if cb := childOfType(c, "class_body"); cb != nil {
				name := e.anonymous(binary, hierarchy.SimpleNameOf(binary))
				e.walkBody(cb, name)
			}
		default:
			e.walk(c, binary)
		}
	}
}

// anonymous records an anonymous type with the single supertype written
// after new.
func (e *extractor) anonymous(enclosing, written string) string {
	c := e.counter(enclosing)
	c.anonymous++
	binary := enclosing + "$" + strconv.Itoa(c.anonymous)
	e.kinds[binary] = store.KindClass
	e.unit.Types = append(e.unit.Types, store.TypeDecl{
		Name:          binary,
		EnclosingName: enclosing,
		IsLocal:       true,
		Kind:          store.KindClass,
		Superclass:    written,
	})
	return binary
}

func (e *extractor) modifiers(n *sitter.Node) int {
	mods := childOfType(n, "modifiers")
	if mods == nil {
		return 0
	}
	var flags hierarchy.Flags
	for i := 0; i < int(mods.ChildCount()); i++ {
		switch mods.Child(i).Type() {
		case "public":
			flags |= hierarchy.FlagPublic
		case "private":
			flags |= hierarchy.FlagPrivate
		case "protected":
			flags |= hierarchy.FlagProtected
		case "static":
			flags |= hierarchy.FlagStatic
		case "final":
			flags |= hierarchy.FlagFinal
		case "abstract":
			flags |= hierarchy.FlagAbstract
		}
	}
	return int(flags)
}

func (e *extractor) typeParameters(n *sitter.Node) string {
	tp := n.ChildByFieldName("type_parameters")
	if tp == nil {
		return ""
	}
	var names []string
	for i := 0; i < int(tp.NamedChildCount()); i++ {
		p := tp.NamedChild(i)
		if p.Type() != "type_parameter" {
			continue
		}
		for j := 0; j < int(p.NamedChildCount()); j++ {
			if id := p.NamedChild(j); id.Type() == "type_identifier" || id.Type() == "identifier" {
				names = append(names, e.text(id))
				break
			}
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "<" + strings.Join(names, ", ") + ">"
}

func (e *extractor) typeList(n *sitter.Node) []string {
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "type_list" {
			out = append(out, e.typeList(c)...)
			continue
		}
		if name := e.typeName(c); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// typeName returns a type as written, without type arguments or spaces.
func (e *extractor) typeName(n *sitter.Node) string {
	return compact(store.StripTypeArguments(e.text(n)))
}

func parseImport(text string) store.Import {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "import")
	s = strings.TrimSuffix(strings.TrimSpace(s), ";")
	s = strings.TrimSpace(s)
	var imp store.Import
	if rest, ok := strings.CutPrefix(s, "static"); ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n') {
		imp.Static = true
		s = rest
	}
	s = compact(s)
	if name, ok := strings.CutSuffix(s, ".*"); ok {
		imp.OnDemand = true
		s = name
	}
	imp.Name = s
	return imp
}

func childOfType(n *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == nodeType {
			return c
		}
	}
	return nil
}

// compact removes all whitespace, so "java.util . List" reads java.util.List.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
